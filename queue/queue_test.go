package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestListOps(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	if err := c.RPushMany(ctx, "k", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("rpush: %v", err)
	}

	n, err := c.Len(ctx, "k")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 3 {
		t.Errorf("len = %d, want 3", n)
	}

	vals, err := c.RangeAll(ctx, "k")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(vals) != 3 || vals[0] != "a" || vals[2] != "c" {
		t.Errorf("range = %v", vals)
	}

	deleted, err := c.Delete(ctx, "k")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Error("delete reported no key removed")
	}

	n, err = c.Len(ctx, "k")
	if err != nil {
		t.Fatalf("len after delete: %v", err)
	}
	if n != 0 {
		t.Errorf("len after delete = %d, want 0", n)
	}
}

func TestDelete_MissingKey(t *testing.T) {
	c, _ := testClient(t)

	deleted, err := c.Delete(context.Background(), "absent")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Error("delete of missing key reported removal")
	}
}

func TestRPushMany_Empty(t *testing.T) {
	c, _ := testClient(t)
	if err := c.RPushMany(context.Background(), "k", nil); err != nil {
		t.Fatalf("empty rpush should be a no-op: %v", err)
	}
}

func TestKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(Config{Addr: mr.Addr(), KeyPrefix: "app:"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer func() { _ = c.Close() }()

	if got := c.Key("gps:history:global"); got != "app:gps:history:global" {
		t.Errorf("Key = %q", got)
	}
}

func TestPing(t *testing.T) {
	c, mr := testClient(t)

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	mr.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected ping failure after server close")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing addr")
	}
	if _, err := New(Config{URL: "not-a-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}
