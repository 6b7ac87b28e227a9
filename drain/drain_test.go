package drain

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/stratum/queue"
	"github.com/pithecene-io/stratum/types"
)

func testSetup(t *testing.T, atomicScript bool) (*Drainer, *queue.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := queue.New(queue.Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	d := New(c, Config{AtomicScript: atomicScript}, nil)
	return d, c, mr
}

func TestExtractAll_BothQueues(t *testing.T) {
	for _, scripted := range []bool{true, false} {
		name := "fallback"
		if scripted {
			name = "scripted"
		}
		t.Run(name, func(t *testing.T) {
			d, c, mr := testSetup(t, scripted)
			ctx := context.Background()

			gpsPayloads := []string{
				`{"deviceId":"d1","lat":-12.04,"lng":-77.04,"timestamp":"2025-01-15T10:00:00Z"}`,
				`{"deviceId":"d2","lat":-12.05,"lng":-77.05,"timestamp":"2025-01-15T10:01:00Z"}`,
			}
			if err := c.RPushMany(ctx, queue.DefaultGPSKey, gpsPayloads); err != nil {
				t.Fatalf("seed gps: %v", err)
			}
			if err := c.RPushMany(ctx, queue.DefaultMobileKey, []string{`{"userId":"u1"}`}); err != nil {
				t.Fatalf("seed mobile: %v", err)
			}

			res, err := d.ExtractAll(ctx)
			if err != nil {
				t.Fatalf("extract all: %v", err)
			}

			if len(res.GPS.Raw) != 2 {
				t.Errorf("gps raw = %d, want 2", len(res.GPS.Raw))
			}
			if res.GPS.Raw[0] != gpsPayloads[0] {
				t.Errorf("gps order not preserved: %s", res.GPS.Raw[0])
			}
			if len(res.Mobile.Raw) != 1 {
				t.Errorf("mobile raw = %d, want 1", len(res.Mobile.Raw))
			}

			// Drain is all-or-nothing: both keys must be empty afterwards.
			if mr.Exists(queue.DefaultGPSKey) || mr.Exists(queue.DefaultMobileKey) {
				t.Error("queue keys survived the drain")
			}

			if !strings.HasPrefix(res.GPS.ProcessingID, "gps_") {
				t.Errorf("gps processing id = %q", res.GPS.ProcessingID)
			}
			if !strings.HasPrefix(res.Mobile.ProcessingID, "mobile_") {
				t.Errorf("mobile processing id = %q", res.Mobile.ProcessingID)
			}
			if res.GPS.Kind != types.KindGPS || res.Mobile.Kind != types.KindMobile {
				t.Error("extract kinds mislabeled")
			}
		})
	}
}

func TestExtractAll_EmptyQueues(t *testing.T) {
	d, _, _ := testSetup(t, true)

	res, err := d.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract all: %v", err)
	}
	if !res.GPS.Empty() || !res.Mobile.Empty() {
		t.Error("expected empty extracts")
	}
	// Empty batches carry no processing id; nothing downstream exists for them.
	if res.GPS.ProcessingID != "" {
		t.Errorf("empty extract got processing id %q", res.GPS.ProcessingID)
	}
}

func TestExtract_GPSFailureSkipsMobile(t *testing.T) {
	d, c, mr := testSetup(t, true)
	ctx := context.Background()

	if err := c.RPushMany(ctx, queue.DefaultMobileKey, []string{`{"userId":"u1"}`}); err != nil {
		t.Fatalf("seed mobile: %v", err)
	}

	// Kill the store so the GPS length read fails.
	mr.Close()

	if _, err := d.ExtractAll(ctx); err == nil {
		t.Fatal("expected error when store is down")
	}
}

func TestExtract_ConcurrentAppendSurvives(t *testing.T) {
	d, c, mr := testSetup(t, true)
	ctx := context.Background()

	if err := c.RPushMany(ctx, queue.DefaultGPSKey, []string{`{"deviceId":"d1"}`}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := d.ExtractAll(ctx)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.GPS.Raw) != 1 {
		t.Fatalf("raw = %d, want 1", len(res.GPS.Raw))
	}

	// A producer pushing after the drain lands in a fresh list and is
	// naturally picked up on the next tick.
	if err := c.RPushMany(ctx, queue.DefaultGPSKey, []string{`{"deviceId":"d2"}`}); err != nil {
		t.Fatalf("post-drain push: %v", err)
	}
	if got := mr.Exists(queue.DefaultGPSKey); !got {
		t.Fatal("post-drain push did not create a fresh list")
	}

	res2, err := d.ExtractAll(ctx)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if len(res2.GPS.Raw) != 1 || !strings.Contains(res2.GPS.Raw[0], "d2") {
		t.Errorf("second drain = %v", res2.GPS.Raw)
	}
}
