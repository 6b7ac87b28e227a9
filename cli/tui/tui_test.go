package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/stratum/cli/reader"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"inspect_backup", true},
		{"inspect_recovery", true},
		{"stats_pipeline", true},

		{"list_backups", false},
		{"list_recovery", false},
		{"health", false},
		{"version", false},
		{"run", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()

	if len(views) != 3 {
		t.Errorf("SupportedTUIViews() returned %d views, expected 3", len(views))
	}

	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	err := Run("list_backups", nil)
	if err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestInspectModel_RenderBackup(t *testing.T) {
	data := &reader.BackupSummary{
		ID:         "backup_gps_1",
		Kind:       "gps",
		Status:     "pending",
		Records:    3,
		RetryCount: 1,
		MaxRetries: 3,
		CreatedAt:  time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		LastError:  "storage unavailable",
	}

	out := RenderInspectStatic("inspect_backup", data)
	for _, want := range []string{"backup_gps_1", "gps", "1/3", "storage unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect_backup view missing %q:\n%s", want, out)
		}
	}
}

func TestInspectModel_RenderRecovery(t *testing.T) {
	data := &reader.RecoverySummary{
		ID:           "gcs_recovery_1",
		Kind:         "mobile",
		Status:       "failed",
		ObjectName:   "mobile-data/mobile_x.json",
		RetryCount:   3,
		MaxRetries:   3,
		HasOriginals: true,
		CreatedAt:    time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	out := RenderInspectStatic("inspect_recovery", data)
	for _, want := range []string{"gcs_recovery_1", "mobile-data/mobile_x.json", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect_recovery view missing %q:\n%s", want, out)
		}
	}
}

func TestInspectModel_WrongDataType(t *testing.T) {
	out := RenderInspectStatic("inspect_backup", "not a summary")
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data type message, got:\n%s", out)
	}
}

func TestStatsModel_RenderPipeline(t *testing.T) {
	data := &reader.PipelineStats{
		Queues:            reader.QueueDepths{GPS: 12, Mobile: 7},
		BackupsPending:    2,
		BackupsFailed:     1,
		RecoveryCompleted: 4,
	}

	out := RenderStatsStatic("stats_pipeline", data)
	for _, want := range []string{"Queues", "Local Backups", "Recovery Registry", "12", "7"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats_pipeline view missing %q:\n%s", want, out)
		}
	}
}
