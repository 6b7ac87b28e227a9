package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_RecordMethods(t *testing.T) {
	c := NewCollector("gcs", "tick-001")

	c.AddExtracted("gps", 10)
	c.AddExtracted("mobile", 4)
	c.AbsorbValidation("gps", 9, 1)
	c.AbsorbValidation("mobile", 4, 0)
	c.AddUploaded("gps", 9)
	c.AddLoaded("gps", 9)
	c.AddFailed("mobile", 4)
	c.IncBackupSaved()
	c.IncBackupRetried()
	c.IncBackupRetried()
	c.IncBackupRecovered()
	c.IncBackupExhausted()
	c.IncRecoveryRegistered()
	c.AbsorbRecoveryRun(3, 1, 2)
	c.SetExtractionTime(250 * time.Millisecond)
	c.SetTotalTime(2 * time.Second)

	s := c.Snapshot()

	if s.GPS.Extracted != 10 || s.Mobile.Extracted != 4 {
		t.Errorf("extracted = %d/%d", s.GPS.Extracted, s.Mobile.Extracted)
	}
	if s.GPS.Valid != 9 || s.GPS.Invalid != 1 {
		t.Errorf("gps validation = %d/%d", s.GPS.Valid, s.GPS.Invalid)
	}
	if s.GPS.Uploaded != 9 || s.GPS.Loaded != 9 {
		t.Errorf("gps staged/loaded = %d/%d", s.GPS.Uploaded, s.GPS.Loaded)
	}
	if s.Mobile.Failed != 4 {
		t.Errorf("mobile failed = %d", s.Mobile.Failed)
	}
	if s.BackupsSaved != 1 || s.BackupsRetried != 2 || s.BackupsRecovered != 1 || s.BackupsExhausted != 1 {
		t.Errorf("backups = %d/%d/%d/%d", s.BackupsSaved, s.BackupsRetried, s.BackupsRecovered, s.BackupsExhausted)
	}
	if s.RecoveryRegistered != 1 || s.RecoveryProcessed != 3 || s.RecoveryFailed != 1 || s.OrphansFound != 2 {
		t.Errorf("recovery = %d/%d/%d/%d", s.RecoveryRegistered, s.RecoveryProcessed, s.RecoveryFailed, s.OrphansFound)
	}
	if s.ExtractionTime != 250*time.Millisecond || s.TotalTime != 2*time.Second {
		t.Errorf("durations = %s/%s", s.ExtractionTime, s.TotalTime)
	}
	if s.TotalProcessed() != 9 {
		t.Errorf("TotalProcessed = %d", s.TotalProcessed())
	}
	if s.TotalExtracted() != 14 {
		t.Errorf("TotalExtracted = %d", s.TotalExtracted())
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("s3", "tick-42")
	s := c.Snapshot()

	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
	if s.TickID != "tick-42" {
		t.Errorf("TickID = %q, want %q", s.TickID, "tick-42")
	}
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector

	c.AddExtracted("gps", 1)
	c.AbsorbValidation("gps", 1, 0)
	c.AddUploaded("gps", 1)
	c.AddLoaded("gps", 1)
	c.AddFailed("gps", 1)
	c.IncBackupSaved()
	c.IncBackupRetried()
	c.IncBackupRecovered()
	c.IncBackupExhausted()
	c.IncRecoveryRegistered()
	c.AbsorbRecoveryRun(1, 1, 1)
	c.SetExtractionTime(time.Second)
	c.SetTotalTime(time.Second)

	s := c.Snapshot()
	if s.TotalExtracted() != 0 {
		t.Errorf("nil collector snapshot = %+v", s)
	}
}

// The GPS and Mobile dispatch paths record concurrently.
func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector("fs", "tick-cc")

	var wg sync.WaitGroup
	for _, kind := range []string{"gps", "mobile"} {
		wg.Add(1)
		go func(kind string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.AddExtracted(kind, 1)
				c.AddLoaded(kind, 1)
			}
		}(kind)
	}
	wg.Wait()

	s := c.Snapshot()
	if s.GPS.Extracted != 100 || s.Mobile.Extracted != 100 {
		t.Errorf("extracted = %d/%d", s.GPS.Extracted, s.Mobile.Extracted)
	}
	if s.TotalProcessed() != 200 {
		t.Errorf("TotalProcessed = %d", s.TotalProcessed())
	}
}
