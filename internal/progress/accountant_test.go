package progress

import (
	"testing"
	"time"

	"aio-download-engine/internal/config"
	"aio-download-engine/internal/record"
)

func TestTickComputesPercentageAndSpeed(t *testing.T) {
	r := record.New("https://example.com/file.bin", record.TransferDirectHTTP, config.Defaults())
	r.FileSize = 1000
	r.IsUnknownFileSize = false

	a := New()
	a.Tick(r, 500*time.Millisecond, 250)
	if r.ProgressPercentage != 25 {
		t.Fatalf("expected 25%%, got %v", r.ProgressPercentage)
	}
	if r.TimeSpentInMilliSec != 500 {
		t.Fatalf("expected timeSpent 500ms, got %d", r.TimeSpentInMilliSec)
	}

	time.Sleep(5 * time.Millisecond)
	a.Tick(r, 500*time.Millisecond, 500)
	if r.ProgressPercentage != 50 {
		t.Fatalf("expected 50%%, got %v", r.ProgressPercentage)
	}
	if r.RealtimeSpeed <= 0 {
		t.Fatalf("expected positive realtime speed, got %d", r.RealtimeSpeed)
	}
}

func TestTickSkipsTimeSpentWhileWaitingForNetwork(t *testing.T) {
	r := record.New("https://example.com/file.bin", record.TransferDirectHTTP, config.Defaults())
	r.IsWaitingForNetwork = true

	a := New()
	a.Tick(r, 500*time.Millisecond, 0)
	if r.TimeSpentInMilliSec != 0 {
		t.Fatalf("expected timeSpent unchanged while waiting, got %d", r.TimeSpentInMilliSec)
	}
}

func TestTickUnknownSizeMirrorsDownloadedBytes(t *testing.T) {
	r := record.New("https://example.com/file.bin", record.TransferDirectHTTP, config.Defaults())

	a := New()
	a.Tick(r, 500*time.Millisecond, 777)
	if r.FileSize != 777 {
		t.Fatalf("expected fileSize mirrored to 777, got %d", r.FileSize)
	}
}
