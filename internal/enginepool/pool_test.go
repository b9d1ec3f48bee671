package enginepool

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"aio-download-engine/internal/config"
	"aio-download-engine/internal/record"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	dir := t.TempDir()
	settings := config.Defaults()
	p, err := New(Options{
		DataDir:       filepath.Join(dir, "data"),
		StagingDir:    filepath.Join(dir, "staging"),
		ExtractorPath: "yt-dlp",
		Settings:      func() config.Settings { return settings },
		Logger:        slog.Default(),
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

func TestSubmitClassifiesDirectHTTP(t *testing.T) {
	p := newTestPool(t)
	dest := t.TempDir()

	r, err := p.Submit(context.Background(), "https://example.com/file.zip", dest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Kind != record.TransferDirectHTTP {
		t.Fatalf("expected TransferDirectHTTP, got %v", r.Kind)
	}
	if p.admission.Len() != 1 {
		t.Fatalf("expected one queued entry, got %d", p.admission.Len())
	}
}

func TestSubmitClassifiesExtractorBacked(t *testing.T) {
	p := newTestPool(t)
	dest := t.TempDir()

	r, err := p.Submit(context.Background(), "https://www.youtube.com/watch?v=abc123", dest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Kind != record.TransferExtractorBacked {
		t.Fatalf("expected TransferExtractorBacked, got %v", r.Kind)
	}
}

func TestStatusFallsBackToStoreWhenNotRunning(t *testing.T) {
	p := newTestPool(t)
	dest := t.TempDir()

	submitted, err := p.Submit(context.Background(), "https://example.com/file.zip", dest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// No engine has been started for this record (dispatchLoop was never
	// run), so Status must fall through to the persisted copy rather than
	// panicking on a missing map entry.
	got, err := p.Status(submitted.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.ID != submitted.ID {
		t.Fatalf("expected record %s, got %s", submitted.ID, got.ID)
	}
}

func TestListReturnsSubmittedIDs(t *testing.T) {
	p := newTestPool(t)
	dest := t.TempDir()

	first, err := p.Submit(context.Background(), "https://example.com/a.zip", dest)
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	second, err := p.Submit(context.Background(), "https://example.com/b.zip", dest)
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}

	ids, err := p.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := map[string]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[first.ID] || !found[second.ID] {
		t.Fatalf("expected both submitted ids in %v", ids)
	}
}

func TestCancelRemovesQueuedEntryWithoutAnEngine(t *testing.T) {
	p := newTestPool(t)
	dest := t.TempDir()

	r, err := p.Submit(context.Background(), "https://example.com/file.zip", dest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.Cancel(r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if p.admission.Len() != 0 {
		t.Fatalf("expected queued entry to be removed, queue len=%d", p.admission.Len())
	}
}

func TestPauseUnknownTaskReturnsError(t *testing.T) {
	p := newTestPool(t)
	if err := p.Pause("no-such-id"); err == nil {
		t.Fatalf("expected an error pausing an unknown task")
	}
}
