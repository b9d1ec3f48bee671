package probe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbePopulatesInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Content-Disposition", `attachment; filename="movie.mp4"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(1, 5*time.Second)
	info, err := p.Probe(Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.IsForbidden {
		t.Fatalf("expected success, got forbidden: %s", info.ErrorMessage)
	}
	if info.FileSize != 4096 {
		t.Fatalf("expected size 4096, got %d", info.FileSize)
	}
	if !info.SupportsMultipart || !info.SupportsResume {
		t.Fatalf("expected multipart/resume support, got %+v", info)
	}
	if info.FileName != "movie.mp4" {
		t.Fatalf("expected filename movie.mp4, got %q", info.FileName)
	}
}

func TestProbeForbiddenOn403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := New(0, 5*time.Second)
	info, err := p.Probe(Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !info.IsForbidden || info.FileSize != -1 {
		t.Fatalf("expected forbidden with size -1, got %+v", info)
	}
}

func TestProbeFilenameFallsBackToURLTail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(0, 5*time.Second)
	info, err := p.Probe(Request{URL: srv.URL + "/archive.zip"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.FileName != "archive.zip" {
		t.Fatalf("expected archive.zip, got %q", info.FileName)
	}
}

func TestFetchChecksumPrefersXChecksumHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Checksum-sha256", "deadbeef")
		w.Header().Set("ETag", `"etagvalue"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(0, 5*time.Second)
	sum, ok := p.FetchChecksum(srv.URL, "sha256")
	if !ok || sum != "deadbeef" {
		t.Fatalf("expected deadbeef, got %q ok=%v", sum, ok)
	}
}
