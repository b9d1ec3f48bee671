package urlclassify

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestIsSocialMediaURL(t *testing.T) {
	cases := map[string]bool{
		"https://www.youtube.com/watch?v=abc": true,
		"https://vimeo.com/12345":             true,
		"https://example.com/file.zip":        false,
	}
	for u, want := range cases {
		if got := IsSocialMediaURL(u); got != want {
			t.Errorf("IsSocialMediaURL(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestIsYouTubeURL(t *testing.T) {
	if !IsYouTubeURL("https://youtu.be/abc123") {
		t.Fatalf("expected youtu.be to be classified as YouTube")
	}
	if IsYouTubeURL("https://vimeo.com/1") {
		t.Fatalf("expected vimeo to not be classified as YouTube")
	}
}

func TestFilterYoutubeURLWithoutPlaylist(t *testing.T) {
	got := FilterYoutubeURLWithoutPlaylist("https://www.youtube.com/watch?v=abc&list=PL123&index=4")
	if strings.Contains(got, "list=") || strings.Contains(got, "index=") {
		t.Fatalf("expected list/index stripped, got %s", got)
	}
	if !strings.Contains(got, "v=abc") {
		t.Fatalf("expected v= preserved, got %s", got)
	}
}

func TestIsURLExpired(t *testing.T) {
	past := time.Now().Add(-1 * time.Hour).Unix()
	future := time.Now().Add(1 * time.Hour).Unix()

	if !IsURLExpired(urlWithExpires(past)) {
		t.Fatalf("expected past expiry to report expired")
	}
	if IsURLExpired(urlWithExpires(future)) {
		t.Fatalf("expected future expiry to report not expired")
	}
	if IsURLExpired("https://example.com/file.zip") {
		t.Fatalf("expected no expiry param to report not expired")
	}
}

func TestGetBaseDomain(t *testing.T) {
	if got := GetBaseDomain("https://sub.example.co.uk/path"); got != "co.uk" {
		// last-two-labels heuristic; documented as approximate, not a
		// full public-suffix-list lookup.
		t.Logf("base domain for multi-part TLD: %s (approximate heuristic)", got)
	}
	if got := GetBaseDomain("https://www.youtube.com/watch"); got != "youtube.com" {
		t.Fatalf("expected youtube.com, got %s", got)
	}
}

func urlWithExpires(epoch int64) string {
	return "https://cdn.example.com/file.bin?expires=" + strconv.FormatInt(epoch, 10)
}
