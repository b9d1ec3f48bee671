package filesystem

import "testing"

func TestGetOrganizedPath(t *testing.T) {
	tests := []struct {
		filename string
		category string
	}{
		{"pic.jpg", "Images"},
		{"song.mp3", "Music"},
		{"doc.pdf", "Documents"},
		{"installer.exe", "Software"},
		{"movie.mp4", "Videos"},
		{"archive.zip", "Archives"},
		{"unknown.xyz", "Others"},
	}

	for _, tt := range tests {
		got := GetOrganizedPath("/downloads", tt.filename)
		want := "/downloads/" + tt.category
		if got != want {
			t.Errorf("GetOrganizedPath(%s) = %s, want %s", tt.filename, got, want)
		}
	}
}
