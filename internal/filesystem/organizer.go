// Package filesystem implements the "smart category" destination mapping
// step of TaskEngine's one-time filename/directory preparation: choosing
// a categorized subdirectory under the task's base download directory
// from the file's extension, before any filename collision is resolved.
package filesystem

import (
	"path/filepath"
	"strings"
)

// GetCategory returns the category for a given filename based on extension.
func GetCategory(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg":
		return "Images"
	case ".mp4", ".mkv", ".mov", ".avi", ".webm", ".wmv":
		return "Videos"
	case ".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a":
		return "Music"
	case ".zip", ".rar", ".7z", ".tar", ".gz", ".iso":
		return "Archives"
	case ".pdf", ".docx", ".xlsx", ".pptx", ".txt", ".md":
		return "Documents"
	case ".exe", ".msi", ".dmg", ".pkg", ".deb":
		return "Software"
	default:
		return "Others"
	}
}

// GetOrganizedPath returns the categorized subdirectory of baseDir that a
// file with the given name should be stored under.
func GetOrganizedPath(baseDir, filename string) string {
	return filepath.Join(baseDir, GetCategory(filename))
}
