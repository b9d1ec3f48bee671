// Package extractor drives an external media extractor (yt-dlp-compatible)
// subprocess on behalf of a TaskEngine, translating a Record's format
// selection into command-line arguments, tailing the child's stdout for
// progress, and finalizing the staged output into the Record's destination.
// Command construction and progress parsing are grounded on the donor
// project's own yt-dlp argument builder and progress-line scanner.
package extractor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"aio-download-engine/internal/diskguard"
	"aio-download-engine/internal/filename"
	"aio-download-engine/internal/mp4"
	"aio-download-engine/internal/record"
	"aio-download-engine/internal/urlclassify"
)

// dynamicFormatSentinel is the selected format id meaning "resolve a
// yt-dlp format expression from the resolution label instead of using the
// id verbatim".
const dynamicFormatSentinel = "use-dynamic"

// ProgressCallback is invoked at most once per 500ms with the parsed
// percentage (0 if not yet known) and the raw status line.
type ProgressCallback func(percentage float64, statusLine string)

// Dispatcher runs the extractor binary for a single Record at a time.
type Dispatcher struct {
	binaryPath string
	guard      *diskguard.Guard
}

func New(binaryPath string) *Dispatcher {
	return &Dispatcher{binaryPath: binaryPath, guard: diskguard.New()}
}

var (
	resolutionWxH   = regexp.MustCompile(`(?i)^(\d+)\s*[x\xd7]\s*(\d+)$`)
	resolutionWPxHP = regexp.MustCompile(`(?i)^(\d+)\s*p\s*[x\xd7]\s*(\d+)\s*p$`)
	resolutionNp    = regexp.MustCompile(`(?i)^(\d+)\s*p$`)
	resolutionBare  = regexp.MustCompile(`^(\d+)$`)
)

// ResolveExecutionCommand derives the yt-dlp `-f` expression from the
// selected format, per the donor's dynamic-format resolution rules.
func ResolveExecutionCommand(f *record.VideoFormat, fileURL string) string {
	if f == nil {
		return "bestvideo+bestaudio/best"
	}
	if f.ID != dynamicFormatSentinel {
		return f.ID
	}

	if f.IsFromSocialMedia {
		return "bestvideo[height<=2400]+bestaudio/best[height<=2400]/best"
	}

	if urlclassify.IsYouTubeURL(fileURL) && strings.Contains(strings.ToLower(f.ResolutionLabel), "audio") {
		return "bestaudio"
	}

	if h, ok := parseResolutionHeight(f.ResolutionLabel); ok {
		return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]/best", h, h)
	}
	return "bestvideo+bestaudio/best"
}

// parseResolutionHeight accepts "WxH", "W×H", "WpxHp" (e.g. "1920Px1080P"),
// "Np" (e.g. "720p"), or a bare number, returning the parsed height. Each
// form has its own pattern, tried in that order against the trimmed label
// as given; the label is never rewritten between attempts.
func parseResolutionHeight(label string) (int, bool) {
	label = strings.TrimSpace(label)
	if m := resolutionWPxHP.FindStringSubmatch(label); m != nil {
		h, err := strconv.Atoi(m[2])
		return h, err == nil
	}
	if m := resolutionWxH.FindStringSubmatch(label); m != nil {
		h, err := strconv.Atoi(m[2])
		return h, err == nil
	}
	if m := resolutionNp.FindStringSubmatch(label); m != nil {
		h, err := strconv.Atoi(m[1])
		return h, err == nil
	}
	if m := resolutionBare.FindStringSubmatch(label); m != nil {
		h, err := strconv.Atoi(m[1])
		return h, err == nil
	}
	return 0, false
}

func isVideoExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mkv", ".webm", ".mov", ".avi":
		return true
	}
	return false
}

func formatRateLimitExpr(bytesPerSec int64) (string, bool) {
	if bytesPerSec <= 0 {
		return "", false
	}
	const unit = 1024
	if bytesPerSec >= unit*unit {
		return fmt.Sprintf("%dM", bytesPerSec/(unit*unit)), true
	}
	if bytesPerSec >= unit {
		return fmt.Sprintf("%dK", bytesPerSec/unit), true
	}
	return fmt.Sprintf("%d", bytesPerSec), true
}

// BuildArgs constructs the yt-dlp argument vector for r, per SPEC_FULL
// §4.9's fixed and conditional argument lists.
func BuildArgs(r *record.Record, cookieFile string) []string {
	exprCmd := r.ExecutionCommand
	if exprCmd == "" {
		exprCmd = ResolveExecutionCommand(r.VideoFormat, r.FileURL)
	}

	args := []string{
		"--continue",
		"-f", exprCmd,
		"-o", r.TempYtdlpDestinationFilePath,
		"--playlist-items", "1",
		"--user-agent", r.GlobalSettings.DownloadHTTPUserAgent,
		"--retries", strconv.Itoa(r.GlobalSettings.AutoResumeMaxErrors),
		"--socket-timeout", strconv.Itoa(r.GlobalSettings.DownloadMaxHTTPReadingTimeout),
		"--concurrent-fragments", "10",
		"--fragment-retries", "10",
		"--no-check-certificate",
		"--force-ipv4",
		"--source-address", "0.0.0.0",
	}

	if isVideoExtension(r.FileName) {
		args = append(args, "--merge-output-format", "mp4")
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	if expr, ok := formatRateLimitExpr(r.GlobalSettings.DownloadMaxNetworkSpeed); ok {
		args = append(args, "--limit-rate", expr)
	}

	return args
}

var progressRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+(\S+)\s+at\s+(\S+)\s+ETA\s+(\S+)`),
	regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+~\s+(\S+)\s+at\s+(\S+)\s+ETA\s+(\S+)`),
	regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+(.+?)\s+at\s+(\S+)\s+ETA\s+(\S+)`),
	regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+(\S+)\s+in\s+(\S+)`),
}

// Run launches the extractor subprocess for r and blocks until it exits,
// tailing stdout for progress lines (throttled to onProgress at most every
// 500ms) and keeping the last non-empty stderr line for failure
// classification. It returns that line (possibly empty) alongside the
// process error, if any.
func (d *Dispatcher) Run(ctx context.Context, r *record.Record, cookieFile string, onProgress ProgressCallback) (stderrText string, err error) {
	args := BuildArgs(r, cookieFile)
	cmd := exec.CommandContext(ctx, d.binaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start extractor: %w", err)
	}

	var lastErrLine string
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) != "" {
				lastErrLine = line
			}
		}
	}()

	scanProgress(stdout, onProgress)
	<-done

	waitErr := cmd.Wait()
	return lastErrLine, waitErr
}

func scanProgress(r io.Reader, onProgress ProgressCallback) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var lastEmit time.Time
	for scanner.Scan() {
		line := scanner.Text()
		pct, matched := parseProgressLine(line)
		if !matched {
			continue
		}
		if onProgress == nil {
			continue
		}
		if time.Since(lastEmit) < 500*time.Millisecond {
			continue
		}
		lastEmit = time.Now()
		onProgress(pct, line)
	}
}

func parseProgressLine(line string) (float64, bool) {
	for _, re := range progressRegexes {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, true
		}
		return pct, true
	}
	return 0, false
}

// Finalize performs the post-success steps: locate the staged output,
// attempt an MP4 moov-before-mdat relocation, copy into place, update
// fileSize/mirrors, and mark the Record complete.
func Finalize(r *record.Record, stagingDir, tempBasename string) error {
	stagedPath, ok := filename.FindFileStartingWith(stagingDir, tempBasename)
	if !ok {
		return fmt.Errorf("no staged output found for basename %q", tempBasename)
	}
	defer os.Remove(stagedPath)

	dest := r.DestinationPath()

	if strings.EqualFold(filepath.Ext(stagedPath), ".mp4") {
		if err := mp4.Relocate(stagedPath, dest, guardWrapper{}); err == nil {
			return finishFromDest(r, dest)
		}
	}

	if err := copyFile(stagedPath, dest); err != nil {
		return fmt.Errorf("copy staged output: %w", err)
	}
	return finishFromDest(r, dest)
}

// guardWrapper adapts diskguard.Guard to mp4.SpaceChecker without importing
// diskguard into mp4 (mp4 stays dependency-free besides this interface).
type guardWrapper struct{}

func (guardWrapper) HasSpace(path string, required int64) (bool, error) {
	return diskguard.New().HasSpace(path, required)
}

func finishFromDest(r *record.Record, dest string) error {
	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat finalized output: %w", err)
	}
	r.FileSize = info.Size()
	r.IsUnknownFileSize = false
	r.DownloadedByte = info.Size()
	n := len(r.PartChunkSizes)
	if n == 0 {
		n = 1
		r.PartChunkSizes = make([]int64, 1)
		r.PartsDownloadedByte = make([]int64, 1)
		r.PartProgressPercentage = make([]float64, 1)
	}
	for i := 0; i < n; i++ {
		r.PartChunkSizes[i] = info.Size() / int64(n)
		r.PartsDownloadedByte[i] = r.PartChunkSizes[i]
		r.PartProgressPercentage[i] = 100
	}
	r.MarkCompleted()
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
