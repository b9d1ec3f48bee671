package taskengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"aio-download-engine/internal/record"
	"aio-download-engine/internal/retry"
)

const directChunkSize = 1 * 1024 * 1024 // 1MB, matches the donor's DownloadChunkSize

// runDirect performs a ranged-HTTP transfer into the temp destination
// path, splitting into up to defaultThreadConnections segments when the
// remote supports multipart, honoring the BandwidthGovernor. The segment
// count comes from the CongestionAdvisor's ideal concurrency for the host
// at the start of the transfer, and each segment's outcome is reported
// back to it.
func (e *TaskEngine) runDirect(ctx context.Context) error {
	e.mu.Lock()
	r := e.record
	e.mu.Unlock()

	e.deps.Bandwidth.SetLimit(r.GlobalSettings.DownloadMaxNetworkSpeed)

	tempPath := r.TempDestinationPath()
	file, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer file.Close()

	host := hostOf(r.FileURL)
	numParts := 1
	if r.IsMultiThreadSupported && r.FileSize > 0 {
		numParts = e.deps.Congestion.GetIdealConcurrency(host)
		if numParts < 1 {
			numParts = 1
		}
		if max := len(r.PartChunkSizes); max > 0 && numParts > max {
			numParts = max
		}
	}

	segments := splitSegments(r.FileSize, numParts)
	errCh := make(chan error, len(segments))

	for i, seg := range segments {
		i, seg := i, seg
		go func() {
			start := time.Now()
			err := e.downloadSegment(ctx, r, file, i, seg)
			e.deps.Congestion.RecordOutcome(host, time.Since(start), err)
			errCh <- err
		}()
	}

	var firstErr error
	for range segments {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if err := os.Rename(tempPath, r.DestinationPath()); err != nil {
		return fmt.Errorf("%w: %v", retry.ErrFileDeletedPaused, err)
	}
	return nil
}

type segment struct {
	index int
	start int64
	end   int64 // inclusive
}

func splitSegments(totalSize int64, numParts int) []segment {
	if totalSize <= 0 {
		return []segment{{index: 0, start: 0, end: -1}}
	}
	segSize := totalSize / int64(numParts)
	if segSize < 1 {
		segSize = totalSize
		numParts = 1
	}
	segs := make([]segment, 0, numParts)
	var offset int64
	for i := 0; i < numParts; i++ {
		end := offset + segSize - 1
		if i == numParts-1 || end >= totalSize-1 {
			end = totalSize - 1
		}
		segs = append(segs, segment{index: i, start: offset, end: end})
		offset = end + 1
		if offset >= totalSize {
			break
		}
	}
	return segs
}

func (e *TaskEngine) downloadSegment(ctx context.Context, r *record.Record, file *os.File, idx int, seg segment) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.FileURL, nil)
	if err != nil {
		return err
	}
	if r.GlobalSettings.DownloadHTTPUserAgent != "" {
		req.Header.Set("User-Agent", r.GlobalSettings.DownloadHTTPUserAgent)
	}
	if r.SiteReferrer != "" {
		req.Header.Set("Referer", r.SiteReferrer)
	}
	if r.CookieString != "" {
		req.Header.Set("Cookie", r.CookieString)
	}
	for k, v := range r.ExtraHeaders {
		req.Header.Set(k, v)
	}
	if seg.end >= 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", seg.start, seg.end))
	}

	client := &http.Client{Timeout: time.Duration(r.GlobalSettings.DownloadMaxHTTPReadingTimeout) * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return retry.ErrLinkExpired
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	buf := make([]byte, 32*1024)
	offset := seg.start
	var written int64
	for {
		if err := e.deps.Bandwidth.Wait(ctx, r.ID, len(buf)); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := file.WriteAt(buf[:n], offset); werr != nil {
				return werr
			}
			offset += int64(n)
			written += int64(n)
			e.recordSegmentProgress(r, idx, written)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}
	return nil
}

// recordSegmentProgress updates the per-part byte count and feeds the
// ProgressAccountant, throttled to at most once every 500ms so
// TimeSpentInMilliSec isn't inflated by per-chunk calls.
func (e *TaskEngine) recordSegmentProgress(r *record.Record, idx int, written int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx < len(r.PartsDownloadedByte) {
		r.PartsDownloadedByte[idx] = written
	}

	now := time.Now()
	elapsed := now.Sub(e.lastProgressAt)
	if e.lastProgressAt.IsZero() {
		elapsed = 0
	} else if elapsed < 500*time.Millisecond {
		return
	}
	e.lastProgressAt = now

	var total int64
	for _, b := range r.PartsDownloadedByte {
		total += b
	}
	e.deps.Accountant.Tick(r, elapsed, total)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
