package taskengine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"aio-download-engine/internal/extractor"
)

// runExtractor dispatches the external extractor subprocess for a
// social-media/extractor-backed Record, tailing its progress and
// finalizing the staged output on success.
func (e *TaskEngine) runExtractor(ctx context.Context) error {
	e.mu.Lock()
	r := e.record
	e.mu.Unlock()

	r.ExecutionCommand = extractor.ResolveExecutionCommand(r.VideoFormat, r.FileURL)

	cookieFile := ""
	if path, ok := r.CookieFilePath(e.deps.DataDir); ok {
		cookieFile = path
	}

	stderrText, err := e.deps.Extractor.Run(ctx, r, cookieFile, func(pct float64, line string) {
		e.noteProgress(line)
		e.mu.Lock()
		if pct > 0 {
			r.ProgressPercentage = pct
		}
		r.TempYtdlpStatusInfo = line
		e.mu.Unlock()
		e.persist()
	})
	if err != nil {
		if stderrText != "" {
			return fmt.Errorf("%s", stderrText)
		}
		return err
	}

	stagingDir := filepath.Dir(r.TempYtdlpDestinationFilePath)
	basename := filepath.Base(r.TempYtdlpDestinationFilePath)
	if err := extractor.Finalize(r, stagingDir, basename); err != nil {
		return err
	}

	if r.VideoInfo != nil && strings.TrimSpace(r.VideoInfo.CookieTempPath) != "" {
		_ = removeIfExists(r.VideoInfo.CookieTempPath)
	}
	return nil
}
