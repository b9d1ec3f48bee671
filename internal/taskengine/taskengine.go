// Package taskengine implements the per-task state machine
// (Idle -> Preparing -> Running -> {Paused, WaitingForNetwork, Finalizing}
// -> Completed | Closed) that owns a single Record end to end, orchestrating
// every collaborator built for this engine: RecordStore, RemoteProbe,
// ProgressAccountant, RetryPolicy, NetworkGate, the extractor dispatcher,
// DiskSpaceGuard, the BandwidthGovernor, and the CongestionAdvisor.
// Adapted from the donor's TachyonEngine.executeTask orchestration,
// generalized from a single direct-HTTP path into the dual
// direct/extractor dispatch SPEC_FULL §4.8 describes.
package taskengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"aio-download-engine/internal/analytics"
	"aio-download-engine/internal/diskguard"
	"aio-download-engine/internal/extractor"
	"aio-download-engine/internal/filename"
	"aio-download-engine/internal/filesystem"
	"aio-download-engine/internal/integrity"
	"aio-download-engine/internal/netgate"
	"aio-download-engine/internal/network"
	"aio-download-engine/internal/probe"
	"aio-download-engine/internal/progress"
	"aio-download-engine/internal/record"
	"aio-download-engine/internal/recordstore"
	"aio-download-engine/internal/retry"
	"aio-download-engine/internal/urlclassify"
)

// stallTimeout is how long the engine waits for forward progress on an
// ongoing-transfer status message before it forces a restart.
const stallTimeout = 10 * time.Second

// Deps bundles the shared, process-wide collaborators every TaskEngine
// draws on. A single Deps is constructed once by the engine pool and
// handed to every TaskEngine it creates.
type Deps struct {
	Logger      *slog.Logger
	Store       *recordstore.Store
	Merger      *recordstore.Merger
	Prober      *probe.Prober
	Accountant  *progress.Accountant
	Gate        *netgate.Gate
	Bandwidth   *network.BandwidthManager
	Congestion  *network.CongestionController
	DiskGuard   *diskguard.Guard
	Extractor   *extractor.Dispatcher
	Verifier    *integrity.FileVerifier
	Stats       *analytics.StatsManager
	DataDir     string
	StagingDir  string
}

// TaskEngine drives a single Record through its lifecycle.
type TaskEngine struct {
	deps *Deps

	mu     sync.Mutex
	record *record.Record
	cancel context.CancelFunc

	lastProgressAt time.Time
	lastStatusLine string

	onDone func()
}

func New(r *record.Record, deps *Deps) *TaskEngine {
	return &TaskEngine{deps: deps, record: r}
}

// OnDone registers a callback fired once this TaskEngine stops occupying
// an active slot, whatever the reason (completed, closed, failed to
// start). Used by the owning pool to release its scheduler bookkeeping;
// at most one callback is kept, set before Start.
func (e *TaskEngine) OnDone(fn func()) {
	e.mu.Lock()
	e.onDone = fn
	e.mu.Unlock()
}

func (e *TaskEngine) fireDone() {
	e.mu.Lock()
	fn := e.onDone
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Record returns a pointer to the live Record; callers other than the
// owning TaskEngine must treat it as read-only (SPEC_FULL §5 ordering
// guarantee).
func (e *TaskEngine) Record() *record.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// Start transitions Idle -> Preparing -> Running, launching the transfer
// in a background goroutine. It returns once the Preparing phase (probe +
// destination setup) has either succeeded or failed.
func (e *TaskEngine) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.cancel = cancel
	r := e.record
	r.Status = record.StatusDownloading
	r.IsRunning = true
	r.IsWaitingForNetwork = false
	r.StatusMessage = "preparing"
	e.mu.Unlock()
	e.persist()

	if err := e.prepare(ctx); err != nil {
		if errors.Is(err, retry.ErrLinkExpired) {
			e.closeWithMessage(string(retry.TagLinkExpired))
			return err
		}
		wrapped := fmt.Errorf("%w: %v", retry.ErrDownloadIOFailed, err)
		e.closeWithMessage(string(retry.TagDownloadIOFailed))
		return wrapped
	}

	go e.run(ctx)
	return nil
}

// Cancel ends the task: destroys the transfer process (via ctx
// cancellation), marks CLOSED, and persists.
func (e *TaskEngine) Cancel(reason string) {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if reason == "" {
		reason = "PAUSED"
	}
	e.closeWithMessage(reason)
}

func (e *TaskEngine) closeWithMessage(msg string) {
	e.mu.Lock()
	r := e.record
	r.Status = record.StatusClosed
	r.IsRunning = false
	r.StatusMessage = msg
	e.deps.Accountant.Forget(r.ID)
	e.mu.Unlock()
	e.persist()
	e.fireDone()
}

func (e *TaskEngine) persist() {
	e.mu.Lock()
	r := e.record
	e.mu.Unlock()
	if err := e.deps.Store.Save(r); err != nil {
		e.deps.Logger.Error("taskengine: persist failed", "id", r.ID, "error", err)
	}
}

// prepare implements the one-time-per-task filename/directory/destination
// setup gated by isSmartCategoryDirProcessed, and the pre-creation
// free-space check.
func (e *TaskEngine) prepare(ctx context.Context) error {
	e.mu.Lock()
	r := e.record
	e.mu.Unlock()

	if urlclassify.IsURLExpired(r.FileURL) {
		return retry.ErrLinkExpired
	}

	if r.Kind == record.TransferDirectHTTP && r.FileSize < 0 {
		info, err := e.probeRemote(r)
		if err != nil {
			return err
		}
		applyProbeInfo(r, info)
	}

	if !r.IsSmartCategoryDirProcessed {
		categorized := filesystem.GetOrganizedPath(r.FileDirectory, r.FileName)
		if err := os.MkdirAll(categorized, 0755); err != nil {
			return fmt.Errorf("create category directory: %w", err)
		}
		r.FileDirectory = categorized

		if !filename.IsFileNameValid(r.FileName) {
			r.FileName = filename.SanitizeExtreme(r.FileName)
		}
		r.FileName = filename.RenameIfExists(r.FileDirectory, r.FileName)
		r.TempYtdlpDestinationFilePath = tempStagingPath(e.deps.StagingDir)
		r.IsSmartCategoryDirProcessed = true
	}

	requiredBytes := r.FileSize
	if requiredBytes < 0 {
		requiredBytes = record.DestinationPlaceholderBytes()
	}
	ok, err := e.deps.DiskGuard.HasSpace(r.FileDirectory, requiredBytes)
	if err != nil {
		return fmt.Errorf("disk space check: %w", err)
	}
	if !ok {
		return fmt.Errorf("insufficient disk space")
	}

	if r.Kind == record.TransferDirectHTTP && r.DownloadedByte < 1 {
		if err := createPlaceholder(r.TempDestinationPath()); err != nil {
			r.IsFailedToAccessFile = true
			return err
		}
	}

	return nil
}

var fileAllocator = filesystem.NewAllocator()

// createPlaceholder creates the temp destination at the placeholder size.
// prepare only calls it while downloadedByte < 1, and it is a no-op when a
// file already exists at path.
func createPlaceholder(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return fileAllocator.AllocateFile(path, record.DestinationPlaceholderBytes())
}

func tempStagingPath(stagingDir string) string {
	base := filename.RandomTempBasename(stagingDir)
	return stagingDir + string(os.PathSeparator) + base
}

func (e *TaskEngine) probeRemote(r *record.Record) (*probe.Info, error) {
	return e.deps.Prober.Probe(probe.Request{
		URL:       r.FileURL,
		UserAgent: r.GlobalSettings.DownloadHTTPUserAgent,
		Referer:   r.SiteReferrer,
		Cookie:    r.CookieString,
		Headers:   r.ExtraHeaders,
	})
}

func applyProbeInfo(r *record.Record, info *probe.Info) {
	if info.FileSize >= 0 {
		r.FileSize = info.FileSize
		r.IsUnknownFileSize = false
	}
	r.IsResumeSupported = info.SupportsResume
	r.IsMultiThreadSupported = info.SupportsMultipart
	if r.FileName == "" {
		r.FileName = info.FileName
	}
	if info.FileChecksum != "" {
		r.FileChecksum = info.FileChecksum
	}
}

// run executes the Running phase, dispatching to the direct-HTTP or
// extractor path, then Finalizing, then Completed/Closed.
func (e *TaskEngine) run(ctx context.Context) {
	e.mu.Lock()
	r := e.record
	kind := r.Kind
	r.StartTimeDate = time.Now().UnixMilli()
	e.mu.Unlock()
	e.persist()

	var err error
	switch kind {
	case record.TransferExtractorBacked:
		err = e.runExtractor(ctx)
	default:
		err = e.runDirect(ctx)
	}

	if ctx.Err() != nil {
		// Cancellation already handled by Cancel().
		return
	}
	if err != nil {
		e.handleFailure(err)
		return
	}

	e.mu.Lock()
	r.StatusMessage = "finalizing"
	e.mu.Unlock()
	e.persist()

	if err := e.verifyChecksum(); err != nil {
		e.handleFailure(err)
		return
	}

	e.deps.Accountant.Forget(e.recordID())
	e.mu.Lock()
	alreadyComplete := r.IsComplete
	if !alreadyComplete {
		r.MarkCompleted()
	}
	fileSize := r.FileSize
	e.mu.Unlock()
	e.persist()

	if !alreadyComplete && e.deps.Stats != nil {
		e.deps.Stats.TrackDownloadBytes(fileSize)
		e.deps.Stats.TrackFileCompleted()
	}
	e.fireDone()
}

// verifyChecksum runs the IntegrityVerifier over the finished destination
// file when the task carries an expected fileChecksum and the caller asked
// for verification. A mismatch is returned to handleFailure as an ordinary
// task error rather than through a parallel failure channel. It carries no
// ProblemTag, so retry.Decide answers with a forced restart while the
// resume budget lasts and then closes the task as DOWNLOAD_FAILED.
func (e *TaskEngine) verifyChecksum() error {
	e.mu.Lock()
	r := e.record
	verify := r.GlobalSettings.DownloadVerifyChecksum
	expected := r.FileChecksum
	algo := r.HashAlgorithm
	dest := r.DestinationPath()
	e.mu.Unlock()

	if !verify || expected == "" {
		return nil
	}
	if algo == "" {
		algo = "sha256"
	}
	if err := e.deps.Verifier.Verify(dest, algo, expected); err != nil {
		return fmt.Errorf("checksum verification failed: %w", err)
	}
	return nil
}

func (e *TaskEngine) recordID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.ID
}

func (e *TaskEngine) handleFailure(err error) {
	tag := retry.ClassifyErr(err)

	e.mu.Lock()
	r := e.record
	hasError := true
	resumeCount := r.ResumeSessionRetryCount
	maxErrors := r.GlobalSettings.AutoResumeMaxErrors
	e.mu.Unlock()

	action := retry.Decide(tag, hasError, resumeCount, maxErrors)
	switch action {
	case retry.ActionCloseWithTag:
		e.mu.Lock()
		r.ExtractorProblem = true
		r.ExtractorProblemMsg = retry.UserMessages[tag]
		e.mu.Unlock()
		e.closeWithMessage(retry.UserMessages[tag])
	case retry.ActionForcedRestart:
		e.mu.Lock()
		r.ResumeSessionRetryCount++
		r.TotalTrackedConnectionRetries++
		e.mu.Unlock()
		e.persist()
		e.run(e.contextForRestart())
	case retry.ActionRestartViaNetworkGate:
		e.waitForNetwork()
	default:
		e.closeWithMessage(string(retry.TagDownloadFailed))
	}
}

// contextForRestart produces a fresh cancellable context for a forced
// restart, replacing the previous one.
func (e *TaskEngine) contextForRestart() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	return ctx
}

func (e *TaskEngine) waitForNetwork() {
	e.mu.Lock()
	r := e.record
	r.IsWaitingForNetwork = true
	r.StatusMessage = "WAITING_FOR_NETWORK"
	e.mu.Unlock()
	e.persist()
}

// OnTick implements ticker.Engine. Fine ticks are ignored; on every third
// (coarse) tick it resumes a waiting task once NetworkGate reports the
// network usable, or checks a running task for a stall.
func (e *TaskEngine) OnTick(loopCount int64) {
	const coarseEvery = 3
	if loopCount%coarseEvery != 0 {
		return
	}

	e.mu.Lock()
	r := e.record
	waiting := r.IsWaitingForNetwork
	running := r.IsRunning
	wifiOnly := r.GlobalSettings.DownloadWifiOnly
	statusLine := e.lastStatusLine
	lastProgress := e.lastProgressAt
	e.mu.Unlock()

	if waiting {
		if usable, _ := e.deps.Gate.Usable(wifiOnly); usable {
			e.mu.Lock()
			r.IsWaitingForNetwork = false
			r.StatusMessage = "resuming"
			e.mu.Unlock()
			e.persist()
			go e.run(context.Background())
		}
		return
	}

	if !running {
		return
	}

	if containsOngoingMarker(statusLine) && time.Since(lastProgress) >= stallTimeout {
		e.mu.Lock()
		r.ResumeSessionRetryCount++
		r.TotalTrackedConnectionRetries++
		e.mu.Unlock()
		e.persist()

		e.mu.Lock()
		cancel := e.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		go e.run(e.contextForRestart())
	}
}

func containsOngoingMarker(line string) bool {
	return len(line) > 0 && (contains(line, "left") || contains(line, "ETA"))
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// noteProgress records that a progress line was just observed, feeding
// the stall detector.
func (e *TaskEngine) noteProgress(line string) {
	e.mu.Lock()
	e.lastProgressAt = time.Now()
	e.lastStatusLine = line
	e.mu.Unlock()
}
