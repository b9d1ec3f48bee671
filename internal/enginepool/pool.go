// Package enginepool wires the ambient collaborators (RecordStore,
// TimerTicker, cron-based cleanup sweep) together with the per-task
// TaskEngine, the way the donor's App struct builds its singletons once
// at startup and hands them to every task it creates. It is the thin
// layer cmd/enginectl drives; nothing in the library packages below it
// depends on enginepool.
package enginepool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aio-download-engine/internal/analytics"
	"aio-download-engine/internal/cleanup"
	"aio-download-engine/internal/config"
	"aio-download-engine/internal/diskguard"
	"aio-download-engine/internal/extractor"
	"aio-download-engine/internal/integrity"
	"aio-download-engine/internal/netgate"
	"aio-download-engine/internal/network"
	"aio-download-engine/internal/probe"
	"aio-download-engine/internal/progress"
	"aio-download-engine/internal/queue"
	"aio-download-engine/internal/record"
	"aio-download-engine/internal/recordstore"
	"aio-download-engine/internal/storage"
	"aio-download-engine/internal/taskengine"
	"aio-download-engine/internal/ticker"
	"aio-download-engine/internal/urlclassify"
)

// Pool owns the shared collaborators and the set of live TaskEngines, one
// per in-flight Record.
type Pool struct {
	logger    *slog.Logger
	store     *recordstore.Store
	merger    *recordstore.Merger
	ticker    *ticker.Ticker
	sweep     *cleanup.Sweeper
	admission *queue.AdmissionQueue
	scheduler *queue.SmartScheduler

	settings func() config.Settings

	deps *taskengine.Deps

	mu      sync.Mutex
	engines map[string]*taskengine.TaskEngine
	active  int
}

// Options bundles the directories and setting accessors a Pool needs.
type Options struct {
	DataDir       string
	StagingDir    string
	ExtractorPath string
	Settings      func() config.Settings
	Logger        *slog.Logger

	// Storage is the ambient settings/stats database. Optional: if nil,
	// New opens its own handle under DataDir. Callers that already hold
	// one (e.g. to build a config.Manager) should pass it through here
	// instead, so the process keeps a single connection to engine.db.
	Storage *storage.Storage
}

// New assembles a Pool: RecordStore, Merger, extractor Dispatcher,
// RemoteProbe, ProgressAccountant, NetworkGate, BandwidthGovernor,
// CongestionAdvisor, DiskSpaceGuard, TimerTicker and the cleanup Sweeper,
// the same singleton set the donor's App constructs once at launch.
func New(opts Options) (*Pool, error) {
	store, err := recordstore.New(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	db := opts.Storage
	if db == nil {
		var err error
		db, err = storage.NewStorage(opts.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open settings/stats database: %w", err)
		}
	}
	stats := analytics.NewStatsManager(db, func() (string, error) { return opts.DataDir, nil })

	maxSegmentWorkers := opts.Settings().DefaultThreadConnections
	if maxSegmentWorkers < 1 {
		maxSegmentWorkers = 1
	}

	deps := &taskengine.Deps{
		Logger:     opts.Logger,
		Store:      store,
		Merger:     recordstore.NewMerger(store),
		Prober:     probe.New(3, 10*time.Second),
		Accountant: progress.New(),
		Gate:       netgate.New(netgate.NewOSChecker()),
		Bandwidth:  network.NewBandwidthManager(),
		Congestion: network.NewCongestionController(1, maxSegmentWorkers),
		DiskGuard:  diskguard.New(),
		Extractor:  extractor.New(opts.ExtractorPath),
		Verifier:   integrity.NewFileVerifier(),
		Stats:      stats,
		DataDir:    opts.DataDir,
		StagingDir: opts.StagingDir,
	}

	admissionQueue := queue.NewAdmissionQueue()
	p := &Pool{
		logger:    opts.Logger,
		store:     store,
		merger:    deps.Merger,
		ticker:    ticker.New(),
		admission: admissionQueue,
		scheduler: queue.NewSmartScheduler(opts.Logger, admissionQueue),
		settings:  opts.Settings,
		deps:      deps,
		engines:   make(map[string]*taskengine.TaskEngine),
	}

	p.sweep = cleanup.New(opts.Logger, store,
		func() bool { return p.settings().AutoRemoveTasks },
		func() int { return p.settings().AutoRemoveTaskAfterNDays })

	return p, nil
}

// Start launches the background TimerTicker loop, the admission dispatch
// loop, the Merger snapshot loop and the cleanup cron.
func (p *Pool) Start(ctx context.Context) error {
	go p.ticker.Run()
	go p.merger.Run(ctx)
	go p.dispatchLoop(ctx)
	if err := p.sweep.Start(); err != nil {
		return fmt.Errorf("start cleanup sweep: %w", err)
	}
	go func() {
		<-ctx.Done()
		p.admission.Broadcast()
		p.ticker.Stop()
		p.sweep.Stop()
	}()
	return nil
}

// dispatchLoop drains the AdmissionQueue through SmartScheduler, starting
// one TaskEngine per eligible entry, then blocking until the queue next
// changes (a Submit, a completion, or shutdown broadcasts it).
func (p *Pool) dispatchLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		active := p.active
		p.mu.Unlock()

		entry := p.scheduler.GetNextTask(active, p.settings().DefaultParallelConnections)
		if entry == nil {
			if p.admission.Len() == 0 {
				if e := p.admission.Pop(); e != nil {
					// Pop only orders by QueueOrder, not host limits; push the
					// entry back so the next GetNextTask call re-evaluates it.
					p.admission.Push(e)
				}
			} else {
				// No queued entry can start right now (the global cap is
				// reached or every queued host is saturated); back off
				// briefly rather than spinning until OnTaskCompleted wakes it.
				time.Sleep(200 * time.Millisecond)
			}
			if ctx.Err() != nil {
				return
			}
			continue
		}

		p.startEngine(ctx, entry.Record)
	}
}

func (p *Pool) startEngine(ctx context.Context, r *record.Record) {
	eng := taskengine.New(r, p.deps)
	eng.OnDone(func() { p.releaseSlot(r) })

	p.mu.Lock()
	p.active++
	p.engines[r.ID] = eng
	p.mu.Unlock()

	p.scheduler.OnTaskStarted(r.FileURL)
	p.ticker.Register(r.ID, eng)

	if err := eng.Start(ctx); err != nil {
		p.logger.Error("enginepool: start failed", "id", r.ID, "error", err)
		p.releaseSlot(r)
	}
}

// releaseSlot is called once a task stops occupying an active slot
// (finished, failed to start, cancelled), so SmartScheduler's per-host
// counters and the pool's global active count stay accurate.
func (p *Pool) releaseSlot(r *record.Record) {
	p.mu.Lock()
	if p.active > 0 {
		p.active--
	}
	delete(p.engines, r.ID)
	p.mu.Unlock()
	p.ticker.Unregister(r.ID)
	p.scheduler.OnTaskCompleted(r.FileURL)
	p.admission.Broadcast()
}

// Submit creates a Record for fileURL, classifies it direct-HTTP vs
// extractor-backed the way URLClassifier describes, persists it, and
// admits it onto the AdmissionQueue; the dispatch loop starts it once
// global and per-host concurrency budgets allow.
func (p *Pool) Submit(ctx context.Context, fileURL, destDir string) (*record.Record, error) {
	kind := record.TransferDirectHTTP
	if urlclassify.IsSocialMediaURL(fileURL) || urlclassify.IsYouTubeURL(fileURL) {
		kind = record.TransferExtractorBacked
	}

	r := record.New(fileURL, kind, p.settings())
	r.FileDirectory = destDir

	if err := p.store.Save(r); err != nil {
		return nil, fmt.Errorf("save new record: %w", err)
	}

	p.admission.Push(&queue.Entry{Record: r, QueueOrder: p.admission.NextOrder()})
	return r, nil
}

// Pause cancels a running task's transfer, keeping its Record for resume.
func (p *Pool) Pause(id string) error {
	eng, ok := p.lookup(id)
	if !ok {
		return fmt.Errorf("no such task: %s", id)
	}
	eng.Cancel("PAUSED")
	return nil
}

// Resume re-admits a paused/closed task's persisted Record onto the
// AdmissionQueue; the dispatch loop starts it once budgets allow, exactly
// like a fresh Submit.
func (p *Pool) Resume(ctx context.Context, id string) error {
	r, err := p.store.Load(id)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	p.admission.Push(&queue.Entry{Record: r, QueueOrder: p.admission.NextOrder()})
	return nil
}

// Cancel stops a task and leaves it CLOSED. It also removes it from the
// AdmissionQueue in case it was still waiting for a slot.
func (p *Pool) Cancel(id string) error {
	p.admission.Remove(id)

	eng, ok := p.lookup(id)
	if !ok {
		return nil
	}
	eng.Cancel("CANCELLED")
	return nil
}

// Delete cancels (if running) and removes a task's Record and staged
// files entirely.
func (p *Pool) Delete(id string) error {
	_ = p.Cancel(id)

	r, err := p.store.Load(id)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	return p.store.Delete(r, r.GlobalSettings.DefaultDownloadLocation == config.PrivateFolder)
}

// Status returns the live Record for an in-flight task, or the persisted
// one if it isn't currently running.
func (p *Pool) Status(id string) (*record.Record, error) {
	if eng, ok := p.lookup(id); ok {
		return eng.Record(), nil
	}
	return p.store.Load(id)
}

// List returns every known task id.
func (p *Pool) List() ([]string, error) {
	return p.store.ListIDs()
}

// Analytics returns the aggregate lifetime/daily/disk-usage figures
// TrackDownloadBytes/TrackFileCompleted accumulate as tasks complete.
func (p *Pool) Analytics() analytics.AnalyticsData {
	return p.deps.Stats.GetAnalytics()
}

func (p *Pool) lookup(id string) (*taskengine.TaskEngine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	eng, ok := p.engines[id]
	return eng, ok
}
