package queue

import (
	"log/slog"
	"net/url"
	"sync"
)

// SmartScheduler layers per-host concurrency limits on top of an
// AdmissionQueue, so the engine pool never opens more than hostLimits[domain]
// simultaneous connections against any one host regardless of the global
// defaultParallelConnections bound.
type SmartScheduler struct {
	logger        *slog.Logger
	queue         *AdmissionQueue
	hostLimits    map[string]int // domain -> max concurrent
	activePerHost map[string]int // domain -> current active
	mu            sync.Mutex
}

func NewSmartScheduler(logger *slog.Logger, queue *AdmissionQueue) *SmartScheduler {
	return &SmartScheduler{
		logger:        logger,
		queue:         queue,
		hostLimits:    make(map[string]int),
		activePerHost: make(map[string]int),
	}
}

func (s *SmartScheduler) SetHostLimit(domain string, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hostLimits[domain] = limit
}

func (s *SmartScheduler) GetHostLimit(domain string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit, ok := s.hostLimits[domain]; ok {
		return limit
	}
	return 0 // 0 means unlimited
}

// OnTaskStarted should be called by the engine pool when a task begins
// downloading against its remote host.
func (s *SmartScheduler) OnTaskStarted(fileURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	domain := extractDomain(fileURL)
	s.activePerHost[domain]++
}

// OnTaskCompleted should be called when a task stops downloading, whether
// it finished, paused, or failed.
func (s *SmartScheduler) OnTaskCompleted(fileURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	domain := extractDomain(fileURL)
	if s.activePerHost[domain] > 0 {
		s.activePerHost[domain]--
	}
	s.queue.Broadcast()
}

// GetNextTask returns the next queued entry that is both within the global
// concurrency budget and within its host's concurrency limit, skipping over
// entries whose host is currently saturated. Skipped entries are left on
// the queue in their original order.
func (s *SmartScheduler) GetNextTask(activeCount, maxConcurrent int) *Entry {
	if activeCount >= maxConcurrent {
		return nil
	}

	candidates := s.queue.GetAll()
	for _, e := range candidates {
		domain := extractDomain(e.Record.FileURL)
		limit := s.GetHostLimit(domain)

		s.mu.Lock()
		active := s.activePerHost[domain]
		s.mu.Unlock()

		if limit > 0 && active >= limit {
			continue
		}

		if s.queue.Remove(e.Record.ID) {
			return e
		}
	}

	return nil
}

func extractDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
