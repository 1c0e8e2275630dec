package reviewqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
	metrics "github.com/QuestPassApp/QuestPass/internal/pkg/metrics/counter"
)

// Manager manages the global review queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// InitializeManager creates the global manager with the given evidence
// archiver. A no-op if the manager was already created.
func InitializeManager(archiver Archiver) {
	managerOnce.Do(func() {
		globalManager = newManager(archiver)
	})
}

// GetManager returns the global review queue manager (singleton). A manager
// created this way runs without an evidence archiver; call InitializeManager
// first to install one.
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = newManager(nil)
	})
	return globalManager
}

func newManager(archiver Archiver) *Manager {
	workerCount := env.GetEnvInt("REVIEW_QUEUE_WORKERS", 2)
	return &Manager{
		queue:  NewQueue(workerCount, archiver),
		stopCh: make(chan struct{}),
	}
}

// GetQueue returns the managed review queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the review queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[ReviewQueue Manager] Starting review queue and background tasks")

	m.queue.Start()

	// Counter flush worker (Redis -> DB)
	m.counterFlushTicker = time.NewTicker(metrics.DefaultFlushInterval)
	m.wg.Add(1)
	go m.counterFlushWorker()
}

// Stop stops the review queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	m.wg.Wait()
	m.queue.Stop()

	// Drain whatever the ticker had not flushed yet.
	if err := m.flushCountersOnce(); err != nil {
		log.Errorf("[ReviewQueue Manager] Final counter flush error: %v", err)
	}
	log.Info("[ReviewQueue Manager] Stopped")
}

// counterFlushWorker periodically flushes outcome counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[ReviewQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := m.flushCountersOnce(); err != nil {
				log.Errorf("[ReviewQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

func (m *Manager) flushCountersOnce() error {
	// Flush Redis -> DB (batched CASE update)
	return metrics.FlushAll()
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
