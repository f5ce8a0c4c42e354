package gtfs_realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

// SyncRunner is the operation the manager repeats on every tick.
type SyncRunner interface {
	SyncAll(ctx context.Context) models.SyncResult
}

// Manager runs a sync immediately and then once per interval until stopped.
type Manager struct {
	runner   SyncRunner
	interval time.Duration
	logger   logger.Logger

	mu        sync.RWMutex
	isRunning bool
	cancelFn  context.CancelFunc
	done      chan struct{}
}

func NewManager(runner SyncRunner, interval time.Duration, log logger.Logger) *Manager {
	return &Manager{
		runner:   runner,
		interval: interval,
		logger:   log,
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("GTFS-realtime manager is already running")
	}
	if m.interval <= 0 {
		return fmt.Errorf("invalid configuration: sync interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFn = cancel
	m.done = make(chan struct{})
	m.isRunning = true

	m.logger.Info("GTFS-realtime manager started", "interval", m.interval.String())
	go m.loop(ctx, m.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sync to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.logger.Info("Stopping GTFS-realtime manager")
	m.cancelFn()
	done := m.done
	m.isRunning = false
	m.mu.Unlock()

	<-done
	m.logger.Info("GTFS-realtime manager stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runner.SyncAll(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Sync loop stopping")
			return
		case <-ticker.C:
			m.runner.SyncAll(ctx)
		}
	}
}
