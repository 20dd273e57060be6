package services

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
)

// SessionReaper periodically retires sessions that have been idle too long
type SessionReaper struct {
	manager  *SessionManager
	interval time.Duration
	maxIdle  time.Duration

	mutex    sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewSessionReaper creates a reaper that checks every interval for sessions idle longer than
// maxIdle
func NewSessionReaper(manager *SessionManager, interval, maxIdle time.Duration) *SessionReaper {
	return &SessionReaper{
		manager:  manager,
		interval: interval,
		maxIdle:  maxIdle,
	}
}

// Start begins reaping in the background
func (r *SessionReaper) Start(ctx context.Context) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	ctx = r.manager.withLogger(ctx)

	logging.Infow(ctx, "Starting idle session reaper", "interval", r.interval, "max_idle", r.maxIdle)
	go r.loop(ctx, r.stopChan)
}

// Stop halts the background loop
func (r *SessionReaper) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
}

// IsRunning reports whether the reaper loop is active
func (r *SessionReaper) IsRunning() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.running
}

func (r *SessionReaper) loop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debugw(ctx, "Session reaper stopping due to context cancellation")
			return
		case <-stop:
			logging.Debugw(ctx, "Session reaper stopping due to stop signal")
			return
		case <-ticker.C:
			if removed := r.manager.ReapIdle(ctx, r.maxIdle); removed > 0 {
				logging.Infow(ctx, "Reaped idle sessions", "removed", removed, "remaining", r.manager.Count())
			}
		}
	}
}
