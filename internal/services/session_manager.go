package services

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/config"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/navigation"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

// ErrSessionNotFound is returned for unknown or reaped session IDs
var ErrSessionNotFound = status.Error(codes.NotFound, "session not found")

// Providers are the external services shared by every session
type Providers struct {
	Routes     routing.Provider
	Geocoder   navigation.Geocoder
	Elevation  routing.ElevationProvider
	Candidates navigation.CandidateStore
}

// DeviceSession bundles one connected walker's navigation session with the fusion engine and
// device feed that supply its position.
type DeviceSession struct {
	ID        string
	CreatedAt time.Time
	Session   *navigation.Session
	Engine    *fusion.Engine
	Feed      *DeviceFeed
	cancel    context.CancelFunc
}

// LastActivity is the later of the last API call and the last sensor sample
func (d *DeviceSession) LastActivity() time.Time {
	last := d.Session.LastActivity()
	if push := d.Feed.LastPush(); push.After(last) {
		last = push
	}
	return last
}

func (d *DeviceSession) close() {
	d.Session.Close()
	d.Engine.Stop()
	d.Feed.Close()
	d.cancel()
}

// SessionManager creates, looks up and retires device sessions
type SessionManager struct {
	ctx       context.Context
	cfg       *config.Config
	providers Providers
	evaluator *routing.Evaluator

	mutex    sync.RWMutex
	sessions map[string]*DeviceSession
}

// NewSessionManager creates a manager whose sessions live at most as long as ctx
func NewSessionManager(ctx context.Context, cfg *config.Config, providers Providers) *SessionManager {
	return &SessionManager{
		ctx:       logging.EnsureLogger(ctx),
		cfg:       cfg,
		providers: providers,
		evaluator: routing.NewEvaluator(cfg.Evaluator, providers.Elevation),
		sessions:  make(map[string]*DeviceSession),
	}
}

// Create starts a new idle session with its own fusion engine and device feed
func (m *SessionManager) Create(ctx context.Context) (*DeviceSession, error) {
	ctx = m.withLogger(ctx)
	id := uuid.NewString()
	sessionCtx, cancel := context.WithCancel(m.ctx)

	feed := NewDeviceFeed()
	engine := fusion.NewEngine(m.cfg.Fusion)
	if err := engine.Start(sessionCtx, feed, feed); err != nil {
		logging.Warnw(ctx, "Fusion engine started degraded", "session", id, "error", err)
	}

	session := navigation.NewSession(sessionCtx, id, m.cfg.Navigation, navigation.Dependencies{
		Positions:  engine,
		Routes:     m.providers.Routes,
		Evaluator:  m.evaluator,
		Geocoder:   m.providers.Geocoder,
		Candidates: m.providers.Candidates,
	})

	ds := &DeviceSession{
		ID:        id,
		CreatedAt: time.Now(),
		Session:   session,
		Engine:    engine,
		Feed:      feed,
		cancel:    cancel,
	}

	m.mutex.Lock()
	m.sessions[id] = ds
	count := len(m.sessions)
	m.mutex.Unlock()

	logging.Infow(ctx, "Session created", "session", id, "active_sessions", count)
	return ds, nil
}

// Get returns the session with id
func (m *SessionManager) Get(id string) (*DeviceSession, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ds, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ds, nil
}

// Remove ends navigation, stops the session's goroutines and forgets it
func (m *SessionManager) Remove(ctx context.Context, id string) error {
	ctx = m.withLogger(ctx)
	m.mutex.Lock()
	ds, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.retire(ds)
	logging.Infow(ctx, "Session removed", "session", id)
	return nil
}

// ReapIdle removes sessions with no activity for maxIdle and returns how many were removed
func (m *SessionManager) ReapIdle(ctx context.Context, maxIdle time.Duration) int {
	ctx = m.withLogger(ctx)
	cutoff := time.Now().Add(-maxIdle)

	var idle []*DeviceSession
	m.mutex.Lock()
	for id, ds := range m.sessions {
		if ds.LastActivity().Before(cutoff) {
			idle = append(idle, ds)
			delete(m.sessions, id)
		}
	}
	m.mutex.Unlock()

	for _, ds := range idle {
		logging.Infow(ctx, "Reaping idle session", "session", ds.ID, "last_activity", ds.LastActivity())
		m.retire(ds)
	}
	return len(idle)
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll retires every session, used at shutdown
func (m *SessionManager) CloseAll() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*DeviceSession)
	m.mutex.Unlock()

	for _, ds := range sessions {
		m.retire(ds)
	}
}

// withLogger gives ctx the manager's logger unless it already carries one
func (m *SessionManager) withLogger(ctx context.Context) context.Context {
	if logging.FromContext(ctx) != nil {
		return ctx
	}
	return logging.With(ctx, logging.FromContext(m.ctx))
}

func (m *SessionManager) retire(ds *DeviceSession) {
	if m.providers.Candidates != nil {
		m.providers.Candidates.Delete(ds.ID)
	}
	ds.close()
}
