package adminauth

import (
	"context"
	"sync"
	"time"
)

// idleMonitor periodically compares now - lastActivity against the idle
// threshold while a session is authenticated. It is armed on reaching
// PhaseAuthenticated and disarmed on any SignedOut transition, so repeated
// login/logout cycles never accumulate tickers.
type idleMonitor struct {
	cfg    IdleConfig
	clock  func() time.Time
	idle   func(now time.Time) bool
	expire func()

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func newIdleMonitor(cfg IdleConfig, clock func() time.Time, idle func(time.Time) bool, expire func()) *idleMonitor {
	if !cfg.Enabled {
		return nil
	}
	return &idleMonitor{
		cfg:    cfg,
		clock:  clock,
		idle:   idle,
		expire: expire,
	}
}

// Arm starts the periodic check. A second Arm while running is a no-op.
func (m *idleMonitor) Arm() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	m.wg.Add(1)
	go m.run(stop)
}

// Disarm stops the periodic check. Safe to call when not armed, and safe to
// call from within the expire path.
func (m *idleMonitor) Disarm() {
	if m == nil {
		return
	}
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (m *idleMonitor) run(stop chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !m.idle(m.clock()) {
				continue
			}
			// Detach this run's stop channel before expiring so the
			// Disarm inside the logout transition is a no-op here
			// instead of a self-wait.
			m.mu.Lock()
			if m.stop == stop {
				m.stop = nil
			}
			m.mu.Unlock()
			m.expire()
			return
		}
	}
}

func (m *idleMonitor) armed() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

// sessionIdle reports whether the authenticated session has outlived the
// idle threshold at the given instant. Unauthenticated phases are never
// idle.
func (e *Engine) sessionIdle(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseAuthenticated {
		return false
	}
	return now.Sub(e.state.LastActivity) > e.config.Idle.Timeout
}

func (e *Engine) expireIdleSession() {
	e.forceLogout(context.Background(), LogoutIdleTimeout)
}
