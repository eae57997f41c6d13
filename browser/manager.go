package browser

import (
	"log/slog"
	"sync"

	"github.com/use-agent/basket/models"
)

// Manager owns the process-wide renderer session. It launches the session
// lazily, at most once at a time, and releases it on Shutdown. All methods
// are safe for concurrent use.
type Manager struct {
	launch LaunchFunc

	mu       sync.Mutex
	session  Session
	starting *launchCall
}

// launchCall is one in-flight launch. Callers arriving while it runs wait
// on done and share its result.
type launchCall struct {
	done    chan struct{}
	session Session
	err     error
}

// NewManager creates a Manager that starts sessions with launch.
func NewManager(launch LaunchFunc) *Manager {
	return &Manager{launch: launch}
}

// Initialize launches the session if none is live. Calling it again while a
// session is live is a no-op.
func (m *Manager) Initialize() error {
	_, err := m.Session()
	return err
}

// Session returns the live session, launching one first if needed. The
// launch runs outside the lock so Stats keeps answering while Chrome starts.
// A failed launch leaves the manager empty so the next call retries.
func (m *Manager) Session() (Session, error) {
	m.mu.Lock()
	if m.session != nil {
		s := m.session
		m.mu.Unlock()
		return s, nil
	}
	if call := m.starting; call != nil {
		m.mu.Unlock()
		<-call.done
		return call.session, call.err
	}
	call := &launchCall{done: make(chan struct{})}
	m.starting = call
	m.mu.Unlock()

	s, err := m.launch()
	if err != nil {
		err = models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to start renderer", err)
	}

	m.mu.Lock()
	m.starting = nil
	if err == nil {
		m.session = s
	}
	call.session, call.err = s, err
	m.mu.Unlock()
	close(call.done)

	if err != nil {
		return nil, err
	}
	slog.Info("renderer session started")
	return s, nil
}

// Invalidate drops sess if it is still the live session and closes it, so
// the next Session call launches a fresh renderer. A session that was
// already replaced or shut down is left alone.
func (m *Manager) Invalidate(sess Session) {
	m.mu.Lock()
	if sess == nil || m.session != sess {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	if err := sess.Close(); err != nil {
		slog.Debug("closing crashed renderer failed", "error", err)
	}
	slog.Warn("renderer session invalidated, relaunching on next search")
}

// Shutdown closes the live session, if any, after any in-flight launch has
// settled. Calling it with no live session is a no-op.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	for m.starting != nil {
		done := m.starting.done
		m.mu.Unlock()
		<-done
		m.mu.Lock()
	}
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := sess.Close(); err != nil {
		slog.Warn("renderer session closed with error", "error", err)
		return err
	}
	slog.Info("renderer session closed")
	return nil
}

// Stats reports whether a session is live and how many tabs it has open.
// It never waits for a launch.
func (m *Manager) Stats() models.RendererStats {
	m.mu.Lock()
	sess := m.session
	starting := m.starting != nil
	m.mu.Unlock()

	if sess == nil {
		return models.RendererStats{Starting: starting}
	}
	return models.RendererStats{
		Running:        true,
		ActiveContexts: sess.ActiveTabs(),
	}
}
