package bash

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
	"github.com/codebox-sh/codebox/internal/infrastructure/monitoring"
)

// DefaultSessionID is the session used when an action omits one.
const DefaultSessionID = "default"

// TerminalFactory spawns the process behind a session. Tests swap in a
// scripted double.
type TerminalFactory func(workDir string) (Terminal, error)

// Manager is the id -> Session registry. Lookup runs lock-free on a
// sync.Map; only creation and reset serialize, and never across a
// command's execution.
type Manager struct {
	opts    Options
	factory TerminalFactory
	log     *logging.Logger
	metrics *monitoring.Metrics

	createMu sync.Mutex
	sessions sync.Map // map[string]*Session
	shutdown sync.Once
	closed   atomic.Bool
}

// NewManager creates a session manager spawning real pty terminals.
func NewManager(opts Options, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		opts:    opts.withDefaults(),
		factory: StartTerminal,
		log:     log,
	}
}

// WithFactory overrides the terminal factory.
func (m *Manager) WithFactory(factory TerminalFactory) *Manager {
	m.factory = factory
	return m
}

// WithMetrics attaches session metrics.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// GetOrCreate returns the session for id, creating it on first
// reference. Creation is idempotent per id: repeated calls return the
// existing session. An empty id selects the default session.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if id == "" {
		id = DefaultSessionID
	}

	if v, ok := m.sessions.Load(id); ok {
		return v.(*Session), nil
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if v, ok := m.sessions.Load(id); ok {
		return v.(*Session), nil
	}

	sess, err := m.spawn(id)
	if err != nil {
		return nil, err
	}
	m.sessions.Store(id, sess)
	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
	}
	m.log.Info("session created",
		zap.String("session_id", id),
		zap.String("cwd", sess.Cwd()),
	)
	return sess, nil
}

// Get returns an existing session without creating one.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		id = DefaultSessionID
	}
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Reset tears down the session's terminal process and starts a fresh
// one under the same id. Command history does not survive a reset.
func (m *Manager) Reset(id string) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if id == "" {
		id = DefaultSessionID
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if v, ok := m.sessions.Load(id); ok {
		v.(*Session).Close()
		m.sessions.Delete(id)
		if m.metrics != nil {
			m.metrics.SessionsActive.Dec()
		}
	}

	sess, err := m.spawn(id)
	if err != nil {
		return err
	}
	m.sessions.Store(id, sess)
	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
		m.metrics.SessionResets.Inc()
	}
	m.log.Info("session reset", zap.String("session_id", id))
	return nil
}

// ShutdownAll terminates every owned terminal process. It runs exactly
// once; later calls are no-ops.
func (m *Manager) ShutdownAll() {
	m.shutdown.Do(func() {
		m.closed.Store(true)
		count := 0
		m.sessions.Range(func(key, value interface{}) bool {
			value.(*Session).Close()
			m.sessions.Delete(key)
			count++
			return true
		})
		if m.metrics != nil {
			m.metrics.SessionsActive.Set(0)
		}
		m.log.Info("all sessions shut down", zap.Int("count", count))
	})
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	count := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) spawn(id string) (*Session, error) {
	term, err := m.factory(m.opts.WorkDir)
	if err != nil {
		return nil, err
	}
	return NewSession(id, term, m.opts, m.log)
}
