package conv

import (
	"sync"
	"time"

	"github.com/tisuway/walletbot/internal/logger"
	"log/slog"
)

// Session stores conversation state and scratch data for one sender.
// Scratch values are overwritten by the next value for the same key and
// reclaimed with the session; they never need explicit deletion.
type Session struct {
	Sender string
	State  State
	Data   map[string]string
}

// SessionManager orchestrates per-sender sessions. Get never returns
// absent: a session is created lazily on first contact. Lock serializes
// turns for one sender without blocking unrelated senders.
type SessionManager interface {
	Get(sender string) *Session
	SetState(sender string, st State)
	StateOf(sender string) State
	SetData(sender, key, value string)
	Data(sender, key string) (string, bool)
	ClearData(sender string, keys ...string)
	Lock(sender string) (unlock func())
	Len() int
	Stop()
}

// MemoryOptions tunes the in-memory session store.
type MemoryOptions struct {
	// TTL evicts sessions idle longer than this. Zero disables the sweeper.
	TTL time.Duration
	// SweepInterval controls how often expired sessions are collected.
	SweepInterval time.Duration
	// MaxEntries caps the session map; the stalest sessions go first.
	MaxEntries int
}

type sessionEntry struct {
	session  *Session
	turnMu   sync.Mutex
	lastSeen time.Time
}

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	opts     MemoryOptions

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryManager constructs the in-memory SessionManager. Scratch state
// is volatile by design: losing it on restart is accepted, the durable
// profile mirror covers resumption of the conversation position.
func NewMemoryManager(opts MemoryOptions) SessionManager {
	m := &memoryManager{
		sessions: make(map[string]*sessionEntry),
		opts:     opts,
		done:     make(chan struct{}),
	}
	if opts.TTL > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		go m.sweep(interval)
	}
	return m
}

func (m *memoryManager) entry(sender string) *sessionEntry {
	m.mu.RLock()
	e, ok := m.sessions[sender]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.sessions[sender]; ok {
		return e
	}
	if m.opts.MaxEntries > 0 && len(m.sessions) >= m.opts.MaxEntries {
		m.evictStalestLocked()
	}
	e = &sessionEntry{
		session:  &Session{Sender: sender, State: StateNone, Data: make(map[string]string)},
		lastSeen: time.Now(),
	}
	m.sessions[sender] = e
	return e
}

// Get returns the session for a sender, creating it if absent.
func (m *memoryManager) Get(sender string) *Session {
	e := m.entry(sender)
	m.mu.Lock()
	e.lastSeen = time.Now()
	m.mu.Unlock()
	return e.session
}

// SetState updates the conversation state for a sender.
func (m *memoryManager) SetState(sender string, st State) {
	e := m.entry(sender)
	m.mu.Lock()
	e.session.State = st
	e.lastSeen = time.Now()
	m.mu.Unlock()
}

// StateOf returns the current conversation state for a sender.
func (m *memoryManager) StateOf(sender string) State {
	e := m.entry(sender)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.session.State
}

// SetData stores a scratch key/value pair for the sender.
func (m *memoryManager) SetData(sender, key, value string) {
	e := m.entry(sender)
	m.mu.Lock()
	e.session.Data[key] = value
	e.lastSeen = time.Now()
	m.mu.Unlock()
}

// Data retrieves a scratch value by key.
func (m *memoryManager) Data(sender, key string) (string, bool) {
	e := m.entry(sender)
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := e.session.Data[key]
	return v, ok
}

// ClearData removes the given scratch keys for the sender.
func (m *memoryManager) ClearData(sender string, keys ...string) {
	e := m.entry(sender)
	m.mu.Lock()
	for _, k := range keys {
		delete(e.session.Data, k)
	}
	m.mu.Unlock()
}

// Lock serializes turns for one sender. Distinct senders proceed in
// parallel; the per-entry mutex never blocks the map-wide lock.
func (m *memoryManager) Lock(sender string) func() {
	e := m.entry(sender)
	e.turnMu.Lock()
	return e.turnMu.Unlock
}

// Len reports the number of live sessions.
func (m *memoryManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop terminates the background sweeper.
func (m *memoryManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *memoryManager) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.collect(time.Now())
		}
	}
}

func (m *memoryManager) collect(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for sender, e := range m.sessions {
		if now.Sub(e.lastSeen) < m.opts.TTL {
			continue
		}
		// Skip sessions with a turn in flight.
		if !e.turnMu.TryLock() {
			continue
		}
		e.turnMu.Unlock()
		delete(m.sessions, sender)
		evicted++
	}
	if evicted > 0 {
		logger.SESS.Debug("sessions evicted",
			slog.String("event", "session.evict"),
			slog.Int("count", evicted),
			slog.Int("remaining", len(m.sessions)),
		)
	}
}

// evictStalestLocked drops the least recently seen idle session. Callers
// must hold m.mu.
func (m *memoryManager) evictStalestLocked() {
	var (
		stalest     string
		stalestSeen time.Time
		found       bool
	)
	for sender, e := range m.sessions {
		if !e.turnMu.TryLock() {
			continue
		}
		e.turnMu.Unlock()
		if !found || e.lastSeen.Before(stalestSeen) {
			stalest = sender
			stalestSeen = e.lastSeen
			found = true
		}
	}
	if found {
		delete(m.sessions, stalest)
	}
}
