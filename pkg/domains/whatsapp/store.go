package whatsapp

import (
	"sort"
	"sync"
	"time"
)

type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateInitializing  State = "INITIALIZING"
	StateAwaitingScan  State = "AWAITING_SCAN"
	StateConnected     State = "CONNECTED"
	StateDisconnected  State = "DISCONNECTED"
	StateAuthFailed    State = "AUTH_FAILED"
	StateTearingDown   State = "TEARING_DOWN"
)

// AutoReply binds a session to a topic and an agent persona.
type AutoReply struct {
	TopicID string `json:"topicId"`
	AgentID string `json:"agentId"`
}

// Snapshot is a copy of a session record safe to hand out.
type Snapshot struct {
	SessionID         string     `json:"sessionId"`
	State             State      `json:"state"`
	Connected         bool       `json:"connected"`
	HasQR             bool       `json:"hasQR"`
	PendingCode       string     `json:"-"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	AutoReply         *AutoReply `json:"autoReply,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type entry struct {
	state             State
	pendingCode       string
	reconnectAttempts int
	reconnecting      bool
	client            Client
	generation        uint64
	settle            chan error
	updatedAt         time.Time
}

// resolve wakes a pending Initialize once.
func (e *entry) resolve(err error) {
	if e.settle == nil {
		return
	}
	select {
	case e.settle <- err:
	default:
	}
	e.settle = nil
}

// Store is the sole owner of session records and auto-reply bindings.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*entry
	autoReply map[string]AutoReply
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]*entry),
		autoReply: make(map[string]AutoReply),
	}
}

func (s *Store) snapshot(id string, e *entry) Snapshot {
	snap := Snapshot{
		SessionID:         id,
		State:             e.state,
		Connected:         e.state == StateConnected,
		HasQR:             e.pendingCode != "",
		PendingCode:       e.pendingCode,
		ReconnectAttempts: e.reconnectAttempts,
		UpdatedAt:         e.updatedAt,
	}
	if ar, ok := s.autoReply[id]; ok {
		snap.AutoReply = &ar
	}
	return snap
}

// Get returns the record for id. A missing record reads as UNINITIALIZED.
func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		snap := Snapshot{SessionID: id, State: StateUninitialized}
		if ar, has := s.autoReply[id]; has {
			snap.AutoReply = &ar
		}
		return snap, false
	}
	return s.snapshot(id, e), true
}

func (s *Store) List() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.sessions))
	for id, e := range s.sessions {
		out = append(out, s.snapshot(id, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Client returns the live client of id with its generation.
func (s *Store) Client(id string) (Client, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok || e.client == nil {
		return nil, 0, false
	}
	return e.client, e.generation, true
}

// Ensure creates an UNINITIALIZED record when none exists.
func (s *Store) Ensure(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = &entry{state: StateUninitialized, updatedAt: time.Now()}
	}
}

// Update applies fn to the record of id. It reports false when there is none.
func (s *Store) Update(id string, fn func(e *entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	fn(e)
	e.updatedAt = time.Now()
	return true
}

// UpdateGen is Update restricted to the given client generation.
func (s *Store) UpdateGen(id string, gen uint64, fn func(e *entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || e.generation != gen {
		return false
	}
	fn(e)
	e.updatedAt = time.Now()
	return true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) SetAutoReply(id string, ar AutoReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoReply[id] = ar
}

func (s *Store) AutoReply(id string) (AutoReply, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ar, ok := s.autoReply[id]
	return ar, ok
}

func (s *Store) ClearAutoReply(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.autoReply, id)
}
