// Package sessions provides the in-memory conversation state store.
//
// One entry per conversation id holds the message log, checkout flags,
// and cached customer fields. Entries expire after a TTL of inactivity
// and the store is capacity-bounded with strict least-recently-used
// eviction. State is volatile: a restart clears everything.
package sessions

import (
	"container/list"
	"sync"
	"time"

	"github.com/chatclerk/chatclerk/pkg/models"
	"github.com/rs/zerolog/log"
)

// Defaults match the session policy: a day of inactivity ends a
// conversation, and at most a few thousand are live at once.
const (
	DefaultTTL         = 24 * time.Hour
	DefaultMaxSessions = 1000
)

// session is the per-conversation state. All fields are evicted together;
// partial eviction is not a thing.
type session struct {
	id                string
	messages          []models.ChatMessage
	createdAt         time.Time
	lastAccess        time.Time
	orderCompleted    bool
	pendingEscalation bool
	escalated         bool
	customerDetails   models.CustomerDetails

	// elem is the session's node in the recency list.
	elem *list.Element
}

// Store is a thread-safe TTL+LRU session store.
//
// A single mutex covers every operation. Striped locking was considered
// and rejected: session count is bounded, operations are in-memory map
// and slice work, and read-modify-write sequences (check flag, append,
// flip flag) must be atomic anyway.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	// lru orders sessions by recency: front = least recently used.
	lru *list.List

	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithTTL sets the idle expiry window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxSessions sets the capacity bound.
func WithMaxSessions(max int) Option {
	return func(s *Store) { s.maxSessions = max }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a session store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*session),
		lru:         list.New(),
		ttl:         DefaultTTL,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Internal helpers (callers must hold s.mu) ───────────────

// sweep removes every session idle longer than the TTL. Runs at the
// start of each store operation so expiry needs no background goroutine.
func (s *Store) sweep() {
	cutoff := s.now().Add(-s.ttl)
	for e := s.lru.Front(); e != nil; {
		next := e.Next()
		sess := e.Value.(*session)
		if sess.lastAccess.Before(cutoff) {
			s.lru.Remove(e)
			delete(s.sessions, sess.id)
			log.Debug().Str("session", sess.id).Msg("Session expired")
		}
		e = next
	}
}

// touch updates last access and promotes the session to most recent.
func (s *Store) touch(sess *session) {
	sess.lastAccess = s.now()
	s.lru.MoveToBack(sess.elem)
}

// getOrCreate returns the live session for id, creating it if absent.
func (s *Store) getOrCreate(id string) *session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := &session{
		id:              id,
		createdAt:       s.now(),
		lastAccess:      s.now(),
		customerDetails: models.CustomerDetails{},
	}
	sess.elem = s.lru.PushBack(sess)
	s.sessions[id] = sess
	return sess
}

// enforceCapacity evicts strict LRU entries until the bound holds.
// No entry is exempt, not even one mid-escalation.
func (s *Store) enforceCapacity() {
	for len(s.sessions) > s.maxSessions {
		front := s.lru.Front()
		if front == nil {
			return
		}
		sess := front.Value.(*session)
		s.lru.Remove(front)
		delete(s.sessions, sess.id)
		log.Debug().Str("session", sess.id).Msg("Session evicted (capacity)")
	}
}

// ── Public API ──────────────────────────────────────────────

// GetHistory returns the conversation history, oldest first. Unknown or
// expired ids yield an empty slice. Touches recency.
func (s *Store) GetHistory(id string) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	sess, ok := s.sessions[id]
	if !ok {
		return []models.ChatMessage{}
	}
	s.touch(sess)

	out := make([]models.ChatMessage, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// AddMessage appends a turn, creating the session if needed, and then
// enforces the capacity bound.
func (s *Store) AddMessage(id, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	sess := s.getOrCreate(id)
	sess.messages = append(sess.messages, models.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	s.touch(sess)
	s.enforceCapacity()
}

// Clear removes the session and reports whether it existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	s.lru.Remove(sess.elem)
	delete(s.sessions, id)
	return true
}

// ClearAll removes every session and returns how many were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sessions)
	s.sessions = make(map[string]*session)
	s.lru.Init()
	return n
}

// MarkOrderCompleted flips the order flag, creating the session if it is
// absent so the flag survives even when the entry expired or was evicted
// mid-checkout. Monotonic: only Clear resets it.
func (s *Store) MarkOrderCompleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(id)
	sess.orderCompleted = true
	s.touch(sess)
	s.enforceCapacity()
}

// IsOrderCompleted reports whether an order was already finalized.
func (s *Store) IsOrderCompleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess.orderCompleted
	}
	return false
}

// SaveCustomerDetails caches collected checkout fields.
func (s *Store) SaveCustomerDetails(id string, details models.CustomerDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(id)
	sess.customerDetails = details
	s.touch(sess)
	s.enforceCapacity()
}

// GetCustomerDetails returns cached checkout fields, empty if none.
func (s *Store) GetCustomerDetails(id string) models.CustomerDetails {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.CustomerDetails{}
	}
	out := make(models.CustomerDetails, len(sess.customerDetails))
	for k, v := range sess.customerDetails {
		out[k] = v
	}
	return out
}

// SetPendingEscalation marks whether the next inbound message is the
// handoff problem description.
func (s *Store) SetPendingEscalation(id string, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(id)
	sess.pendingEscalation = pending
	s.touch(sess)
	s.enforceCapacity()
}

// IsPendingEscalation reports whether the session awaits a problem description.
func (s *Store) IsPendingEscalation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess.pendingEscalation
	}
	return false
}

// SetEscalated marks the conversation as owned by a human operator.
func (s *Store) SetEscalated(id string, escalated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(id)
	sess.escalated = escalated
	s.touch(sess)
	s.enforceCapacity()
}

// IsEscalated reports whether a human owns the conversation.
func (s *Store) IsEscalated(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess.escalated
	}
	return false
}

// CountRecentUserMessages counts user turns within window of now.
// A turn with no parseable timestamp counts as recent; the rate cap
// errs on the side of handing off.
func (s *Store) CountRecentUserMessages(id string, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0
	}
	cutoff := s.now().Add(-window)
	count := 0
	for _, m := range sess.messages {
		if m.Role != models.RoleUser {
			continue
		}
		if m.Timestamp.IsZero() || m.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// SessionInfo returns metadata for one session, or nil if absent.
func (s *Store) SessionInfo(id string) *models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return &models.SessionInfo{
		ID:           sess.id,
		MessageCount: len(sess.messages),
		CreatedAt:    sess.createdAt,
		LastAccess:   sess.lastAccess,
	}
}

// ListSessions returns metadata for all live sessions after an expiry
// sweep, least recently used first.
func (s *Store) ListSessions() []models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	out := make([]models.SessionInfo, 0, len(s.sessions))
	for e := s.lru.Front(); e != nil; e = e.Next() {
		sess := e.Value.(*session)
		out = append(out, models.SessionInfo{
			ID:           sess.id,
			MessageCount: len(sess.messages),
			CreatedAt:    sess.createdAt,
			LastAccess:   sess.lastAccess,
		})
	}
	return out
}
