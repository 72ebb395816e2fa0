// Package contracts defines the service interfaces of the chatclerk
// conversation engine.
//
// The orchestrator and HTTP handlers depend on these interfaces, not on the
// concrete implementations in internal/, so any collaborator (the reasoning
// backend, the order ledger, the support notifier, the knowledge base)
// can be swapped in the wiring code (pkg/server) without touching the core.
package contracts

import (
	"context"
	"time"

	"github.com/chatclerk/chatclerk/pkg/models"
)

// ── Session store ───────────────────────────────────────────

// SessionStore keeps per-conversation state: the message log, checkout
// flags, and cached customer fields. Implementations must be safe for
// concurrent use and must expire idle sessions.
type SessionStore interface {
	// GetHistory returns the conversation history, oldest first.
	// Unknown or expired ids yield an empty slice.
	GetHistory(id string) []models.ChatMessage

	// AddMessage appends one turn, creating the session if needed.
	AddMessage(id, role, content string)

	// Clear removes the session and reports whether it existed.
	Clear(id string) bool

	// ClearAll wipes every session and returns how many were removed.
	ClearAll() int

	MarkOrderCompleted(id string)
	IsOrderCompleted(id string) bool

	SaveCustomerDetails(id string, details models.CustomerDetails)
	GetCustomerDetails(id string) models.CustomerDetails

	SetPendingEscalation(id string, pending bool)
	IsPendingEscalation(id string) bool

	SetEscalated(id string, escalated bool)
	IsEscalated(id string) bool

	// CountRecentUserMessages counts user turns whose timestamp falls
	// within window of now.
	CountRecentUserMessages(id string, window time.Duration) int

	// SessionInfo returns metadata for one session, or nil if absent.
	SessionInfo(id string) *models.SessionInfo

	// ListSessions returns metadata for all live sessions.
	ListSessions() []models.SessionInfo
}

// ── Reasoning backend ───────────────────────────────────────

// Backend is one reasoning provider. Generate runs a single model call;
// retry budgets and timeouts are owned by the implementation.
type Backend interface {
	// Name identifies the backend in logs ("gemini-flash", "fallback").
	Name() string

	// Generate produces the next assistant turn, or a typed tool call.
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)
}

// ── External collaborators ──────────────────────────────────

// Ledger appends completed orders to the external order ledger.
// The caller deduplicates; the ledger may be retried at-least-once.
type Ledger interface {
	AppendOrder(ctx context.Context, order *models.Order) error
}

// Notifier delivers operational notifications to the human-support
// channel. Failures are logged by implementations and never block the
// customer-facing reply.
type Notifier interface {
	NotifySupport(ctx context.Context, text string) error
}

// KnowledgeBase answers product questions from the embedded catalog.
// An empty result is a valid "no match", not an error.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error)
}

// MessageSender pushes outbound replies to the messaging transport.
type MessageSender interface {
	SendText(ctx context.Context, to, text string) error
	MarkAsRead(ctx context.Context, messageID string) error
}

// ── Escalation log ──────────────────────────────────────────

// EscalationLog records handoff events. Append-only.
type EscalationLog interface {
	Append(rec models.EscalationRecord) models.EscalationRecord

	// List returns records newest first, optionally filtered by
	// conversation id, capped at limit.
	List(conversationID string, limit int) []models.EscalationRecord

	// Count returns the total number of records.
	Count() int
}
