// Package models defines the domain types shared across the chatclerk
// conversation engine: messages, sessions, orders, escalations, and the
// request/response shapes of the HTTP API.
package models

import (
	"strings"
	"time"
)

// ── Messages ─────────────────────────────────────────────────

// Message roles. History only ever contains user and assistant turns;
// tool output is folded into assistant text before it is persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn in a conversation history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ── Sessions ─────────────────────────────────────────────────

// SessionInfo is the introspection view of one conversation session.
type SessionInfo struct {
	ID           string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccess   time.Time `json:"last_access"`
}

// CustomerDetails holds fields collected during checkout so a repeat
// purchase in the same conversation does not re-ask for them.
type CustomerDetails map[string]string

// ── Escalations ──────────────────────────────────────────────

// Escalation reasons recorded on EscalationRecord.
const (
	EscalationReasonKeywords   = "escalation keywords detected"
	EscalationReasonMessageCap = "message cap reached"
)

// EscalationRecord is an immutable record of one handoff to a human
// operator. Created once per escalation event, never mutated.
type EscalationRecord struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	ConversationID  string    `json:"conversation_id"`
	CustomerMessage string    `json:"customer_message"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	Reason          string    `json:"reason"`
}

// ── Orders ───────────────────────────────────────────────────

// Order is a completed purchase submitted to the external ledger.
type Order struct {
	ID            string    `json:"id,omitempty"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerPhone string    `json:"customer_phone"`
	ProductName   string    `json:"product_name"`
	Quantity      int       `json:"quantity"`
	FullAddress   string    `json:"full_address"`
	PaymentMethod string    `json:"payment_method"` // "credit", "cash", "bit"
	DeliveryNotes string    `json:"delivery_notes,omitempty"`
	Status        string    `json:"status,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// MissingFields returns the names of required order fields that are empty.
// An order with any missing field must never reach the ledger.
func (o *Order) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(o.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(o.CustomerPhone) == "" {
		missing = append(missing, "customer_phone")
	}
	if strings.TrimSpace(o.ProductName) == "" {
		missing = append(missing, "product_name")
	}
	if o.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if strings.TrimSpace(o.FullAddress) == "" {
		missing = append(missing, "full_address")
	}
	if strings.TrimSpace(o.PaymentMethod) == "" {
		missing = append(missing, "payment_method")
	}
	return missing
}

// OfflinePayment reports whether the order is paid on delivery
// (cash or a bit-style payment app) rather than by card online.
// Offline orders trigger a notification to the human-support channel.
func (o *Order) OfflinePayment() bool {
	m := strings.ToLower(o.PaymentMethod)
	return strings.Contains(m, "cash") || strings.Contains(m, "bit")
}

// ── Reasoning backend ────────────────────────────────────────

// Tool names the pipeline understands. Backends surface tool elections
// as typed ToolCall values; the pipeline executes them.
const (
	ToolSearchKnowledge = "search_knowledge"
	ToolFinalizeOrder   = "finalize_order"
)

// ToolCall is a typed tool election returned by a reasoning backend.
type ToolCall struct {
	Name string `json:"name"`
	// Query is set for search_knowledge.
	Query string `json:"query,omitempty"`
	// Order is set for finalize_order.
	Order *Order `json:"order,omitempty"`
}

// GenerateRequest is the input to one reasoning backend call.
type GenerateRequest struct {
	System      string        `json:"system"`
	History     []ChatMessage `json:"history"`
	Message     string        `json:"message"`
	Temperature float64       `json:"temperature"`
	// ToolResults carries the outputs of tool calls executed earlier
	// in the same turn, newest last.
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolResult is the outcome of one executed tool call, fed back to the
// backend on the next round of the same turn.
type ToolResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// GenerateResponse is the output of one reasoning backend call.
// Exactly one of Text or ToolCall is meaningful: a non-nil ToolCall
// means the model elected a tool instead of answering.
type GenerateResponse struct {
	Text     string    `json:"text"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// ── Turn results ─────────────────────────────────────────────

// TurnResult is what the orchestrator returns to the transport for one
// inbound message.
type TurnResult struct {
	Text            string `json:"text"`
	NeedsEscalation bool   `json:"needs_escalation"`
	OrderSaved      bool   `json:"order_saved"`
	// Silent means no reply should be sent (conversation is owned by
	// a human operator).
	Silent bool `json:"silent"`
}

// ── API shapes ───────────────────────────────────────────────

// ChatRequest is the web chat request body.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the web chat response body.
type ChatResponse struct {
	Response        string `json:"response"`
	SessionID       string `json:"session_id"`
	NeedsEscalation bool   `json:"needs_escalation"`
	OrderSaved      bool   `json:"order_saved,omitempty"`
}

// ConversationHistory is the GET /history response body.
type ConversationHistory struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
}

// Stats aggregates operational counters for the admin surface.
type Stats struct {
	ActiveSessions   int     `json:"active_sessions"`
	TotalMessages    int     `json:"total_messages"`
	TotalEscalations int     `json:"total_escalations"`
	EscalationRate   float64 `json:"escalation_rate"`
}

// ── Knowledge base ───────────────────────────────────────────

// KnowledgeDoc is one embedded snippet in the knowledge base.
type KnowledgeDoc struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Vector    []float64         `json:"vector,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// SearchResult is one knowledge-base hit with its similarity score.
type SearchResult struct {
	Doc   KnowledgeDoc `json:"doc"`
	Score float64      `json:"score"`
}

// ── Messaging webhook ────────────────────────────────────────

// InboundMessage is the parsed form of one message delivered by the
// messaging provider's webhook.
type InboundMessage struct {
	Sender     string `json:"sender"`
	SenderName string `json:"sender_name,omitempty"`
	MessageID  string `json:"message_id"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp,omitempty"`
	Type       string `json:"type"`
}
