// Package handlers implements the HTTP handlers for the chatclerk
// server: the web chat surface, the messaging webhook, and the admin
// introspection surface.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/knowledge"
	"github.com/chatclerk/chatclerk/internal/messaging"
	"github.com/chatclerk/chatclerk/internal/orchestrator"
	"github.com/chatclerk/chatclerk/pkg/contracts"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// WebhookVerifier answers the transport's subscription handshake.
type WebhookVerifier interface {
	VerifyWebhook(mode, token, challenge string) (string, bool)
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     contracts.SessionStore
	Escalations  contracts.EscalationLog
	Sender       contracts.MessageSender
	Verifier     WebhookVerifier
	Knowledge    *knowledge.Base
}

// New creates a Handlers instance with all dependencies.
func New(
	orch *orchestrator.Orchestrator,
	sessions contracts.SessionStore,
	escalations contracts.EscalationLog,
	sender contracts.MessageSender,
	verifier WebhookVerifier,
	kb *knowledge.Base,
) *Handlers {
	return &Handlers{
		Orchestrator: orch,
		Sessions:     sessions,
		Escalations:  escalations,
		Sender:       sender,
		Verifier:     verifier,
		Knowledge:    kb,
	}
}

// ── Chat handlers ────────────────────────────────────────────

// Chat handles POST /api/v1/chat: one web-chat turn.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result := h.Orchestrator.HandleMessage(r.Context(), req.SessionID, req.Message)

	respondJSON(w, http.StatusOK, models.ChatResponse{
		Response:        result.Text,
		SessionID:       req.SessionID,
		NeedsEscalation: result.NeedsEscalation,
		OrderSaved:      result.OrderSaved,
	})
}

// History handles GET /api/v1/chat/{sessionId}/history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	respondJSON(w, http.StatusOK, models.ConversationHistory{
		SessionID: sessionID,
		Messages:  h.Sessions.GetHistory(sessionID),
	})
}

// ClearSession handles DELETE /api/v1/chat/{sessionId}.
func (h *Handlers) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	existed := h.Sessions.Clear(sessionID)
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"cleared":    existed,
	})
}

// ── Webhook handlers ─────────────────────────────────────────

// VerifyWebhook handles GET /webhook: Meta's subscription handshake.
func (h *Handlers) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := h.Verifier.VerifyWebhook(
		q.Get("hub.mode"),
		q.Get("hub.verify_token"),
		q.Get("hub.challenge"),
	)
	if !ok {
		log.Warn().Msg("Webhook verification failed")
		respondError(w, http.StatusForbidden, "verification failed")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// ReceiveWebhook handles POST /webhook: inbound messaging deliveries.
// It always acknowledges with 200 so the upstream does not retry; all
// failures are logged only.
func (h *Handlers) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	defer respondJSON(w, http.StatusOK, map[string]string{"status": "received"})

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warn().Err(err).Msg("Webhook body read failed")
		return
	}

	msg, err := messaging.ParseIncoming(body)
	if err != nil {
		log.Warn().Err(err).Msg("Webhook payload parse failed")
		return
	}
	if msg == nil {
		// Status delivery, nothing to answer.
		return
	}
	if msg.Type != "text" || msg.Text == "" {
		log.Debug().Str("type", msg.Type).Msg("Ignoring non-text webhook message")
		return
	}

	// Read receipt is best effort.
	if err := h.Sender.MarkAsRead(r.Context(), msg.MessageID); err != nil {
		log.Warn().Err(err).Str("message", msg.MessageID).Msg("Mark-as-read failed")
	}

	result := h.Orchestrator.HandleMessage(r.Context(), msg.Sender, msg.Text)
	if result.Silent || result.Text == "" {
		return
	}
	if err := h.Sender.SendText(r.Context(), msg.Sender, result.Text); err != nil {
		log.Error().Err(err).Str("to", msg.Sender).Msg("Reply delivery failed")
	}
}

// ── Admin handlers ───────────────────────────────────────────

// ListSessions handles GET /admin/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.Sessions.ListSessions()
	if infos == nil {
		infos = []models.SessionInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(infos),
		"sessions": infos,
	})
}

// GetSession handles GET /admin/sessions/{sessionId}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	info := h.Sessions.SessionInfo(sessionID)
	if info == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// ClearAllSessions handles POST /admin/sessions/clear.
func (h *Handlers) ClearAllSessions(w http.ResponseWriter, r *http.Request) {
	n := h.Sessions.ClearAll()
	log.Info().Int("cleared", n).Msg("All sessions cleared")
	respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// ListEscalations handles GET /admin/escalations?conversation_id=&limit=.
func (h *Handlers) ListEscalations(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records := h.Escalations.List(conversationID, limit)
	if records == nil {
		records = []models.EscalationRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":       len(records),
		"escalations": records,
	})
}

// Stats handles GET /admin/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	infos := h.Sessions.ListSessions()
	totalMessages := 0
	for _, info := range infos {
		totalMessages += info.MessageCount
	}

	sessions := len(infos)
	escalations := h.Escalations.Count()
	denominator := sessions
	if denominator < 1 {
		denominator = 1
	}

	respondJSON(w, http.StatusOK, models.Stats{
		ActiveSessions:   sessions,
		TotalMessages:    totalMessages,
		TotalEscalations: escalations,
		EscalationRate:   float64(escalations) / float64(denominator),
	})
}

// IngestKnowledge handles POST /admin/knowledge.
func (h *Handlers) IngestKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.Knowledge == nil {
		respondError(w, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}

	var req struct {
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	chunks, err := h.Knowledge.Ingest(r.Context(), req.Text, req.Metadata)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{
		"chunks": chunks,
		"total":  h.Knowledge.Count(),
	})
}

// ── Response helpers ─────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
