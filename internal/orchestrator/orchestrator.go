// Package orchestrator composes one conversation turn.
//
// Per inbound message, in order: restart command, escalated silence,
// pending-handoff capture, rate cap, new-conversation welcome,
// escalation keywords, and only then the reasoning pipeline plus the
// draft validator. Every short-circuit persists its exchange so the
// history reads like the customer saw it.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/internal/escalation"
	"github.com/chatclerk/chatclerk/internal/pipeline"
	"github.com/chatclerk/chatclerk/pkg/contracts"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// recapCharLimit truncates each recap line so a long rant does not
// blow up the support notification.
const recapCharLimit = 100

// Responder runs the reasoning pipeline for one turn.
type Responder interface {
	Respond(ctx context.Context, conversationID string, history []models.ChatMessage, message string, details models.CustomerDetails) pipeline.Outcome
}

// Reviewer validates a draft reply before release.
type Reviewer interface {
	Review(ctx context.Context, customerMessage, draft string) string
}

// Orchestrator owns the per-message gate chain.
type Orchestrator struct {
	store     contracts.SessionStore
	gate      *escalation.Gate
	esclog    contracts.EscalationLog
	notifier  contracts.Notifier
	responder Responder
	reviewer  Reviewer

	window        time.Duration
	messageCap    int
	recapMessages int
	replies       config.ReplyConfig
}

func New(
	store contracts.SessionStore,
	gate *escalation.Gate,
	esclog contracts.EscalationLog,
	notifier contracts.Notifier,
	responder Responder,
	reviewer Reviewer,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		store:         store,
		gate:          gate,
		esclog:        esclog,
		notifier:      notifier,
		responder:     responder,
		reviewer:      reviewer,
		window:        cfg.Sessions.TTL,
		messageCap:    cfg.Gate.MessageCap,
		recapMessages: cfg.Gate.RecapMessages,
		replies:       cfg.Replies,
	}
}

// HandleMessage runs one inbound customer message through the gate
// chain and returns the reply plus flags for the transport.
func (o *Orchestrator) HandleMessage(ctx context.Context, conversationID, text string) models.TurnResult {
	text = strings.TrimSpace(text)

	if o.gate.IsRestart(text) {
		return o.restart(conversationID, text)
	}

	if o.store.IsEscalated(conversationID) {
		log.Debug().Str("conversation", conversationID).Msg("Escalated conversation, staying silent")
		return models.TurnResult{Silent: true}
	}

	if o.store.IsPendingEscalation(conversationID) {
		return o.captureHandoff(ctx, conversationID, text)
	}

	// The in-flight message counts toward the cap, so the cap-th turn
	// in the window gets the handoff reply, not a pipeline answer.
	if o.store.CountRecentUserMessages(conversationID, o.window)+1 >= o.messageCap {
		return o.capReached(ctx, conversationID, text)
	}

	if len(o.store.GetHistory(conversationID)) == 0 {
		return o.welcome(conversationID, text)
	}

	if o.gate.WantsHuman(text) {
		return o.keywordHandoff(conversationID, text)
	}

	return o.respond(ctx, conversationID, text)
}

// restart wipes the session and seeds the fresh history with this
// exchange, so the next turn sees a one-exchange conversation.
func (o *Orchestrator) restart(conversationID, text string) models.TurnResult {
	o.store.Clear(conversationID)
	o.persistExchange(conversationID, text, o.replies.Welcome)
	log.Info().Str("conversation", conversationID).Msg("Conversation restarted")
	return models.TurnResult{Text: o.replies.Welcome}
}

// captureHandoff treats this message as the problem description the
// handoff acknowledgement asked for.
func (o *Orchestrator) captureHandoff(ctx context.Context, conversationID, text string) models.TurnResult {
	o.store.SetPendingEscalation(conversationID, false)
	o.store.SetEscalated(conversationID, true)

	rec := o.esclog.Append(models.EscalationRecord{
		ConversationID:  conversationID,
		CustomerMessage: text,
		CustomerPhone:   conversationID,
		Reason:          models.EscalationReasonKeywords,
	})
	o.notify(ctx, fmt.Sprintf("Customer %s needs a human agent.\nProblem description: %s", conversationID, text))

	o.persistExchange(conversationID, text, o.replies.HandoffConfirmed)
	log.Info().Str("conversation", conversationID).Str("record", rec.ID).Msg("Handoff captured, conversation escalated")
	return models.TurnResult{Text: o.replies.HandoffConfirmed, NeedsEscalation: true}
}

// capReached escalates directly: there is no description round, the
// recap of the recent exchange stands in for it.
func (o *Orchestrator) capReached(ctx context.Context, conversationID, text string) models.TurnResult {
	o.store.SetEscalated(conversationID, true)

	o.esclog.Append(models.EscalationRecord{
		ConversationID:  conversationID,
		CustomerMessage: text,
		CustomerPhone:   conversationID,
		Reason:          models.EscalationReasonMessageCap,
	})
	o.notify(ctx, fmt.Sprintf("Customer %s hit the message cap and was handed off.\nRecent conversation:\n%s",
		conversationID, o.recap(conversationID)))

	o.persistExchange(conversationID, text, o.replies.CapReached)
	log.Info().Str("conversation", conversationID).Int("cap", o.messageCap).Msg("Message cap reached, conversation escalated")
	return models.TurnResult{Text: o.replies.CapReached, NeedsEscalation: true}
}

// welcome greets a brand-new conversation without invoking the
// pipeline.
func (o *Orchestrator) welcome(conversationID, text string) models.TurnResult {
	o.persistExchange(conversationID, text, o.replies.Welcome)
	log.Info().Str("conversation", conversationID).Msg("New conversation welcomed")
	return models.TurnResult{Text: o.replies.Welcome}
}

// keywordHandoff acknowledges the request and arms the pending flag so
// the next message is captured as the problem description. No record is
// filed yet; the capture turn files the single record for the handoff.
func (o *Orchestrator) keywordHandoff(conversationID, text string) models.TurnResult {
	o.store.SetPendingEscalation(conversationID, true)

	o.persistExchange(conversationID, text, o.replies.HandoffAck)
	log.Info().Str("conversation", conversationID).Msg("Escalation keywords detected")
	return models.TurnResult{Text: o.replies.HandoffAck, NeedsEscalation: true}
}

// respond is the normal path: pipeline, then validator, then persist.
func (o *Orchestrator) respond(ctx context.Context, conversationID, text string) models.TurnResult {
	history := o.store.GetHistory(conversationID)
	details := o.store.GetCustomerDetails(conversationID)

	outcome := o.responder.Respond(ctx, conversationID, history, text, details)
	reply := o.reviewer.Review(ctx, text, outcome.Text)

	o.persistExchange(conversationID, text, reply)
	return models.TurnResult{Text: reply, OrderSaved: outcome.OrderSaved}
}

func (o *Orchestrator) persistExchange(conversationID, userText, assistantText string) {
	o.store.AddMessage(conversationID, models.RoleUser, userText)
	o.store.AddMessage(conversationID, models.RoleAssistant, assistantText)
}

// recap renders the last N messages as "role: first 100 chars" lines.
func (o *Orchestrator) recap(conversationID string) string {
	history := o.store.GetHistory(conversationID)
	start := len(history) - o.recapMessages
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, m := range history[start:] {
		content := m.Content
		if runes := []rune(content); len(runes) > recapCharLimit {
			content = string(runes[:recapCharLimit])
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}

func (o *Orchestrator) notify(ctx context.Context, text string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifySupport(ctx, text); err != nil {
		log.Warn().Err(err).Msg("Support notification failed")
	}
}
