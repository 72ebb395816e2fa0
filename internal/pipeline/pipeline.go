// Package pipeline runs one reasoning turn against the backends.
//
// A turn is: build the request from session history, call the primary
// backend (its own retry budget inside), fail over to the fallback,
// execute any typed tool calls, feed the results back for another
// round, and clean the final draft for the chat transport. Both
// backends down yields the fixed unavailability reply rather than an
// error; the customer always gets an answer.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/orders"
	"github.com/chatclerk/chatclerk/pkg/contracts"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// maxToolRounds bounds tool execution per turn so a looping model
// cannot spin forever.
const maxToolRounds = 3

// Finalizer persists a confirmed order exactly once per conversation.
type Finalizer interface {
	Finalize(ctx context.Context, conversationID string, order *models.Order) orders.Result
}

// Outcome is the result of one pipeline turn.
type Outcome struct {
	Text       string
	OrderSaved bool
	// Backend names which client produced the final text, for logs.
	Backend string
}

type Pipeline struct {
	primary     contracts.Backend
	fallback    contracts.Backend
	kb          contracts.KnowledgeBase
	finalizer   Finalizer
	topK        int
	system      string
	unavailable string
}

type Option func(*Pipeline)

// WithSystemPrompt overrides the built-in sales prompt.
func WithSystemPrompt(prompt string) Option {
	return func(p *Pipeline) { p.system = prompt }
}

func New(primary, fallback contracts.Backend, kb contracts.KnowledgeBase, finalizer Finalizer, topK int, unavailable string, opts ...Option) *Pipeline {
	p := &Pipeline{
		primary:     primary,
		fallback:    fallback,
		kb:          kb,
		finalizer:   finalizer,
		topK:        topK,
		system:      systemPrompt,
		unavailable: unavailable,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Respond produces the assistant turn for one inbound message.
// details, if present, are cached customer fields injected into the
// prompt so returning customers are not asked for them again.
func (p *Pipeline) Respond(ctx context.Context, conversationID string, history []models.ChatMessage, message string, details models.CustomerDetails) Outcome {
	req := &models.GenerateRequest{
		System:  p.buildSystem(details),
		History: history,
		Message: message,
	}

	var saved bool
	for round := 0; ; round++ {
		resp, backendName, err := p.generate(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("conversation", conversationID).Msg("All backends exhausted")
			return Outcome{Text: p.unavailable, OrderSaved: saved}
		}

		if resp.ToolCall == nil || round >= maxToolRounds {
			text := StripMarkdown(resp.Text)
			if text == "" {
				text = p.unavailable
			}
			return Outcome{Text: text, OrderSaved: saved, Backend: backendName}
		}

		result := p.executeTool(ctx, conversationID, resp.ToolCall)
		if result.saved {
			saved = true
		}
		req.ToolResults = append(req.ToolResults, models.ToolResult{
			Name:    resp.ToolCall.Name,
			Content: result.content,
		})
	}
}

// generate tries the primary, then the fallback. Each client owns its
// retry budget; a budget-exhausted primary is a normal failover, not a
// turn failure.
func (p *Pipeline) generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, string, error) {
	resp, err := p.primary.Generate(ctx, req)
	if err == nil {
		return resp, p.primary.Name(), nil
	}
	log.Warn().Err(err).Str("backend", p.primary.Name()).Msg("Primary backend failed, trying fallback")

	if p.fallback == nil {
		return nil, "", err
	}
	resp, err = p.fallback.Generate(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return resp, p.fallback.Name(), nil
}

type toolResult struct {
	content string
	saved   bool
}

func (p *Pipeline) executeTool(ctx context.Context, conversationID string, call *models.ToolCall) toolResult {
	switch call.Name {
	case models.ToolSearchKnowledge:
		return toolResult{content: p.searchKnowledge(ctx, call.Query)}

	case models.ToolFinalizeOrder:
		res := p.finalizer.Finalize(ctx, conversationID, call.Order)
		return toolResult{content: res.Reply, saved: res.Saved}

	default:
		return toolResult{content: fmt.Sprintf("Unknown tool %q.", call.Name)}
	}
}

func (p *Pipeline) searchKnowledge(ctx context.Context, query string) string {
	if p.kb == nil {
		return "The knowledge base is not available."
	}
	results, err := p.kb.Search(ctx, query, p.topK)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Knowledge search failed")
		return "The knowledge base is not available right now."
	}
	if len(results) == 0 {
		return "No matching product information was found."
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(r.Doc.Text)
	}
	return b.String()
}

func (p *Pipeline) buildSystem(details models.CustomerDetails) string {
	if len(details) == 0 {
		return p.system
	}
	var b strings.Builder
	b.WriteString(p.system)
	b.WriteString("\n\nKnown customer details from a previous order (do not ask for these again):\n")
	for _, key := range []string{"name", "phone", "email", "address"} {
		if v, ok := details[key]; ok && v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", key, v)
		}
	}
	return b.String()
}
