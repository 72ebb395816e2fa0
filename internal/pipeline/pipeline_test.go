package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chatclerk/chatclerk/internal/orders"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// scriptedBackend returns its responses in order, then repeats the last.
type scriptedBackend struct {
	name      string
	responses []*models.GenerateResponse
	err       error
	calls     int
	requests  []*models.GenerateRequest
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	b.calls++
	reqCopy := *req
	reqCopy.ToolResults = append([]models.ToolResult(nil), req.ToolResults...)
	b.requests = append(b.requests, &reqCopy)
	if b.err != nil {
		return nil, b.err
	}
	idx := b.calls - 1
	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}
	return b.responses[idx], nil
}

type fakeKB struct {
	results []models.SearchResult
	err     error
	queries []string
}

func (f *fakeKB) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeFinalizer struct {
	result orders.Result
	calls  int
	order  *models.Order
}

func (f *fakeFinalizer) Finalize(ctx context.Context, conversationID string, order *models.Order) orders.Result {
	f.calls++
	f.order = order
	return f.result
}

const unavailable = "backend unavailable"

func TestRespondPlainText(t *testing.T) {
	primary := &scriptedBackend{name: "primary", responses: []*models.GenerateResponse{{Text: "**Hello** there"}}}
	p := New(primary, nil, nil, nil, 5, unavailable)

	out := p.Respond(context.Background(), "c1", nil, "hi", nil)
	if out.Text != "Hello there" {
		t.Errorf("Text = %q, want %q", out.Text, "Hello there")
	}
	if out.Backend != "primary" {
		t.Errorf("Backend = %q", out.Backend)
	}
	if out.OrderSaved {
		t.Error("no order was placed")
	}
}

func TestRespondFailsOverToFallback(t *testing.T) {
	primary := &scriptedBackend{name: "primary", err: errors.New("down")}
	fallback := &scriptedBackend{name: "fallback", responses: []*models.GenerateResponse{{Text: "from fallback"}}}
	p := New(primary, fallback, nil, nil, 5, unavailable)

	out := p.Respond(context.Background(), "c1", nil, "hi", nil)
	if out.Text != "from fallback" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Backend != "fallback" {
		t.Errorf("Backend = %q", out.Backend)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, fallback.calls)
	}
}

func TestRespondBothBackendsDown(t *testing.T) {
	primary := &scriptedBackend{name: "primary", err: errors.New("down")}
	fallback := &scriptedBackend{name: "fallback", err: errors.New("also down")}
	p := New(primary, fallback, nil, nil, 5, unavailable)

	out := p.Respond(context.Background(), "c1", nil, "hi", nil)
	if out.Text != unavailable {
		t.Errorf("Text = %q, want the fixed unavailability reply", out.Text)
	}
}

func TestRespondKnowledgeToolRound(t *testing.T) {
	primary := &scriptedBackend{name: "primary", responses: []*models.GenerateResponse{
		{ToolCall: &models.ToolCall{Name: models.ToolSearchKnowledge, Query: "standing desk price"}},
		{Text: "The standing desk costs 1200."},
	}}
	kb := &fakeKB{results: []models.SearchResult{
		{Doc: models.KnowledgeDoc{Text: "Standing Desk, 1200 NIS, in stock."}, Score: 0.92},
	}}
	p := New(primary, nil, kb, nil, 5, unavailable)

	out := p.Respond(context.Background(), "c1", nil, "how much is the desk?", nil)
	if out.Text != "The standing desk costs 1200." {
		t.Errorf("Text = %q", out.Text)
	}
	if len(kb.queries) != 1 || kb.queries[0] != "standing desk price" {
		t.Errorf("queries = %v", kb.queries)
	}

	// The second round must carry the tool result back.
	second := primary.requests[1]
	if len(second.ToolResults) != 1 {
		t.Fatalf("tool results = %d, want 1", len(second.ToolResults))
	}
	if !strings.Contains(second.ToolResults[0].Content, "1200 NIS") {
		t.Errorf("tool result = %q", second.ToolResults[0].Content)
	}
}

func TestRespondFinalizeOrderRound(t *testing.T) {
	order := &models.Order{CustomerName: "Dana", ProductName: "Standing Desk", Quantity: 1}
	primary := &scriptedBackend{name: "primary", responses: []*models.GenerateResponse{
		{ToolCall: &models.ToolCall{Name: models.ToolFinalizeOrder, Order: order}},
		{Text: "All done, your order is in!"},
	}}
	finalizer := &fakeFinalizer{result: orders.Result{Reply: "order saved", Saved: true}}
	p := New(primary, nil, nil, finalizer, 5, unavailable)

	out := p.Respond(context.Background(), "c1", nil, "yes, confirm", nil)
	if !out.OrderSaved {
		t.Error("OrderSaved = false")
	}
	if finalizer.calls != 1 {
		t.Errorf("finalizer calls = %d, want 1", finalizer.calls)
	}
	if finalizer.order != order {
		t.Error("order not forwarded to finalizer")
	}
	if out.Text != "All done, your order is in!" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestRespondToolLoopBounded(t *testing.T) {
	// A model stuck on tool calls must still terminate.
	primary := &scriptedBackend{name: "primary", responses: []*models.GenerateResponse{
		{ToolCall: &models.ToolCall{Name: models.ToolSearchKnowledge, Query: "q"}},
	}}
	kb := &fakeKB{}
	p := New(primary, nil, kb, nil, 5, unavailable)

	out := p.Respond(context.Background(), "c1", nil, "hi", nil)
	if out.Text != unavailable {
		t.Errorf("Text = %q, want the fixed unavailability reply", out.Text)
	}
	if primary.calls > maxToolRounds+1 {
		t.Errorf("backend calls = %d, want at most %d", primary.calls, maxToolRounds+1)
	}
}

func TestRespondInjectsCustomerDetails(t *testing.T) {
	primary := &scriptedBackend{name: "primary", responses: []*models.GenerateResponse{{Text: "ok"}}}
	p := New(primary, nil, nil, nil, 5, unavailable)

	details := models.CustomerDetails{"name": "Dana", "phone": "0501234567"}
	p.Respond(context.Background(), "c1", nil, "hi again", details)

	system := primary.requests[0].System
	if !strings.Contains(system, "Dana") || !strings.Contains(system, "0501234567") {
		t.Errorf("system prompt missing cached details: %q", system)
	}
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**bold** text", "bold text"},
		{"some *italic* words", "some italic words"},
		{"## Header\nbody", "Header\nbody"},
		{"stray * asterisk", "stray  asterisk"},
		{"  padded  ", "padded"},
		{"plain already", "plain already"},
	}
	for _, tt := range tests {
		if got := StripMarkdown(tt.in); got != tt.want {
			t.Errorf("StripMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
