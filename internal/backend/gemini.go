package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/models"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// geminiDriver speaks the Gemini generateContent REST API with function
// calling enabled for the pipeline's two tools.
type geminiDriver struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

func newGeminiDriver(client *http.Client, cfg config.BackendConfig) *geminiDriver {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	return &geminiDriver{
		client:   client,
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

func (d *geminiDriver) Kind() string { return "gemini" }

// ── Wire types ──────────────────────────────────────────────

type geminiPart struct {
	Text         string          `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
}

type geminiFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTools   `json:"tools,omitempty"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiTools struct {
	FunctionDeclarations []geminiFuncDecl `json:"function_declarations"`
}

type geminiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Tool schemas advertised to the model. Argument shapes mirror
// models.ToolCall exactly so parsing stays trivial.
var geminiToolDecls = []geminiFuncDecl{
	{
		Name:        models.ToolSearchKnowledge,
		Description: "Search the product knowledge base for product details, prices, links, shipping info, and FAQ answers. Always use before answering product questions.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`),
	},
	{
		Name:        models.ToolFinalizeOrder,
		Description: "Save a confirmed order. Only call after showing the order summary and receiving the customer's explicit confirmation.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"customer_name": {"type": "string"},
				"customer_email": {"type": "string"},
				"customer_phone": {"type": "string"},
				"product_name": {"type": "string"},
				"quantity": {"type": "integer"},
				"full_address": {"type": "string"},
				"payment_method": {"type": "string"},
				"delivery_notes": {"type": "string"}
			},
			"required": ["customer_name", "customer_phone", "product_name", "quantity", "full_address", "payment_method"]
		}`),
	},
}

// ── Call ────────────────────────────────────────────────────

func (d *geminiDriver) Call(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("gemini: api key not configured")
	}

	greq := geminiRequest{
		Contents:         buildGeminiContents(req),
		Tools:            []geminiTools{{FunctionDeclarations: geminiToolDecls}},
		GenerationConfig: geminiGenConfig{Temperature: req.Temperature},
	}
	if req.System != "" {
		greq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	body, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", d.endpoint, d.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", d.apiKey)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("gemini: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var gresp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&gresp); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gresp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty candidate list")
	}

	out := &models.GenerateResponse{}
	for _, part := range gresp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			tc, err := parseToolCall(part.FunctionCall.Name, part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("gemini: %w", err)
			}
			out.ToolCall = tc
			continue
		}
		out.Text += part.Text
	}
	return out, nil
}

// buildGeminiContents converts history + the current message into the
// Gemini contents array. Tool results from earlier rounds of this turn
// are rendered as trailing user turns.
func buildGeminiContents(req *models.GenerateRequest) []geminiContent {
	contents := make([]geminiContent, 0, len(req.History)+len(req.ToolResults)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Message}}})
	for _, tr := range req.ToolResults {
		contents = append(contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: fmt.Sprintf("[%s result]\n%s", tr.Name, tr.Content)}},
		})
	}
	return contents
}

// parseToolCall maps a provider function call onto the typed ToolCall.
func parseToolCall(name string, args json.RawMessage) (*models.ToolCall, error) {
	switch name {
	case models.ToolSearchKnowledge:
		var payload struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, fmt.Errorf("parse %s args: %w", name, err)
		}
		return &models.ToolCall{Name: name, Query: payload.Query}, nil

	case models.ToolFinalizeOrder:
		var order models.Order
		if err := json.Unmarshal(args, &order); err != nil {
			return nil, fmt.Errorf("parse %s args: %w", name, err)
		}
		return &models.ToolCall{Name: name, Order: &order}, nil

	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}
