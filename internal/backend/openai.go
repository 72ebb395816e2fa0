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

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// openaiDriver speaks the OpenAI chat completions API. Any
// OpenAI-compatible endpoint works via the Endpoint override.
type openaiDriver struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

func newOpenAIDriver(client *http.Client, cfg config.BackendConfig) *openaiDriver {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	return &openaiDriver{
		client:   client,
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

func (d *openaiDriver) Kind() string { return "openai" }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFuncDecl `json:"function"`
}

type openaiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	Tools       []openaiTool    `json:"tools,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func openaiToolDecls() []openaiTool {
	tools := make([]openaiTool, 0, len(geminiToolDecls))
	for _, decl := range geminiToolDecls {
		tools = append(tools, openaiTool{
			Type: "function",
			Function: openaiFuncDecl{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  decl.Parameters,
			},
		})
	}
	return tools
}

func (d *openaiDriver) Call(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("openai: api key not configured")
	}

	messages := make([]openaiMessage, 0, len(req.History)+len(req.ToolResults)+2)
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		messages = append(messages, openaiMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Message})
	for _, tr := range req.ToolResults {
		messages = append(messages, openaiMessage{
			Role:    "user",
			Content: fmt.Sprintf("[%s result]\n%s", tr.Name, tr.Content),
		})
	}

	body, err := json.Marshal(openaiRequest{
		Model:       d.model,
		Messages:    messages,
		Temperature: req.Temperature,
		Tools:       openaiToolDecls(),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("openai: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var oresp openaiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(oresp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choice list")
	}

	msg := oresp.Choices[0].Message
	out := &models.GenerateResponse{Text: msg.Content}
	if len(msg.ToolCalls) > 0 {
		fn := msg.ToolCalls[0].Function
		tc, err := parseToolCall(fn.Name, json.RawMessage(fn.Arguments))
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		out.ToolCall = tc
	}
	return out, nil
}
