package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"

	// AnthropicDefaultModel is used when no model is configured.
	AnthropicDefaultModel = "claude-sonnet-4-5"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func (c *AnthropicClient) Name() string  { return Anthropic }
func (c *AnthropicClient) Model() string { return c.model }

type anthropicBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text,omitempty"`
	Source       *anthropicImageSource  `json:"source,omitempty"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    []anthropicBlock   `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Thinking  *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"content"`
	Usage struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

var ephemeral = &anthropicCacheControl{Type: "ephemeral"}

// Send issues one Messages call. The system prompt is always cache-marked;
// each note block marked CacheStable closes a cacheable prefix.
func (c *AnthropicClient) Send(ctx context.Context, req Request) (*Response, error) {
	payload := anthropicRequest{
		Model:     c.model,
		MaxTokens: req.MaxOutputTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: anthropicContent(req)}},
	}
	if req.SystemPrompt != "" {
		payload.System = []anthropicBlock{{Type: "text", Text: req.SystemPrompt, CacheControl: ephemeral}}
	}
	if req.ExtendedReasoning && req.ThinkingBudget > 0 {
		// budget_tokens must stay below max_tokens, so both budgets are added.
		payload.MaxTokens = req.ThinkingBudget + req.MaxOutputTokens
		payload.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: req.ThinkingBudget}
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
	var out anthropicResponse
	if err := postJSON(ctx, c.client, Anthropic, strings.TrimRight(c.baseURL, "/")+"/v1/messages", headers, payload, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	thinking := 0
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			// Only a summary is returned; estimate at four characters per token.
			thinking += len(block.Thinking) / 4
		}
	}
	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Response{
		RawText: text.String(),
		Model:   model,
		Usage: Usage{
			InputTokens:         out.Usage.InputTokens,
			OutputTokens:        out.Usage.OutputTokens,
			CacheReadTokens:     out.Usage.CacheReadInputTokens,
			CacheCreationTokens: out.Usage.CacheCreationInputTokens,
			ThinkingTokens:      thinking,
		},
	}, nil
}

func anthropicContent(req Request) []anthropicBlock {
	var blocks []anthropicBlock
	if req.Prompt != "" {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: "Art prompt: " + req.Prompt})
	}
	if len(req.Notes) > 0 {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: notesHeader})
		for _, n := range req.Notes {
			b := anthropicBlock{Type: "text", Text: n.Label + "\n" + n.Text}
			if n.CacheStable {
				b.CacheControl = ephemeral
			}
			blocks = append(blocks, b)
		}
	}
	if len(req.Image) > 0 {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}
	if req.Context != "" {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: req.Context})
	}
	return blocks
}
