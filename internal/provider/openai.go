package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	openAIBaseURL = "https://api.openai.com"

	// OpenAIDefaultModel is used when no model is configured.
	OpenAIDefaultModel = "gpt-4.1"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including local servers such as LM Studio (base_url http://localhost:1234).
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func (c *OpenAIClient) Name() string  { return OpenAI }
func (c *OpenAIClient) Model() string { return c.model }

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	MaxTokens       int             `json:"max_completion_tokens,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
		CompletionTokensDetails struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
}

// Send issues one chat completions call.
func (c *OpenAIClient) Send(ctx context.Context, req Request) (*Response, error) {
	var messages []openAIMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: openAIParts(req)})

	payload := openAIRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: req.MaxOutputTokens,
	}
	if req.ExtendedReasoning {
		payload.ReasoningEffort = "high"
		payload.MaxTokens = req.ThinkingBudget + req.MaxOutputTokens
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	var out openAIResponse
	if err := postJSON(ctx, c.client, OpenAI, strings.TrimRight(c.baseURL, "/")+"/v1/chat/completions", headers, payload, &out); err != nil {
		return nil, err
	}

	text := ""
	if len(out.Choices) > 0 {
		text = out.Choices[0].Message.Content
	}
	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Response{
		RawText: text,
		Model:   model,
		Usage: Usage{
			InputTokens:     out.Usage.PromptTokens,
			OutputTokens:    out.Usage.CompletionTokens,
			CacheReadTokens: out.Usage.PromptTokensDetails.CachedTokens,
			ThinkingTokens:  out.Usage.CompletionTokensDetails.ReasoningTokens,
		},
	}, nil
}

func openAIParts(req Request) []openAIPart {
	var parts []openAIPart
	if req.Prompt != "" {
		parts = append(parts, openAIPart{Type: "text", Text: "Art prompt: " + req.Prompt})
	}
	if len(req.Notes) > 0 {
		parts = append(parts, openAIPart{Type: "text", Text: notesHeader + "\n\n" + NotesText(req.Notes)})
	}
	if len(req.Image) > 0 {
		parts = append(parts, openAIPart{
			Type:     "image_url",
			ImageURL: &openAIImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image)},
		})
	}
	if req.Context != "" {
		parts = append(parts, openAIPart{Type: "text", Text: req.Context})
	}
	return parts
}
