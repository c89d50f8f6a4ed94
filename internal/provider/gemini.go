package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com"

	// GeminiDefaultModel is used when no model is configured.
	GeminiDefaultModel = "gemini-3-flash-preview"
)

// GeminiClient talks to the Gemini generateContent API. Gemini caches
// repeated prefixes implicitly, so CacheStable hints only shape ordering.
type GeminiClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func (c *GeminiClient) Name() string  { return Gemini }
func (c *GeminiClient) Model() string { return c.model }

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	Thought    bool              `json:"thought,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiThinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount        int `json:"promptTokenCount"`
		CandidatesTokenCount    int `json:"candidatesTokenCount"`
		CachedContentTokenCount int `json:"cachedContentTokenCount"`
		ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Send issues one generateContent call.
func (c *GeminiClient) Send(ctx context.Context, req Request) (*Response, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: geminiParts(req)}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if req.ExtendedReasoning && req.ThinkingBudget > 0 {
		payload.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: req.ThinkingBudget}
		payload.GenerationConfig.MaxOutputTokens = req.ThinkingBudget + req.MaxOutputTokens
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"
	headers := map[string]string{"x-goog-api-key": c.apiKey}

	var out geminiResponse
	if err := postJSON(ctx, c.client, Gemini, endpoint, headers, payload, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			if !p.Thought {
				text.WriteString(p.Text)
			}
		}
	}
	model := out.ModelVersion
	if model == "" {
		model = c.model
	}
	u := out.UsageMetadata
	return &Response{
		RawText: text.String(),
		Model:   model,
		Usage: Usage{
			InputTokens:     u.PromptTokenCount,
			OutputTokens:    u.CandidatesTokenCount,
			CacheReadTokens: u.CachedContentTokenCount,
			ThinkingTokens:  u.ThoughtsTokenCount,
		},
	}, nil
}

func geminiParts(req Request) []geminiPart {
	var parts []geminiPart
	if req.Prompt != "" {
		parts = append(parts, geminiPart{Text: "Art prompt: " + req.Prompt})
	}
	if len(req.Notes) > 0 {
		parts = append(parts, geminiPart{Text: notesHeader + "\n\n" + NotesText(req.Notes)})
	}
	if len(req.Image) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}
	if req.Context != "" {
		parts = append(parts, geminiPart{Text: req.Context})
	}
	return parts
}
