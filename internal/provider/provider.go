// Package provider defines the capability every model backend satisfies and
// the backends themselves. The engine only ever talks to Provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider issues one turn request and returns the raw model text.
type Provider interface {
	Name() string
	Model() string
	Send(ctx context.Context, req Request) (*Response, error)
}

// NoteBlock is one note entry as sent to the model.
type NoteBlock struct {
	Label       string // e.g. "== Plan ==" or "== Iteration 3 notes =="
	Text        string
	CacheStable bool // Backend may mark the prefix ending here as cacheable
}

// Request is a single turn request. Fields are ordered roughly the way
// backends lay them out: stable prefix first, changing content last.
type Request struct {
	SystemPrompt      string
	Prompt            string // The art prompt, stable for the whole session
	Notes             []NoteBlock
	Image             []byte // PNG of the current canvas, optional
	Context           string // Per-turn context (iteration, layer summary)
	ExtendedReasoning bool
	DrawingAllowed    bool
	MaxOutputTokens   int
	ThinkingBudget    int
}

// Usage is token accounting for one call.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
	ThinkingTokens      int
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.ThinkingTokens += other.ThinkingTokens
}

// Response is the raw result of one call.
type Response struct {
	RawText string
	Usage   Usage
	Model   string
}

// Sentinels usable with errors.Is against a returned *Error.
var (
	ErrUnauthorized = errors.New("provider unauthorized")
	ErrRateLimited  = errors.New("provider rate limited")
	ErrUnavailable  = errors.New("provider unavailable")
	ErrBadRequest   = errors.New("provider rejected request")
)

// Kind classifies a provider failure.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindUnavailable  Kind = "unavailable"
	KindBadRequest   Kind = "bad_request"
	KindTransport    Kind = "transport"
	KindDecode       Kind = "decode"
)

// Error is returned for every failed provider call.
type Error struct {
	Provider string
	Kind     Kind
	Status   int // HTTP status, 0 when the request never completed
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Backend names.
const (
	Anthropic = "anthropic"
	Gemini    = "gemini"
	OpenAI    = "openai"
)

// Options configures a backend.
type Options struct {
	Name       string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

const defaultTimeout = 10 * time.Minute

// New returns the backend named by opts.Name. An empty API key falls back
// to the backend's usual environment variable.
func New(opts Options) (Provider, error) {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	switch strings.ToLower(opts.Name) {
	case Anthropic, "":
		key := firstNonEmpty(opts.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("anthropic: no API key (set api_key or ANTHROPIC_API_KEY)")
		}
		return &AnthropicClient{
			baseURL: firstNonEmpty(opts.BaseURL, anthropicBaseURL),
			apiKey:  key,
			model:   firstNonEmpty(opts.Model, AnthropicDefaultModel),
			client:  client,
		}, nil
	case Gemini:
		key := firstNonEmpty(opts.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("gemini: no API key (set api_key or GEMINI_API_KEY)")
		}
		return &GeminiClient{
			baseURL: firstNonEmpty(opts.BaseURL, geminiBaseURL),
			apiKey:  key,
			model:   firstNonEmpty(opts.Model, GeminiDefaultModel),
			client:  client,
		}, nil
	case OpenAI:
		// Local OpenAI-compatible servers usually need no key.
		return &OpenAIClient{
			baseURL: firstNonEmpty(opts.BaseURL, openAIBaseURL),
			apiKey:  firstNonEmpty(opts.APIKey, os.Getenv("OPENAI_API_KEY")),
			model:   firstNonEmpty(opts.Model, OpenAIDefaultModel),
			client:  client,
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected %s, %s or %s)", opts.Name, Anthropic, Gemini, OpenAI)
	}
}

// NotesText joins note blocks the way every backend presents them.
func NotesText(notes []NoteBlock) string {
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, n.Label+"\n"+n.Text)
	}
	return strings.Join(parts, "\n\n")
}

const notesHeader = "Your notes from previous iterations:"

// postJSON sends payload and decodes a 2xx body into out. Non-2xx statuses
// are mapped onto *Error kinds.
func postJSON(ctx context.Context, client *http.Client, name, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Provider: name, Kind: KindBadRequest, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Provider: name, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &Error{Provider: name, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Provider: name, Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(name, resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Provider: name, Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func statusError(name string, status int, body []byte) *Error {
	e := &Error{Provider: name, Status: status, Message: errorMessage(body)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind, e.Err = KindUnauthorized, ErrUnauthorized
	case status == http.StatusTooManyRequests:
		e.Kind, e.Err = KindRateLimited, ErrRateLimited
	case status >= 500:
		e.Kind, e.Err = KindUnavailable, ErrUnavailable
	default:
		e.Kind, e.Err = KindBadRequest, ErrBadRequest
	}
	return e
}

// errorMessage pulls a message out of the common {"error":{"message":...}}
// envelope, falling back to the trimmed body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
