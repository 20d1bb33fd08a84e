// Package llm provides chat clients for the hosted language models behind
// each story role.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when a hosted provider has no credentials.
var ErrMissingAPIKey = errors.New("llm: API key is not configured")

// Message is one turn of a conversation. Role is "user" or "model".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries a system prompt, prior turns and sampling parameters.
// The last message is the new prompt.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	Content      string
	FinishReason string
}

// Client sends a chat request to a model.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llm: status %s", e.Status)
	}
	return fmt.Sprintf("llm: status %s: %s", e.Status, e.Body)
}

// Options configures a provider client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New returns the client for provider.
func New(provider string, opts Options) (Client, error) {
	switch provider {
	case "gemini":
		return NewGeminiClient(opts), nil
	case "openai":
		return NewOpenAIClient(opts), nil
	case "echo":
		return EchoClient{}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// truncate keeps error bodies readable in logs and events.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
