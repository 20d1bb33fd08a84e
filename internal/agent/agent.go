package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/llm"
)

// Agent is the uniform capability every pipeline stage calls. A failed call
// returns a *Failure.
type Agent interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// GenreAware is implemented by agents whose prompts follow the studio genre.
type GenreAware interface {
	SetGenre(genre string)
}

// Provider resolves role prompts and model parameters.
type Provider interface {
	RolePrompt(roleID, genre string) string
	ModelParams(roleID, genre string) config.ModelConfig
}

// Profile describes a role for listings.
type Profile struct {
	RoleID             string                    `json:"roleId"`
	Name               string                    `json:"name"`
	DisplayName        string                    `json:"displayName"`
	Emoji              string                    `json:"emoji"`
	Genre              string                    `json:"genre"`
	CommunicationStyle config.CommunicationStyle `json:"communicationStyle"`
	Model              config.ModelConfig        `json:"modelConfig"`
}

// RoleOptions tunes retries and memory for a Role.
type RoleOptions struct {
	MaxAttempts     int
	Backoff         time.Duration
	MaxHistoryTurns int
	Breaker         *CircuitBreaker
	Logger          *slog.Logger
}

// Role is the LLM-backed Agent for one team member. It keeps the
// conversation history of its own calls and retries network failures.
type Role struct {
	mu       sync.Mutex // serializes Invoke and guards history
	id       string
	info     config.RoleConfig
	provider Provider
	client   llm.Client
	opts     RoleOptions
	history  []llm.Message
	sleep    func(ctx context.Context, d time.Duration) error

	genreMu sync.RWMutex
	genre   string
}

// NewRole creates a Role for roleID.
func NewRole(roleID string, info config.RoleConfig, provider Provider, client llm.Client, genre string, opts RoleOptions) *Role {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Breaker == nil {
		opts.Breaker = NewCircuitBreaker(3, 30*time.Second)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Role{
		id:       roleID,
		info:     info,
		provider: provider,
		client:   client,
		opts:     opts,
		genre:    genre,
		sleep:    sleepCtx,
	}
}

// Invoke sends prompt to the model with the role's system prompt and memory.
func (r *Role) Invoke(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	genre := r.Genre()
	params := r.provider.ModelParams(r.id, genre)
	messages := make([]llm.Message, 0, len(r.history)+1)
	messages = append(messages, r.history...)
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	req := llm.ChatRequest{
		Model:       params.ModelName,
		System:      r.provider.RolePrompt(r.id, genre),
		Messages:    messages,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		MaxTokens:   params.MaxTokens,
	}

	logger := r.opts.Logger.With("role", r.id)
	var last *Failure
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if !r.opts.Breaker.Allow() {
			return "", &Failure{
				Kind:    KindNetwork,
				Message: fmt.Sprintf("%s is paused after repeated failures until %s", r.info.Name, r.opts.Breaker.OpenUntil().Format(time.TimeOnly)),
			}
		}

		resp, err := r.client.Chat(ctx, req)
		if err == nil {
			r.opts.Breaker.RecordSuccess()
			r.remember(prompt, resp.Content)
			return resp.Content, nil
		}

		last = AsFailure(err)
		if last.Kind != KindNetwork {
			return "", last
		}
		r.opts.Breaker.RecordFailure()
		logger.Warn("agent call failed", "attempt", attempt, "error", last.Message)

		if attempt < r.opts.MaxAttempts {
			if err := r.sleep(ctx, r.opts.Backoff*time.Duration(attempt)); err != nil {
				break
			}
		}
	}
	return "", last
}

func (r *Role) remember(prompt, reply string) {
	r.history = append(r.history,
		llm.Message{Role: "user", Content: prompt},
		llm.Message{Role: "model", Content: reply},
	)
	if limit := r.opts.MaxHistoryTurns * 2; limit > 0 && len(r.history) > limit {
		r.history = append([]llm.Message(nil), r.history[len(r.history)-limit:]...)
	}
}

// History returns a copy of the remembered turns.
func (r *Role) History() []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]llm.Message, len(r.history))
	copy(out, r.history)
	return out
}

// ClearHistory forgets all remembered turns.
func (r *Role) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// SetGenre switches the genre used for later calls. History is kept.
func (r *Role) SetGenre(genre string) {
	r.genreMu.Lock()
	defer r.genreMu.Unlock()
	r.genre = genre
}

// Genre returns the genre used for the next call.
func (r *Role) Genre() string {
	r.genreMu.RLock()
	defer r.genreMu.RUnlock()
	return r.genre
}

// Profile describes the role with its current genre-adjusted parameters.
func (r *Role) Profile() Profile {
	genre := r.Genre()
	return Profile{
		RoleID:             r.id,
		Name:               r.info.Name,
		DisplayName:        r.info.DisplayName,
		Emoji:              r.info.Emoji,
		Genre:              genre,
		CommunicationStyle: r.info.CommunicationStyle,
		Model:              r.provider.ModelParams(r.id, genre),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
