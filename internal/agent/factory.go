package agent

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/llm"
)

// Factory builds the per-session set of role agents from config.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	clients   map[string]llm.Client
	newClient func(provider string) (llm.Client, error)
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithClient makes every role use c regardless of its configured provider.
func WithClient(c llm.Client) FactoryOption {
	return func(f *Factory) {
		f.newClient = func(string) (llm.Client, error) { return c, nil }
	}
}

// NewFactory creates a Factory. Clients are created lazily, one per provider.
func NewFactory(cfg *config.Config, logger *slog.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f := &Factory{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]llm.Client),
	}
	f.newClient = func(provider string) (llm.Client, error) {
		return llm.New(provider, llm.Options{
			BaseURL: cfg.Agents.BaseURL,
			APIKey:  cfg.Agents.APIKey,
			Timeout: time.Duration(cfg.Agents.TimeoutSeconds) * time.Second,
		})
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build returns one fresh Role per enabled role, keyed by role ID.
func (f *Factory) Build(genre string) (map[string]Agent, error) {
	agents := make(map[string]Agent)
	for _, id := range f.cfg.EnabledRoles() {
		info, _ := f.cfg.Role(id)
		params := f.cfg.ModelParams(id, genre)
		client, err := f.client(params.Provider)
		if err != nil {
			return nil, fmt.Errorf("building agent %s: %w", id, err)
		}
		agents[id] = NewRole(id, info, f.cfg, client, genre, RoleOptions{
			MaxAttempts:     f.cfg.Agents.MaxAttempts,
			Backoff:         time.Duration(f.cfg.Agents.BackoffMs) * time.Millisecond,
			MaxHistoryTurns: f.cfg.Pipeline.MaxHistoryTurns,
			Breaker:         NewCircuitBreaker(f.cfg.Agents.BreakerThreshold, time.Duration(f.cfg.Agents.BreakerCooldownSeconds)*time.Second),
			Logger:          f.logger,
		})
	}
	return agents, nil
}

// Profiles describes every enabled role for genre.
func (f *Factory) Profiles(genre string) map[string]Profile {
	out := make(map[string]Profile)
	for _, id := range f.cfg.EnabledRoles() {
		info, _ := f.cfg.Role(id)
		out[id] = Profile{
			RoleID:             id,
			Name:               info.Name,
			DisplayName:        info.DisplayName,
			Emoji:              info.Emoji,
			Genre:              genre,
			CommunicationStyle: info.CommunicationStyle,
			Model:              f.cfg.ModelParams(id, genre),
		}
	}
	return out
}

func (f *Factory) client(provider string) (llm.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[provider]; ok {
		return c, nil
	}
	c, err := f.newClient(provider)
	if err != nil {
		return nil, err
	}
	f.clients[provider] = c
	return c, nil
}
