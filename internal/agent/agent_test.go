package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/llm"
)

type scriptedClient struct {
	mu       sync.Mutex
	results  []error // nil means success
	requests []llm.ChatRequest
}

func (c *scriptedClient) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	n := len(c.requests)
	if n <= len(c.results) && c.results[n-1] != nil {
		return llm.ChatResponse{}, c.results[n-1]
	}
	return llm.ChatResponse{Content: fmt.Sprintf("reply %d", n)}, nil
}

func newTestRole(t *testing.T, client llm.Client, opts RoleOptions) *Role {
	t.Helper()
	cfg := config.DefaultConfig()
	info, _ := cfg.Role(config.RoleStoryArchitect)
	r := NewRole(config.RoleStoryArchitect, info, cfg, client, "general", opts)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRoleInvokeKeepsHistory(t *testing.T) {
	client := &scriptedClient{}
	r := newTestRole(t, client, RoleOptions{MaxAttempts: 1, MaxHistoryTurns: 2})

	for i := 1; i <= 3; i++ {
		got, err := r.Invoke(context.Background(), fmt.Sprintf("prompt %d", i))
		if err != nil {
			t.Fatalf("Invoke %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("reply %d", i); got != want {
			t.Errorf("Invoke %d: got %q, want %q", i, got, want)
		}
	}

	// Third request carries the two previous turns.
	if n := len(client.requests[2].Messages); n != 5 {
		t.Errorf("third request messages: got %d, want 5", n)
	}

	hist := r.History()
	if len(hist) != 4 {
		t.Fatalf("history should be capped at 4 messages, got %d", len(hist))
	}
	if hist[0].Content != "prompt 2" {
		t.Errorf("oldest remembered prompt: got %q, want %q", hist[0].Content, "prompt 2")
	}
}

func TestRoleRetriesNetworkFailures(t *testing.T) {
	client := &scriptedClient{results: []error{
		&llm.StatusError{StatusCode: 503, Status: "503 Service Unavailable"},
		context.DeadlineExceeded,
		nil,
	}}
	r := newTestRole(t, client, RoleOptions{MaxAttempts: 3, Breaker: NewCircuitBreaker(5, time.Minute)})

	got, err := r.Invoke(context.Background(), "design")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "reply 3" {
		t.Errorf("got %q, want %q", got, "reply 3")
	}
	if len(client.requests) != 3 {
		t.Errorf("requests: got %d, want 3", len(client.requests))
	}
}

func TestRoleDoesNotRetryAPIKeyFailures(t *testing.T) {
	client := &scriptedClient{results: []error{llm.ErrMissingAPIKey}}
	r := newTestRole(t, client, RoleOptions{MaxAttempts: 3})

	_, err := r.Invoke(context.Background(), "design")
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.Kind != KindAPIKey {
		t.Errorf("Kind: got %q, want %q", f.Kind, KindAPIKey)
	}
	if len(client.requests) != 1 {
		t.Errorf("requests: got %d, want 1", len(client.requests))
	}
	if len(r.History()) != 0 {
		t.Error("failed call must not be remembered")
	}
}

func TestRoleBreakerFailsFast(t *testing.T) {
	netErr := &llm.StatusError{StatusCode: 500, Status: "500 Internal Server Error"}
	client := &scriptedClient{results: []error{netErr, netErr}}
	r := newTestRole(t, client, RoleOptions{MaxAttempts: 2, Breaker: NewCircuitBreaker(2, time.Hour)})

	if _, err := r.Invoke(context.Background(), "a"); err == nil {
		t.Fatal("expected failure")
	}
	_, err := r.Invoke(context.Background(), "b")
	f := AsFailure(err)
	if f == nil || f.Kind != KindNetwork || !strings.Contains(f.Message, "paused") {
		t.Fatalf("expected paused network failure, got %v", err)
	}
	if len(client.requests) != 2 {
		t.Errorf("open breaker must not reach the client, requests: %d", len(client.requests))
	}
}

func TestRoleSetGenreChangesPrompt(t *testing.T) {
	client := &scriptedClient{}
	r := newTestRole(t, client, RoleOptions{})

	if _, err := r.Invoke(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	r.SetGenre("sci-fi")
	if _, err := r.Invoke(context.Background(), "y"); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(client.requests[0].System, "sci-fi") {
		t.Error("first call should use the general prompt")
	}
	if !strings.Contains(client.requests[1].System, "[sci-fi requirements]") {
		t.Errorf("second call should carry the sci-fi modifier, got %q", client.requests[1].System)
	}
	if r.Profile().Genre != "sci-fi" {
		t.Errorf("Profile().Genre: got %q", r.Profile().Genre)
	}
	if len(r.History()) != 4 {
		t.Error("genre change must keep history")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"missing key", fmt.Errorf("wrap: %w", llm.ErrMissingAPIKey), KindAPIKey},
		{"unauthorized", &llm.StatusError{StatusCode: 401}, KindAPIKey},
		{"invalid key body", &llm.StatusError{StatusCode: 400, Body: "API key not valid"}, KindAPIKey},
		{"rate limited", &llm.StatusError{StatusCode: 429}, KindNetwork},
		{"server error", &llm.StatusError{StatusCode: 502}, KindNetwork},
		{"bad request", &llm.StatusError{StatusCode: 400, Body: "bad field"}, KindGeneral},
		{"deadline", fmt.Errorf("request failed: %w", context.DeadlineExceeded), KindNetwork},
		{"other", errors.New("response empty"), KindGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestAsFailureKeepsExisting(t *testing.T) {
	orig := &Failure{Kind: KindAPIKey, Message: "bad key"}
	if got := AsFailure(fmt.Errorf("stage: %w", orig)); got != orig {
		t.Errorf("AsFailure should unwrap the original failure, got %v", got)
	}
	if AsFailure(nil) != nil {
		t.Error("AsFailure(nil) should be nil")
	}
}

func TestFactoryBuildsEnabledRoles(t *testing.T) {
	cfg := config.DefaultConfig()
	editor := cfg.Roles[config.RoleCreativeEditor]
	editor.Enabled = false
	cfg.Roles[config.RoleCreativeEditor] = editor

	f := NewFactory(cfg, nil, WithClient(llm.EchoClient{}))
	agents, err := f.Build("fantasy")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(agents) != 4 {
		t.Errorf("agents: got %d, want 4", len(agents))
	}
	if _, ok := agents[config.RoleCreativeEditor]; ok {
		t.Error("disabled role should not be built")
	}

	out, err := agents[config.RoleFrontDesk].Invoke(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("echo reply should quote the prompt, got %q", out)
	}

	profiles := f.Profiles("fantasy")
	if p := profiles[config.RoleCharacterDesigner]; p.Name != "Charlie" || p.Genre != "fantasy" {
		t.Errorf("profile: got %+v", p)
	}
}

func TestFactoryUnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agents.Provider = "nope"
	if _, err := NewFactory(cfg, nil).Build("general"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
