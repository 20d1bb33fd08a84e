// Package testutil provides test helpers for genstory tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
)

// TempFiles creates a temporary directory with the given files and returns
// its path. Files is a map of relative path -> content.
func TempFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// Answers are five intake answers long enough to never count as vague.
var Answers = []string{
	"A rain-soaked harbour city in the 1920s, during prohibition",
	"Mara, a 34 year old customs inspector with a gambler's streak",
	"Adult readers who enjoy slow-burn noir mysteries",
	"Close third person, linear, with one flashback chapter",
	"Loyalty versus justice, bittersweet and reflective in tone",
}

// FakeAgent is a scripted agent.Agent. Calls succeed with a deterministic
// reply unless a failure is queued.
type FakeAgent struct {
	RoleID string

	mu       sync.Mutex
	prompts  []string
	failures []error
	genre    string
	gate     chan struct{}
}

// NewFakeAgent creates a FakeAgent for roleID.
func NewFakeAgent(roleID string) *FakeAgent {
	return &FakeAgent{RoleID: roleID}
}

// Invoke records the prompt and returns the next scripted result.
func (a *FakeAgent) Invoke(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	gate := a.gate
	a.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, prompt)
	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s output #%d", a.RoleID, len(a.prompts)), nil
}

// FailNext queues results for the next calls; a nil entry succeeds.
func (a *FakeAgent) FailNext(errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, errs...)
}

// Hold makes later calls block until Release.
func (a *FakeAgent) Hold() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate = make(chan struct{})
}

// Release unblocks held calls.
func (a *FakeAgent) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gate != nil {
		close(a.gate)
		a.gate = nil
	}
}

// Calls returns how many times Invoke ran.
func (a *FakeAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.prompts)
}

// Prompts returns the prompts received, in order.
func (a *FakeAgent) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompts...)
}

// SetGenre implements agent.GenreAware.
func (a *FakeAgent) SetGenre(genre string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.genre = genre
}

// Genre returns the last genre set.
func (a *FakeAgent) Genre() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.genre
}

// FakeBuilder hands out FakeAgents. Every Build call creates a fresh set.
type FakeBuilder struct {
	Roles []string

	mu   sync.Mutex
	sets []map[string]*FakeAgent
}

// NewFakeBuilder builds fakes for the enabled roles of cfg.
func NewFakeBuilder(cfg *config.Config) *FakeBuilder {
	return &FakeBuilder{Roles: cfg.EnabledRoles()}
}

// Build implements the orchestrator's agent builder.
func (b *FakeBuilder) Build(genre string) (map[string]agent.Agent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := make(map[string]*FakeAgent, len(b.Roles))
	out := make(map[string]agent.Agent, len(b.Roles))
	for _, id := range b.Roles {
		a := NewFakeAgent(id)
		a.genre = genre
		set[id] = a
		out[id] = a
	}
	b.sets = append(b.sets, set)
	return out, nil
}

// Profiles implements the orchestrator's agent builder.
func (b *FakeBuilder) Profiles(genre string) map[string]agent.Profile {
	out := make(map[string]agent.Profile, len(b.Roles))
	for _, id := range b.Roles {
		out[id] = agent.Profile{RoleID: id, Name: id, Genre: genre}
	}
	return out
}

// Last returns the agents of the most recent Build.
func (b *FakeBuilder) Last() map[string]*FakeAgent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sets) == 0 {
		return nil
	}
	return b.sets[len(b.sets)-1]
}

// Sets returns every agent set built so far.
func (b *FakeBuilder) Sets() []map[string]*FakeAgent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]*FakeAgent(nil), b.sets...)
}

// RecordingSink keeps every event it receives.
type RecordingSink struct {
	mu     sync.Mutex
	events map[string][]event.Event
	closed map[string]bool
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{
		events: make(map[string][]event.Event),
		closed: make(map[string]bool),
	}
}

// Send implements event.Sink.
func (s *RecordingSink) Send(sessionID string, ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.events[sessionID] = append(s.events[sessionID], ev)
}

// Close records that the session's stream was closed.
func (s *RecordingSink) Close(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[sessionID] = true
}

// Closed reports whether Close ran for the session.
func (s *RecordingSink) Closed(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[sessionID]
}

// Events returns the session's events in order.
func (s *RecordingSink) Events(sessionID string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events[sessionID]...)
}

// Matching returns the session's events for which keep is true.
func (s *RecordingSink) Matching(sessionID string, keep func(event.Event) bool) []event.Event {
	var out []event.Event
	for _, ev := range s.Events(sessionID) {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// StageStatus selects stage events with the given status.
func StageStatus(status string) func(event.Event) bool {
	return func(ev event.Event) bool {
		return ev.Data != nil && ev.Data["status"] == status
	}
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
