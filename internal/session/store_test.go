package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/intake"
)

func newSession(id string) *Session {
	return &Session{
		ID:          id,
		UserID:      "user-" + id,
		Genre:       "general",
		Phase:       PhaseRequirementGathering,
		Requirement: intake.NewState(),
		CreatedAt:   time.Now().UTC(),
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlStore, err := NewSQLStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := st.Get(ctx, "nope")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != nil {
				t.Errorf("expected nil session, got %+v", got)
			}
		})
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newSession("a")
			s.Phase = HaltedAt("character_design")
			s.Interruptions = []Interruption{{Input: "make it darker", Timestamp: time.Now().UTC(), PhaseAtTime: PhaseTeamCollaboration}}
			s.Checkpoint = &Checkpoint{
				FailedStage:  "character_design",
				FailedRoleID: "character_designer",
				CompletedStageResults: []StageResult{
					{Stage: "requirement_analysis", RoleID: "front_desk", Content: "analysis"},
					{Stage: "structure_design", RoleID: "story_architect", Content: "outline"},
				},
				OriginalInput: "a heist on Mars",
				Error:         &agent.Failure{Kind: agent.KindNetwork, Message: "timeout"},
			}
			s.LastError = s.Checkpoint.Error

			if err := st.Set(ctx, s); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := st.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Phase != s.Phase {
				t.Errorf("Phase: got %q, want %q", got.Phase, s.Phase)
			}
			if got.Phase.HaltedStage() != "character_design" {
				t.Errorf("HaltedStage: got %q", got.Phase.HaltedStage())
			}
			if got.Checkpoint == nil || len(got.Checkpoint.CompletedStageResults) != 2 {
				t.Fatalf("checkpoint not preserved: %+v", got.Checkpoint)
			}
			if got.Checkpoint.Error.Kind != agent.KindNetwork {
				t.Errorf("checkpoint error kind: got %q", got.Checkpoint.Error.Kind)
			}
			if len(got.Interruptions) != 1 || got.Interruptions[0].Input != "make it darker" {
				t.Errorf("interruptions: %+v", got.Interruptions)
			}
			if got.UpdatedAt.IsZero() {
				t.Error("Set should stamp UpdatedAt")
			}
		})
	}
}

func TestStoreIsolation(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newSession("iso")
			if err := st.Set(ctx, s); err != nil {
				t.Fatalf("Set: %v", err)
			}
			s.Phase = PhaseCompleted

			got, _ := st.Get(ctx, "iso")
			if got.Phase != PhaseRequirementGathering {
				t.Errorf("mutating the caller's copy changed the store: %q", got.Phase)
			}
			got.Interruptions = append(got.Interruptions, Interruption{Input: "x"})
			again, _ := st.Get(ctx, "iso")
			if len(again.Interruptions) != 0 {
				t.Error("mutating a returned copy changed the store")
			}
		})
	}
}

func TestStoreDeleteAndList(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"one", "two", "three"} {
				if err := st.Set(ctx, newSession(id)); err != nil {
					t.Fatalf("Set %s: %v", id, err)
				}
				time.Sleep(5 * time.Millisecond)
			}
			if err := st.Delete(ctx, "two"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Delete(ctx, "missing"); err != nil {
				t.Errorf("Delete of unknown id should be a no-op: %v", err)
			}

			list, err := st.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("List: got %d summaries, want 2", len(list))
			}
			if list[0].ID != "three" || list[1].ID != "one" {
				t.Errorf("List order: got %s, %s", list[0].ID, list[1].ID)
			}
			if list[0].UserID != "user-three" {
				t.Errorf("UserID: got %q", list[0].UserID)
			}
		})
	}
}

func TestStoreSetRequiresID(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Set(ctx, &Session{}); err == nil {
				t.Error("expected error for session without id")
			}
		})
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		driver  string
		dsn     string
		wantErr bool
	}{
		{"memory", "", false},
		{"", "", false},
		{"sqlite", "", false},
		{"sqlite", filepath.Join(t.TempDir(), "s.db"), false},
		{"postgres", "", true},
	}
	for _, tt := range tests {
		st, closeFn, err := Open(tt.driver, tt.dsn)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%q): err = %v, wantErr %v", tt.driver, err, tt.wantErr)
			continue
		}
		if err == nil {
			if st == nil {
				t.Errorf("Open(%q): nil store", tt.driver)
			}
			_ = closeFn()
		}
	}
}

func TestPhaseHelpers(t *testing.T) {
	tests := []struct {
		phase  Phase
		halted bool
		stage  string
	}{
		{PhaseRequirementGathering, false, ""},
		{PhaseTeamCollaboration, false, ""},
		{HaltedAt("critique"), true, "critique"},
		{Phase("halted:final_decision"), true, "final_decision"},
	}
	for _, tt := range tests {
		if got := tt.phase.Halted(); got != tt.halted {
			t.Errorf("%q.Halted() = %v, want %v", tt.phase, got, tt.halted)
		}
		if got := tt.phase.HaltedStage(); got != tt.stage {
			t.Errorf("%q.HaltedStage() = %q, want %q", tt.phase, got, tt.stage)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := newSession("sum")
	s.ConversationLog = []LogRecord{{Input: "a"}, {Input: "b"}}
	s.Interruptions = []Interruption{{Input: "c"}}
	sum := s.Summarize()
	if sum.Conversations != 2 || sum.Interruptions != 1 {
		t.Errorf("Summarize: %+v", sum)
	}
}
