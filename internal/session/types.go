// Package session holds the per-conversation state of the story pipeline
// and the stores that keep it.
package session

import (
	"strings"
	"time"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/intake"
)

// Phase is the top-level position of a session in the pipeline.
type Phase string

const (
	PhaseRequirementGathering Phase = "requirement_gathering"
	PhaseTeamCollaboration    Phase = "team_collaboration"
	PhaseProposalSelection    Phase = "proposal_selection"
	PhaseCompleted            Phase = "completed"
)

const haltedPrefix = "halted:"

// HaltedAt returns the halted phase tagged with stage.
func HaltedAt(stage string) Phase {
	return Phase(haltedPrefix + stage)
}

// Halted reports whether p is a halted phase.
func (p Phase) Halted() bool {
	return strings.HasPrefix(string(p), haltedPrefix)
}

// HaltedStage returns the stage a halted phase is tagged with, or "".
func (p Phase) HaltedStage() string {
	if !p.Halted() {
		return ""
	}
	return strings.TrimPrefix(string(p), haltedPrefix)
}

// Session is one user conversation.
type Session struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"userId"`
	Genre                 string          `json:"genre"`
	Phase                 Phase           `json:"phase"`
	CurrentStage          string          `json:"currentStage,omitempty"`
	ConversationLog       []LogRecord     `json:"conversationLog"`
	Interruptions         []Interruption  `json:"interruptions"`
	InterruptionsConsumed int             `json:"interruptionsConsumed"`
	Requirement           *intake.State   `json:"requirement,omitempty"`
	Checkpoint            *Checkpoint     `json:"checkpoint,omitempty"`
	LastError             *agent.Failure  `json:"lastError,omitempty"`
	Proposals             string          `json:"proposals,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// LogRecord is one completed pipeline run.
type LogRecord struct {
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Proposals string    `json:"proposals,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Interruption is a message that arrived while the team was working.
type Interruption struct {
	Input       string    `json:"input"`
	Timestamp   time.Time `json:"timestamp"`
	PhaseAtTime Phase     `json:"phaseAtTime"`
}

// StageResult is the output of one successful stage.
type StageResult struct {
	Stage   string `json:"stage"`
	RoleID  string `json:"roleId"`
	Content string `json:"content"`
}

// Checkpoint is everything needed to resume a halted run without
// repeating the stages that already succeeded.
type Checkpoint struct {
	FailedStage           string         `json:"failedStage"`
	FailedRoleID          string         `json:"failedRoleId"`
	CompletedStageResults []StageResult  `json:"completedStageResults"`
	OriginalInput         string         `json:"originalInput"`
	RequirementSummary    string         `json:"requirementSummary"`
	Interruptions         []string       `json:"interruptions,omitempty"`
	WasInterruption       bool           `json:"wasInterruption"`
	Error                 *agent.Failure `json:"error"`
	CreatedAt             time.Time      `json:"createdAt"`
}

// Summary is a compact view of a session for listings.
type Summary struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Phase         Phase     `json:"phase"`
	Conversations int       `json:"conversationCount"`
	Interruptions int       `json:"interruptionCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Summarize returns the listing view of s.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:            s.ID,
		UserID:        s.UserID,
		Phase:         s.Phase,
		Conversations: len(s.ConversationLog),
		Interruptions: len(s.Interruptions),
		UpdatedAt:     s.UpdatedAt,
	}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.ConversationLog = append([]LogRecord(nil), s.ConversationLog...)
	c.Interruptions = append([]Interruption(nil), s.Interruptions...)
	c.Requirement = s.Requirement.Clone()
	c.Checkpoint = s.Checkpoint.Clone()
	if s.LastError != nil {
		e := *s.LastError
		c.LastError = &e
	}
	return &c
}

// Clone returns a deep copy of cp.
func (cp *Checkpoint) Clone() *Checkpoint {
	if cp == nil {
		return nil
	}
	c := *cp
	c.CompletedStageResults = append([]StageResult(nil), cp.CompletedStageResults...)
	c.Interruptions = append([]string(nil), cp.Interruptions...)
	if cp.Error != nil {
		e := *cp.Error
		c.Error = &e
	}
	return &c
}
