// Package intake implements the fixed-question interview the front desk
// runs before the team starts working.
package intake

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// QuestionKey identifies one of the fixed intake questions.
type QuestionKey string

const (
	KeyStoryBackground  QuestionKey = "storyBackground"
	KeyCharacterDetails QuestionKey = "characterDetails"
	KeyTargetAudience   QuestionKey = "targetAudience"
	KeyNarrativeModel   QuestionKey = "narrativeModel"
	KeyStoryCore        QuestionKey = "storyCore"
)

// Question is one intake question.
type Question struct {
	Key      QuestionKey `json:"key"`
	Label    string      `json:"label"`
	Text     string      `json:"text"`
	FollowUp string      `json:"followUp"`
}

var questions = []Question{
	{
		Key:   KeyStoryBackground,
		Label: "Story background",
		Text: `First, tell me about the setting:
- When does the story take place? (present day, the past, the future...)
- Where does it happen? (a city, the countryside, a particular country...)
- Is there a historical event in the background?`,
		FollowUp: "If you haven't settled the details yet, a rough direction is fine; we can refine it together.",
	},
	{
		Key:   KeyCharacterDetails,
		Label: "Characters",
		Text: `Now the characters:
- The protagonist's age, gender and occupation
- Nationality or cultural background
- Personality or what makes them unusual
- Any archetype or reference you have in mind?`,
		FollowUp: "Characters are the soul of a story; the more detail, the more alive they will feel.",
	},
	{
		Key:   KeyTargetAudience,
		Label: "Target audience",
		Text: `Who is the story for?
- Which age group?
- Any particular readers? (teenagers, office workers...)
- Cultural preferences or values to respect?
- How should readers feel when they finish?`,
		FollowUp: "Without a specific audience we will write for general readers.",
	},
	{
		Key:   KeyNarrativeModel,
		Label: "Narrative model",
		Text: `How should it be told?
- Point of view (first person, third person omniscient...)
- A linear timeline or interleaved timelines?
- One protagonist or several viewpoints?
- Fast-paced adventure or slow, detailed emotion?`,
		FollowUp: "Different narrative choices give very different reading experiences.",
	},
	{
		Key:   KeyStoryCore,
		Label: "Story core",
		Text: `Finally, the heart of the story:
- The theme (love, friendship, growing up, justice...)
- The emotional core (warm, inspiring, reflective, entertaining...)
- The overall tone (bright, serious, light-hearted...)
- What should readers remember most?`,
		FollowUp: "A clear theme gives the story depth and impact.",
	},
}

// Questions returns the intake questions in the order they are asked.
func Questions() []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	return out
}

// QuestionAt returns the question at index i.
func QuestionAt(i int) (Question, bool) {
	if i < 0 || i >= len(questions) {
		return Question{}, false
	}
	return questions[i], true
}

// Keys returns the question keys in order.
func Keys() []QuestionKey {
	keys := make([]QuestionKey, len(questions))
	for i, q := range questions {
		keys[i] = q.Key
	}
	return keys
}

// DefaultStartPhrases are matched case-insensitively as substrings.
var DefaultStartPhrases = []string{
	"start now", "let's start", "lets start", "start writing", "start creating",
	"go ahead", "that's enough", "thats enough", "begin now",
	"开始", "可以开始了", "够了", "就这样", "让团队开始",
}

// WantsToStart reports whether input asks for the team to begin.
func WantsToStart(input string, phrases []string) bool {
	lower := strings.ToLower(input)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// State is the progress of one session's interview.
type State struct {
	Complete             bool                    `json:"complete"`
	WantsToStartEarly    bool                    `json:"wantsToStartEarly"`
	Started              bool                    `json:"started"`
	InitialRequest       string                  `json:"initialRequest,omitempty"`
	Answers              map[QuestionKey]*string `json:"answers"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	CurrentQuestionKey   QuestionKey             `json:"currentQuestionKey,omitempty"`
	Clarified            map[QuestionKey]bool    `json:"clarified,omitempty"`
}

// NewState returns a State with every answer unset.
func NewState() *State {
	answers := make(map[QuestionKey]*string, len(questions))
	for _, q := range questions {
		answers[q.Key] = nil
	}
	return &State{Answers: answers}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Answers = make(map[QuestionKey]*string, len(s.Answers))
	for k, v := range s.Answers {
		if v != nil {
			val := *v
			c.Answers[k] = &val
		} else {
			c.Answers[k] = nil
		}
	}
	if s.Clarified != nil {
		c.Clarified = make(map[QuestionKey]bool, len(s.Clarified))
		for k, v := range s.Clarified {
			c.Clarified[k] = v
		}
	}
	return &c
}

// AnsweredCount returns how many questions have a recorded answer.
func (s *State) AnsweredCount() int {
	n := 0
	for _, v := range s.Answers {
		if v != nil {
			n++
		}
	}
	return n
}

// Answer returns the recorded answer for key, or "".
func (s *State) Answer(key QuestionKey) string {
	if v := s.Answers[key]; v != nil {
		return *v
	}
	return ""
}

// Summary renders the collected requirements for the team.
func (s *State) Summary() string {
	var sb strings.Builder
	sb.WriteString("Collected requirements:")
	if s == nil || s.AnsweredCount() == 0 {
		sb.WriteString("\n(none; work from the request alone)")
		return sb.String()
	}
	for _, q := range questions {
		if v := s.Answers[q.Key]; v != nil {
			fmt.Fprintf(&sb, "\n- %s: %s", q.Label, *v)
		}
	}
	return sb.String()
}

// OutcomeKind is what happened on one intake step.
type OutcomeKind string

const (
	OutcomeWelcome      OutcomeKind = "welcome"
	OutcomeNeedMoreInfo OutcomeKind = "need_more_info"
	OutcomeStartEarly   OutcomeKind = "start_early"
	OutcomeEmpty        OutcomeKind = "empty"
	OutcomeVague        OutcomeKind = "vague"
	OutcomeNextQuestion OutcomeKind = "next_question"
	OutcomeAllAnswered  OutcomeKind = "all_answered"
	OutcomeClosed       OutcomeKind = "closed"
)

// Outcome reports the result of Step. Question is the question to ask
// next, if any.
type Outcome struct {
	Kind     OutcomeKind
	Question *Question
	Answered int
}

// Done reports whether the interview finished on this step.
func (o Outcome) Done() bool {
	return o.Kind == OutcomeStartEarly || o.Kind == OutcomeAllAnswered
}

// Policy holds the thresholds that drive Step.
type Policy struct {
	VagueThreshold    int
	MinAnswersToStart int
	StartPhrases      []string
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		VagueThreshold:    10,
		MinAnswersToStart: 2,
		StartPhrases:      DefaultStartPhrases,
	}
}

// Step applies one user message to s and reports what to do next.
//
// The first message is the client's initial request; it is kept and
// answered with the first question. An early-start request is honoured once
// MinAnswersToStart answers exist. Otherwise the message answers the current
// question: a blank answer is ignored, and an answer shorter than
// VagueThreshold runes is recorded but asked about once more before the
// interview moves on.
func (p Policy) Step(s *State, input string) Outcome {
	if s.Complete {
		return Outcome{Kind: OutcomeClosed, Answered: s.AnsweredCount()}
	}

	text := strings.TrimSpace(input)

	if !s.Started {
		s.Started = true
		s.InitialRequest = text
		q := questions[0]
		s.CurrentQuestionIndex = 0
		s.CurrentQuestionKey = q.Key
		return Outcome{Kind: OutcomeWelcome, Question: &q, Answered: s.AnsweredCount()}
	}

	if WantsToStart(text, p.StartPhrases) {
		s.WantsToStartEarly = true
		n := s.AnsweredCount()
		if n < p.MinAnswersToStart {
			return Outcome{Kind: OutcomeNeedMoreInfo, Question: p.current(s), Answered: n}
		}
		s.Complete = true
		return Outcome{Kind: OutcomeStartEarly, Answered: n}
	}

	if text == "" {
		return Outcome{Kind: OutcomeEmpty, Question: p.current(s), Answered: s.AnsweredCount()}
	}

	key := s.CurrentQuestionKey
	s.Answers[key] = &text

	if utf8.RuneCountInString(text) < p.VagueThreshold && !s.Clarified[key] {
		if s.Clarified == nil {
			s.Clarified = make(map[QuestionKey]bool)
		}
		s.Clarified[key] = true
		return Outcome{Kind: OutcomeVague, Question: p.current(s), Answered: s.AnsweredCount()}
	}

	s.CurrentQuestionIndex++
	if s.CurrentQuestionIndex >= len(questions) {
		s.CurrentQuestionIndex = len(questions)
		s.CurrentQuestionKey = ""
		s.Complete = true
		return Outcome{Kind: OutcomeAllAnswered, Answered: s.AnsweredCount()}
	}

	q := questions[s.CurrentQuestionIndex]
	s.CurrentQuestionKey = q.Key
	return Outcome{Kind: OutcomeNextQuestion, Question: &q, Answered: s.AnsweredCount()}
}

func (p Policy) current(s *State) *Question {
	q, ok := QuestionAt(s.CurrentQuestionIndex)
	if !ok {
		return nil
	}
	return &q
}
