package intake

import (
	"strings"
	"testing"
)

const goodAnswer = "A rain-soaked harbour city in the 1920s"

func TestStepFullInterview(t *testing.T) {
	p := DefaultPolicy()
	s := NewState()

	out := p.Step(s, "I want a detective story")
	if out.Kind != OutcomeWelcome {
		t.Fatalf("first step: got %q, want welcome", out.Kind)
	}
	if s.InitialRequest != "I want a detective story" {
		t.Errorf("InitialRequest: got %q", s.InitialRequest)
	}
	if s.AnsweredCount() != 0 {
		t.Error("the initial request must not be recorded as an answer")
	}
	if out.Question == nil || out.Question.Key != KeyStoryBackground {
		t.Fatalf("welcome should ask storyBackground, got %+v", out.Question)
	}

	wantNext := []QuestionKey{KeyCharacterDetails, KeyTargetAudience, KeyNarrativeModel, KeyStoryCore}
	for i, key := range wantNext {
		out = p.Step(s, goodAnswer)
		if out.Kind != OutcomeNextQuestion {
			t.Fatalf("answer %d: got %q, want next_question", i+1, out.Kind)
		}
		if out.Question.Key != key {
			t.Errorf("answer %d: next key %q, want %q", i+1, out.Question.Key, key)
		}
	}

	out = p.Step(s, goodAnswer)
	if out.Kind != OutcomeAllAnswered || !out.Done() {
		t.Fatalf("fifth answer: got %q, want all_answered", out.Kind)
	}
	if !s.Complete {
		t.Error("state should be complete")
	}
	if s.CurrentQuestionIndex != len(Questions()) {
		t.Errorf("CurrentQuestionIndex: got %d, want %d", s.CurrentQuestionIndex, len(Questions()))
	}
	for _, k := range Keys() {
		if s.Answers[k] == nil {
			t.Errorf("answer %s missing", k)
		}
	}

	if out := p.Step(s, "more"); out.Kind != OutcomeClosed {
		t.Errorf("step after completion: got %q, want closed", out.Kind)
	}
	if !s.Complete {
		t.Error("completion must never reset")
	}
}

func TestStepEarlyStartRejectedWithFewAnswers(t *testing.T) {
	p := DefaultPolicy()
	for _, answered := range []int{0, 1} {
		s := NewState()
		p.Step(s, "hello")
		for i := 0; i < answered; i++ {
			p.Step(s, goodAnswer)
		}
		before := s.Clone()

		out := p.Step(s, "OK, let's start!")
		if out.Kind != OutcomeNeedMoreInfo {
			t.Fatalf("%d answers: got %q, want need_more_info", answered, out.Kind)
		}
		if s.Complete {
			t.Errorf("%d answers: early start must not complete intake", answered)
		}
		if s.CurrentQuestionIndex != before.CurrentQuestionIndex {
			t.Errorf("%d answers: question index moved", answered)
		}
		if s.AnsweredCount() != answered {
			t.Errorf("%d answers: the start request must not be recorded", answered)
		}
		if !s.WantsToStartEarly {
			t.Errorf("%d answers: WantsToStartEarly should be set", answered)
		}
	}
}

func TestStepEarlyStartAccepted(t *testing.T) {
	p := DefaultPolicy()
	s := NewState()
	p.Step(s, "hello")
	p.Step(s, goodAnswer)
	p.Step(s, goodAnswer)

	out := p.Step(s, "就这样吧")
	if out.Kind != OutcomeStartEarly || !out.Done() {
		t.Fatalf("got %q, want start_early", out.Kind)
	}
	if !s.Complete {
		t.Error("intake should be complete")
	}
	if s.Answers[KeyTargetAudience] != nil {
		t.Error("unanswered questions stay nil")
	}
}

func TestStepVagueAnswer(t *testing.T) {
	p := DefaultPolicy()
	s := NewState()
	p.Step(s, "hello")

	out := p.Step(s, "future")
	if out.Kind != OutcomeVague {
		t.Fatalf("got %q, want vague", out.Kind)
	}
	if s.CurrentQuestionIndex != 0 {
		t.Errorf("vague answer must not advance, index %d", s.CurrentQuestionIndex)
	}
	if got := s.Answer(KeyStoryBackground); got != "future" {
		t.Errorf("vague answer should be recorded, got %q", got)
	}

	out = p.Step(s, "mars")
	if out.Kind != OutcomeNextQuestion {
		t.Fatalf("second vague answer: got %q, want next_question", out.Kind)
	}
	if s.CurrentQuestionIndex != 1 {
		t.Errorf("index: got %d, want 1", s.CurrentQuestionIndex)
	}
	if got := s.Answer(KeyStoryBackground); got != "mars" {
		t.Errorf("answer should be replaced, got %q", got)
	}
}

func TestStepVagueCountsRunes(t *testing.T) {
	p := DefaultPolicy()
	s := NewState()
	p.Step(s, "hello")

	// Ten CJK runes are thirty bytes; the threshold is in runes.
	out := p.Step(s, "未来的上海一个雨夜里")
	if out.Kind != OutcomeNextQuestion {
		t.Fatalf("got %q, want next_question", out.Kind)
	}
}

func TestStepEmptyAnswer(t *testing.T) {
	p := DefaultPolicy()
	s := NewState()
	p.Step(s, "hello")

	out := p.Step(s, "   ")
	if out.Kind != OutcomeEmpty {
		t.Fatalf("got %q, want empty", out.Kind)
	}
	if s.AnsweredCount() != 0 || s.CurrentQuestionIndex != 0 {
		t.Error("blank answer must not change state")
	}
}

func TestStepMonotonicIndex(t *testing.T) {
	p := DefaultPolicy()
	s := NewState()
	inputs := []string{"hi", "short", goodAnswer, "let's start", "", "x", "y", goodAnswer, goodAnswer, goodAnswer}

	prevIndex := 0
	seen := map[QuestionKey]bool{}
	for _, in := range inputs {
		p.Step(s, in)
		if s.CurrentQuestionIndex < prevIndex {
			t.Fatalf("index decreased from %d to %d on %q", prevIndex, s.CurrentQuestionIndex, in)
		}
		if s.CurrentQuestionIndex > len(Questions()) {
			t.Fatalf("index %d past question count", s.CurrentQuestionIndex)
		}
		for k := range seen {
			if s.Answers[k] == nil {
				t.Fatalf("answer %s lost after %q", k, in)
			}
		}
		for k, v := range s.Answers {
			if v != nil {
				seen[k] = true
			}
		}
		prevIndex = s.CurrentQuestionIndex
	}
}

func TestWantsToStart(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Let's START please", true},
		{"go ahead with it", true},
		{"可以开始了", true},
		{"the story starts in Paris", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := WantsToStart(tt.in, DefaultStartPhrases); got != tt.want {
			t.Errorf("WantsToStart(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSummaryAndClone(t *testing.T) {
	p := DefaultPolicy()
	s := NewState()
	p.Step(s, "hello")
	p.Step(s, goodAnswer)

	sum := s.Summary()
	if !strings.Contains(sum, "Story background: "+goodAnswer) {
		t.Errorf("summary missing background: %q", sum)
	}
	if strings.Contains(sum, "Characters") {
		t.Errorf("summary should skip unanswered questions: %q", sum)
	}

	c := s.Clone()
	*c.Answers[KeyStoryBackground] = "changed"
	if s.Answer(KeyStoryBackground) != goodAnswer {
		t.Error("Clone must not share answer storage")
	}

	if !strings.Contains(NewState().Summary(), "none") {
		t.Error("empty summary should say there is nothing collected")
	}
}
