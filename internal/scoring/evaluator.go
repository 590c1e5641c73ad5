package scoring

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/model"
)

// Canonical labels accepted by true/false/not-given questions.
var tfngLabels = []string{"TRUE", "FALSE", "NOT GIVEN"}

// Verdict is the outcome of evaluating one submitted answer.
type Verdict struct {
	Correct   bool
	Submitted any
	Expected  any
}

// Evaluator checks submitted answers against a question's expected answer.
// It never fails: malformed or unsupported pairs are judged incorrect and
// logged.
type Evaluator struct {
	log zerolog.Logger
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{log: log.With().Str("component", "evaluator").Logger()}
}

// Evaluate judges raw against q. A missing, null or empty answer is incorrect.
func (e *Evaluator) Evaluate(q *model.Question, raw json.RawMessage) Verdict {
	v := Verdict{Expected: expectedOf(q.Content)}
	if model.IsEmptyValue(raw) {
		return v
	}

	var ok bool
	switch c := q.Content.(type) {
	case model.SingleChoiceContent:
		var got int
		if ok = e.decode(q, raw, &got); ok {
			v.Submitted = got
			v.Correct = got == c.CorrectAnswer
		}
	case model.MultiChoiceContent:
		var got []int
		if ok = e.decode(q, raw, &got); ok {
			v.Submitted = got
			v.Correct = sameIndexSet(got, c.CorrectAnswers)
		}
	case model.TrueFalseNotGivenContent:
		var got string
		if ok = e.decode(q, raw, &got); ok {
			v.Submitted = got
			// Labels compare case-insensitively; surrounding whitespace is ignored
			// like in the text variants.
			v.Correct = isTFNGLabel(got) && strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(c.CorrectAnswer))
		}
	case model.TextAnswerContent:
		var got string
		if ok = e.decode(q, raw, &got); ok {
			v.Submitted = got
			v.Correct = matchesAny(got, c.CorrectAnswers)
		}
	case model.MatchingContent:
		var got map[string]int
		if ok = e.decode(q, raw, &got); ok {
			v.Submitted = got
			v.Correct = samePairing(got, c.CorrectPairing)
		}
	case model.WritingTaskContent, model.SpeakingPartContent:
		e.log.Warn().Str("question_id", q.ID).Str("type", string(q.Type)).Msg("Question is scored by review, not evaluated")
	default:
		e.log.Warn().Str("question_id", q.ID).Str("type", string(q.Type)).Msg("Unsupported question type, marking incorrect")
	}
	if !ok && v.Submitted == nil {
		v.Submitted = raw
	}
	return v
}

func (e *Evaluator) decode(q *model.Question, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		e.log.Warn().Err(err).
			Str("question_id", q.ID).
			Str("type", string(q.Type)).
			Msg("Malformed answer, marking incorrect")
		return false
	}
	return true
}

func expectedOf(c model.QuestionContent) any {
	switch c := c.(type) {
	case model.SingleChoiceContent:
		return c.CorrectAnswer
	case model.MultiChoiceContent:
		return c.CorrectAnswers
	case model.TrueFalseNotGivenContent:
		return c.CorrectAnswer
	case model.TextAnswerContent:
		return c.CorrectAnswers
	case model.MatchingContent:
		return c.CorrectPairing
	}
	return nil
}

// sameIndexSet reports unordered set equality; duplicates in got make it unequal.
func sameIndexSet(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	expected := make(map[int]struct{}, len(want))
	for _, w := range want {
		expected[w] = struct{}{}
	}
	seen := make(map[int]struct{}, len(got))
	for _, g := range got {
		if _, ok := expected[g]; !ok {
			return false
		}
		if _, dup := seen[g]; dup {
			return false
		}
		seen[g] = struct{}{}
	}
	return true
}

func isTFNGLabel(s string) bool {
	s = strings.TrimSpace(s)
	for _, l := range tfngLabels {
		if strings.EqualFold(s, l) {
			return true
		}
	}
	return false
}

func matchesAny(got string, accepted []string) bool {
	got = strings.TrimSpace(got)
	if got == "" {
		return false
	}
	for _, a := range accepted {
		if strings.EqualFold(got, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

func samePairing(got, want map[string]int) bool {
	if len(want) == 0 || len(got) != len(want) {
		return false
	}
	for item, idx := range want {
		g, ok := got[item]
		if !ok || g != idx {
			return false
		}
	}
	return true
}
