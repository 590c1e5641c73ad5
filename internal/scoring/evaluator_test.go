package scoring

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func q(t model.QuestionType, c model.QuestionContent) *model.Question {
	return &model.Question{ID: "q1", Type: t, Content: c}
}

func TestEvaluateVariants(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())

	single := q(model.QuestionSingleChoice, model.SingleChoiceContent{CorrectAnswer: 1})
	multi := q(model.QuestionMultiChoice, model.MultiChoiceContent{CorrectAnswers: []int{0, 2}})
	tfng := q(model.QuestionTrueFalseNotGiven, model.TrueFalseNotGivenContent{CorrectAnswer: "NOT GIVEN"})
	fill := q(model.QuestionFillBlank, model.TextAnswerContent{Variant: model.QuestionFillBlank, CorrectAnswers: []string{"13%", "13 percent"}})
	short := q(model.QuestionShortAnswer, model.TextAnswerContent{Variant: model.QuestionShortAnswer, CorrectAnswers: []string{"Oxford"}})
	match := q(model.QuestionMatchingHeadings, model.MatchingContent{
		Variant:        model.QuestionMatchingHeadings,
		CorrectPairing: map[string]int{"A": 3, "B": 0},
	})

	cases := []struct {
		name    string
		q       *model.Question
		raw     string
		correct bool
	}{
		{"single match", single, `1`, true},
		{"single miss", single, `2`, false},
		{"single null", single, `null`, false},
		{"single wrong shape", single, `"1"`, false},
		{"multi unordered", multi, `[2,0]`, true},
		{"multi subset", multi, `[0]`, false},
		{"multi superset", multi, `[0,1,2]`, false},
		{"multi duplicate", multi, `[0,0]`, false},
		{"tfng case-insensitive", tfng, `"not given"`, true},
		{"tfng surrounding whitespace", tfng, `"  Not Given\n"`, true},
		{"tfng inner whitespace", tfng, `"NOT  GIVEN"`, false},
		{"tfng wrong label", tfng, `"false"`, false},
		{"tfng non-label", tfng, `"maybe"`, false},
		{"fill trimmed", fill, `" 13% "`, true},
		{"fill alternate", fill, `"13 PERCENT"`, true},
		{"fill blank", fill, `"   "`, false},
		{"short", short, `"oxford"`, true},
		{"matching exact", match, `{"A":3,"B":0}`, true},
		{"matching swapped", match, `{"A":0,"B":3}`, false},
		{"matching partial", match, `{"A":3}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := e.Evaluate(tc.q, json.RawMessage(tc.raw))
			assert.Equal(t, tc.correct, v.Correct)
		})
	}
}

func TestEvaluateMissingAnswerIsIncorrect(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	single := q(model.QuestionSingleChoice, model.SingleChoiceContent{CorrectAnswer: 1})

	v := e.Evaluate(single, nil)

	assert.False(t, v.Correct)
	assert.Equal(t, 1, v.Expected)
}

func TestEvaluateUnknownTypeDegrades(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	unknown := q("diagram_label", model.UnknownContent{Type: "diagram_label"})

	assert.NotPanics(t, func() {
		v := e.Evaluate(unknown, json.RawMessage(`"x"`))
		assert.False(t, v.Correct)
	})
}
