package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTest = `{
  "title": "Academic Mock 1",
  "duration_minutes": 60,
  "allow_pause": true,
  "sections": [
    {"id": "r1", "skill": "reading", "questions": [
      {"id": "q1", "type": "single_choice", "content": {"options": ["a","b"], "correct_answer": 1}},
      {"id": "q2", "type": "fill_blank", "points": 2, "content": {"correct_answers": ["13%"]}},
      {"id": "q3", "type": "matching_headings", "content": {"correct_pairing": {"A": 2}}},
      {"id": "q4", "type": "diagram_label", "content": {"labels": ["x"]}}
    ]},
    {"id": "w1", "skill": "writing", "questions": [
      {"id": "t1", "type": "writing_task", "content": {"prompt": "Describe", "min_words": 150}}
    ]}
  ]
}`

func TestDecodeTestContent(t *testing.T) {
	var test Test
	require.NoError(t, json.Unmarshal([]byte(sampleTest), &test))

	require.Len(t, test.Sections, 2)
	qs := test.Sections[0].Questions

	single, ok := qs[0].Content.(SingleChoiceContent)
	require.True(t, ok)
	assert.Equal(t, 1, single.CorrectAnswer)

	fill, ok := qs[1].Content.(TextAnswerContent)
	require.True(t, ok)
	assert.Equal(t, QuestionFillBlank, fill.Kind())
	assert.Equal(t, 2.0, qs[1].Weight())
	assert.Equal(t, 1.0, qs[0].Weight())

	match, ok := qs[2].Content.(MatchingContent)
	require.True(t, ok)
	assert.Equal(t, QuestionMatchingHeadings, match.Kind())

	unknown, ok := qs[3].Content.(UnknownContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"labels":["x"]}`, string(unknown.Raw))

	_, ok = test.Sections[1].Questions[0].Content.(WritingTaskContent)
	assert.True(t, ok)
}

func TestUnknownContentRoundTrip(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","type":"diagram_label","content":{"a":1}}`), &q))

	out, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","type":"diagram_label","content":{"a":1}}`, string(out))
}

func TestTestHelpers(t *testing.T) {
	var test Test
	require.NoError(t, json.Unmarshal([]byte(sampleTest), &test))

	require.NotNil(t, test.TimeLimitSeconds())
	assert.Equal(t, 3600, *test.TimeLimitSeconds())
	assert.Equal(t, 5, test.QuestionCount())
	assert.Equal(t, Cursor{Skill: SkillReading}, test.FirstCursor())
	assert.True(t, test.HasSkill(SkillWriting))
	assert.False(t, test.HasSkill(SkillSpeaking))

	_, ok := test.Lookup(AnswerKey{Skill: SkillReading, SectionID: "r1", QuestionID: "q2"})
	assert.True(t, ok)
	_, ok = test.Lookup(AnswerKey{Skill: SkillListening, SectionID: "r1", QuestionID: "q2"})
	assert.False(t, ok)

	zero := 0
	test.DurationMinutes = &zero
	assert.Nil(t, test.TimeLimitSeconds())
}

func TestDecodeRejectsSlashInContentIDs(t *testing.T) {
	cases := map[string]string{
		"section":  `{"sections":[{"id":"a/b","skill":"reading","questions":[{"id":"c","type":"single_choice"}]}]}`,
		"question": `{"sections":[{"id":"a","skill":"reading","questions":[{"id":"b/c","type":"single_choice"}]}]}`,
		"empty":    `{"sections":[{"id":"","skill":"reading"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var test Test
			assert.Error(t, json.Unmarshal([]byte(raw), &test))
		})
	}
}

func TestAnswerSetSlotsDoNotCollide(t *testing.T) {
	a := AnswerKey{Skill: SkillReading, SectionID: "a", QuestionID: "bc"}
	b := AnswerKey{Skill: SkillReading, SectionID: "ab", QuestionID: "c"}
	assert.NotEqual(t, a.Slot(), b.Slot())

	set := AnswerSet(nil).Merge([]AnswerWrite{
		{Key: a, Entry: AnswerEntry{SectionID: "a", QuestionID: "bc", Value: json.RawMessage(`1`)}},
		{Key: b, Entry: AnswerEntry{SectionID: "ab", QuestionID: "c", Value: json.RawMessage(`2`)}},
	})
	assert.Len(t, set[SkillReading], 2)
}

func TestAnswerSetMergeReplacesWholesale(t *testing.T) {
	key := AnswerKey{Skill: SkillReading, SectionID: "r1", QuestionID: "q1"}
	other := AnswerKey{Skill: SkillListening, SectionID: "l1", QuestionID: "q1"}
	set := AnswerSet(nil).Merge([]AnswerWrite{
		{Key: key, Entry: AnswerEntry{SectionID: "r1", QuestionID: "q1", Value: json.RawMessage(`1`), TimeSpent: 30, Completed: true}},
		{Key: other, Entry: AnswerEntry{SectionID: "l1", QuestionID: "q1", Value: json.RawMessage(`"x"`)}},
	})

	set = set.Merge([]AnswerWrite{{Key: key, Entry: AnswerEntry{SectionID: "r1", QuestionID: "q1", Value: json.RawMessage(`2`)}}})

	got, ok := set.Get(key)
	require.True(t, ok)
	assert.JSONEq(t, `2`, string(got.Value))
	assert.Zero(t, got.TimeSpent)
	assert.False(t, got.Completed)
	_, ok = set.Get(other)
	assert.True(t, ok)
}

func TestIsEmptyValue(t *testing.T) {
	for _, raw := range []string{"", "null", `""`, `"   "`, "[]", "{}", " null "} {
		assert.True(t, IsEmptyValue(json.RawMessage(raw)), "%q", raw)
	}
	for _, raw := range []string{"0", `"a"`, "[0]", `{"A":1}`, "false"} {
		assert.False(t, IsEmptyValue(json.RawMessage(raw)), "%q", raw)
	}
}

func TestSubmissionStatusIsTerminal(t *testing.T) {
	for _, s := range ActiveStatuses {
		assert.False(t, s.IsTerminal())
	}
	assert.True(t, SubmissionStatusCompleted.IsTerminal())
	assert.True(t, SubmissionStatusAbandoned.IsTerminal())
	assert.True(t, SubmissionStatusExpired.IsTerminal())
}
