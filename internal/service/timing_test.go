package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Minute)
	pausedAt := start.Add(4 * time.Minute)

	assert.Equal(t, 600, Elapsed(start, 0, nil, now))
	assert.Equal(t, 480, Elapsed(start, 120, nil, now))
	assert.Equal(t, 240, Elapsed(start, 0, &pausedAt, now), "paused clock is frozen")
	assert.Equal(t, 0, Elapsed(now, 0, nil, start))
}

func TestRemaining(t *testing.T) {
	assert.Nil(t, Remaining(nil, 100))

	limit := 3600
	assert.Equal(t, 3500, *Remaining(&limit, 100))
	assert.Equal(t, 0, *Remaining(&limit, 4000))
}

func TestNormalizeDeltaCollapsesDuplicates(t *testing.T) {
	test := mockTest()
	now := time.Now()

	writes, err := NormalizeDelta(test, []model.AnswerInput{
		reading("q1", "0"),
		reading("q2", "1"),
		reading("q1", "2"),
	}, now)
	require.NoError(t, err)

	require.Len(t, writes, 2)
	assert.Equal(t, "q1", writes[0].Key.QuestionID)
	assert.JSONEq(t, "2", string(writes[0].Entry.Value))
	assert.Equal(t, now, writes[0].Entry.UpdatedAt)
}

func TestNormalizeDeltaRejectsSlashInIDs(t *testing.T) {
	_, err := NormalizeDelta(nil, []model.AnswerInput{
		{Skill: model.SkillReading, SectionID: "r1/q1", QuestionID: "x"},
		{Skill: model.SkillReading, SectionID: "r1", QuestionID: "q1/x"},
	}, time.Now())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestNormalizeDeltaRejectsUnknownAddresses(t *testing.T) {
	test := mockTest()

	_, err := NormalizeDelta(test, []model.AnswerInput{
		{Skill: "maths", SectionID: "r1", QuestionID: "q1"},
		{Skill: model.SkillListening, SectionID: "r1", QuestionID: "q1"},
		{Skill: model.SkillReading, SectionID: "r1"},
	}, time.Now())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestMergeAndCompletion(t *testing.T) {
	test := mockTest()
	writes, err := NormalizeDelta(test, []model.AnswerInput{
		reading("q1", "1"),
		reading("q2", "[]"),
		{Skill: model.SkillWriting, SectionID: "w1", QuestionID: "task1", Value: json.RawMessage(`"text"`)},
	}, time.Now())
	require.NoError(t, err)

	set := model.AnswerSet(nil).Merge(writes)
	assert.InDelta(t, 2.0/11.0*100, CompletionPercentage(test, set), 1e-9)

	again := set.Merge(writes)
	assert.Equal(t, set, again)
	assert.Zero(t, CompletionPercentage(&model.Test{}, set))
}
