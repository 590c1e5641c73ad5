package service

import (
	"fmt"
	"time"

	"github.com/stemsi/bandexam-backend/internal/model"
)

// NormalizeDelta validates an answer delta against the test and collapses
// it so the last entry for each key wins. Writes keep first-seen key order.
func NormalizeDelta(test *model.Test, delta []model.AnswerInput, now time.Time) ([]model.AnswerWrite, error) {
	fields := make(map[string]string)
	index := make(map[model.AnswerKey]int, len(delta))
	writes := make([]model.AnswerWrite, 0, len(delta))

	for i, in := range delta {
		key := in.Key()
		switch {
		case !key.Skill.Valid():
			fields[fmt.Sprintf("answers[%d].skill", i)] = "unknown skill"
			continue
		case key.SectionID == "" || key.QuestionID == "":
			fields[fmt.Sprintf("answers[%d]", i)] = "section_id and question_id are required"
			continue
		case !model.ValidContentID(key.SectionID) || !model.ValidContentID(key.QuestionID):
			fields[fmt.Sprintf("answers[%d]", i)] = "section_id and question_id must not contain '/'"
			continue
		case in.TimeSpent < 0:
			fields[fmt.Sprintf("answers[%d].time_spent", i)] = "must not be negative"
			continue
		}
		if test != nil {
			if _, ok := test.Lookup(key); !ok {
				fields[fmt.Sprintf("answers[%d]", i)] = "question does not belong to this test"
				continue
			}
		}

		w := model.AnswerWrite{Key: key, Entry: model.AnswerEntry{
			SectionID:  key.SectionID,
			QuestionID: key.QuestionID,
			Value:      in.Value,
			TimeSpent:  in.TimeSpent,
			Completed:  in.Completed,
			UpdatedAt:  now,
		}}
		if pos, seen := index[key]; seen {
			writes[pos] = w
			continue
		}
		index[key] = len(writes)
		writes = append(writes, w)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return writes, nil
}

// CompletionPercentage is answered / total questions of the test, in percent.
func CompletionPercentage(test *model.Test, set model.AnswerSet) float64 {
	total := test.QuestionCount()
	if total == 0 {
		return 0
	}
	answered := 0
	for _, section := range test.Sections {
		for _, q := range section.Questions {
			e, ok := set.Get(model.AnswerKey{Skill: section.Skill, SectionID: section.ID, QuestionID: q.ID})
			if ok && e.Answered() {
				answered++
			}
		}
	}
	return float64(answered) / float64(total) * 100
}
