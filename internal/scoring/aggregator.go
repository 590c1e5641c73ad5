package scoring

import (
	"fmt"

	"github.com/stemsi/bandexam-backend/internal/model"
)

// InconsistencyError reports stored answers that the test content no longer
// contains.
type InconsistencyError struct {
	Keys []model.AnswerKey
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%d stored answer(s) reference questions missing from the test", len(e.Keys))
}

// Aggregator runs the evaluator over a submission and turns correctness
// counts into bands.
type Aggregator struct {
	eval  *Evaluator
	table *BandTable
}

// NewAggregator creates a new Aggregator.
func NewAggregator(eval *Evaluator, table *BandTable) *Aggregator {
	return &Aggregator{eval: eval, table: table}
}

// Score evaluates every auto-scored question of test against answers and
// computes bands. Writing and speaking bands already present in previous
// are carried over untouched.
func (a *Aggregator) Score(test *model.Test, answers model.AnswerSet, previous *model.Scores) (*model.Results, *model.Scores, error) {
	if err := checkConsistency(test, answers); err != nil {
		return nil, nil, err
	}

	results := &model.Results{
		PerSkill:  make(map[model.Skill]model.SkillResult),
		Questions: make([]model.QuestionResult, 0, test.QuestionCount()),
	}

	for _, section := range test.Sections {
		if !section.Skill.AutoScored() {
			continue
		}
		sr := results.PerSkill[section.Skill]
		for i := range section.Questions {
			q := &section.Questions[i]
			entry, _ := answers.Get(model.AnswerKey{Skill: section.Skill, SectionID: section.ID, QuestionID: q.ID})
			verdict := a.eval.Evaluate(q, entry.Value)

			var points float64
			if verdict.Correct {
				points = q.Weight()
				sr.Correct++
			}
			sr.Total++
			results.Questions = append(results.Questions, model.QuestionResult{
				QuestionID: q.ID,
				SectionID:  section.ID,
				Skill:      section.Skill,
				Type:       string(q.Type),
				Submitted:  verdict.Submitted,
				Expected:   verdict.Expected,
				Correct:    verdict.Correct,
				Points:     points,
			})
		}
		results.PerSkill[section.Skill] = sr
	}

	scores := &model.Scores{Skills: make(map[model.Skill]float64)}
	for skill, sr := range results.PerSkill {
		if sr.Total > 0 {
			sr.Percentage = float64(sr.Correct) / float64(sr.Total) * 100
			scores.Skills[skill] = a.table.Band(sr.Percentage)
		}
		results.PerSkill[skill] = sr
		results.TotalQuestions += sr.Total
		results.CorrectAnswers += sr.Correct
	}
	if previous != nil {
		for skill, band := range previous.Skills {
			if !skill.AutoScored() {
				scores.Skills[skill] = band
			}
		}
	}
	scores.Overall = Overall(scores.Skills)

	return results, scores, nil
}

// Overall averages every positive band and rounds half-up to 0.5.
// It returns nil when no skill has a positive band.
func Overall(bands map[model.Skill]float64) *float64 {
	var sum float64
	var n int
	for _, b := range bands {
		if b > 0 {
			sum += b
			n++
		}
	}
	if n == 0 {
		return nil
	}
	overall := RoundHalf(sum / float64(n))
	return &overall
}

// PendingReview lists the review-scored skills that have answers but no band yet.
func PendingReview(test *model.Test, answers model.AnswerSet, scores *model.Scores) []model.Skill {
	var pending []model.Skill
	for _, skill := range model.Skills {
		if skill.AutoScored() || !test.HasSkill(skill) {
			continue
		}
		if scores != nil {
			if b, ok := scores.Skills[skill]; ok && b > 0 {
				continue
			}
		}
		for _, e := range answers[skill] {
			if e.Answered() {
				pending = append(pending, skill)
				break
			}
		}
	}
	return pending
}

// ImprovementRate returns the relative change from first to last in percent.
// ok is false when first is not positive.
func ImprovementRate(first, last float64) (rate float64, ok bool) {
	if first <= 0 {
		return 0, false
	}
	return (last - first) / first * 100, true
}

func checkConsistency(test *model.Test, answers model.AnswerSet) error {
	var missing []model.AnswerKey
	for skill, entries := range answers {
		for _, e := range entries {
			key := model.AnswerKey{Skill: skill, SectionID: e.SectionID, QuestionID: e.QuestionID}
			if _, ok := test.Lookup(key); !ok {
				missing = append(missing, key)
			}
		}
	}
	if len(missing) > 0 {
		return &InconsistencyError{Keys: missing}
	}
	return nil
}
