package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Test is the read-only content of an exam as served by the content store.
type Test struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	AllowPause      bool      `json:"allow_pause"`
	Active          bool      `json:"active"`
	Sections        []Section `json:"sections"`
	AttemptCount    int       `json:"attempt_count"`
	CompletionCount int       `json:"completion_count"`
	AvgMinutes      float64   `json:"avg_completion_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Section groups questions of one skill. Writing sections hold tasks and
// speaking sections hold parts.
type Section struct {
	ID        string     `json:"id"`
	Skill     Skill      `json:"skill"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// ValidContentID reports whether id can address a section or question.
// The slash is reserved as the separator of AnswerKey.Slot.
func ValidContentID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

// UnmarshalJSON rejects section ids that cannot be used as answer keys.
func (s *Section) UnmarshalJSON(data []byte) error {
	type plain Section
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if !ValidContentID(p.ID) {
		return fmt.Errorf("section %q: invalid id", p.ID)
	}
	*s = Section(p)
	return nil
}

// TimeLimitSeconds returns nil when the test is untimed.
func (t *Test) TimeLimitSeconds() *int {
	if t.DurationMinutes == nil || *t.DurationMinutes <= 0 {
		return nil
	}
	secs := *t.DurationMinutes * 60
	return &secs
}

// QuestionCount returns the number of questions across all sections.
func (t *Test) QuestionCount() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Questions)
	}
	return n
}

// FirstCursor points at the first question of the first section.
func (t *Test) FirstCursor() Cursor {
	if len(t.Sections) == 0 {
		return Cursor{}
	}
	return Cursor{Skill: t.Sections[0].Skill}
}

// Lookup finds the question addressed by key.
func (t *Test) Lookup(key AnswerKey) (*Question, bool) {
	for i := range t.Sections {
		s := &t.Sections[i]
		if s.ID != key.SectionID || s.Skill != key.Skill {
			continue
		}
		for j := range s.Questions {
			if s.Questions[j].ID == key.QuestionID {
				return &s.Questions[j], true
			}
		}
	}
	return nil, false
}

// HasSkill reports whether any section assesses skill.
func (t *Test) HasSkill(skill Skill) bool {
	for _, s := range t.Sections {
		if s.Skill == skill && len(s.Questions) > 0 {
			return true
		}
	}
	return false
}

// QuestionType tags the content variant of a question.
type QuestionType string

const (
	QuestionSingleChoice        QuestionType = "single_choice"
	QuestionMultiChoice         QuestionType = "multi_choice"
	QuestionTrueFalseNotGiven   QuestionType = "true_false_not_given"
	QuestionFillBlank           QuestionType = "fill_blank"
	QuestionShortAnswer         QuestionType = "short_answer"
	QuestionMatchingHeadings    QuestionType = "matching_headings"
	QuestionMatchingInformation QuestionType = "matching_information"
	QuestionWritingTask         QuestionType = "writing_task"
	QuestionSpeakingPart        QuestionType = "speaking_part"
)

// Question is one item of a section. Content is decoded into the variant
// named by Type.
type Question struct {
	ID      string          `json:"id"`
	Type    QuestionType    `json:"type"`
	Points  float64         `json:"points,omitempty"`
	Content QuestionContent `json:"content"`
}

// Weight returns the points awarded for a correct answer (default 1).
func (q *Question) Weight() float64 {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// QuestionContent is implemented by every question variant.
type QuestionContent interface {
	Kind() QuestionType
}

// SingleChoiceContent expects exactly one option index.
type SingleChoiceContent struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
}

// MultiChoiceContent expects an unordered set of option indices.
type MultiChoiceContent struct {
	Prompt         string   `json:"prompt"`
	Options        []string `json:"options"`
	CorrectAnswers []int    `json:"correct_answers"`
}

// TrueFalseNotGivenContent expects one of the canonical labels.
type TrueFalseNotGivenContent struct {
	Statement     string `json:"statement"`
	CorrectAnswer string `json:"correct_answer"`
}

// TextAnswerContent backs fill-in-blank and short-answer questions.
type TextAnswerContent struct {
	Variant        QuestionType `json:"-"`
	Prompt         string       `json:"prompt"`
	MaxWords       int          `json:"max_words,omitempty"`
	CorrectAnswers []string     `json:"correct_answers"`
}

// MatchingContent pairs each item with an option index.
type MatchingContent struct {
	Variant        QuestionType   `json:"-"`
	Items          []string       `json:"items"`
	Options        []string       `json:"options"`
	CorrectPairing map[string]int `json:"correct_pairing"`
}

// WritingTaskContent is scored by the review collaborator.
type WritingTaskContent struct {
	Prompt   string `json:"prompt"`
	MinWords int    `json:"min_words"`
}

// SpeakingPartContent is scored by the review collaborator.
type SpeakingPartContent struct {
	Prompt      string `json:"prompt"`
	PrepSeconds int    `json:"prep_seconds"`
}

// UnknownContent keeps the payload of a type this build does not know.
type UnknownContent struct {
	Type QuestionType    `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (SingleChoiceContent) Kind() QuestionType      { return QuestionSingleChoice }
func (MultiChoiceContent) Kind() QuestionType       { return QuestionMultiChoice }
func (TrueFalseNotGivenContent) Kind() QuestionType { return QuestionTrueFalseNotGiven }
func (c TextAnswerContent) Kind() QuestionType      { return c.Variant }
func (c MatchingContent) Kind() QuestionType        { return c.Variant }
func (WritingTaskContent) Kind() QuestionType       { return QuestionWritingTask }
func (SpeakingPartContent) Kind() QuestionType      { return QuestionSpeakingPart }
func (c UnknownContent) Kind() QuestionType         { return c.Type }

// MarshalJSON keeps the raw payload of unknown variants intact.
func (c UnknownContent) MarshalJSON() ([]byte, error) {
	if len(c.Raw) == 0 {
		return []byte("null"), nil
	}
	return c.Raw, nil
}

type questionEnvelope struct {
	ID      string          `json:"id"`
	Type    QuestionType    `json:"type"`
	Points  float64         `json:"points,omitempty"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON decodes the content payload into the variant named by type.
func (q *Question) UnmarshalJSON(data []byte) error {
	var env questionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if !ValidContentID(env.ID) {
		return fmt.Errorf("question %q: invalid id", env.ID)
	}
	content, err := decodeContent(env.Type, env.Content)
	if err != nil {
		return fmt.Errorf("question %s: %w", env.ID, err)
	}
	q.ID = env.ID
	q.Type = env.Type
	q.Points = env.Points
	q.Content = content
	return nil
}

func decodeContent(t QuestionType, raw json.RawMessage) (QuestionContent, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch t {
	case QuestionSingleChoice:
		var c SingleChoiceContent
		err := json.Unmarshal(raw, &c)
		return c, err
	case QuestionMultiChoice:
		var c MultiChoiceContent
		err := json.Unmarshal(raw, &c)
		return c, err
	case QuestionTrueFalseNotGiven:
		var c TrueFalseNotGivenContent
		err := json.Unmarshal(raw, &c)
		return c, err
	case QuestionFillBlank, QuestionShortAnswer:
		c := TextAnswerContent{Variant: t}
		err := json.Unmarshal(raw, &c)
		return c, err
	case QuestionMatchingHeadings, QuestionMatchingInformation:
		c := MatchingContent{Variant: t}
		err := json.Unmarshal(raw, &c)
		return c, err
	case QuestionWritingTask:
		var c WritingTaskContent
		err := json.Unmarshal(raw, &c)
		return c, err
	case QuestionSpeakingPart:
		var c SpeakingPartContent
		err := json.Unmarshal(raw, &c)
		return c, err
	default:
		return UnknownContent{Type: t, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}
