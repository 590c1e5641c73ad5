package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Skill is one of the four assessed competencies.
type Skill string

const (
	SkillReading   Skill = "reading"
	SkillListening Skill = "listening"
	SkillWriting   Skill = "writing"
	SkillSpeaking  Skill = "speaking"
)

// Skills lists every skill in presentation order.
var Skills = []Skill{SkillReading, SkillListening, SkillWriting, SkillSpeaking}

// Valid reports whether s names a known skill.
func (s Skill) Valid() bool {
	switch s {
	case SkillReading, SkillListening, SkillWriting, SkillSpeaking:
		return true
	}
	return false
}

// AutoScored reports whether correctness for the skill is computed in-process.
// Writing and speaking bands come from the review collaborator.
func (s Skill) AutoScored() bool {
	return s == SkillReading || s == SkillListening
}

// AnswerKey addresses one answer within a submission.
type AnswerKey struct {
	Skill      Skill
	SectionID  string
	QuestionID string
}

// Slot is the key used inside a SkillAnswers map. Content ids never contain
// a slash, so distinct keys never share a slot.
func (k AnswerKey) Slot() string {
	return k.SectionID + "/" + k.QuestionID
}

// AnswerEntry is a stored answer. Value keeps the raw JSON shape the
// question variant expects (index, index list, string, item map).
type AnswerEntry struct {
	SectionID  string          `json:"section_id"`
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"value"`
	TimeSpent  int             `json:"time_spent"`
	Completed  bool            `json:"completed"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Answered reports whether the entry holds a non-null, non-empty value.
func (e AnswerEntry) Answered() bool {
	return !IsEmptyValue(e.Value)
}

// SkillAnswers maps AnswerKey.Slot() to the stored entry.
type SkillAnswers map[string]AnswerEntry

// AnswerSet holds one answer collection per skill.
type AnswerSet map[Skill]SkillAnswers

// Get returns the entry stored under key.
func (a AnswerSet) Get(key AnswerKey) (AnswerEntry, bool) {
	entries, ok := a[key.Skill]
	if !ok {
		return AnswerEntry{}, false
	}
	e, ok := entries[key.Slot()]
	return e, ok
}

// Put stores entry under key, replacing any previous value.
func (a AnswerSet) Put(key AnswerKey, entry AnswerEntry) {
	entries, ok := a[key.Skill]
	if !ok {
		entries = make(SkillAnswers)
		a[key.Skill] = entries
	}
	entries[key.Slot()] = entry
}

// Merge applies writes onto a, replacing each addressed entry wholesale.
// A nil set is allocated.
func (a AnswerSet) Merge(writes []AnswerWrite) AnswerSet {
	if a == nil {
		a = make(AnswerSet)
	}
	for _, w := range writes {
		a.Put(w.Key, w.Entry)
	}
	return a
}

// AnswerInput is one element of an answer delta sent by the client.
type AnswerInput struct {
	Skill      Skill           `json:"skill" binding:"required,oneof=reading listening writing speaking"`
	SectionID  string          `json:"section_id" binding:"required,max=64,excludes=/"`
	QuestionID string          `json:"question_id" binding:"required,max=64,excludes=/"`
	Value      json.RawMessage `json:"value"`
	TimeSpent  int             `json:"time_spent" binding:"min=0"`
	Completed  bool            `json:"completed"`
}

// Key returns the address of the input.
func (in AnswerInput) Key() AnswerKey {
	return AnswerKey{Skill: in.Skill, SectionID: in.SectionID, QuestionID: in.QuestionID}
}

// IsEmptyValue reports whether raw is missing, null, "", [] or {}.
func IsEmptyValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", `""`, "[]", "{}":
		return true
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return len(bytes.TrimSpace([]byte(s))) == 0
		}
	}
	return false
}

// AnswerWrite pairs an entry with the key it is stored under.
type AnswerWrite struct {
	Key   AnswerKey
	Entry AnswerEntry
}
