// Package adaptive selects the next practice item for a learner in a
// mastery-gated curriculum and updates the learner's rating after each answer.
package adaptive

import (
	"fmt"
	"time"
)

// Status is a concept's readiness for one learner.
type Status string

const (
	StatusLocked   Status = "locked"
	StatusReady    Status = "ready"
	StatusMastered Status = "mastered"
)

// Chapter groups concepts for progress rollups.
type Chapter struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Concept is a node of the prerequisite graph. The graph is assumed acyclic.
type Concept struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ChapterID     string   `json:"chapterId"`
	Prerequisites []string `json:"prerequisites"`
}

// MasteryRecord is one learner's state for one concept.
type MasteryRecord struct {
	LearnerID string     `json:"learnerId"`
	ConceptID string     `json:"conceptId"`
	Rating    int        `json:"rating"`
	Attempts  int        `json:"attempts"`
	Mastered  bool       `json:"mastered"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ConceptState pairs a concept with the learner's mastery record.
// Mastery is nil when the learner has no row for the concept.
type ConceptState struct {
	Concept
	Chapter Chapter
	Mastery *MasteryRecord
}

// Question is a stored practice item. Options hold the stored encoding
// verbatim, correctness included; use PublicOptions before returning them.
type Question struct {
	ID         string `json:"id"`
	ConceptID  string `json:"conceptId"`
	Content    string `json:"content"`
	Difficulty int    `json:"difficulty"`
	Options    any    `json:"options"`
}

// Option is an answer option as shown to the learner.
type Option struct {
	Text string `json:"text"`
}

// PublicQuestion is a question safe to hand to a learner.
type PublicQuestion struct {
	QuestionID  string   `json:"questionId"`
	ConceptID   string   `json:"conceptId"`
	ContentText string   `json:"contentText"`
	Options     []Option `json:"options"`
	Difficulty  int      `json:"difficulty"`
}

// LogEntry is an append-only record of one answer.
type LogEntry struct {
	ID         int64     `json:"id"`
	LearnerID  string    `json:"learnerId"`
	QuestionID string    `json:"questionId"`
	ConceptID  string    `json:"conceptId"`
	Correct    bool      `json:"correct"`
	OldRating  int       `json:"oldRating"`
	NewRating  int       `json:"newRating"`
	Delta      int       `json:"delta"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HistoryEntry is a log entry joined with the question's current difficulty.
// Difficulty is nil when the question no longer exists.
type HistoryEntry struct {
	LogEntry
	Difficulty *int `json:"difficulty"`
}

// AnswerStats summarises a learner's answer log.
type AnswerStats struct {
	Total int
	Today int
	// Days holds the distinct UTC dates with at least one answer, newest first.
	Days []time.Time
}

const optionsFormatError = "Options format error"

// PublicOptions strips correctness from stored options. Mapping options keep
// only their text; any other encoding is rendered with its string form.
func PublicOptions(raw any) []Option {
	list, ok := raw.([]any)
	if !ok {
		return []Option{{Text: optionsFormatError}}
	}

	out := make([]Option, 0, len(list))
	for _, opt := range list {
		switch v := opt.(type) {
		case map[string]any:
			out = append(out, Option{Text: textOf(v["text"])})
		default:
			out = append(out, Option{Text: textOf(v)})
		}
	}
	return out
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (q Question) public() PublicQuestion {
	return PublicQuestion{
		QuestionID:  q.ID,
		ConceptID:   q.ConceptID,
		ContentText: q.Content,
		Options:     PublicOptions(q.Options),
		Difficulty:  q.Difficulty,
	}
}
