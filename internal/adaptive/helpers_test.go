package adaptive_test

import (
	"math/rand/v2"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/adaptive"
)

const testThreshold = 1250

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

// seeded returns a concept state with a mastery row at rating.
func seeded(id string, ch adaptive.Chapter, rating int, prereqs ...string) adaptive.ConceptState {
	return adaptive.ConceptState{
		Concept: adaptive.Concept{ID: id, Name: "Concept " + id, ChapterID: ch.ID, Prerequisites: prereqs},
		Chapter: ch,
		Mastery: &adaptive.MasteryRecord{
			LearnerID: "learner",
			ConceptID: id,
			Rating:    rating,
			Mastered:  rating >= testThreshold,
		},
	}
}

// unseeded returns a concept state with no mastery row.
func unseeded(id string, ch adaptive.Chapter, prereqs ...string) adaptive.ConceptState {
	return adaptive.ConceptState{
		Concept: adaptive.Concept{ID: id, Name: "Concept " + id, ChapterID: ch.ID, Prerequisites: prereqs},
		Chapter: ch,
	}
}

func practiced(s adaptive.ConceptState, at time.Time) adaptive.ConceptState {
	s.Mastery.UpdatedAt = &at
	return s
}

func questions(conceptID string, difficulties ...int) []adaptive.Question {
	out := make([]adaptive.Question, 0, len(difficulties))
	for i, d := range difficulties {
		out = append(out, adaptive.Question{
			ID:         conceptID + "-q" + string(rune('a'+i)),
			ConceptID:  conceptID,
			Content:    "Question for " + conceptID,
			Difficulty: d,
			Options:    []any{map[string]any{"text": "yes", "correct": true}, map[string]any{"text": "no", "correct": false}},
		})
	}
	return out
}

var (
	chapterOne = adaptive.Chapter{ID: "ch1", Name: "Foundations", Order: 1}
	chapterTwo = adaptive.Chapter{ID: "ch2", Name: "Applications", Order: 2}
)
