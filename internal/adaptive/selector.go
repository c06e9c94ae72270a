package adaptive

import (
	"context"
	"sort"
)

// Random is the source used for tie-breaks. *rand.Rand from math/rand/v2
// satisfies it.
type Random interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// QuestionPool returns the questions attached to a concept.
type QuestionPool func(ctx context.Context, conceptID string) ([]Question, error)

// ConceptChoice is the outcome of concept selection.
type ConceptChoice struct {
	Assessment
	Questions []Question
	// Fallback is set when no concept was ready and the choice was made
	// among all unmastered concepts.
	Fallback bool
	// AllMastered is set when the learner has nothing left to practise;
	// the other fields are empty.
	AllMastered bool
}

// SelectConcept picks the lowest-rated candidate that has at least one
// question. Candidates are the ready concepts, or every unmastered concept
// when none is ready. Equal ratings are visited in random order.
// ErrNoQuestions is returned when no candidate has a question.
func SelectConcept(ctx context.Context, assessed []Assessment, rnd Random, pool QuestionPool) (ConceptChoice, error) {
	var ready, unmastered []Assessment
	for _, a := range assessed {
		switch a.Status {
		case StatusReady:
			ready = append(ready, a)
			unmastered = append(unmastered, a)
		case StatusLocked:
			unmastered = append(unmastered, a)
		}
	}

	if len(unmastered) == 0 {
		return ConceptChoice{AllMastered: true}, nil
	}

	candidates, fallback := ready, false
	if len(candidates) == 0 {
		candidates, fallback = unmastered, true
	}

	for _, group := range groupByRating(candidates, rnd) {
		for _, a := range group {
			questions, err := pool(ctx, a.ID)
			if err != nil {
				return ConceptChoice{}, err
			}
			if len(questions) > 0 {
				return ConceptChoice{Assessment: a, Questions: questions, Fallback: fallback}, nil
			}
		}
	}
	return ConceptChoice{}, ErrNoQuestions
}

// groupByRating buckets candidates by rating, orders buckets ascending and
// shuffles each bucket.
func groupByRating(candidates []Assessment, rnd Random) [][]Assessment {
	byRating := make(map[int][]Assessment)
	for _, a := range candidates {
		byRating[a.Rating] = append(byRating[a.Rating], a)
	}

	ratings := make([]int, 0, len(byRating))
	for r := range byRating {
		ratings = append(ratings, r)
	}
	sort.Ints(ratings)

	groups := make([][]Assessment, 0, len(ratings))
	for _, r := range ratings {
		g := byRating[r]
		rnd.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		groups = append(groups, g)
	}
	return groups
}

// SelectQuestion returns a question whose difficulty is closest to rating,
// choosing uniformly among equally close ones. pool must not be empty.
func SelectQuestion(pool []Question, rating int, rnd Random) Question {
	best := make([]Question, 0, len(pool))
	minGap := -1
	for _, q := range pool {
		gap := abs(q.Difficulty - rating)
		switch {
		case minGap < 0 || gap < minGap:
			minGap = gap
			best = append(best[:0], q)
		case gap == minGap:
			best = append(best, q)
		}
	}
	return best[rnd.IntN(len(best))]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
