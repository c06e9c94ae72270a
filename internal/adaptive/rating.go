package adaptive

import "math"

// RatingModel is an Elo-style update with a fixed K factor.
type RatingModel struct {
	K         float64
	Threshold int
}

// RatingChange is the result of applying one answer to a rating.
type RatingChange struct {
	Old      int
	New      int
	Expected float64
	// Delta is the unrounded change; New is Old+Delta rounded half away from zero.
	Delta    float64
	Mastered bool
}

// Expected is the probability that a learner at rating answers a question of
// the given difficulty correctly.
func Expected(rating, difficulty int) float64 {
	return 1 / (1 + math.Pow(10, float64(difficulty-rating)/400))
}

// Apply computes the new rating after one answer. Mastery is recomputed from
// the new rating, so it can be lost as well as gained.
func (m RatingModel) Apply(old, difficulty int, correct bool) RatingChange {
	expected := Expected(old, difficulty)
	actual := 0.0
	if correct {
		actual = 1
	}
	delta := m.K * (actual - expected)
	newRating := int(math.Round(float64(old) + delta))
	return RatingChange{
		Old:      old,
		New:      newRating,
		Expected: expected,
		Delta:    delta,
		Mastered: newRating >= m.Threshold,
	}
}

// RoundedDelta is the delta as written to the answer log.
func (c RatingChange) RoundedDelta() int {
	return int(math.Round(c.Delta))
}
