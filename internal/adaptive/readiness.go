package adaptive

// Assessment is a concept annotated with its readiness for one learner.
type Assessment struct {
	ConceptState
	Status Status
	// Rating is the learner's rating, or 0 when there is no mastery row.
	Rating int
}

// Seeded reports whether the learner has a mastery row for the concept.
func (a Assessment) Seeded() bool { return a.Mastery != nil }

// Evaluate derives each concept's status. A concept is mastered when its
// rating reaches threshold; otherwise it is ready when every prerequisite
// resolves to a row whose rating reaches threshold, and locked when not.
// A prerequisite with no row, or naming an unknown concept, is unmet.
func Evaluate(states []ConceptState, threshold int) ([]Assessment, error) {
	if len(states) == 0 {
		return nil, ErrEmptyGraph
	}

	ratings := make(map[string]int, len(states))
	for _, s := range states {
		if s.Mastery != nil {
			ratings[s.ID] = s.Mastery.Rating
		}
	}

	out := make([]Assessment, len(states))
	for i, s := range states {
		rating := ratings[s.ID]
		a := Assessment{ConceptState: s, Rating: rating}
		switch {
		case s.Mastery != nil && rating >= threshold:
			a.Status = StatusMastered
		case prerequisitesMet(s.Prerequisites, ratings, threshold):
			a.Status = StatusReady
		default:
			a.Status = StatusLocked
		}
		out[i] = a
	}
	return out, nil
}

func prerequisitesMet(prereqs []string, ratings map[string]int, threshold int) bool {
	for _, id := range prereqs {
		r, ok := ratings[id]
		if !ok || r < threshold {
			return false
		}
	}
	return true
}
