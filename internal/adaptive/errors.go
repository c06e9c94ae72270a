package adaptive

import "errors"

var (
	// ErrNotFound means a referenced question or mastery record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotSeeded means the learner has no mastery rows at all.
	ErrNotSeeded = errors.New("learner mastery not seeded")
	// ErrEmptyGraph means the concept graph holds no concepts.
	ErrEmptyGraph = errors.New("concept graph is empty")
	// ErrNoQuestions means no candidate concept has any question.
	ErrNoQuestions = errors.New("no questions available for any candidate concept")
	// ErrStorageUnavailable wraps every failure of the storage collaborator.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Reason codes reported with StatusError.
const (
	ReasonNotSeeded   = "not_seeded"
	ReasonEmptyGraph  = "empty_graph"
	ReasonNoQuestions = "no_questions_available"
)
