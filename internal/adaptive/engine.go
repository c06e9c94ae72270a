package adaptive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultMasteryThreshold = 1250
	defaultKFactor          = 24
	defaultRating           = 1000
)

// Result statuses of GetNextQuestion.
const (
	StatusSuccess     = "success"
	StatusAllMastered = "all_mastered"
	StatusError       = "error"
)

// EngineConfig holds dependencies for the adaptive engine.
type EngineConfig struct {
	Store            Store
	MasteryThreshold int     // default 1250
	KFactor          float64 // default 24
	DefaultRating    int     // rating for new enrolments (default 1000)
	Rand             Random  // tie-break source; seeded from the clock when nil
	Now              func() time.Time
}

// Engine selects practice items and applies answers for one learner at a time.
type Engine struct {
	store         Store
	model         RatingModel
	defaultRating int
	rnd           Random
	now           func() time.Time
}

// NewEngine creates a new adaptive engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	threshold := cfg.MasteryThreshold
	if threshold == 0 {
		threshold = defaultMasteryThreshold
	}
	k := cfg.KFactor
	if k == 0 {
		k = defaultKFactor
	}
	rating := cfg.DefaultRating
	if rating == 0 {
		rating = defaultRating
	}
	rnd := cfg.Rand
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:         store,
		model:         RatingModel{K: k, Threshold: threshold},
		defaultRating: rating,
		rnd:           &lockedRand{r: rnd},
		now:           now,
	}
}

// MasteryThreshold returns the rating at which a concept counts as mastered.
func (e *Engine) MasteryThreshold() int { return e.model.Threshold }

// NextQuestion is the result of GetNextQuestion.
type NextQuestion struct {
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
	Question *PublicQuestion `json:"data,omitempty"`
}

// GetNextQuestion picks the next question for a learner. It never writes.
// Expected conditions (nothing left to practise, learner not seeded, empty
// graph, no questions) are reported through Status; the error is reserved
// for storage failures.
func (e *Engine) GetNextQuestion(ctx context.Context, learnerID string) (NextQuestion, error) {
	assessed, err := e.assess(ctx, learnerID)
	if err != nil {
		if r, ok := reasonFor(err); ok {
			slog.Warn("no question selected", "learner_id", learnerID, "reason", r)
			return NextQuestion{Status: StatusError, Reason: r, Message: err.Error()}, nil
		}
		return NextQuestion{}, err
	}

	choice, err := SelectConcept(ctx, assessed, e.rnd, e.store.Questions)
	if err != nil {
		if errors.Is(err, ErrNoQuestions) {
			slog.Warn("no question selected", "learner_id", learnerID, "reason", ReasonNoQuestions)
			return NextQuestion{Status: StatusError, Reason: ReasonNoQuestions, Message: err.Error()}, nil
		}
		return NextQuestion{}, storageErr("load questions", err)
	}
	if choice.AllMastered {
		return NextQuestion{Status: StatusAllMastered}, nil
	}

	q := SelectQuestion(choice.Questions, choice.Rating, e.rnd)
	pub := q.public()

	slog.Debug("question selected",
		"learner_id", learnerID,
		"concept_id", choice.ID,
		"question_id", q.ID,
		"rating", choice.Rating,
		"difficulty", q.Difficulty,
		"fallback", choice.Fallback,
	)
	return NextQuestion{Status: StatusSuccess, Question: &pub}, nil
}

// AnswerResult is the outcome of SubmitAnswer.
type AnswerResult struct {
	OldRating        int     `json:"oldRating"`
	NewRating        int     `json:"newRating"`
	Delta            float64 `json:"delta"`
	Mastered         bool    `json:"mastered"`
	MasteryThreshold int     `json:"masteryThreshold"`
}

// SubmitAnswer applies one answer to the learner's rating for the question's
// concept. The mastery update and the log entry commit together or not at
// all. Unknown questions and missing mastery rows yield ErrNotFound with no
// writes.
func (e *Engine) SubmitAnswer(ctx context.Context, learnerID, questionID string, correct bool) (AnswerResult, error) {
	q, err := e.store.Question(ctx, questionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AnswerResult{}, err
		}
		return AnswerResult{}, storageErr("load question", err)
	}

	var change RatingChange
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		rec, err := tx.LockMastery(ctx, learnerID, q.ConceptID)
		if err != nil {
			return err
		}

		change = e.model.Apply(rec.Rating, q.Difficulty, correct)
		now := e.now()

		rec.Rating = change.New
		rec.Attempts++
		rec.Mastered = change.Mastered
		rec.UpdatedAt = &now
		if err := tx.UpdateMastery(ctx, rec); err != nil {
			return err
		}

		return tx.AppendLog(ctx, LogEntry{
			LearnerID:  learnerID,
			QuestionID: q.ID,
			ConceptID:  q.ConceptID,
			Correct:    correct,
			OldRating:  change.Old,
			NewRating:  change.New,
			Delta:      change.RoundedDelta(),
			CreatedAt:  now,
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AnswerResult{}, err
		}
		slog.Error("answer not applied", "learner_id", learnerID, "question_id", questionID, "error", err)
		return AnswerResult{}, storageErr("apply answer", err)
	}

	slog.Info("rating updated",
		"learner_id", learnerID,
		"concept_id", q.ConceptID,
		"question_id", q.ID,
		"correct", correct,
		"old_rating", change.Old,
		"new_rating", change.New,
		"mastered", change.Mastered,
	)
	return AnswerResult{
		OldRating:        change.Old,
		NewRating:        change.New,
		Delta:            change.Delta,
		Mastered:         change.Mastered,
		MasteryThreshold: e.model.Threshold,
	}, nil
}

// GetProgress builds the learner's progress view.
func (e *Engine) GetProgress(ctx context.Context, learnerID string) (Progress, error) {
	now := e.now()

	var assessed []Assessment
	var stats AnswerStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assessed, err = e.assess(gctx, learnerID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = e.store.AnswerStats(gctx, learnerID, utcDay(now))
		if err != nil {
			return storageErr("load answer stats", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Progress{}, err
	}

	return Aggregate(ProgressInput{
		Assessed:      assessed,
		Stats:         stats,
		Now:           now,
		Threshold:     e.model.Threshold,
		DefaultRating: e.defaultRating,
	}), nil
}

// History returns the learner's answer log, oldest first.
func (e *Engine) History(ctx context.Context, learnerID string) ([]HistoryEntry, error) {
	entries, err := e.store.AnswerLog(ctx, learnerID)
	if err != nil {
		return nil, storageErr("load answer log", err)
	}
	return entries, nil
}

// Enroll creates mastery rows at the default rating for every concept the
// learner has no row for. Existing rows are left untouched.
func (e *Engine) Enroll(ctx context.Context, learnerID string) (int, error) {
	n, err := e.store.Enroll(ctx, learnerID, e.defaultRating, e.defaultRating >= e.model.Threshold)
	if err != nil {
		return 0, storageErr("enroll learner", err)
	}
	slog.Info("learner enrolled", "learner_id", learnerID, "created", n)
	return n, nil
}

// assess loads the learner's snapshot and evaluates readiness.
func (e *Engine) assess(ctx context.Context, learnerID string) ([]Assessment, error) {
	states, err := e.store.Snapshot(ctx, learnerID)
	if err != nil {
		return nil, storageErr("load snapshot", err)
	}
	assessed, err := Evaluate(states, e.model.Threshold)
	if err != nil {
		return nil, err
	}
	for _, a := range assessed {
		if a.Seeded() {
			return assessed, nil
		}
	}
	return nil, fmt.Errorf("learner %s: %w", learnerID, ErrNotSeeded)
}

func reasonFor(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrNotSeeded):
		return ReasonNotSeeded, true
	case errors.Is(err, ErrEmptyGraph):
		return ReasonEmptyGraph, true
	default:
		return "", false
	}
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// lockedRand serializes access to a Random that is not safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  Random
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}
