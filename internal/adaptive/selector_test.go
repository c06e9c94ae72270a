package adaptive_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-adaptive/internal/adaptive"
)

func poolOf(bank map[string][]adaptive.Question) adaptive.QuestionPool {
	return func(_ context.Context, conceptID string) ([]adaptive.Question, error) {
		return bank[conceptID], nil
	}
}

func mustEvaluate(t *testing.T, states ...adaptive.ConceptState) []adaptive.Assessment {
	t.Helper()
	assessed, err := adaptive.Evaluate(states, testThreshold)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return assessed
}

func TestSelectConcept_LowestRatedReady(t *testing.T) {
	assessed := mustEvaluate(t,
		seeded("a", chapterOne, 800),
		seeded("b", chapterOne, 800),
		seeded("c", chapterOne, 950),
		seeded("d", chapterOne, 700, "c"),
	)
	pool := poolOf(map[string][]adaptive.Question{
		"a": questions("a", 800),
		"b": questions("b", 800),
		"c": questions("c", 950),
		"d": questions("d", 700),
	})

	const trials = 2000
	rnd := newRand(1)
	counts := map[string]int{}
	for range trials {
		choice, err := adaptive.SelectConcept(context.Background(), assessed, rnd, pool)
		if err != nil {
			t.Fatalf("SelectConcept() error = %v", err)
		}
		if choice.Fallback {
			t.Fatal("Fallback = true with ready concepts available")
		}
		counts[choice.ID]++
	}

	if counts["c"] != 0 || counts["d"] != 0 {
		t.Errorf("selected non-minimal concepts: %v", counts)
	}
	// Each tied concept should take about half the picks.
	for _, id := range []string{"a", "b"} {
		if n := counts[id]; n < trials*45/100 || n > trials*55/100 {
			t.Errorf("counts[%s] = %d of %d, want roughly half", id, n, trials)
		}
	}
}

func TestSelectConcept_SkipsConceptsWithoutQuestions(t *testing.T) {
	assessed := mustEvaluate(t,
		seeded("a", chapterOne, 700),
		seeded("b", chapterOne, 900),
	)
	pool := poolOf(map[string][]adaptive.Question{"b": questions("b", 900)})

	choice, err := adaptive.SelectConcept(context.Background(), assessed, newRand(2), pool)
	if err != nil {
		t.Fatalf("SelectConcept() error = %v", err)
	}
	if choice.ID != "b" {
		t.Errorf("choice = %q, want b", choice.ID)
	}
	if len(choice.Questions) != 1 {
		t.Errorf("len(Questions) = %d, want 1", len(choice.Questions))
	}
}

func TestSelectConcept_FallbackToUnmastered(t *testing.T) {
	assessed := mustEvaluate(t,
		seeded("a", chapterOne, 1300),
		seeded("b", chapterOne, 900, "missing"),
		seeded("c", chapterOne, 850, "b"),
	)
	pool := poolOf(map[string][]adaptive.Question{
		"a": questions("a", 1300),
		"b": questions("b", 900),
		"c": questions("c", 850),
	})

	choice, err := adaptive.SelectConcept(context.Background(), assessed, newRand(3), pool)
	if err != nil {
		t.Fatalf("SelectConcept() error = %v", err)
	}
	if !choice.Fallback {
		t.Error("Fallback = false, want true")
	}
	if choice.ID != "c" {
		t.Errorf("choice = %q, want c", choice.ID)
	}
}

func TestSelectConcept_AllMastered(t *testing.T) {
	assessed := mustEvaluate(t,
		seeded("a", chapterOne, 1300),
		seeded("b", chapterOne, 1250, "a"),
	)
	called := false
	pool := func(context.Context, string) ([]adaptive.Question, error) {
		called = true
		return nil, nil
	}

	choice, err := adaptive.SelectConcept(context.Background(), assessed, newRand(4), pool)
	if err != nil {
		t.Fatalf("SelectConcept() error = %v", err)
	}
	if !choice.AllMastered {
		t.Error("AllMastered = false, want true")
	}
	if called {
		t.Error("question pool consulted with nothing left to practise")
	}
}

func TestSelectConcept_NoQuestions(t *testing.T) {
	assessed := mustEvaluate(t,
		seeded("a", chapterOne, 800),
		seeded("b", chapterOne, 900),
	)

	_, err := adaptive.SelectConcept(context.Background(), assessed, newRand(5), poolOf(nil))
	if !errors.Is(err, adaptive.ErrNoQuestions) {
		t.Fatalf("SelectConcept() error = %v, want ErrNoQuestions", err)
	}
}

func TestSelectConcept_PoolError(t *testing.T) {
	assessed := mustEvaluate(t, seeded("a", chapterOne, 800))
	boom := errors.New("connection reset")
	pool := func(context.Context, string) ([]adaptive.Question, error) { return nil, boom }

	_, err := adaptive.SelectConcept(context.Background(), assessed, newRand(6), pool)
	if !errors.Is(err, boom) {
		t.Fatalf("SelectConcept() error = %v, want %v", err, boom)
	}
}

func TestSelectQuestion_ClosestDifficulty(t *testing.T) {
	pool := questions("a", 780, 820, 900)
	rnd := newRand(7)

	seen := map[int]int{}
	for range 200 {
		q := adaptive.SelectQuestion(pool, 800, rnd)
		seen[q.Difficulty]++
	}
	if seen[900] != 0 {
		t.Errorf("picked difficulty 900 over closer questions: %v", seen)
	}
	if seen[780] == 0 || seen[820] == 0 {
		t.Errorf("equally close questions not both chosen: %v", seen)
	}
}

func TestSelectQuestion_SingleBest(t *testing.T) {
	pool := questions("a", 600, 1010, 1400)
	q := adaptive.SelectQuestion(pool, 1000, newRand(8))
	if q.Difficulty != 1010 {
		t.Errorf("Difficulty = %d, want 1010", q.Difficulty)
	}
}
