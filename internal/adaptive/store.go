package adaptive

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/curriculum"
)

// Store is the persistence collaborator the engine reads and writes through.
type Store interface {
	// Snapshot returns every concept with the learner's mastery record,
	// ordered by chapter display order then concept id.
	Snapshot(ctx context.Context, learnerID string) ([]ConceptState, error)
	Questions(ctx context.Context, conceptID string) ([]Question, error)
	// Question returns ErrNotFound when the id is unknown.
	Question(ctx context.Context, questionID string) (Question, error)
	// AnswerStats counts answers overall and since dayStart.
	AnswerStats(ctx context.Context, learnerID string, dayStart time.Time) (AnswerStats, error)
	AnswerLog(ctx context.Context, learnerID string) ([]HistoryEntry, error)
	// Enroll creates the missing mastery rows for the learner and returns
	// how many were created.
	Enroll(ctx context.Context, learnerID string, rating int, mastered bool) (int, error)
	// WithinTx runs fn atomically. Any error rolls back every write made
	// through the Tx.
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write side of a Store, valid only inside WithinTx.
type Tx interface {
	// LockMastery reads a mastery record and holds it until the transaction
	// ends. It returns ErrNotFound when the learner has no such row.
	LockMastery(ctx context.Context, learnerID, conceptID string) (MasteryRecord, error)
	UpdateMastery(ctx context.Context, rec MasteryRecord) error
	AppendLog(ctx context.Context, entry LogEntry) error
}

type masteryKey struct {
	learnerID string
	conceptID string
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	chapters  map[string]Chapter
	concepts  map[string]Concept
	questions map[string]Question
	byConcept map[string][]string
	mastery   map[masteryKey]MasteryRecord
	logs      []LogEntry
	mu        sync.RWMutex

	rowLocks map[masteryKey]chan struct{}
	lockMu   sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chapters:  make(map[string]Chapter),
		concepts:  make(map[string]Concept),
		questions: make(map[string]Question),
		byConcept: make(map[string][]string),
		mastery:   make(map[masteryKey]MasteryRecord),
		rowLocks:  make(map[masteryKey]chan struct{}),
	}
}

// LoadCurriculum adds every chapter, concept and question of a loaded curriculum.
func (s *MemoryStore) LoadCurriculum(chapters []curriculum.Chapter) {
	for _, ch := range chapters {
		s.AddChapter(Chapter{ID: ch.ID, Name: ch.Name, Order: ch.Order})
		for _, c := range ch.Concepts {
			s.AddConcept(Concept{ID: c.ID, Name: c.Name, ChapterID: ch.ID, Prerequisites: c.Prerequisites})
			for _, q := range c.Questions {
				s.AddQuestion(Question{
					ID:         q.ID,
					ConceptID:  c.ID,
					Content:    q.Content,
					Difficulty: q.Difficulty,
					Options:    q.Options,
				})
			}
		}
	}
}

func (s *MemoryStore) AddChapter(ch Chapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[ch.ID] = ch
}

func (s *MemoryStore) AddConcept(c Concept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concepts[c.ID] = c
}

func (s *MemoryStore) AddQuestion(q Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.questions[q.ID]; !exists {
		s.byConcept[q.ConceptID] = append(s.byConcept[q.ConceptID], q.ID)
	}
	s.questions[q.ID] = q
}

// SetMastery writes a mastery record directly, bypassing the rating update.
func (s *MemoryStore) SetMastery(rec MasteryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mastery[masteryKey{rec.LearnerID, rec.ConceptID}] = rec
}

// Mastery returns a stored record.
func (s *MemoryStore) Mastery(learnerID, conceptID string) (MasteryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.mastery[masteryKey{learnerID, conceptID}]
	return rec, ok
}

// Logs returns a copy of the answer log.
func (s *MemoryStore) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LogEntry{}, s.logs...)
}

func (s *MemoryStore) Snapshot(_ context.Context, learnerID string) ([]ConceptState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]ConceptState, 0, len(s.concepts))
	for _, c := range s.concepts {
		st := ConceptState{Concept: c}
		if ch, ok := s.chapters[c.ChapterID]; ok {
			st.Chapter = ch
		} else {
			st.Chapter = Chapter{ID: c.ChapterID, Order: math.MaxInt}
		}
		if rec, ok := s.mastery[masteryKey{learnerID, c.ID}]; ok {
			st.Mastery = &rec
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].Chapter.Order != states[j].Chapter.Order {
			return states[i].Chapter.Order < states[j].Chapter.Order
		}
		return states[i].ID < states[j].ID
	})
	return states, nil
}

func (s *MemoryStore) Questions(_ context.Context, conceptID string) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConcept[conceptID]
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.questions[id])
	}
	return out, nil
}

func (s *MemoryStore) Question(_ context.Context, questionID string) (Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[questionID]
	if !ok {
		return Question{}, fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}
	return q, nil
}

func (s *MemoryStore) AnswerStats(_ context.Context, learnerID string, dayStart time.Time) (AnswerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats AnswerStats
	seen := make(map[time.Time]bool)
	for _, e := range s.logs {
		if e.LearnerID != learnerID {
			continue
		}
		stats.Total++
		if !e.CreatedAt.Before(dayStart) {
			stats.Today++
		}
		day := utcDay(e.CreatedAt)
		if !seen[day] {
			seen[day] = true
			stats.Days = append(stats.Days, day)
		}
	}
	sort.Slice(stats.Days, func(i, j int) bool { return stats.Days[i].After(stats.Days[j]) })
	return stats, nil
}

func (s *MemoryStore) AnswerLog(_ context.Context, learnerID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []HistoryEntry{}
	for _, e := range s.logs {
		if e.LearnerID != learnerID {
			continue
		}
		h := HistoryEntry{LogEntry: e}
		if q, ok := s.questions[e.QuestionID]; ok {
			d := q.Difficulty
			h.Difficulty = &d
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *MemoryStore) Enroll(_ context.Context, learnerID string, rating int, mastered bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for id := range s.concepts {
		key := masteryKey{learnerID, id}
		if _, ok := s.mastery[key]; ok {
			continue
		}
		s.mastery[key] = MasteryRecord{LearnerID: learnerID, ConceptID: id, Rating: rating, Mastered: mastered}
		created++
	}
	return created, nil
}

// WithinTx stages writes and applies them together when fn succeeds.
// Row locks taken by LockMastery are released when fn returns.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{
		store:   s,
		held:    make(map[masteryKey]chan struct{}),
		records: make(map[masteryKey]MasteryRecord),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range tx.records {
		s.mastery[key] = rec
	}
	for _, e := range tx.logs {
		e.ID = int64(len(s.logs) + 1)
		s.logs = append(s.logs, e)
	}
	return nil
}

func (s *MemoryStore) rowLock(key masteryKey) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.rowLocks[key]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[key] = l
	}
	return l
}

type memTx struct {
	store   *MemoryStore
	held    map[masteryKey]chan struct{}
	records map[masteryKey]MasteryRecord
	logs    []LogEntry
}

func (tx *memTx) LockMastery(ctx context.Context, learnerID, conceptID string) (MasteryRecord, error) {
	key := masteryKey{learnerID, conceptID}
	if _, ok := tx.held[key]; !ok {
		l := tx.store.rowLock(key)
		select {
		case l <- struct{}{}:
			tx.held[key] = l
		case <-ctx.Done():
			return MasteryRecord{}, fmt.Errorf("lock mastery: %w", ctx.Err())
		}
	}

	if rec, ok := tx.records[key]; ok {
		return rec, nil
	}
	rec, ok := tx.store.Mastery(learnerID, conceptID)
	if !ok {
		return MasteryRecord{}, fmt.Errorf("mastery %s/%s: %w", learnerID, conceptID, ErrNotFound)
	}
	return rec, nil
}

func (tx *memTx) UpdateMastery(_ context.Context, rec MasteryRecord) error {
	key := masteryKey{rec.LearnerID, rec.ConceptID}
	if _, ok := tx.held[key]; !ok {
		return fmt.Errorf("update mastery %s/%s: row not locked", rec.LearnerID, rec.ConceptID)
	}
	tx.records[key] = rec
	return nil
}

func (tx *memTx) AppendLog(_ context.Context, entry LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	tx.logs = append(tx.logs, entry)
	return nil
}

func (tx *memTx) release() {
	for _, l := range tx.held {
		<-l
	}
}
