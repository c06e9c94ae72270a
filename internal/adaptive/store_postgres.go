package adaptive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-adaptive/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, learnerID string) ([]ConceptState, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, COALESCE(c.chapter_id, ''), COALESCE(ch.name, ''), COALESCE(ch.order_index, 0),
		        c.prerequisites,
		        sm.current_elo, sm.total_attempts, sm.is_mastered, sm.updated_at
		 FROM concepts c
		 LEFT JOIN chapters ch ON ch.id = c.chapter_id
		 LEFT JOIN student_mastery sm ON sm.concept_id = c.id AND sm.user_id = $1::uuid
		 ORDER BY ch.order_index NULLS LAST, c.id`,
		learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var states []ConceptState
	for rows.Next() {
		var st ConceptState
		var prereqBytes []byte
		var rating, attempts *int
		var mastered *bool
		var updatedAt *time.Time
		if err := rows.Scan(
			&st.ID,
			&st.Name,
			&st.ChapterID,
			&st.Chapter.Name,
			&st.Chapter.Order,
			&prereqBytes,
			&rating,
			&attempts,
			&mastered,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		st.Chapter.ID = st.ChapterID
		if st.Prerequisites, err = parsePrerequisites(prereqBytes); err != nil {
			return nil, fmt.Errorf("concept %s: %w", st.ID, err)
		}
		if rating != nil {
			st.Mastery = &MasteryRecord{
				LearnerID: learnerID,
				ConceptID: st.ID,
				Rating:    *rating,
				Attempts:  derefInt(attempts),
				Mastered:  mastered != nil && *mastered,
				UpdatedAt: updatedAt,
			}
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return states, nil
}

func (s *PostgresStore) Questions(ctx context.Context, conceptID string) ([]Question, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, concept_id, content_text, options, difficulty_elo
		 FROM questions
		 WHERE concept_id = $1
		 ORDER BY id`,
		conceptID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

func (s *PostgresStore) Question(ctx context.Context, questionID string) (Question, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	q, err := scanQuestion(s.pool.QueryRow(ctx,
		`SELECT id, concept_id, content_text, options, difficulty_elo
		 FROM questions
		 WHERE id = $1`,
		questionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Question{}, fmt.Errorf("question %s: %w", questionID, ErrNotFound)
		}
		return Question{}, err
	}
	return q, nil
}

func (s *PostgresStore) AnswerStats(ctx context.Context, learnerID string, dayStart time.Time) (AnswerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var stats AnswerStats
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= $2)
		 FROM learning_logs
		 WHERE user_id = $1::uuid`,
		learnerID,
		dayStart,
	).Scan(&stats.Total, &stats.Today); err != nil {
		return AnswerStats{}, fmt.Errorf("count answers: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT (created_at AT TIME ZONE 'UTC')::date AS day
		 FROM learning_logs
		 WHERE user_id = $1::uuid
		 ORDER BY day DESC
		 LIMIT 400`,
		learnerID,
	)
	if err != nil {
		return AnswerStats{}, fmt.Errorf("query practice days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return AnswerStats{}, fmt.Errorf("scan practice day: %w", err)
		}
		stats.Days = append(stats.Days, day)
	}
	if err := rows.Err(); err != nil {
		return AnswerStats{}, fmt.Errorf("iterate practice days: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) AnswerLog(ctx context.Context, learnerID string) ([]HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.question_id, l.concept_id, l.is_correct, l.old_elo, l.new_elo, l.elo_change, l.created_at,
		        q.difficulty_elo
		 FROM learning_logs l
		 LEFT JOIN questions q ON q.id = l.question_id
		 WHERE l.user_id = $1::uuid
		 ORDER BY l.created_at ASC, l.id ASC`,
		learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query answer log: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		h := HistoryEntry{LogEntry: LogEntry{LearnerID: learnerID}}
		if err := rows.Scan(
			&h.ID,
			&h.QuestionID,
			&h.ConceptID,
			&h.Correct,
			&h.OldRating,
			&h.NewRating,
			&h.Delta,
			&h.CreatedAt,
			&h.Difficulty,
		); err != nil {
			return nil, fmt.Errorf("scan answer log: %w", err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer log: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Enroll(ctx context.Context, learnerID string, rating int, mastered bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO student_mastery (user_id, concept_id, current_elo, total_attempts, is_mastered)
		 SELECT $1::uuid, c.id, $2, 0, $3
		 FROM concepts c
		 ON CONFLICT (user_id, concept_id) DO NOTHING`,
		learnerID,
		rating,
		mastered,
	)
	if err != nil {
		return 0, fmt.Errorf("enroll learner: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

// WithinTx runs fn in a read-committed transaction. LockMastery takes a
// row lock with SELECT ... FOR UPDATE, so concurrent submissions for the
// same learner and concept serialize while other rows stay independent.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockMastery(ctx context.Context, learnerID, conceptID string) (MasteryRecord, error) {
	rec := MasteryRecord{LearnerID: learnerID, ConceptID: conceptID}
	err := t.tx.QueryRow(ctx,
		`SELECT current_elo, total_attempts, is_mastered, updated_at
		 FROM student_mastery
		 WHERE user_id = $1::uuid AND concept_id = $2
		 FOR UPDATE`,
		learnerID,
		conceptID,
	).Scan(&rec.Rating, &rec.Attempts, &rec.Mastered, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MasteryRecord{}, fmt.Errorf("mastery %s/%s: %w", learnerID, conceptID, ErrNotFound)
		}
		return MasteryRecord{}, fmt.Errorf("lock mastery: %w", err)
	}
	return rec, nil
}

func (t *pgTx) UpdateMastery(ctx context.Context, rec MasteryRecord) error {
	cmd, err := t.tx.Exec(ctx,
		`UPDATE student_mastery
		 SET current_elo = $3,
		     total_attempts = $4,
		     is_mastered = $5,
		     updated_at = $6
		 WHERE user_id = $1::uuid AND concept_id = $2`,
		rec.LearnerID,
		rec.ConceptID,
		rec.Rating,
		rec.Attempts,
		rec.Mastered,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update mastery: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("mastery %s/%s: %w", rec.LearnerID, rec.ConceptID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) AppendLog(ctx context.Context, e LogEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := t.tx.Exec(ctx,
		`INSERT INTO learning_logs (user_id, question_id, concept_id, is_correct, old_elo, new_elo, elo_change, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`,
		e.LearnerID,
		e.QuestionID,
		e.ConceptID,
		e.Correct,
		e.OldRating,
		e.NewRating,
		e.Delta,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer log: %w", err)
	}
	return nil
}

func scanQuestion(row pgx.Row) (Question, error) {
	var q Question
	var optionBytes []byte
	if err := row.Scan(&q.ID, &q.ConceptID, &q.Content, &optionBytes, &q.Difficulty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Question{}, err
		}
		return Question{}, fmt.Errorf("scan question: %w", err)
	}
	if len(optionBytes) > 0 {
		if err := json.Unmarshal(optionBytes, &q.Options); err != nil {
			return Question{}, fmt.Errorf("decode options of %s: %w", q.ID, err)
		}
	}
	return q, nil
}

func parsePrerequisites(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode prerequisites: %w", err)
	}
	return ids, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
