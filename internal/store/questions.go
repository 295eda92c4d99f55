package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/quizdesk/internal/core"
)

const insertQuestionSQL = `
INSERT INTO questions (
    text, type, option_a, option_b, option_c, option_d, correct_answer,
    explanation, release_date, time_limit, category, all_departments, source_row
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id, created_at`

// Create writes the question and its department links in one transaction.
// Department names are matched case-insensitively; unknown names fail the
// whole row with core.UnknownDepartmentError.
func (s *Store) Create(ctx context.Context, d core.QuestionDraft) (core.Question, error) {
	q := core.Question{QuestionDraft: d}

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var deptIDs []int64
		if !d.AllDepartments {
			ids, err := resolveDepartments(ctx, tx, d.Departments)
			if err != nil {
				return err
			}
			deptIDs = ids
		}

		err := tx.QueryRow(ctx, insertQuestionSQL,
			d.Text, string(d.Type),
			d.Options[0], d.Options[1], d.Options[2], d.Options[3],
			d.CorrectAnswer, d.Explanation, d.ReleaseDate, d.TimeLimit,
			d.Category, d.AllDepartments, d.SourceRow,
		).Scan(&q.ID, &q.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}

		if len(deptIDs) > 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO question_departments (question_id, department_id)
				 SELECT $1, unnest($2::bigint[])`,
				q.ID, deptIDs)
			if err != nil {
				return fmt.Errorf("link departments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Question{}, &core.StorageError{Row: d.SourceRow, Err: err}
	}
	return q, nil
}

// resolveDepartments maps names to IDs in the order given.
func resolveDepartments(ctx context.Context, tx pgx.Tx, names []string) ([]int64, error) {
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = strings.ToLower(n)
	}

	rows, err := tx.Query(ctx, `SELECT lower(name), id FROM departments WHERE lower(name) = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("resolve departments: %w", err)
	}

	found := make(map[string]int64, len(keys))
	var (
		key string
		id  int64
	)
	if _, err := pgx.ForEachRow(rows, []any{&key, &id}, func() error {
		found[key] = id
		return nil
	}); err != nil {
		return nil, fmt.Errorf("resolve departments: %w", err)
	}

	ids := make([]int64, 0, len(keys))
	var missing []string
	for i, k := range keys {
		if id, ok := found[k]; ok {
			ids = append(ids, id)
		} else {
			missing = append(missing, names[i])
		}
	}
	if len(missing) > 0 {
		return nil, &core.UnknownDepartmentError{Names: missing}
	}
	return ids, nil
}

// questionColumns are selected by every question query, in scan order.
const questionColumns = `
    q.id, q.text, q.type, q.option_a, q.option_b, q.option_c, q.option_d,
    q.correct_answer, q.explanation, q.release_date, q.time_limit, q.category,
    q.all_departments, COALESCE(q.source_row, 0), q.created_at,
    ARRAY(SELECT d.name FROM question_departments qd
          JOIN departments d ON d.id = qd.department_id
          WHERE qd.question_id = q.id ORDER BY d.name)`

func scanQuestion(row pgx.CollectableRow) (core.Question, error) {
	var (
		q     core.Question
		typ   string
		depts []string
	)
	err := row.Scan(
		&q.ID, &q.Text, &typ,
		&q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
		&q.CorrectAnswer, &q.Explanation, &q.ReleaseDate, &q.TimeLimit, &q.Category,
		&q.AllDepartments, &q.SourceRow, &q.CreatedAt, &depts,
	)
	q.Type = core.QuestionType(typ)
	q.Departments = depts
	return q, err
}

// QuestionsReleasedOn returns the questions whose release date is day.
func (s *Store) QuestionsReleasedOn(ctx context.Context, day time.Time) ([]core.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE q.release_date = $1::date ORDER BY q.id`,
		day.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanQuestion)
}

// Question returns one question by ID.
func (s *Store) Question(ctx context.Context, id int64) (core.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions q WHERE q.id = $1`, id)
	if err != nil {
		return core.Question{}, err
	}
	return pgx.CollectExactlyOneRow(rows, scanQuestion)
}
