package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/notify"
)

const recipientColumns = `u.id, u.name, u.email, COALESCE(d.name, '')`

// targets is true when question q is addressed to user u.
const targets = `(q.all_departments OR EXISTS (
    SELECT 1 FROM question_departments qd
    WHERE qd.question_id = q.id AND qd.department_id = u.department_id))`

func scanRecipient(row pgx.CollectableRow) (core.Recipient, error) {
	var r core.Recipient
	err := row.Scan(&r.UserID, &r.Name, &r.Email, &r.Department)
	return r, err
}

// ListRecipientsForQuestion returns the users with an e-mail address in a
// department q targets, or every such user when q targets all departments.
func (s *Store) ListRecipientsForQuestion(ctx context.Context, q core.Question) ([]core.Recipient, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+recipientColumns+`
FROM users u
LEFT JOIN departments d ON d.id = u.department_id
JOIN questions q ON q.id = $1
WHERE COALESCE(u.email, '') <> '' AND `+targets+`
ORDER BY u.id`, q.ID)
	if err != nil {
		return nil, fmt.Errorf("recipients for question %d: %w", q.ID, err)
	}
	return pgx.CollectRows(rows, scanRecipient)
}

// DigestRecipients returns every user with an e-mail address.
func (s *Store) DigestRecipients(ctx context.Context) ([]core.Recipient, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+recipientColumns+`
FROM users u
LEFT JOIN departments d ON d.id = u.department_id
WHERE COALESCE(u.email, '') <> ''
ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("digest recipients: %w", err)
	}
	return pgx.CollectRows(rows, scanRecipient)
}

// PendingReminders counts, per user with an e-mail address, the questions
// released on or before asOf that target the user and have no answer from
// them. Users with nothing pending are omitted.
func (s *Store) PendingReminders(ctx context.Context, asOf time.Time) ([]notify.PendingReminder, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+recipientColumns+`, COUNT(q.id)
FROM users u
LEFT JOIN departments d ON d.id = u.department_id
JOIN questions q ON q.release_date <= $1::date AND `+targets+`
WHERE COALESCE(u.email, '') <> ''
  AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = q.id AND a.user_id = u.id)
GROUP BY u.id, u.name, u.email, d.name
ORDER BY u.id`, asOf.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("pending reminders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notify.PendingReminder, error) {
		var p notify.PendingReminder
		err := row.Scan(&p.Recipient.UserID, &p.Recipient.Name, &p.Recipient.Email, &p.Recipient.Department, &p.Pending)
		return p, err
	})
}

// CreateDepartment inserts a department and returns its ID.
func (s *Store) CreateDepartment(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO departments (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	return id, err
}

// CreateUser inserts a user. departmentID zero leaves the user without a
// department.
func (s *Store) CreateUser(ctx context.Context, name, email string, departmentID int64) (int64, error) {
	var dept *int64
	if departmentID != 0 {
		dept = &departmentID
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, department_id) VALUES ($1, NULLIF($2, ''), $3) RETURNING id`,
		name, email, dept).Scan(&id)
	return id, err
}

// RecordAnswer stores a user's answer to a question.
func (s *Store) RecordAnswer(ctx context.Context, questionID, userID int64, answer string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answers (question_id, user_id, answer) VALUES ($1, $2, $3)
		 ON CONFLICT (question_id, user_id) DO UPDATE SET answer = EXCLUDED.answer, answered_at = now()`,
		questionID, userID, answer)
	return err
}
