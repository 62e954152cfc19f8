package store

import (
	"context"
	"errors"
	"fmt"

	"tg_storefront_bot/internal/domain"
)

// AddQuestion records a customer question for the admins and returns its id.
func (m *Manager) AddQuestion(ctx context.Context, userID int64, text string) (int64, error) {
	if m == nil || m.db == nil {
		return 0, errors.New("store manager is not initialized")
	}
	if text == "" {
		return 0, errors.New("question text is required")
	}

	var id int64
	err := m.db.QueryRowContext(ctx, `
INSERT INTO questions(user_id, text)
VALUES($1, $2)
RETURNING question_id
`, userID, text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add question: %w", err)
	}

	return id, nil
}

// UnansweredQuestions lists open questions, oldest first.
func (m *Manager) UnansweredQuestions(ctx context.Context) ([]domain.Question, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT question_id, user_id, text, COALESCE(answer, ''), answered, created_at
FROM questions
WHERE answered = FALSE
ORDER BY created_at
`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.UserID, &q.Text, &q.Answer, &q.Answered, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}

// AnswerQuestion stores the admin's answer and returns the asking user's id so
// the caller can relay the reply.
func (m *Manager) AnswerQuestion(ctx context.Context, questionID int64, answer string) (int64, error) {
	if m == nil || m.db == nil {
		return 0, errors.New("store manager is not initialized")
	}
	if answer == "" {
		return 0, errors.New("answer text is required")
	}

	var userID int64
	err := m.db.QueryRowContext(ctx, `
UPDATE questions SET answer=$1, answered=TRUE
WHERE question_id=$2
RETURNING user_id
`, answer, questionID).Scan(&userID)
	if err != nil {
		return 0, fmt.Errorf("answer question: %w", err)
	}

	return userID, nil
}
