package domain

import "time"

// Question is a customer message captured for the admins to answer.
type Question struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	Answer    string    `json:"answer"`
	Answered  bool      `json:"answered"`
	CreatedAt time.Time `json:"created_at"`
}
