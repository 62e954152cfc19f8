package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tg_storefront_bot/internal/domain"
)

// EnsureUser upserts the user row, refreshing the username on every
// interaction.
func (m *Manager) EnsureUser(ctx context.Context, userID int64, username string) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}

	_, err := m.db.ExecContext(ctx, `
INSERT INTO users(user_id, username, role)
VALUES($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET username=EXCLUDED.username
`, userID, username, domain.RoleUser)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	return nil
}

// GetUser fetches a user by Telegram user id. The boolean reports presence.
func (m *Manager) GetUser(ctx context.Context, userID int64) (domain.User, bool, error) {
	if m == nil || m.db == nil {
		return domain.User{}, false, errors.New("store manager is not initialized")
	}

	var user domain.User
	var username sql.NullString
	err := m.db.QueryRowContext(ctx, `
SELECT user_id, username, role, created_at FROM users WHERE user_id=$1
`, userID).Scan(&user.UserID, &username, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}

	user.Username = username.String
	return user, true, nil
}

// CountUsers returns the number of known users, used for admin diagnostics.
func (m *Manager) CountUsers(ctx context.Context) (int64, error) {
	if m == nil || m.db == nil {
		return 0, errors.New("store manager is not initialized")
	}

	var count int64
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}
