// Package session holds per-user conversation state for multi-step flows
// such as checkout and admin product entry. State lives in Redis when a
// REDIS_URL is configured and in process memory otherwise.
package session

import (
	"context"
	"errors"

	"tg_storefront_bot/internal/config"
)

// Flow steps. An empty step means the user is not inside any flow.
const (
	StepNone            = ""
	StepAwaitingAddress = "awaiting_address"
	StepConfirmingOrder = "confirming_order"
	StepAwaitingAnswer  = "awaiting_answer"
	StepProductDraft    = "product_draft"
)

// State is one user's position inside a flow plus the values collected so
// far.
type State struct {
	Step   string            `json:"step"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Field returns a collected value, or the empty string when unset.
func (s State) Field(key string) string {
	return s.Fields[key]
}

// WithField returns a copy of the state with one value set.
func (s State) WithField(key, value string) State {
	fields := make(map[string]string, len(s.Fields)+1)
	for k, v := range s.Fields {
		fields[k] = v
	}
	fields[key] = value
	return State{Step: s.Step, Fields: fields}
}

// Store persists flow state keyed by Telegram user id.
type Store interface {
	Get(ctx context.Context, userID int64) (State, bool, error)
	Set(ctx context.Context, userID int64, state State) error
	Clear(ctx context.Context, userID int64) error
	Close() error
}

// New selects the backend from the configuration: Redis when REDIS_URL is
// set, process memory otherwise.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	if cfg.RedisURL == "" {
		return NewMemoryStore(), nil
	}

	return newRedisStore(ctx, cfg.RedisURL)
}
