package lifecycle

import (
	"sync"
	"time"
)

// Env and database status values recorded during startup.
const (
	StatusNotChecked   = "not_checked"
	StatusOK           = "ok"
	StatusMissingToken = "missing_token"
)

// Status is the mutex-guarded initialization record. Errors are append-only
// and partial progress is never cleared, so a failed startup still reports
// every phase it completed.
type Status struct {
	mu sync.RWMutex

	initialized bool
	envStatus   string
	dbStatus    string
	startTime   time.Time
	errors      []string
	webhookURL  string
}

// Snapshot is the JSON view of the initialization record.
type Snapshot struct {
	Initialized bool     `json:"initialized"`
	EnvStatus   string   `json:"env_status"`
	DBStatus    string   `json:"db_status"`
	StartTime   string   `json:"start_time"`
	Errors      []string `json:"errors"`
	WebhookURL  string   `json:"webhook_url,omitempty"`
}

// NewStatus returns a record with the start time pinned to now and all
// checks pending.
func NewStatus() *Status {
	return &Status{
		envStatus: StatusNotChecked,
		dbStatus:  StatusNotChecked,
		startTime: time.Now().UTC(),
	}
}

func (s *Status) SetEnvStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envStatus = status
}

func (s *Status) SetDBStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbStatus = status
}

func (s *Status) SetWebhookURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = url
}

func (s *Status) AppendError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func (s *Status) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

// Initialized reports whether startup has completed.
func (s *Status) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// StartTime returns when the process started.
func (s *Status) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// Snapshot copies the record for serialization. The start time is rendered
// as an ISO-8601 string.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	errs := make([]string, len(s.errors))
	copy(errs, s.errors)

	return Snapshot{
		Initialized: s.initialized,
		EnvStatus:   s.envStatus,
		DBStatus:    s.dbStatus,
		StartTime:   s.startTime.Format(time.RFC3339),
		Errors:      errs,
		WebhookURL:  s.webhookURL,
	}
}
