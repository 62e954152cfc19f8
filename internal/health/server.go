// Package health exposes process health to the hosting platform and
// receives inbound webhook deliveries.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/config"
	"tg_storefront_bot/internal/lifecycle"
	"tg_storefront_bot/internal/logging"
)

const (
	dbPingTimeout      = 2 * time.Second
	webhookInfoTimeout = 5 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// DatabaseChecker is the database reachability probe.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// Dispatcher hands decoded webhook updates to the bot and reports the
// current webhook registration.
type Dispatcher interface {
	Dispatch(ctx context.Context, update *models.Update)
	WebhookInfo(ctx context.Context) (*models.WebhookInfo, error)
}

// Server hosts the health and webhook endpoints and owns the underlying
// HTTP server. It starts serving before the database and Telegram client
// exist, so those components are attached once constructed.
type Server struct {
	server *http.Server
	logger *logrus.Entry
	status *lifecycle.Status
	logs   *logging.Buffer

	mu         sync.RWMutex
	db         DatabaseChecker
	dispatcher Dispatcher
}

type webhookComponent struct {
	Registered     bool   `json:"registered"`
	URL            string `json:"url,omitempty"`
	PendingUpdates int    `json:"pending_updates"`
	Error          string `json:"error,omitempty"`
}

type components struct {
	Database string            `json:"database"`
	Webhook  *webhookComponent `json:"webhook,omitempty"`
}

type healthResponse struct {
	Status     string              `json:"status"`
	Uptime     string              `json:"uptime"`
	Components *components         `json:"components,omitempty"`
	Init       *lifecycle.Snapshot `json:"init,omitempty"`
}

type logsResponse struct {
	Logs []string `json:"logs"`
}

// NewServer constructs the HTTP server on the configured port.
func NewServer(cfg config.Config, db DatabaseChecker, dispatcher Dispatcher, status *lifecycle.Status, logs *logging.Buffer, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:     logger,
		db:         db,
		dispatcher: dispatcher,
		status:     status,
		logs:       logs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /health/logs", srv.handleLogs)
	mux.HandleFunc("GET /health/init", srv.handleInit)
	mux.HandleFunc("POST "+config.WebhookPath, srv.handleWebhook)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("http server stopped")
	return nil
}

// Attach installs the runtime components once startup has constructed them.
// Until then the probe endpoints serve the "initializing" view from the
// shared status record alone.
func (s *Server) Attach(db DatabaseChecker, dispatcher Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
	s.dispatcher = dispatcher
}

func (s *Server) components() (DatabaseChecker, Dispatcher) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db, s.dispatcher
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

// handleHealth reports liveness. While startup is still in progress the
// response is always 200 so the platform's probe does not kill a
// legitimately-still-starting process. After startup the status code
// follows the database check alone: webhook problems never fail the
// runtime health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.status.StartTime()).Round(time.Second).String()

	if !s.status.Initialized() {
		writeJSON(w, http.StatusOK, healthResponse{
			Status: "initializing",
			Uptime: uptime,
		}, s.logger)
		return
	}

	db, dispatcher := s.components()

	comps := &components{Database: "ok"}
	code := http.StatusOK
	status := "ok"

	var err error
	if db == nil {
		err = errors.New("database not attached")
	} else {
		pingCtx, cancel := context.WithTimeout(r.Context(), dbPingTimeout)
		err = db.Ping(pingCtx)
		cancel()
	}
	if err != nil {
		comps.Database = fmt.Sprintf("error: %v", err)
		status = "error"
		code = http.StatusServiceUnavailable
		s.logger.WithField("event", "health_db_error").
			WithError(err).Warn("database ping failed during health check")
	}

	comps.Webhook = s.webhookComponent(r.Context(), dispatcher)

	snap := s.status.Snapshot()
	writeJSON(w, code, healthResponse{
		Status:     status,
		Uptime:     uptime,
		Components: comps,
		Init:       &snap,
	}, s.logger)
}

func (s *Server) webhookComponent(ctx context.Context, dispatcher Dispatcher) *webhookComponent {
	if dispatcher == nil {
		return nil
	}

	infoCtx, cancel := context.WithTimeout(ctx, webhookInfoTimeout)
	defer cancel()

	info, err := dispatcher.WebhookInfo(infoCtx)
	if err != nil {
		s.logger.WithField("event", "health_webhook_error").
			WithError(err).Warn("webhook info failed during health check")
		return &webhookComponent{Error: err.Error()}
	}
	if info == nil {
		return &webhookComponent{}
	}

	return &webhookComponent{
		Registered:     info.URL != "",
		URL:            info.URL,
		PendingUpdates: info.PendingUpdateCount,
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	var lines []string
	if s.logs != nil {
		lines = s.logs.Lines()
	}
	if lines == nil {
		lines = []string{}
	}

	writeJSON(w, http.StatusOK, logsResponse{Logs: lines}, s.logger)
}

func (s *Server) handleInit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot(), s.logger)
}

// handleWebhook acknowledges a delivery as soon as it parses. The
// acknowledgement is decoupled from handling outcome so the platform does
// not redeliver on handler errors.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update models.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.logger.WithField("event", "webhook_decode_error").
			WithError(err).Warn("failed to decode webhook update")
		http.Error(w, "invalid update payload", http.StatusBadRequest)
		return
	}

	if _, dispatcher := s.components(); dispatcher != nil {
		dispatcher.Dispatch(r.Context(), &update)
	}

	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, code int, payload any, logger *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithField("event", "health_write_error").
			WithError(err).Error("failed to encode response")
	}
}
