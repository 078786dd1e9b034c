package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hochfrequenz/botfleet/internal/campaign"
	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
)

// Registry is the fleet view the API needs
type Registry interface {
	List() []domain.Bot
	Get(name string) (domain.Bot, error)
	Add(bot domain.Bot) error
	Remove(name string) error
	SetStatus(name string, status domain.BotStatus) error
}

// Campaigns starts, cancels and reports campaigns
type Campaigns interface {
	Start(spec domain.CampaignSpec) (string, error)
	Cancel() error
	Status() campaign.Status
}

// History lists finished campaigns, newest first
type History interface {
	ListCampaigns(limit int) ([]domain.CampaignSummary, error)
}

// Server is the HTTP API server
type Server struct {
	registry  Registry
	campaigns Campaigns
	history   History
	hub       *events.Hub
	logger    *zap.SugaredLogger

	mux      *http.ServeMux
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a new API server. history may be nil.
func NewServer(registry Registry, campaigns Campaigns, history History, hub *events.Hub, addr string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		registry:  registry,
		campaigns: campaigns,
		history:   history,
		hub:       hub,
		logger:    logger,
		mux:       http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/bots", s.botsHandler())
	s.mux.HandleFunc("/api/bots/", s.botHandler())
	s.mux.HandleFunc("/api/campaign", s.campaignHandler())
	s.mux.HandleFunc("/api/campaigns", s.historyHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Infow("api listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones. Streaming
// handlers end when the event hub is closed.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDuplicateBot),
		errors.Is(err, domain.ErrBotBusy),
		errors.Is(err, domain.ErrCampaignAlreadyActive),
		errors.Is(err, domain.ErrNoActiveCampaign):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoParticipants),
		errors.Is(err, domain.ErrInvalidBot),
		errors.Is(err, domain.ErrInvalidCampaign):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
