package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/botfleet/internal/campaign"
	"github.com/hochfrequenz/botfleet/internal/domain"
)

// BotResponse is the API representation of a bot
type BotResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Port      int    `json:"port"`
	Specialty string `json:"specialty,omitempty"`
	Requests  int    `json:"requests"`
	Failures  int    `json:"failures"`
	Uptime    string `json:"uptime"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AddBotRequest is the body of POST /api/bots
type AddBotRequest struct {
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Specialty string `json:"specialty"`
	Status    string `json:"status"`
}

// UpdateBotRequest is the body of PATCH /api/bots/{name}
type UpdateBotRequest struct {
	Status string `json:"status"`
}

// CampaignRequest is the body of POST /api/campaign
type CampaignRequest struct {
	TargetAddress string   `json:"target_address"`
	TargetPort    int      `json:"target_port"`
	Operation     string   `json:"operation"`
	Intensity     int      `json:"intensity"`
	Participants  []string `json:"participants,omitempty"`
}

// CampaignStatusResponse is the API response for the running campaign
type CampaignStatusResponse struct {
	Phase           string           `json:"phase"`
	ID              string           `json:"id,omitempty"`
	Operation       string           `json:"operation,omitempty"`
	Target          string           `json:"target,omitempty"`
	Intensity       int              `json:"intensity,omitempty"`
	Progress        int              `json:"progress"`
	BotProgress     map[string]int   `json:"bot_progress,omitempty"`
	Finished        []string         `json:"finished,omitempty"`
	CancelRequested bool             `json:"cancel_requested"`
	StartedAt       *string          `json:"started_at,omitempty"`
	Last            *SummaryResponse `json:"last,omitempty"`
}

// SummaryResponse is the API representation of a finished campaign
type SummaryResponse struct {
	ID           string            `json:"id"`
	Operation    string            `json:"operation"`
	Target       string            `json:"target"`
	Intensity    int               `json:"intensity"`
	Phase        string            `json:"phase"`
	Progress     int               `json:"progress"`
	Participants []string          `json:"participants"`
	Outcomes     map[string]string `json:"outcomes"`
	Failures     map[string]string `json:"failures,omitempty"`
	StartedAt    string            `json:"started_at"`
	FinishedAt   string            `json:"finished_at"`
	Duration     string            `json:"duration"`
}

func botToResponse(b domain.Bot) BotResponse {
	resp := BotResponse{
		Name:      b.Name,
		Status:    string(b.Status),
		Port:      b.Port,
		Specialty: b.Specialty,
		Requests:  b.Requests,
		Failures:  b.Failures,
		Uptime:    b.Uptime,
	}
	if !b.CreatedAt.IsZero() {
		resp.CreatedAt = b.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func summaryToResponse(s domain.CampaignSummary) SummaryResponse {
	resp := SummaryResponse{
		ID:           s.ID,
		Operation:    string(s.Spec.Operation),
		Target:       s.Spec.Target(),
		Intensity:    s.Spec.Intensity,
		Phase:        string(s.Phase),
		Progress:     s.Progress,
		Participants: s.Participants,
		Outcomes:     make(map[string]string, len(s.Outcomes)),
		StartedAt:    s.StartedAt.Format(time.RFC3339),
		FinishedAt:   s.FinishedAt.Format(time.RFC3339),
		Duration:     s.Duration().Round(time.Millisecond).String(),
	}
	for name, out := range s.Outcomes {
		resp.Outcomes[name] = string(out.Status)
		if out.Status == domain.OutcomeFailed {
			if resp.Failures == nil {
				resp.Failures = make(map[string]string)
			}
			resp.Failures[name] = out.Reason
		}
	}
	return resp
}

func statusToResponse(st campaign.Status) CampaignStatusResponse {
	resp := CampaignStatusResponse{
		Phase:           string(st.Phase),
		ID:              st.CampaignID,
		Progress:        st.Progress,
		BotProgress:     st.BotProgress,
		Finished:        st.Finished,
		CancelRequested: st.CancelRequested,
	}
	if st.CampaignID != "" {
		resp.Operation = string(st.Spec.Operation)
		resp.Target = st.Spec.Target()
		resp.Intensity = st.Spec.Intensity
		started := st.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &started
	}
	if st.Last != nil {
		last := summaryToResponse(*st.Last)
		resp.Last = &last
	}
	return resp
}

func (s *Server) botsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			bots := s.registry.List()
			resp := make([]BotResponse, len(bots))
			for i, b := range bots {
				resp[i] = botToResponse(b)
			}
			writeJSON(w, resp)

		case http.MethodPost:
			var req AddBotRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
			bot := domain.Bot{Name: req.Name, Port: req.Port, Specialty: req.Specialty}
			if req.Status != "" {
				status, err := domain.ParseBotStatus(req.Status)
				if err != nil {
					writeDomainError(w, err)
					return
				}
				bot.Status = status
			}
			if err := s.registry.Add(bot); err != nil {
				writeDomainError(w, err)
				return
			}
			added, err := s.registry.Get(bot.Name)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSONStatus(w, http.StatusCreated, botToResponse(added))

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) botHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract bot name from path: /api/bots/{name}
		name := strings.TrimPrefix(r.URL.Path, "/api/bots/")
		if name == "" || strings.Contains(name, "/") {
			writeError(w, http.StatusBadRequest, "bot name required")
			return
		}

		switch r.Method {
		case http.MethodGet:
			bot, err := s.registry.Get(name)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, botToResponse(bot))

		case http.MethodDelete:
			if err := s.registry.Remove(name); err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, map[string]string{"status": "removed"})

		case http.MethodPatch:
			var req UpdateBotRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
			status, err := domain.ParseBotStatus(req.Status)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if err := s.registry.SetStatus(name, status); err != nil {
				writeDomainError(w, err)
				return
			}
			bot, err := s.registry.Get(name)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, botToResponse(bot))

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) campaignHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, statusToResponse(s.campaigns.Status()))

		case http.MethodPost:
			var req CampaignRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
			op, err := domain.ParseOperationKind(req.Operation)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			id, err := s.campaigns.Start(domain.CampaignSpec{
				TargetAddress: req.TargetAddress,
				TargetPort:    req.TargetPort,
				Operation:     op,
				Intensity:     req.Intensity,
				Participants:  req.Participants,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSONStatus(w, http.StatusAccepted, map[string]string{"id": id, "status": "started"})

		case http.MethodDelete:
			if err := s.campaigns.Cancel(); err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, map[string]string{"status": "cancelling"})

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.history == nil {
			writeJSON(w, []SummaryResponse{})
			return
		}

		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		summaries, err := s.history.ListCampaigns(limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := make([]SummaryResponse, len(summaries))
		for i, sum := range summaries {
			resp[i] = summaryToResponse(sum)
		}
		writeJSON(w, resp)
	}
}
