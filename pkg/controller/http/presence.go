package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/usecase"
	"github.com/secmon-lab/briareus/pkg/utils/errutil"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

type statusResponse struct {
	Success     bool                    `json:"success"`
	Agents      []*model.PresenceRecord `json:"agents"`
	Cached      bool                    `json:"cached"`
	Source      string                  `json:"source"`
	LastUpdated time.Time               `json:"lastUpdated"`
	TotalAgents int                     `json:"totalAgents"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Default().Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeReport(w http.ResponseWriter, report *usecase.StatusReport) {
	agents := report.Agents
	if agents == nil {
		agents = []*model.PresenceRecord{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Success:     true,
		Agents:      agents,
		Cached:      report.Cached,
		Source:      report.Source,
		LastUpdated: report.LastUpdated,
		TotalAgents: report.Total,
	})
}

// agentStatusHandler serves the presence snapshot, refreshing first when
// the cache has gone stale
func agentStatusHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		report, err := uc.GetAgentStatuses(ctx)
		if err != nil {
			errutil.Log(ctx, err, "agent status query failed")
			writeError(w, http.StatusInternalServerError, "presence data unavailable")
			return
		}

		writeReport(w, report)
	}
}

// forceRefreshHandler triggers an immediate full fetch and returns the
// refreshed snapshot
func forceRefreshHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		report, err := uc.ForceRefresh(ctx)
		if err != nil {
			errutil.Log(ctx, err, "forced refresh failed")
			writeError(w, http.StatusInternalServerError, "refresh failed")
			return
		}

		writeReport(w, report)
	}
}

// resetHandler drops the cache and rebuilds it from a full fetch
func resetHandler(uc *usecase.UseCases) http.HandlerFunc {
	type response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Agents  int    `json:"agents"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		count, err := uc.ResetAndInitialize(ctx)
		if err != nil {
			errutil.Log(ctx, err, "reset-and-initialize failed")
			writeError(w, http.StatusInternalServerError, "reset failed")
			return
		}

		writeJSON(w, http.StatusOK, response{
			Success: true,
			Message: "presence cache reset and rebuilt",
			Agents:  count,
		})
	}
}

func healthHandler(uc *usecase.UseCases) http.HandlerFunc {
	type response struct {
		Status       string    `json:"status"`
		CacheHealthy bool      `json:"cacheHealthy"`
		Records      int       `json:"records"`
		LastUpdated  time.Time `json:"lastUpdated"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		h := uc.Health(r.Context())
		writeJSON(w, http.StatusOK, response{
			Status:       "ok",
			CacheHealthy: h.CacheHealthy,
			Records:      h.Records,
			LastUpdated:  h.LastUpdated,
		})
	}
}

// tokenAuditHandler exposes the recorded token refreshes. Token values are
// never stored in the audit trail; only scope and timing.
func tokenAuditHandler(uc *usecase.UseCases) http.HandlerFunc {
	type response struct {
		Success bool                       `json:"success"`
		Events  []*model.TokenRefreshEvent `json:"events"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		events, err := uc.TokenAudit(ctx)
		if err != nil {
			errutil.Log(ctx, err, "failed to list token audit events")
			writeError(w, http.StatusInternalServerError, "audit unavailable")
			return
		}
		if events == nil {
			events = []*model.TokenRefreshEvent{}
		}

		writeJSON(w, http.StatusOK, response{Success: true, Events: events})
	}
}
