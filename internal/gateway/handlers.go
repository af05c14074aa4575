package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/basket/shopreply/internal/export"
	"github.com/basket/shopreply/internal/scheduler"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the scheduler's error taxonomy onto HTTP statuses.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	kind := scheduler.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case scheduler.KindValidation:
		status = http.StatusBadRequest
	case scheduler.KindNotFound:
		status = http.StatusNotFound
	case scheduler.KindUpstream:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: string(kind)})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req scheduler.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	snap, err := g.scheduler.CreateSession(r.Context(), req)
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := g.scheduler.ListSessions(r.Context())
	if err != nil {
		g.writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []scheduler.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := g.scheduler.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.scheduler.StartSession(r.Context(), id); err != nil {
		g.writeError(w, err)
		return
	}
	snap, err := g.scheduler.GetSession(r.Context(), id)
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.scheduler.StopSession(r.Context(), id); err != nil {
		g.writeError(w, err)
		return
	}
	snap, err := g.scheduler.GetSession(r.Context(), id)
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := g.scheduler.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		g.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// A session must exist before its trail is served.
	if _, err := g.scheduler.GetSession(r.Context(), id); err != nil {
		g.writeError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = v
	}
	recs, err := g.history.ListOutcomes(r.Context(), id, limit)
	if err != nil {
		g.writeError(w, err)
		return
	}
	type historyRow struct {
		InquiryID string `json:"inquiry_id"`
		Channel   string `json:"channel"`
		Outcome   string `json:"outcome"`
		Reason    string `json:"reason,omitempty"`
		Sentiment string `json:"sentiment,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	rows := make([]historyRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, historyRow{
			InquiryID: rec.InquiryID,
			Channel:   rec.Channel,
			Outcome:   rec.Outcome,
			Reason:    rec.Reason,
			Sentiment: rec.Sentiment,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (g *Gateway) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := g.scheduler.GetSession(r.Context(), id); err != nil {
		g.writeError(w, err)
		return
	}
	recs, err := g.history.ListOutcomes(r.Context(), id, 10000)
	if err != nil {
		g.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session-"+id+".csv"))
	if err := export.WriteOutcomesCSV(w, recs); err != nil {
		g.logger.Error("csv export failed", "session_id", id, "error", err)
	}
}
