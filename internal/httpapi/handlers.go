package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/engine"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type api struct {
	deps Deps
	log  *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.Is(err, apperr.KindFatal) {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	apperr.Write(w, err)
}

// caller is set by authenticate; a missing identity means the route was mounted outside the group.
func caller(r *http.Request) engine.Caller {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

// detach keeps a mutation running when the client goes away mid-request.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation(apperr.Issue{Field: "body", Message: "request body must be valid JSON"})
	}
	return nil
}

// queryInt reads an optional integer parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(apperr.Issue{Field: name, Message: fmt.Sprintf("%s must be an integer", name)})
	}
	return n, nil
}

func queryInts(r *http.Request, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		n, err := queryInt(r, name)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Store.Ping(ctx); err != nil {
		a.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "timestamp": time.Now().UTC()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
}

// Emergencies

func (a *api) createEmergency(w http.ResponseWriter, r *http.Request) {
	var in engine.CreateEmergencyInput
	if err := decodeBody(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	em, events, err := a.deps.Engine.CreateEmergency(detach(r), caller(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	engine.Dispatch(a.deps.Hub, events)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "Emergency created successfully",
		"emergency": em,
	})
}

func (a *api) listEmergencies(w http.ResponseWriter, r *http.Request) {
	n, err := queryInts(r, "page", "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := a.deps.Engine.ListEmergencies(r.Context(), caller(r), engine.ListFilter{
		Status:   models.EmergencyStatus(q.Get("status")),
		Type:     models.EmergencyType(q.Get("type")),
		Severity: models.Severity(q.Get("severity")),
		Page:     n[0],
		Limit:    n[1],
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *api) activeEmergencies(w http.ResponseWriter, r *http.Request) {
	active, err := a.deps.Engine.ActiveEmergencies(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

func (a *api) emergencyHistory(w http.ResponseWriter, r *http.Request) {
	n, err := queryInts(r, "days", "page", "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	page, err := a.deps.Engine.EmergencyHistory(r.Context(), caller(r), engine.HistoryFilter{
		Days:   n[0],
		Status: models.EmergencyStatus(r.URL.Query().Get("status")),
		Page:   n[1],
		Limit:  n[2],
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *api) emergencyStats(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	stats, err := a.deps.Engine.EmergencyStats(r.Context(), caller(r), days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *api) updateEmergency(w http.ResponseWriter, r *http.Request) {
	var in engine.UpdateEmergencyInput
	if err := decodeBody(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	em, events, err := a.deps.Engine.UpdateEmergency(detach(r), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	engine.Dispatch(a.deps.Hub, events)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Emergency updated successfully",
		"emergency": em,
	})
}

func (a *api) deleteEmergency(w http.ResponseWriter, r *http.Request) {
	events, err := a.deps.Engine.DeleteEmergency(detach(r), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	engine.Dispatch(a.deps.Hub, events)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Emergency deleted successfully"})
}

// Production

func (a *api) productionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.deps.Engine.GetProductionStatus(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": st})
}

func (a *api) updateProductionStatus(w http.ResponseWriter, r *http.Request) {
	var p engine.StatusPatch
	if err := decodeBody(r, &p); err != nil {
		a.fail(w, r, err)
		return
	}
	st, events, err := a.deps.Engine.UpdateProductionStatus(detach(r), caller(r), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	engine.Dispatch(a.deps.Hub, events)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Production status updated successfully",
		"status":  st,
	})
}

func (a *api) setProductionMode(w http.ResponseWriter, r *http.Request) {
	var in engine.SetModeInput
	if err := decodeBody(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	st, events, err := a.deps.Engine.SetProductionMode(detach(r), caller(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	engine.Dispatch(a.deps.Hub, events)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Production mode changed to " + string(st.Mode),
		"status":  st,
	})
}

func (a *api) realtimeMetrics(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	ids, err := a.deps.Presence.OnlineUserIDs(r.Context(), c.TournamentID)
	if err != nil {
		// Presence lives in the cache tier; the dashboard still renders without it.
		a.log.Warn("online users unavailable", zap.Error(err))
	}
	m, err := a.deps.Engine.RealtimeMetrics(r.Context(), c, len(ids))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": m})
}

// Teams

func (a *api) updateMemberStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.MemberStatus `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	m, events, err := a.deps.Engine.UpdateMemberStatus(detach(r), caller(r), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	engine.Dispatch(a.deps.Hub, events)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Team member status updated successfully",
		"member":  m,
	})
}

func (a *api) teamStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.deps.Engine.TeamStats(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *api) onlineMembers(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	ids, err := a.deps.Presence.OnlineUserIDs(r.Context(), c.TournamentID)
	if err != nil {
		a.fail(w, r, apperr.Fatal("online users", err))
		return
	}
	members, err := a.deps.Engine.OnlineMembers(r.Context(), c, ids)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"onlineMembers": members,
		"totalOnline":   len(members),
		"lastUpdated":   time.Now().UTC(),
	})
}

// Checklists

func (a *api) templateStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.deps.Engine.TemplateStats(r.Context(), caller(r), r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
