package engine

import (
	"context"
	"math"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/cache"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
	"go.uber.org/zap"
)

const (
	SyntheticTitle       = "Emergency Mode Activated"
	SyntheticDescription = "Emergency mode activated by field director"
	SyntheticResolution  = "Cleared by manual mode change"
)

// GetProductionStatus returns the tournament's status, creating it on first read.
func (e *Engine) GetProductionStatus(ctx context.Context, c Caller) (models.ProductionStatus, error) {
	st, err := cache.Fetch(ctx, e.cache, cache.ProductionStatusKey(c.TournamentID), cache.ProductionStatusTTL,
		func(ctx context.Context) (models.ProductionStatus, error) {
			return e.loadStatus(ctx, e.store, c.TournamentID)
		})
	if err != nil {
		return models.ProductionStatus{}, storeErr("get production status", err)
	}
	return st, nil
}

// manualResult collects what a manual mode switch touched besides the status row.
type manualResult struct {
	change      *ModeChange
	syntheticID string
	events      []Event
}

// applyManual switches st to mode. Entering EMERGENCY records a synthetic
// emergency so the recovery path has a cause to resolve; leaving EMERGENCY
// resolves the open synthetic ones. Operator-reported emergencies are left alone.
func (e *Engine) applyManual(ctx context.Context, s store.Store, c Caller, st *models.ProductionStatus, mode models.Mode, reason string) (manualResult, error) {
	prev := st.Mode
	next, ch := SetManual(*st, mode, reason)
	*st = next
	res := manualResult{change: ch}
	now := e.now()

	switch {
	case mode == models.ModeEmergency:
		desc := reason
		if desc == "" {
			desc = SyntheticDescription
		}
		em := models.Emergency{
			ID:           e.newID(),
			TournamentID: c.TournamentID,
			CreatedBy:    c.UserID,
			Type:         models.TypeOther,
			Severity:     models.SeverityHigh,
			Title:        SyntheticTitle,
			Description:  desc,
			Status:       models.StatusActive,
			Synthetic:    true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.CreateEmergency(ctx, &em); err != nil {
			return res, err
		}
		res.syntheticID = em.ID
		res.events = append(res.events, tournamentEvent(c.TournamentID, EvtEmergencyAlert, EmergencyPayload{Emergency: em, Action: ActionCreated}))

	case prev == models.ModeEmergency:
		synthetic := true
		open, _, err := s.ListEmergencies(ctx, store.EmergencyFilter{
			TournamentID: c.TournamentID,
			Statuses:     models.OpenStatuses,
			Synthetic:    &synthetic,
		})
		if err != nil {
			return res, err
		}
		for _, em := range open {
			resolution := SyntheticResolution
			resolvedAt := now
			em.Status = models.StatusResolved
			em.Resolution = &resolution
			em.ResolvedAt = &resolvedAt
			em.UpdatedAt = now
			if err := s.SaveEmergency(ctx, &em); err != nil {
				return res, err
			}
			res.events = append(res.events, tournamentEvent(c.TournamentID, EvtEmergencyUpdated, EmergencyPayload{
				Emergency: em,
				Action:    ActionUpdated,
				UpdatedBy: c.UserID,
			}))
		}
	}
	return res, nil
}

// SetProductionMode is the operator's manual mode switch.
func (e *Engine) SetProductionMode(ctx context.Context, c Caller, in SetModeInput) (models.ProductionStatus, []Event, error) {
	if err := auth.Require(auth.ActionSetProductionMode, c.Role, c.UserID, ""); err != nil {
		return models.ProductionStatus{}, nil, err
	}
	if err := in.validate(); err != nil {
		return models.ProductionStatus{}, nil, err
	}

	var (
		st  models.ProductionStatus
		res manualResult
	)
	err := e.store.Tx(ctx, func(s store.Store) error {
		var err error
		if st, err = e.loadStatus(ctx, s, c.TournamentID); err != nil {
			return err
		}
		if res, err = e.applyManual(ctx, s, c, &st, in.Mode, in.Reason); err != nil {
			return err
		}
		return e.saveStatus(ctx, s, &st)
	})
	if err != nil {
		return models.ProductionStatus{}, nil, storeErr("set production mode", err)
	}
	e.invalidate(ctx, c.TournamentID, len(res.events) > 0, true)

	e.businessEvent("production_mode_changed",
		zap.String("tournamentId", c.TournamentID),
		zap.String("changedBy", c.UserID),
		zap.String("mode", string(in.Mode)),
	)

	events := []Event{e.modeEvent(c.TournamentID, res.change, res.syntheticID, c.UserID)}
	events = append(events, res.events...)
	return st, events, nil
}

// UpdateProductionStatus patches the status fields. A mode in the patch goes
// through the same manual switch as SetProductionMode.
func (e *Engine) UpdateProductionStatus(ctx context.Context, c Caller, p StatusPatch) (models.ProductionStatus, []Event, error) {
	if err := auth.Require(auth.ActionUpdateProductionStatus, c.Role, c.UserID, ""); err != nil {
		return models.ProductionStatus{}, nil, err
	}
	if err := p.validate(); err != nil {
		return models.ProductionStatus{}, nil, err
	}

	var (
		st  models.ProductionStatus
		res manualResult
	)
	err := e.store.Tx(ctx, func(s store.Store) error {
		res = manualResult{}
		var err error
		if st, err = e.loadStatus(ctx, s, c.TournamentID); err != nil {
			return err
		}
		if p.Mode != nil && *p.Mode != st.Mode {
			reason := ""
			if p.CurrentIssues != nil {
				reason = *p.CurrentIssues
			}
			if res, err = e.applyManual(ctx, s, c, &st, *p.Mode, reason); err != nil {
				return err
			}
		}
		if p.FeatureTable != nil {
			st.FeatureTable = *p.FeatureTable
		}
		if p.StreamQuality != nil {
			st.StreamQuality = *p.StreamQuality
		}
		if p.UploadSpeed != nil {
			st.UploadSpeed = *p.UploadSpeed
		}
		if p.TeamStatus != nil {
			st.TeamStatus = *p.TeamStatus
		}
		if p.CurrentIssues != nil {
			issues := *p.CurrentIssues
			st.CurrentIssues = &issues
		}
		if p.NextSchedule != nil {
			next := *p.NextSchedule
			st.NextSchedule = &next
		}
		return e.saveStatus(ctx, s, &st)
	})
	if err != nil {
		return models.ProductionStatus{}, nil, storeErr("update production status", err)
	}
	e.invalidate(ctx, c.TournamentID, len(res.events) > 0, true)

	e.businessEvent("production_status_updated",
		zap.String("tournamentId", c.TournamentID),
		zap.String("updatedBy", c.UserID),
		zap.String("mode", string(st.Mode)),
	)

	events := []Event{tournamentEvent(c.TournamentID, EvtProductionStatusChanged, StatusChangedPayload{
		ProductionStatus: st,
		UpdatedBy:        c.UserID,
	})}
	if res.change != nil {
		events = append(events, e.modeEvent(c.TournamentID, res.change, res.syntheticID, c.UserID))
		events = append(events, res.events...)
	}
	return st, events, nil
}

type RealtimeMetrics struct {
	Timestamp      time.Time   `json:"timestamp"`
	ProductionMode models.Mode `json:"productionMode"`
	StreamQuality  string      `json:"streamQuality"`
	UploadSpeed    float64     `json:"uploadSpeed"`
	FeatureTable   string      `json:"featureTable"`
	TeamStatus     struct {
		Total    int64                         `json:"total"`
		ByStatus map[models.MemberStatus]int64 `json:"byStatus"`
		Online   int                           `json:"online"`
	} `json:"teamStatus"`
	ChecklistProgress struct {
		Overall   int   `json:"overall"`
		Total     int64 `json:"total"`
		Completed int64 `json:"completed"`
	} `json:"checklistProgress"`
	ActiveEmergencies int64     `json:"activeEmergencies"`
	LastUpdate        time.Time `json:"lastUpdate"`
}

// RealtimeMetrics is the dashboard snapshot; online is supplied by presence.
func (e *Engine) RealtimeMetrics(ctx context.Context, c Caller, online int) (RealtimeMetrics, error) {
	m, err := cache.Fetch(ctx, e.cache, cache.RealtimeMetricsKey(c.TournamentID), cache.RealtimeMetricsTTL,
		func(ctx context.Context) (RealtimeMetrics, error) {
			return e.computeRealtime(ctx, c.TournamentID, online)
		})
	if err != nil {
		return RealtimeMetrics{}, storeErr("realtime metrics", err)
	}
	// Presence is live; only the store-derived figures are cached.
	m.TeamStatus.Online = online
	return m, nil
}

func (e *Engine) computeRealtime(ctx context.Context, tournamentID string, online int) (RealtimeMetrics, error) {
	var m RealtimeMetrics
	m.Timestamp = e.now()

	st, err := e.loadStatus(ctx, e.store, tournamentID)
	if err != nil {
		return m, err
	}
	m.ProductionMode = st.Mode
	m.StreamQuality = st.StreamQuality
	m.UploadSpeed = st.UploadSpeed
	m.FeatureTable = st.FeatureTable
	m.LastUpdate = st.UpdatedAt

	counts, err := e.store.CountMembersByStatus(ctx, tournamentID)
	if err != nil {
		return m, err
	}
	m.TeamStatus.ByStatus = counts
	for _, n := range counts {
		m.TeamStatus.Total += n
	}
	m.TeamStatus.Online = online

	total, done, err := e.checklistTotals(ctx, tournamentID, m.Timestamp)
	if err != nil {
		return m, err
	}
	m.ChecklistProgress.Total = total
	m.ChecklistProgress.Completed = done
	if total > 0 {
		m.ChecklistProgress.Overall = int(math.Round(float64(done) / float64(total) * 100))
	}

	_, active, err := e.store.ListEmergencies(ctx, store.EmergencyFilter{
		TournamentID: tournamentID,
		Statuses:     models.OpenStatuses,
		Limit:        1,
	})
	if err != nil {
		return m, err
	}
	m.ActiveEmergencies = active
	return m, nil
}

func (e *Engine) checklistTotals(ctx context.Context, tournamentID string, day time.Time) (int64, int64, error) {
	templates, err := e.store.ListActiveTemplates(ctx, tournamentID)
	if err != nil || len(templates) == 0 {
		return 0, 0, err
	}
	ids := make([]string, len(templates))
	for i, t := range templates {
		ids[i] = t.ID
	}
	items, err := e.store.CountItemsByTemplate(ctx, ids)
	if err != nil {
		return 0, 0, err
	}
	checks, err := e.store.CountChecksByTemplate(ctx, ids, day)
	if err != nil {
		return 0, 0, err
	}
	var total, done int64
	for _, id := range ids {
		total += items[id]
		done += checks[id]
	}
	return total, done, nil
}
