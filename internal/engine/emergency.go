package engine

import (
	"context"
	"math"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/cache"
	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
	"go.uber.org/zap"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// CreateEmergency records a new ACTIVE emergency. A HIGH or CRITICAL one
// escalates the tournament to EMERGENCY in the same transaction.
func (e *Engine) CreateEmergency(ctx context.Context, c Caller, in CreateEmergencyInput) (models.Emergency, []Event, error) {
	if err := in.validate(); err != nil {
		return models.Emergency{}, nil, err
	}

	now := e.now()
	em := models.Emergency{
		ID:           e.newID(),
		TournamentID: c.TournamentID,
		CreatedBy:    c.UserID,
		Type:         in.Type,
		Severity:     in.Severity,
		Title:        in.Title,
		Description:  in.Description,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	change, err := e.insertEmergency(ctx, &em)
	if err != nil {
		return models.Emergency{}, nil, storeErr("create emergency", err)
	}
	e.invalidate(ctx, c.TournamentID, true, change != nil)

	metrics.EmergencyCreated(string(em.Severity))
	e.audit.Info("emergency created",
		zap.String("emergencyId", em.ID),
		zap.String("tournamentId", em.TournamentID),
		zap.String("userId", em.CreatedBy),
		zap.String("type", string(em.Type)),
		zap.String("severity", string(em.Severity)),
		zap.String("title", em.Title),
	)
	e.businessEvent("emergency_created",
		zap.String("emergencyId", em.ID),
		zap.String("severity", string(em.Severity)),
		zap.String("createdBy", em.CreatedBy),
	)

	events := []Event{tournamentEvent(c.TournamentID, EvtEmergencyAlert, EmergencyPayload{Emergency: em, Action: ActionCreated})}
	if change != nil {
		events = append(events, e.modeEvent(c.TournamentID, change, em.ID, ""))
	}
	return em, events, nil
}

func (e *Engine) insertEmergency(ctx context.Context, em *models.Emergency) (*ModeChange, error) {
	var change *ModeChange
	err := e.store.Tx(ctx, func(s store.Store) error {
		change = nil
		if err := s.CreateEmergency(ctx, em); err != nil {
			return err
		}
		if !em.Qualifies() {
			return nil
		}
		st, err := e.loadStatus(ctx, s, em.TournamentID)
		if err != nil {
			return err
		}
		next, ch := Escalate(st, *em)
		change = ch
		return e.saveStatus(ctx, s, &next)
	})
	return change, err
}

// UpdateEmergency applies a patch and then re-derives the tournament mode.
// Patching a status to the value it already has changes nothing.
func (e *Engine) UpdateEmergency(ctx context.Context, c Caller, id string, in UpdateEmergencyInput) (models.Emergency, []Event, error) {
	if err := in.validate(); err != nil {
		return models.Emergency{}, nil, err
	}

	var (
		before, after models.Emergency
		changed       bool
		resolved      bool
		change        *ModeChange
	)
	err := e.store.Tx(ctx, func(s store.Store) error {
		change, changed, resolved = nil, false, false

		cur, err := s.GetEmergency(ctx, c.TournamentID, id)
		if err != nil {
			return notFound(err, "Emergency")
		}
		if err := auth.Require(auth.ActionUpdateEmergency, c.Role, c.UserID, cur.CreatedBy); err != nil {
			return err
		}
		before = *cur

		next, ok, err := e.applyPatch(*cur, in)
		if err != nil {
			return err
		}
		after, changed = next, ok
		if !changed {
			return nil
		}
		resolved = before.Status != models.StatusResolved && after.Status == models.StatusResolved
		if err := s.SaveEmergency(ctx, &after); err != nil {
			return err
		}
		change, err = e.recomputeMode(ctx, s, c.TournamentID)
		return err
	})
	if err != nil {
		return models.Emergency{}, nil, storeErr("update emergency", err)
	}
	if !changed {
		return after, nil, nil
	}
	e.invalidate(ctx, c.TournamentID, true, change != nil)

	if resolved {
		d := after.Duration()
		e.audit.Info("emergency resolved",
			zap.String("emergencyId", after.ID),
			zap.String("tournamentId", after.TournamentID),
			zap.String("title", after.Title),
			zap.String("resolvedBy", c.UserID),
			zap.Duration("duration", d),
			zap.Int64("durationMinutes", int64(math.Round(d.Minutes()))),
			zap.Stringp("resolution", after.Resolution),
		)
		e.businessEvent("emergency_resolved",
			zap.String("emergencyId", after.ID),
			zap.String("resolvedBy", c.UserID),
			zap.Duration("duration", d),
		)
	}

	events := []Event{tournamentEvent(c.TournamentID, EvtEmergencyUpdated, EmergencyPayload{
		Emergency: after,
		Action:    ActionUpdated,
		UpdatedBy: c.UserID,
	})}
	if change != nil {
		events = append(events, e.modeEvent(c.TournamentID, change, "", ""))
	}
	return after, events, nil
}

// applyPatch returns the patched record and whether anything changed.
func (e *Engine) applyPatch(cur models.Emergency, in UpdateEmergencyInput) (models.Emergency, bool, error) {
	next, changed := cur, false

	if in.Status != nil && *in.Status != cur.Status {
		if !cur.Status.CanTransition(*in.Status) {
			return cur, false, apperr.Validation(apperr.Issue{
				Field:   "status",
				Message: "cannot change status from " + string(cur.Status) + " to " + string(*in.Status),
			})
		}
		next.Status = *in.Status
		if next.Status == models.StatusResolved {
			t := e.now()
			next.ResolvedAt = &t
		}
		changed = true
	}
	if in.Title != nil && *in.Title != cur.Title {
		next.Title = *in.Title
		changed = true
	}
	if in.Description != nil && *in.Description != cur.Description {
		next.Description = *in.Description
		changed = true
	}
	if in.Resolution != nil && (cur.Resolution == nil || *cur.Resolution != *in.Resolution) {
		r := *in.Resolution
		next.Resolution = &r
		changed = true
	}
	if changed {
		next.UpdatedAt = e.now()
	}
	return next, changed, nil
}

// recomputeMode re-counts qualifying emergencies and leaves EMERGENCY when none remain.
func (e *Engine) recomputeMode(ctx context.Context, s store.Store, tournamentID string) (*ModeChange, error) {
	n, err := s.CountQualifying(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	st, err := e.loadStatus(ctx, s, tournamentID)
	if err != nil {
		return nil, err
	}
	next, ch := Recover(st, n)
	if ch == nil {
		return nil, nil
	}
	return ch, e.saveStatus(ctx, s, &next)
}

// DeleteEmergency removes a record. Deleting the last qualifying emergency
// recovers the tournament the same way a resolution does.
func (e *Engine) DeleteEmergency(ctx context.Context, c Caller, id string) ([]Event, error) {
	if err := auth.Require(auth.ActionDeleteEmergency, c.Role, c.UserID, ""); err != nil {
		return nil, err
	}

	var (
		deleted models.Emergency
		change  *ModeChange
	)
	err := e.store.Tx(ctx, func(s store.Store) error {
		change = nil
		cur, err := s.GetEmergency(ctx, c.TournamentID, id)
		if err != nil {
			return notFound(err, "Emergency")
		}
		deleted = *cur
		if err := s.DeleteEmergency(ctx, c.TournamentID, id); err != nil {
			return notFound(err, "Emergency")
		}
		change, err = e.recomputeMode(ctx, s, c.TournamentID)
		return err
	})
	if err != nil {
		return nil, storeErr("delete emergency", err)
	}
	e.invalidate(ctx, c.TournamentID, true, change != nil)

	e.audit.Info("emergency deleted",
		zap.String("emergencyId", deleted.ID),
		zap.String("tournamentId", deleted.TournamentID),
		zap.String("title", deleted.Title),
		zap.String("status", string(deleted.Status)),
		zap.String("deletedBy", c.UserID),
	)

	events := []Event{tournamentEvent(c.TournamentID, EvtEmergencyUpdated, EmergencyPayload{
		Emergency: deleted,
		Action:    ActionDeleted,
		UpdatedBy: c.UserID,
	})}
	if change != nil {
		events = append(events, e.modeEvent(c.TournamentID, change, "", ""))
	}
	return events, nil
}

type ActiveEmergencies struct {
	Emergencies   []models.Emergency      `json:"emergencies"`
	Count         int                     `json:"count"`
	SeverityStats map[models.Severity]int `json:"severityStats"`
}

// ActiveEmergencies lists open emergencies in display order, cached briefly.
func (e *Engine) ActiveEmergencies(ctx context.Context, c Caller) (ActiveEmergencies, error) {
	list, err := cache.Fetch(ctx, e.cache, cache.ActiveEmergenciesKey(c.TournamentID), cache.ActiveEmergenciesTTL,
		func(ctx context.Context) ([]models.Emergency, error) {
			list, _, err := e.store.ListEmergencies(ctx, store.EmergencyFilter{
				TournamentID: c.TournamentID,
				Statuses:     models.OpenStatuses,
				Order:        store.OrderDisplay,
			})
			return list, err
		})
	if err != nil {
		return ActiveEmergencies{}, storeErr("list active emergencies", err)
	}
	if list == nil {
		list = []models.Emergency{}
	}

	stats := map[models.Severity]int{}
	for _, em := range list {
		stats[em.Severity]++
	}
	return ActiveEmergencies{Emergencies: list, Count: len(list), SeverityStats: stats}, nil
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func newPagination(page, limit int, total int64) Pagination {
	return Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + int64(limit) - 1) / int64(limit),
	}
}

type EmergencyPage struct {
	Emergencies []models.Emergency `json:"emergencies"`
	Pagination  Pagination         `json:"pagination"`
}

// ListEmergencies pages through every emergency, open ones first.
func (e *Engine) ListEmergencies(ctx context.Context, c Caller, f ListFilter) (EmergencyPage, error) {
	if err := f.validate(); err != nil {
		return EmergencyPage{}, err
	}
	sf := store.EmergencyFilter{
		TournamentID: c.TournamentID,
		Type:         f.Type,
		Severity:     f.Severity,
		Order:        store.OrderStatusFirst,
		Offset:       (f.Page - 1) * f.Limit,
		Limit:        f.Limit,
	}
	if f.Status != "" {
		sf.Statuses = []models.EmergencyStatus{f.Status}
	}
	list, total, err := e.store.ListEmergencies(ctx, sf)
	if err != nil {
		return EmergencyPage{}, storeErr("list emergencies", err)
	}
	if list == nil {
		list = []models.Emergency{}
	}
	return EmergencyPage{Emergencies: list, Pagination: newPagination(f.Page, f.Limit, total)}, nil
}

type HistoryEntry struct {
	models.Emergency
	DurationMinutes *int64 `json:"durationMinutes"`
}

type Period struct {
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Days      int        `json:"days"`
}

type HistoryPage struct {
	Emergencies []HistoryEntry `json:"emergencies"`
	Pagination  Pagination     `json:"pagination"`
	Period      Period         `json:"period"`
}

// EmergencyHistory lists closed emergencies from the last f.Days days, most
// recently resolved first.
func (e *Engine) EmergencyHistory(ctx context.Context, c Caller, f HistoryFilter) (HistoryPage, error) {
	if err := f.validate(); err != nil {
		return HistoryPage{}, err
	}
	since := e.now().AddDate(0, 0, -f.Days)
	statuses := models.ClosedStatuses
	if f.Status != "" {
		statuses = []models.EmergencyStatus{f.Status}
	}
	list, total, err := e.store.ListEmergencies(ctx, store.EmergencyFilter{
		TournamentID: c.TournamentID,
		Statuses:     statuses,
		Since:        since,
		Order:        store.OrderResolvedDesc,
		Offset:       (f.Page - 1) * f.Limit,
		Limit:        f.Limit,
	})
	if err != nil {
		return HistoryPage{}, storeErr("emergency history", err)
	}

	entries := make([]HistoryEntry, 0, len(list))
	for _, em := range list {
		entry := HistoryEntry{Emergency: em}
		if em.ResolvedAt != nil {
			m := int64(math.Round(em.Duration().Minutes()))
			entry.DurationMinutes = &m
		}
		entries = append(entries, entry)
	}
	return HistoryPage{
		Emergencies: entries,
		Pagination:  newPagination(f.Page, f.Limit, total),
		Period:      Period{StartDate: since, Days: f.Days},
	}, nil
}

type Stats struct {
	Period        Period `json:"period"`
	Totals        Totals `json:"totals"`
	Distributions struct {
		ByType     map[models.EmergencyType]int   `json:"byType"`
		BySeverity map[models.Severity]int        `json:"bySeverity"`
		ByStatus   map[models.EmergencyStatus]int `json:"byStatus"`
	} `json:"distributions"`
	Metrics struct {
		AverageResolutionTimeMinutes int64 `json:"averageResolutionTimeMinutes"`
		ResolutionRate               int   `json:"resolutionRate"`
	} `json:"metrics"`
}

type Totals struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Resolved  int `json:"resolved"`
	Cancelled int `json:"cancelled"`
}

// EmergencyStats aggregates the last days days; 0 means the default window.
func (e *Engine) EmergencyStats(ctx context.Context, c Caller, days int) (Stats, error) {
	var is issues
	dayRange(&is, &days)
	if err := is.err(); err != nil {
		return Stats{}, err
	}

	st, err := cache.Fetch(ctx, e.cache, cache.EmergencyStatsKey(c.TournamentID, days), cache.EmergencyStatsTTL,
		func(ctx context.Context) (Stats, error) {
			now := e.now()
			since := now.AddDate(0, 0, -days)
			list, _, err := e.store.ListEmergencies(ctx, store.EmergencyFilter{TournamentID: c.TournamentID, Since: since})
			if err != nil {
				return Stats{}, err
			}
			return computeStats(list, since, now, days), nil
		})
	if err != nil {
		return Stats{}, storeErr("emergency stats", err)
	}
	return st, nil
}

func computeStats(list []models.Emergency, since, now time.Time, days int) Stats {
	var st Stats
	st.Period = Period{StartDate: since, EndDate: &now, Days: days}
	st.Distributions.ByType = map[models.EmergencyType]int{}
	st.Distributions.BySeverity = map[models.Severity]int{}
	st.Distributions.ByStatus = map[models.EmergencyStatus]int{}

	var resolvedTotal time.Duration
	var resolvedTimed int
	for _, em := range list {
		st.Totals.Total++
		st.Distributions.ByType[em.Type]++
		st.Distributions.BySeverity[em.Severity]++
		st.Distributions.ByStatus[em.Status]++
		switch em.Status {
		case models.StatusActive, models.StatusInProgress:
			st.Totals.Active++
		case models.StatusResolved:
			st.Totals.Resolved++
			if em.ResolvedAt != nil {
				resolvedTotal += em.Duration()
				resolvedTimed++
			}
		case models.StatusCancelled:
			st.Totals.Cancelled++
		}
	}
	if resolvedTimed > 0 {
		avg := resolvedTotal / time.Duration(resolvedTimed)
		st.Metrics.AverageResolutionTimeMinutes = int64(math.Round(avg.Minutes()))
	}
	if st.Totals.Total > 0 {
		st.Metrics.ResolutionRate = int(math.Round(float64(st.Totals.Resolved) / float64(st.Totals.Total) * 100))
	}
	return st
}
