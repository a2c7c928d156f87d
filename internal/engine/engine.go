// Package engine owns the causal link between emergencies and production
// mode. Operations mutate the store and return the events to publish; they
// never touch a transport.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/cache"
	"github.com/DoyleJ11/floor-ops-backend/internal/logger"
	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Caller is the authenticated identity an operation runs as.
type Caller = auth.Identity

type Engine struct {
	store store.Store
	cache *cache.Layer
	log   *zap.Logger
	audit *zap.Logger
	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithAuditLogger overrides the audit logger derived from log.
func WithAuditLogger(audit *zap.Logger) Option {
	return func(e *Engine) { e.audit = audit }
}

func New(st store.Store, layer *cache.Layer, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store: st,
		cache: layer,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.audit == nil {
		e.audit = logger.NewAudit(log)
	}
	return e
}

// loadStatus returns the tournament's production status, creating the
// default row on first access.
func (e *Engine) loadStatus(ctx context.Context, s store.Store, tournamentID string) (models.ProductionStatus, error) {
	st, err := s.GetProductionStatus(ctx, tournamentID)
	if err == nil {
		return *st, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.ProductionStatus{}, err
	}
	def := models.DefaultProductionStatus(tournamentID)
	def.UpdatedAt = e.now()
	if err := s.SaveProductionStatus(ctx, &def); err != nil {
		return models.ProductionStatus{}, err
	}
	return def, nil
}

func (e *Engine) saveStatus(ctx context.Context, s store.Store, st *models.ProductionStatus) error {
	st.UpdatedAt = e.now()
	return s.SaveProductionStatus(ctx, st)
}

// modeEvent records the transition and builds its productionModeChanged event.
func (e *Engine) modeEvent(tournamentID string, ch *ModeChange, emergencyID, changedBy string) Event {
	metrics.ModeTransition(string(ch.To), string(ch.Cause))
	e.audit.Info("production mode changed",
		zap.String("tournamentId", tournamentID),
		zap.String("from", string(ch.From)),
		zap.String("to", string(ch.To)),
		zap.String("cause", string(ch.Cause)),
		zap.String("reason", ch.Reason),
	)
	return tournamentEvent(tournamentID, EvtProductionModeChanged, ModeChangedPayload{
		Mode:        ch.To,
		Reason:      ch.Reason,
		EmergencyID: emergencyID,
		ChangedBy:   changedBy,
	})
}

// invalidate drops the cached views an emergency or mode mutation affects.
func (e *Engine) invalidate(ctx context.Context, tournamentID string, emergencies, status bool) {
	var keys []string
	if emergencies {
		keys = append(keys, cache.ActiveEmergenciesKey(tournamentID))
		e.cache.InvalidatePattern(ctx, cache.EmergencyStatsPattern(tournamentID))
	}
	if status {
		keys = append(keys, cache.ProductionStatusKey(tournamentID))
	}
	keys = append(keys, cache.RealtimeMetricsKey(tournamentID))
	e.cache.Invalidate(ctx, keys...)
}

func (e *Engine) businessEvent(name string, fields ...zap.Field) {
	e.log.Info("business event", append([]zap.Field{zap.String("event", name)}, fields...)...)
}

// storeErr passes typed errors through and marks everything else as a store failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Fatal(op, err)
}

func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
