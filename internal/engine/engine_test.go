package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/cache"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

var (
	director = Caller{UserID: "dir", TournamentID: "t1", Role: models.RoleFieldDirector}
	member   = Caller{UserID: "u1", TournamentID: "t1", Role: models.RoleFieldMember}
	camera   = Caller{UserID: "u2", TournamentID: "t1", Role: models.RoleCamera}
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	eng   *Engine
	st    *store.MemoryStore
	clock *clock
	logs  *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith builds an engine over a memory store; wrap may decorate the store.
func newFixtureWith(t *testing.T, wrap func(store.Store) store.Store) *fixture {
	t.Helper()
	clk := &clock{now: t0}
	ms := store.NewMemoryStore().WithClock(clk.Now)
	var st store.Store = ms
	if wrap != nil {
		st = wrap(ms)
	}
	core, logs := observer.New(zapcore.InfoLevel)
	layer := cache.NewLayer(cache.NewMemoryCache().WithClock(clk.Now), zap.NewNop())

	n := 0
	eng := New(st, layer, zap.New(core),
		WithClock(clk.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	return &fixture{eng: eng, st: ms, clock: clk, logs: logs}
}

func (f *fixture) create(t *testing.T, c Caller, sev models.Severity, title string) models.Emergency {
	t.Helper()
	em, _, err := f.eng.CreateEmergency(context.Background(), c, CreateEmergencyInput{
		Type:        models.TypeTechnical,
		Severity:    sev,
		Title:       title,
		Description: "Something broke on the main stage",
	})
	require.NoError(t, err)
	return em
}

func (f *fixture) mode(t *testing.T) models.Mode {
	t.Helper()
	st, err := f.eng.GetProductionStatus(context.Background(), director)
	require.NoError(t, err)
	return st.Mode
}

func statusPtr(s models.EmergencyStatus) *models.EmergencyStatus { return &s }

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestCreateEmergency_HighEscalates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	em, events, err := f.eng.CreateEmergency(ctx, member, CreateEmergencyInput{
		Type:        models.TypeNetwork,
		Severity:    models.SeverityHigh,
		Title:       "Encoder offline",
		Description: "Primary encoder lost signal at feature table 1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, em.Status)
	assert.Equal(t, "u1", em.CreatedBy)
	assert.Equal(t, t0, em.CreatedAt)
	assert.Equal(t, []EventType{EvtEmergencyAlert, EvtProductionModeChanged}, eventTypes(events))

	mc := events[1].Payload.(ModeChangedPayload)
	assert.Equal(t, models.ModeEmergency, mc.Mode)
	assert.Contains(t, mc.Reason, "Encoder offline")
	assert.Equal(t, em.ID, mc.EmergencyID)

	st, err := f.eng.GetProductionStatus(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, models.ModeEmergency, st.Mode)
	require.NotNil(t, st.CurrentIssues)
	assert.Equal(t, "Encoder offline", *st.CurrentIssues)

	audit := f.logs.FilterMessage("emergency created").All()
	require.Len(t, audit, 1)
	assert.Equal(t, "emergency-audit", audit[0].LoggerName)
	assert.Equal(t, em.ID, audit[0].ContextMap()["emergencyId"])
}

func TestCreateEmergency_LowSeverityLeavesMode(t *testing.T) {
	f := newFixture(t)

	_, events, err := f.eng.CreateEmergency(context.Background(), member, CreateEmergencyInput{
		Type:        models.TypeEquipment,
		Title:       "Headset crackle",
		Description: "Caster headset crackles on the left channel",
	})
	require.NoError(t, err)

	assert.Equal(t, []EventType{EvtEmergencyAlert}, eventTypes(events))
	assert.Equal(t, models.SeverityMedium, events[0].Payload.(EmergencyPayload).Severity, "severity defaults to MEDIUM")
	assert.Equal(t, models.ModeNormal, f.mode(t))
}

func TestCreateEmergency_ValidationStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, events, err := f.eng.CreateEmergency(ctx, member, CreateEmergencyInput{
		Type:        "FIRE",
		Severity:    models.SeverityHigh,
		Title:       "   ",
		Description: "short",
	})
	require.Error(t, err)
	assert.Nil(t, events)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	fields := []string{}
	for _, is := range ae.Issues {
		fields = append(fields, is.Field)
	}
	assert.Equal(t, []string{"type", "title", "description"}, fields)

	page, err := f.eng.ListEmergencies(ctx, member, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Emergencies)
	assert.Equal(t, models.ModeNormal, f.mode(t))
}

func TestCreateEmergency_StoreFailureRollsBack(t *testing.T) {
	f := newFixtureWith(t, func(s store.Store) store.Store { return failingStatus{s} })
	ctx := context.Background()

	_, events, err := f.eng.CreateEmergency(ctx, member, CreateEmergencyInput{
		Type:        models.TypeSafety,
		Severity:    models.SeverityCritical,
		Title:       "Cable across walkway",
		Description: "Unsecured cable across the audience walkway",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindFatal))
	assert.Nil(t, events)

	list, total, err := f.st.ListEmergencies(ctx, store.EmergencyFilter{TournamentID: "t1"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestUpdateEmergency_ResolveLastRecovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	em := f.create(t, member, models.SeverityHigh, "Encoder offline")
	require.Equal(t, models.ModeEmergency, f.mode(t))

	f.clock.Advance(15 * time.Minute)
	updated, events, err := f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{
		Status:     statusPtr(models.StatusResolved),
		Resolution: strp("Swapped to backup encoder"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, t0.Add(15*time.Minute), *updated.ResolvedAt)
	assert.Equal(t, []EventType{EvtEmergencyUpdated, EvtProductionModeChanged}, eventTypes(events))
	mc := events[1].Payload.(ModeChangedPayload)
	assert.Equal(t, models.ModeNormal, mc.Mode)
	assert.Equal(t, RecoveryReason, mc.Reason)

	st, err := f.eng.GetProductionStatus(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, models.ModeNormal, st.Mode)
	assert.Nil(t, st.CurrentIssues)

	resolved := f.logs.FilterMessage("emergency resolved").All()
	require.Len(t, resolved, 1)
	assert.Equal(t, int64(15), resolved[0].ContextMap()["durationMinutes"])
}

func TestUpdateEmergency_OtherQualifyingKeepsEmergency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	high := f.create(t, member, models.SeverityHigh, "Encoder offline")
	f.create(t, member, models.SeverityCritical, "Stage power loss")

	_, events, err := f.eng.UpdateEmergency(ctx, director, high.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)

	assert.Equal(t, []EventType{EvtEmergencyUpdated}, eventTypes(events))
	assert.Equal(t, models.ModeEmergency, f.mode(t))
}

func TestUpdateEmergency_ResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	em := f.create(t, member, models.SeverityLow, "Monitor flicker")
	f.clock.Advance(5 * time.Minute)
	first, _, err := f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	second, events, err := f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)

	assert.Empty(t, events)
	require.NotNil(t, second.ResolvedAt)
	assert.Equal(t, *first.ResolvedAt, *second.ResolvedAt)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestUpdateEmergency_RejectsBackwardsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	em := f.create(t, member, models.SeverityLow, "Monitor flicker")
	_, _, err := f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusInProgress)})
	require.NoError(t, err)

	_, _, err = f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusActive)})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "status", ae.Issues[0].Field)

	_, _, err = f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusCancelled)})
	require.NoError(t, err)
	_, _, err = f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "terminal statuses are final")
}

func TestUpdateEmergency_ForbiddenLeavesRecordUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	em := f.create(t, member, models.SeverityHigh, "Encoder offline")
	_, events, err := f.eng.UpdateEmergency(ctx, camera, em.ID, UpdateEmergencyInput{
		Status: statusPtr(models.StatusResolved),
		Title:  strp("Hijacked"),
	})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Nil(t, events)

	got, err := f.st.GetEmergency(ctx, "t1", em.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, "Encoder offline", got.Title)
	assert.Nil(t, got.ResolvedAt)
	assert.Equal(t, models.ModeEmergency, f.mode(t))
}

func TestUpdateEmergency_NotFoundAndOtherTournament(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	em := f.create(t, member, models.SeverityLow, "Monitor flicker")
	outsider := Caller{UserID: "dir2", TournamentID: "t2", Role: models.RoleFieldDirector}

	_, _, err := f.eng.UpdateEmergency(ctx, director, "missing", UpdateEmergencyInput{Title: strp("x")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, _, err = f.eng.UpdateEmergency(ctx, outsider, em.ID, UpdateEmergencyInput{Title: strp("x")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteEmergency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	em := f.create(t, member, models.SeverityHigh, "Encoder offline")

	_, err := f.eng.DeleteEmergency(ctx, member, em.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "members cannot delete, even their own")

	_, err = f.eng.DeleteEmergency(ctx, director, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	events, err := f.eng.DeleteEmergency(ctx, director, em.ID)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EvtEmergencyUpdated, EvtProductionModeChanged}, eventTypes(events))
	assert.Equal(t, ActionDeleted, events[0].Payload.(EmergencyPayload).Action)
	assert.Equal(t, models.ModeNormal, f.mode(t))

	_, err = f.st.GetEmergency(ctx, "t1", em.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, f.logs.FilterMessage("emergency deleted").Len())
}

func TestActiveEmergencies_ReflectsWritesThroughCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	warm, err := f.eng.ActiveEmergencies(ctx, member)
	require.NoError(t, err)
	assert.Zero(t, warm.Count)

	low := f.create(t, member, models.SeverityLow, "Monitor flicker")
	f.clock.Advance(time.Second)
	crit := f.create(t, member, models.SeverityCritical, "Stage power loss")

	got, err := f.eng.ActiveEmergencies(ctx, member)
	require.NoError(t, err)
	require.Equal(t, 2, got.Count)
	assert.Equal(t, crit.ID, got.Emergencies[0].ID)
	assert.Equal(t, low.ID, got.Emergencies[1].ID)
	assert.Equal(t, 1, got.SeverityStats[models.SeverityCritical])

	_, _, err = f.eng.UpdateEmergency(ctx, member, low.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)
	got, err = f.eng.ActiveEmergencies(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
}

func TestListEmergencies_Paging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.create(t, member, models.SeverityLow, fmt.Sprintf("Issue %d", i))
		f.clock.Advance(time.Minute)
	}

	page, err := f.eng.ListEmergencies(ctx, member, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Emergencies, 2)
	assert.Equal(t, Pagination{Page: 1, Limit: 2, Total: 3, Pages: 2}, page.Pagination)

	page, err = f.eng.ListEmergencies(ctx, member, ListFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Emergencies, 1)

	_, err = f.eng.ListEmergencies(ctx, member, ListFilter{Limit: 101})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestHistoryAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	high := f.create(t, member, models.SeverityHigh, "Encoder offline")
	low := f.create(t, member, models.SeverityLow, "Monitor flicker")
	f.create(t, member, models.SeverityMedium, "Slow upload")

	f.clock.Advance(30 * time.Minute)
	_, _, err := f.eng.UpdateEmergency(ctx, member, high.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)
	_, _, err = f.eng.UpdateEmergency(ctx, member, low.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusCancelled)})
	require.NoError(t, err)

	hist, err := f.eng.EmergencyHistory(ctx, member, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, hist.Emergencies, 2)
	assert.Equal(t, DefaultDays, hist.Period.Days)
	for _, h := range hist.Emergencies {
		if h.ID == high.ID {
			require.NotNil(t, h.DurationMinutes)
			assert.Equal(t, int64(30), *h.DurationMinutes)
		} else {
			assert.Nil(t, h.DurationMinutes)
		}
	}

	_, err = f.eng.EmergencyHistory(ctx, member, HistoryFilter{Status: models.StatusActive})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	stats, err := f.eng.EmergencyStats(ctx, member, 7)
	require.NoError(t, err)
	assert.Equal(t, Totals{Total: 3, Active: 1, Resolved: 1, Cancelled: 1}, stats.Totals)
	assert.Equal(t, int64(30), stats.Metrics.AverageResolutionTimeMinutes)
	assert.Equal(t, 33, stats.Metrics.ResolutionRate)
	assert.Equal(t, 3, stats.Distributions.ByType[models.TypeTechnical])

	_, err = f.eng.EmergencyStats(ctx, member, 91)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSetProductionMode_SyntheticEmergencyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.eng.SetProductionMode(ctx, member, SetModeInput{Mode: models.ModeEmergency})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	st, events, err := f.eng.SetProductionMode(ctx, director, SetModeInput{Mode: models.ModeEmergency, Reason: "Arena power failure"})
	require.NoError(t, err)
	assert.Equal(t, models.ModeEmergency, st.Mode)
	assert.Equal(t, []EventType{EvtProductionModeChanged, EvtEmergencyAlert}, eventTypes(events))

	synthetic := events[1].Payload.(EmergencyPayload).Emergency
	assert.True(t, synthetic.Synthetic)
	assert.Equal(t, SyntheticTitle, synthetic.Title)
	assert.Equal(t, models.SeverityHigh, synthetic.Severity)
	assert.Equal(t, synthetic.ID, events[0].Payload.(ModeChangedPayload).EmergencyID)
	assert.Equal(t, "dir", events[0].Payload.(ModeChangedPayload).ChangedBy)

	reported := f.create(t, member, models.SeverityHigh, "Encoder offline")

	st, events, err = f.eng.SetProductionMode(ctx, director, SetModeInput{Mode: models.ModeNormal})
	require.NoError(t, err)
	assert.Equal(t, models.ModeNormal, st.Mode)
	assert.Nil(t, st.CurrentIssues)
	assert.Equal(t, []EventType{EvtProductionModeChanged, EvtEmergencyUpdated}, eventTypes(events))

	got, err := f.st.GetEmergency(ctx, "t1", synthetic.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.Equal(t, SyntheticResolution, *got.Resolution)

	got, err = f.st.GetEmergency(ctx, "t1", reported.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status, "operator-reported emergencies are left alone")
}

func TestResolvingSyntheticEmergencyRecovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, events, err := f.eng.SetProductionMode(ctx, director, SetModeInput{Mode: models.ModeEmergency})
	require.NoError(t, err)
	synthetic := events[1].Payload.(EmergencyPayload).Emergency
	assert.Equal(t, SyntheticDescription, synthetic.Description)

	_, events, err = f.eng.UpdateEmergency(ctx, director, synthetic.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtProductionModeChanged))
	assert.Equal(t, models.ModeNormal, f.mode(t))
}

func TestRecoveryNeverOverridesProduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.eng.SetProductionMode(ctx, director, SetModeInput{Mode: models.ModeProduction, Reason: "Broadcast live"})
	require.NoError(t, err)

	em := f.create(t, member, models.SeverityMedium, "Slow upload")
	_, events, err := f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)
	assert.False(t, ContainsEvent(events, EvtProductionModeChanged))
	assert.Equal(t, models.ModeProduction, f.mode(t))

	em = f.create(t, member, models.SeverityHigh, "Encoder offline")
	assert.Equal(t, models.ModeEmergency, f.mode(t))
	_, _, err = f.eng.UpdateEmergency(ctx, member, em.ID, UpdateEmergencyInput{Status: statusPtr(models.StatusResolved)})
	require.NoError(t, err)
	assert.Equal(t, models.ModeNormal, f.mode(t))
}

func TestUpdateProductionStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quality, speed := "1080p60", 12.5
	_, _, err := f.eng.UpdateProductionStatus(ctx, member, StatusPatch{StreamQuality: &quality})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	neg := -1.0
	_, _, err = f.eng.UpdateProductionStatus(ctx, director, StatusPatch{UploadSpeed: &neg})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	st, events, err := f.eng.UpdateProductionStatus(ctx, director, StatusPatch{StreamQuality: &quality, UploadSpeed: &speed})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EvtProductionStatusChanged}, eventTypes(events))
	assert.Equal(t, quality, st.StreamQuality)
	assert.Equal(t, speed, st.UploadSpeed)
	assert.Equal(t, "Not Set", st.FeatureTable)

	emergency := models.ModeEmergency
	st, events, err = f.eng.UpdateProductionStatus(ctx, director, StatusPatch{Mode: &emergency, CurrentIssues: strp("Rain delay")})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EvtProductionStatusChanged, EvtProductionModeChanged, EvtEmergencyAlert}, eventTypes(events))
	assert.Equal(t, "Rain delay", *st.CurrentIssues)
	assert.Equal(t, quality, st.StreamQuality, "earlier fields survive")

	got, err := f.eng.GetProductionStatus(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, models.ModeEmergency, got.Mode)
}

func seedMembers(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []models.TeamMember{
		{ID: "m1", UserID: "u1", TournamentID: "t1", Status: models.MemberActive},
		{ID: "m2", UserID: "u2", TournamentID: "t1", Status: models.MemberActive},
		{ID: "m3", UserID: "u3", TournamentID: "t1", Status: models.MemberOffline},
	} {
		m := m
		require.NoError(t, f.st.SaveTeamMember(ctx, &m))
	}
}

func TestUpdateMemberStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMembers(t, f)

	before, err := f.eng.TeamStats(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(2), before.ByStatus[models.MemberActive])

	m, events, err := f.eng.UpdateMemberStatus(ctx, member, "m1", models.MemberBreak)
	require.NoError(t, err)
	assert.Equal(t, models.MemberBreak, m.Status)
	require.Len(t, events, 1)
	assert.Equal(t, MemberStatusPayload{MemberID: "m1", UserID: "u1", Status: models.MemberBreak, UpdatedBy: "u1"}, events[0].Payload)

	_, _, err = f.eng.UpdateMemberStatus(ctx, member, "m2", models.MemberBreak)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, _, err = f.eng.UpdateMemberStatus(ctx, director, "m2", models.MemberEmergency)
	require.NoError(t, err)

	_, _, err = f.eng.UpdateMemberStatus(ctx, director, "m2", "LUNCH")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, _, err = f.eng.UpdateMemberStatus(ctx, director, "nobody", models.MemberBreak)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	after, err := f.eng.TeamStats(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(3), after.Total)
	assert.Equal(t, int64(1), after.ByStatus[models.MemberBreak])
	assert.Equal(t, int64(1), after.ByStatus[models.MemberEmergency])
	assert.Zero(t, after.ByStatus[models.MemberActive])
}

func TestSetOwnStatus(t *testing.T) {
	f := newFixture(t)
	seedMembers(t, f)

	rows, events, err := f.eng.SetOwnStatus(context.Background(), camera, models.MemberOffline)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m2", rows[0].ID)
	assert.Equal(t, []EventType{EvtTeamMemberStatusChanged}, eventTypes(events))
}

func TestChecklistToggleAndTemplateStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.st.AddTemplate(models.ChecklistTemplate{ID: "tpl1", TournamentID: "t1", Name: "Pre-show", IsActive: true},
		models.ChecklistItem{ID: "i1", Title: "Check mics"},
		models.ChecklistItem{ID: "i2", Title: "Check cameras"},
	)

	check, events, err := f.eng.ToggleChecklistItem(ctx, member, ChecklistToggleInput{ItemID: "i1", IsChecked: true})
	require.NoError(t, err)
	assert.Equal(t, "tpl1", check.TemplateID)
	assert.Equal(t, store.Day(t0), check.Date)
	assert.Equal(t, []EventType{EvtChecklistUpdated}, eventTypes(events))

	stats, err := f.eng.TemplateStats(ctx, member, "")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, TemplateStat{TemplateID: "tpl1", Name: "Pre-show", TotalItems: 2, CompletedChecks: 1, CompletionRate: 50}, stats[0])

	_, _, err = f.eng.ToggleChecklistItem(ctx, member, ChecklistToggleInput{ItemID: "i1", IsChecked: false, Date: "2026-03-14"})
	require.NoError(t, err)
	stats, err = f.eng.TemplateStats(ctx, member, "2026-03-14")
	require.NoError(t, err)
	assert.Zero(t, stats[0].CompletedChecks)

	_, _, err = f.eng.ToggleChecklistItem(ctx, member, ChecklistToggleInput{ItemID: "i1", TemplateID: "other"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, _, err = f.eng.ToggleChecklistItem(ctx, member, ChecklistToggleInput{ItemID: "nope"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.eng.TemplateStats(ctx, member, "14/03/2026")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.st.AddMembership(models.TournamentMember{UserID: "u2", TournamentID: "t1", Role: models.RoleCamera})
	f.st.AddMembership(models.TournamentMember{UserID: "u9", TournamentID: "t2", Role: models.RoleCamera})

	_, events, err := f.eng.SendMessage(ctx, director, MessageInput{RecipientID: "u2", Content: "Move to camera 3"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ScopeUser, events[0].Scope)
	assert.Equal(t, "u2", events[0].Target)

	msg, events, err := f.eng.SendMessage(ctx, director, MessageInput{Content: "Five minutes to air", Type: "BROADCAST"})
	require.NoError(t, err)
	assert.Equal(t, ScopeTournament, events[0].Scope)
	assert.Equal(t, "t1", events[0].Target)
	assert.Equal(t, "MEDIUM", msg.Priority)

	_, _, err = f.eng.SendMessage(ctx, director, MessageInput{Content: " "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, _, err = f.eng.SendMessage(ctx, director, MessageInput{Content: "hi", Priority: "URGENT"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Len(t, f.st.Messages(), 2)
}

func TestSendMessage_RecipientOutsideTournament(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.st.AddMembership(models.TournamentMember{UserID: "u9", TournamentID: "t2", Role: models.RoleCamera})

	for _, recipient := range []string{"u9", "ghost"} {
		_, events, err := f.eng.SendMessage(ctx, director, MessageInput{RecipientID: recipient, Content: "Move to camera 3"})
		require.Error(t, err, recipient)
		assert.True(t, apperr.Is(err, apperr.KindNotFound), recipient)
		assert.Equal(t, "Recipient not found", err.Error())
		assert.Empty(t, events)
	}
	assert.Empty(t, f.st.Messages())
}

func TestRealtimeMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMembers(t, f)
	f.create(t, member, models.SeverityHigh, "Encoder offline")

	m, err := f.eng.RealtimeMetrics(ctx, member, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ModeEmergency, m.ProductionMode)
	assert.Equal(t, int64(1), m.ActiveEmergencies)
	assert.Equal(t, int64(3), m.TeamStatus.Total)
	assert.Equal(t, 2, m.TeamStatus.Online)
	assert.Zero(t, m.ChecklistProgress.Total)

	// The cached snapshot still reports the caller's current online count.
	require.NoError(t, f.st.SaveTeamMember(ctx, &models.TeamMember{ID: "m4", UserID: "u4", TournamentID: "t1", Status: models.MemberActive}))
	m, err = f.eng.RealtimeMetrics(ctx, member, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.TeamStatus.Total, "served from cache")
	assert.Equal(t, 5, m.TeamStatus.Online)
}

type recorder struct{ calls []string }

func (r *recorder) BroadcastToTournament(tournamentID, event string, _ any) {
	r.calls = append(r.calls, "tournament:"+tournamentID+" "+event)
}

func (r *recorder) SendToUser(userID, event string, _ any) {
	r.calls = append(r.calls, "user:"+userID+" "+event)
}

func TestDispatch_PreservesOrderAndScope(t *testing.T) {
	r := &recorder{}
	Dispatch(r, []Event{
		tournamentEvent("t1", EvtEmergencyAlert, nil),
		tournamentEvent("t1", EvtProductionModeChanged, nil),
		{Type: EvtNewMessage, Scope: ScopeUser, Target: "u2"},
	})
	assert.Equal(t, []string{
		"tournament:t1 emergencyAlert",
		"tournament:t1 productionModeChanged",
		"user:u2 newMessage",
	}, r.calls)

	assert.NotPanics(t, func() { Dispatch(nil, []Event{{Type: EvtNewMessage}}) })
}

// failingStatus fails every production status write, inside transactions too.
type failingStatus struct{ store.Store }

var errStatusWrite = errors.New("status write failed")

func (f failingStatus) SaveProductionStatus(context.Context, *models.ProductionStatus) error {
	return errStatusWrite
}

func (f failingStatus) Tx(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.Tx(ctx, func(s store.Store) error { return fn(failingStatus{s}) })
}

func TestOnlineMembers(t *testing.T) {
	f := newFixture(t)
	seedMembers(t, f)

	got, err := f.eng.OnlineMembers(context.Background(), member, []string{"u1", "u3", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[1].ID)

	got, err = f.eng.OnlineMembers(context.Background(), member, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
