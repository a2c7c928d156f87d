package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
	"github.com/DoyleJ11/floor-ops-backend/pkg/types"
	"go.uber.org/zap"
)

const (
	DefaultTTL           = 300 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// Publisher is the slice of the hub presence needs.
type Publisher interface {
	BroadcastToTournament(tournamentID, event string, payload any)
	BroadcastToTournamentExcept(tournamentID, exceptSession, event string, payload any)
}

// Event is the userOnline / userOffline payload.
type Event struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OnlineUser is one entry of the onlineUsers list, one per user however many
// sessions they hold.
type OnlineUser struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	LastSeen time.Time `json:"lastSeen"`
	Sessions int       `json:"sessions"`
}

type Tracker struct {
	store    Store
	pub      Publisher
	log      *zap.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	kicks map[string]func()
}

type Option func(*Tracker)

func WithTTL(ttl time.Duration) Option { return func(t *Tracker) { t.ttl = ttl } }

func WithSweepInterval(d time.Duration) Option { return func(t *Tracker) { t.interval = d } }

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

func NewTracker(store Store, pub Publisher, log *zap.Logger, opts ...Option) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		store:    store,
		pub:      pub,
		log:      log,
		ttl:      DefaultTTL,
		interval: DefaultSweepInterval,
		now:      time.Now,
		kicks:    map[string]func(){},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect records a new session and tells the rest of the tournament.
// kick, when set, is called if the sweep expires the session.
func (t *Tracker) Connect(ctx context.Context, rec Record, kick func()) error {
	now := t.now()
	rec.ConnectedAt, rec.LastSeen = now, now
	if err := t.store.Insert(ctx, rec, t.ttl); err != nil {
		return err
	}
	t.mu.Lock()
	if kick != nil {
		t.kicks[rec.SessionID] = kick
	}
	t.mu.Unlock()

	metrics.PresenceConnected()
	t.log.Debug("session online",
		zap.String("sessionId", rec.SessionID),
		zap.String("userId", rec.UserID),
		zap.String("tournamentId", rec.TournamentID),
	)
	t.pub.BroadcastToTournamentExcept(rec.TournamentID, rec.SessionID, types.MsgUserOnline, Event{
		UserID:    rec.UserID,
		Role:      string(rec.Role),
		Timestamp: now,
	})
	return nil
}

// Heartbeat refreshes lastSeen. It reports false for a session the sweep already removed.
func (t *Tracker) Heartbeat(ctx context.Context, sessionID string) (bool, error) {
	return t.store.Refresh(ctx, sessionID, t.now(), t.ttl)
}

// Disconnect removes the session. Publishing is left to whichever of
// Disconnect and Sweep actually removed the record.
func (t *Tracker) Disconnect(ctx context.Context, sessionID string) error {
	_, err := t.remove(ctx, sessionID, false)
	return err
}

func (t *Tracker) remove(ctx context.Context, sessionID string, expired bool) (bool, error) {
	rec, err := t.store.Remove(ctx, sessionID)

	t.mu.Lock()
	kick := t.kicks[sessionID]
	delete(t.kicks, sessionID)
	t.mu.Unlock()

	if err != nil || rec == nil {
		return false, err
	}

	metrics.PresenceDisconnected(expired)
	t.log.Debug("session offline",
		zap.String("sessionId", sessionID),
		zap.String("userId", rec.UserID),
		zap.Bool("expired", expired),
	)
	t.pub.BroadcastToTournament(rec.TournamentID, types.MsgUserOffline, Event{
		UserID:    rec.UserID,
		Role:      string(rec.Role),
		Timestamp: t.now(),
	})
	if expired && kick != nil {
		kick()
	}
	return true, nil
}

// Sweep expires sessions silent for longer than the TTL and returns how many it removed.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	ids, err := t.store.Expired(ctx, t.now().Add(-t.ttl))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		ok, err := t.remove(ctx, id, true)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Run sweeps on every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := t.Sweep(ctx)
			if err != nil {
				t.log.Warn("presence sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				t.log.Info("presence sweep", zap.Int("expired", n))
			}
		}
	}
}

// OnlineUsers lists the tournament's users with at least one live session, oldest connection first.
func (t *Tracker) OnlineUsers(ctx context.Context, tournamentID string) ([]OnlineUser, error) {
	recs, err := t.store.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ConnectedAt.Before(recs[j].ConnectedAt) })

	out := []OnlineUser{}
	index := map[string]int{}
	for _, rec := range recs {
		if i, ok := index[rec.UserID]; ok {
			out[i].Sessions++
			if rec.LastSeen.After(out[i].LastSeen) {
				out[i].LastSeen = rec.LastSeen
			}
			continue
		}
		index[rec.UserID] = len(out)
		out = append(out, OnlineUser{UserID: rec.UserID, Role: string(rec.Role), LastSeen: rec.LastSeen, Sessions: 1})
	}
	return out, nil
}

// OnlineUserIDs is OnlineUsers reduced to ids.
func (t *Tracker) OnlineUserIDs(ctx context.Context, tournamentID string) ([]string, error) {
	users, err := t.OnlineUsers(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.UserID
	}
	return ids, nil
}
