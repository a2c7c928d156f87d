package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type published struct {
	tournament string
	except     string
	event      string
	payload    Event
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) BroadcastToTournament(tournamentID, event string, payload any) {
	r.BroadcastToTournamentExcept(tournamentID, "", event, payload)
}

func (r *recorder) BroadcastToTournamentExcept(tournamentID, except, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, _ := payload.(Event)
	r.events = append(r.events, published{tournament: tournamentID, except: except, event: event, payload: ev})
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.events {
		if p.event == event {
			n++
		}
	}
	return n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func redisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

// backends runs fn against both Store implementations.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) {
		s, _ := redisStore(t)
		fn(t, s)
	})
}

func newTracker(s Store) (*Tracker, *recorder, *clock) {
	pub := &recorder{}
	clk := &clock{now: t0}
	return NewTracker(s, pub, nil, WithClock(clk.Now)), pub, clk
}

func rec(session, user string) Record {
	return Record{SessionID: session, UserID: user, TournamentID: "t1", Role: models.RoleCamera}
}

func TestTracker_ConnectAnnouncesToOthers(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		tr, pub, _ := newTracker(s)
		ctx := context.Background()

		require.NoError(t, tr.Connect(ctx, rec("s1", "u1"), nil))
		require.NoError(t, tr.Connect(ctx, rec("s2", "u1"), nil))
		require.NoError(t, tr.Connect(ctx, rec("s3", "u2"), nil))

		require.Len(t, pub.events, 3)
		first := pub.events[0]
		assert.Equal(t, "userOnline", first.event)
		assert.Equal(t, "t1", first.tournament)
		assert.Equal(t, "s1", first.except, "the connecting session is excluded")
		assert.Equal(t, "u1", first.payload.UserID)

		users, err := tr.OnlineUsers(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "u1", users[0].UserID)
		assert.Equal(t, 2, users[0].Sessions)

		ids, err := tr.OnlineUserIDs(ctx, "t2")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestTracker_DisconnectPublishesOnce(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		tr, pub, _ := newTracker(s)
		ctx := context.Background()

		require.NoError(t, tr.Connect(ctx, rec("s1", "u1"), nil))
		require.NoError(t, tr.Disconnect(ctx, "s1"))
		require.NoError(t, tr.Disconnect(ctx, "s1"))

		assert.Equal(t, 1, pub.count("userOffline"))
		users, err := tr.OnlineUsers(ctx, "t1")
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func TestTracker_SweepExpiresSilentSessions(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		tr, pub, clk := newTracker(s)
		ctx := context.Background()

		kicked := map[string]bool{}
		require.NoError(t, tr.Connect(ctx, rec("quiet", "u1"), func() { kicked["quiet"] = true }))
		require.NoError(t, tr.Connect(ctx, rec("chatty", "u2"), func() { kicked["chatty"] = true }))

		clk.Advance(200 * time.Second)
		ok, err := tr.Heartbeat(ctx, "chatty")
		require.NoError(t, err)
		assert.True(t, ok)

		clk.Advance(101 * time.Second)
		n, err := tr.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, n)
		assert.True(t, kicked["quiet"])
		assert.False(t, kicked["chatty"])
		assert.Equal(t, 1, pub.count("userOffline"))

		users, err := tr.OnlineUsers(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "u2", users[0].UserID)

		ok, err = tr.Heartbeat(ctx, "quiet")
		require.NoError(t, err)
		assert.False(t, ok, "expired sessions cannot be revived by a late heartbeat")

		require.NoError(t, tr.Disconnect(ctx, "quiet"))
		assert.Equal(t, 1, pub.count("userOffline"), "disconnect after expiry publishes nothing")
	})
}

func TestTracker_SweepAndDisconnectRace(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		tr, pub, clk := newTracker(s)
		ctx := context.Background()

		const sessions = 20
		for i := 0; i < sessions; i++ {
			id := string(rune('a' + i))
			require.NoError(t, tr.Connect(ctx, rec(id, "user-"+id), nil))
		}
		clk.Advance(301 * time.Second)

		var wg sync.WaitGroup
		wg.Add(sessions + 1)
		go func() {
			defer wg.Done()
			_, _ = tr.Sweep(ctx)
		}()
		for i := 0; i < sessions; i++ {
			id := string(rune('a' + i))
			go func() {
				defer wg.Done()
				_ = tr.Disconnect(ctx, id)
			}()
		}
		wg.Wait()

		assert.Equal(t, sessions, pub.count("userOffline"))
	})
}

// sweepOnGet runs the sweep right after the first record read, landing it
// between a heartbeat's read and its write.
type sweepOnGet struct {
	once  sync.Once
	sweep func()
}

func (h *sweepOnGet) BeforeProcess(ctx context.Context, _ redis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (h *sweepOnGet) AfterProcess(_ context.Context, cmd redis.Cmder) error {
	if cmd.Name() == "get" {
		h.once.Do(h.sweep)
	}
	return nil
}

func (h *sweepOnGet) BeforeProcessPipeline(ctx context.Context, _ []redis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (h *sweepOnGet) AfterProcessPipeline(context.Context, []redis.Cmder) error { return nil }

func TestTracker_HeartbeatRacingSweep(t *testing.T) {
	s, mr := redisStore(t)
	tr, pub, clk := newTracker(s)
	ctx := context.Background()

	kicks := 0
	require.NoError(t, tr.Connect(ctx, rec("s1", "u1"), func() { kicks++ }))
	clk.Advance(301 * time.Second)

	swept := 0
	s.client.AddHook(&sweepOnGet{sweep: func() {
		n, err := tr.Sweep(ctx)
		require.NoError(t, err)
		swept = n
	}})

	ok, err := tr.Heartbeat(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "a heartbeat that loses to the sweep reports the session dead")
	assert.Equal(t, 1, swept)
	assert.False(t, mr.Exists("online:s1"))
	_, err = mr.ZScore("presence:last_seen", "s1")
	assert.Error(t, err, "no last-seen entry is left behind")

	n, err := tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, pub.count("userOffline"))
	assert.Equal(t, 1, kicks)
}

func TestTracker_RunSweepsOnInterval(t *testing.T) {
	pub := &recorder{}
	clk := &clock{now: t0}
	tr := NewTracker(NewMemoryStore(), pub, nil, WithClock(clk.Now), WithTTL(time.Second), WithSweepInterval(10*time.Millisecond))

	kicked := make(chan struct{})
	require.NoError(t, tr.Connect(context.Background(), rec("s1", "u1"), func() { close(kicked) }))
	clk.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	select {
	case <-kicked:
	case <-time.After(time.Second):
		t.Fatalf("Run never expired the session")
	}
}

func TestRedisStore_Keys(t *testing.T) {
	s, mr := redisStore(t)
	ctx := context.Background()

	r := rec("s1", "u1")
	r.LastSeen = t0
	require.NoError(t, s.Insert(ctx, r, DefaultTTL))

	assert.True(t, mr.Exists("online:s1"))
	assert.Equal(t, 2*DefaultTTL, mr.TTL("online:s1"))
	ok, err := mr.SIsMember("presence:tournament:t1", "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	sc, err := mr.ZScore("presence:last_seen", "s1")
	require.NoError(t, err)
	assert.Equal(t, float64(t0.UnixMilli()), sc)

	// A record key lost to expiry leaves a stale set member that listing cleans up.
	mr.Del("online:s1")
	list, err := s.ListByTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
	ok, _ = mr.SIsMember("presence:tournament:t1", "s1")
	assert.False(t, ok)

	got, err := s.Remove(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
	ids, err := s.Expired(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids, "remove clears the last-seen index even without a record")
}
