package presence

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const lastSeenKey = "presence:last_seen"

func onlineKey(sessionID string) string { return "online:" + sessionID }

func tournamentKey(tournamentID string) string { return "presence:tournament:" + tournamentID }

// RedisStore shares presence across nodes. Record keys live for twice the
// liveness window so the sweep, not key expiry, is what observes a timeout;
// the expiry only cleans up after a crashed node.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

func (r *RedisStore) Insert(ctx context.Context, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, onlineKey(rec.SessionID), raw, 2*ttl)
		p.SAdd(ctx, tournamentKey(rec.TournamentID), rec.SessionID)
		p.ZAdd(ctx, lastSeenKey, &redis.Z{Score: score(rec.LastSeen), Member: rec.SessionID})
		return nil
	})
	return err
}

func decode(cmd *redis.StringCmd) (*Record, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

const refreshAttempts = 3

// Refresh rewrites the record under WATCH. A concurrent Remove aborts the
// write, and the retry then finds the key gone instead of recreating it.
func (r *RedisStore) Refresh(ctx context.Context, sessionID string, at time.Time, ttl time.Duration) (bool, error) {
	key := onlineKey(sessionID)
	for i := 0; i < refreshAttempts; i++ {
		alive := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := decode(tx.Get(ctx, key))
			if err != nil || rec == nil {
				return err
			}
			rec.LastSeen = at
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, raw, 2*ttl)
				p.ZAdd(ctx, lastSeenKey, &redis.Z{Score: score(at), Member: sessionID})
				return nil
			})
			alive = err == nil
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return alive, err
	}
	return false, redis.TxFailedErr
}

// Remove uses GETDEL so exactly one caller sees the record.
func (r *RedisStore) Remove(ctx context.Context, sessionID string) (*Record, error) {
	raw, err := r.client.GetDel(ctx, onlineKey(sessionID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if errors.Is(err, redis.Nil) {
		return nil, r.client.ZRem(ctx, lastSeenKey, sessionID).Err()
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, tournamentKey(rec.TournamentID), sessionID)
		p.ZRem(ctx, lastSeenKey, sessionID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByTournament drops set members whose record key has already expired.
func (r *RedisStore) ListByTournament(ctx context.Context, tournamentID string) ([]Record, error) {
	ids, err := r.client.SMembers(ctx, tournamentKey(tournamentID)).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = onlineKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var (
		out   []Record
		stale []any
	)
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, tournamentKey(tournamentID), stale...).Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *RedisStore) Expired(ctx context.Context, cutoff time.Time) ([]string, error) {
	return r.client.ZRangeByScore(ctx, lastSeenKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
}
