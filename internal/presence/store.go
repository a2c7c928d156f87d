// Package presence tracks which sessions are online per tournament.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/models"
)

// Record is one connected session.
type Record struct {
	SessionID    string      `json:"sessionId"`
	UserID       string      `json:"userId"`
	TournamentID string      `json:"tournamentId"`
	Role         models.Role `json:"role"`
	ConnectedAt  time.Time   `json:"connectedAt"`
	LastSeen     time.Time   `json:"lastSeen"`
}

// Store persists presence records. Remove reports the record it deleted, or
// nil when another caller (or expiry) got there first.
type Store interface {
	Insert(ctx context.Context, rec Record, ttl time.Duration) error
	Refresh(ctx context.Context, sessionID string, at time.Time, ttl time.Duration) (bool, error)
	Remove(ctx context.Context, sessionID string) (*Record, error)
	ListByTournament(ctx context.Context, tournamentID string) ([]Record, error)
	Expired(ctx context.Context, cutoff time.Time) ([]string, error)
}

// MemoryStore is the single-node Store. TTLs are not enforced here; the
// tracker's sweep does the expiring.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (m *MemoryStore) Insert(_ context.Context, rec Record, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = rec
	return nil
}

func (m *MemoryStore) Refresh(_ context.Context, sessionID string, at time.Time, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return false, nil
	}
	rec.LastSeen = at
	m.records[sessionID] = rec
	return true, nil
}

func (m *MemoryStore) Remove(_ context.Context, sessionID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	delete(m.records, sessionID)
	return &rec, nil
}

func (m *MemoryStore) ListByTournament(_ context.Context, tournamentID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if rec.TournamentID == tournamentID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out, nil
}

func (m *MemoryStore) Expired(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, rec := range m.records {
		if rec.LastSeen.Before(cutoff) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
