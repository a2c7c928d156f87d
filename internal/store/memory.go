package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/models"
)

type checkKey struct {
	userID, itemID string
	day            time.Time
}

type memData struct {
	users       map[string]models.User
	tournaments map[string]models.Tournament
	memberships []models.TournamentMember
	emergencies map[string]models.Emergency
	production  map[string]models.ProductionStatus
	team        map[string]models.TeamMember
	messages    []models.Message
	templates   map[string]models.ChecklistTemplate
	items       map[string]models.ChecklistItem
	checks      map[checkKey]models.ChecklistCheck
}

func (d *memData) clone() *memData {
	c := &memData{
		users:       cloneMap(d.users),
		tournaments: cloneMap(d.tournaments),
		memberships: append([]models.TournamentMember(nil), d.memberships...),
		emergencies: cloneMap(d.emergencies),
		production:  cloneMap(d.production),
		team:        cloneMap(d.team),
		messages:    append([]models.Message(nil), d.messages...),
		templates:   cloneMap(d.templates),
		items:       cloneMap(d.items),
		checks:      cloneMap(d.checks),
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemoryStore keeps everything in process. Tx restores a snapshot when fn fails.
// Transactions and writes made outside one are serialized by txMu.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex
	d    *memData
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		d: &memData{
			users:       map[string]models.User{},
			tournaments: map[string]models.Tournament{},
			emergencies: map[string]models.Emergency{},
			production:  map[string]models.ProductionStatus{},
			team:        map[string]models.TeamMember{},
			templates:   map[string]models.ChecklistTemplate{},
			items:       map[string]models.ChecklistItem{},
			checks:      map[checkKey]models.ChecklistCheck{},
		},
		now: time.Now,
	}
}

// WithClock replaces the time source used for UpdatedAt stamps.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

// Seed helpers. Rows managed by the outer CRUD surface are written through these.

func (m *MemoryStore) AddUser(u models.User) {
	defer m.lockWrite()()
	m.d.users[u.ID] = u
}

func (m *MemoryStore) AddTournament(t models.Tournament) {
	defer m.lockWrite()()
	m.d.tournaments[t.ID] = t
}

func (m *MemoryStore) AddMembership(tm models.TournamentMember) {
	defer m.lockWrite()()
	m.d.memberships = append(m.d.memberships, tm)
}

func (m *MemoryStore) AddTemplate(t models.ChecklistTemplate, items ...models.ChecklistItem) {
	defer m.lockWrite()()
	m.d.templates[t.ID] = t
	for _, it := range items {
		it.TemplateID = t.ID
		m.d.items[it.ID] = it
	}
}

// Messages returns a copy of every stored message, oldest first.
func (m *MemoryStore) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.d.messages...)
}

func (m *MemoryStore) Tx(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.d.clone()
	m.mu.Unlock()

	if err := fn(&memTx{m}); err != nil {
		m.mu.Lock()
		m.d = snap
		m.mu.Unlock()
		return err
	}
	return nil
}

// lockWrite holds off writers outside a transaction until any open one finishes,
// so a rollback only ever discards the transaction's own writes.
func (m *MemoryStore) lockWrite() func() {
	m.txMu.Lock()
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		m.txMu.Unlock()
	}
}

// memTx is the handle passed to Tx callbacks. It already owns txMu, so its
// writes take only the data lock and nested Tx calls run inline.
type memTx struct{ *MemoryStore }

func (t *memTx) lock() func() {
	t.mu.Lock()
	return t.mu.Unlock
}

func (t *memTx) Tx(ctx context.Context, fn func(Store) error) error {
	t.mu.Lock()
	snap := t.d.clone()
	t.mu.Unlock()

	if err := fn(t); err != nil {
		t.mu.Lock()
		t.d = snap
		t.mu.Unlock()
		return err
	}
	return nil
}

func (t *memTx) CreateEmergency(_ context.Context, e *models.Emergency) error {
	defer t.lock()()
	return t.createEmergency(e)
}

func (t *memTx) SaveEmergency(_ context.Context, e *models.Emergency) error {
	defer t.lock()()
	return t.saveEmergency(e)
}

func (t *memTx) DeleteEmergency(_ context.Context, tournamentID, id string) error {
	defer t.lock()()
	return t.deleteEmergency(tournamentID, id)
}

func (t *memTx) SaveProductionStatus(_ context.Context, st *models.ProductionStatus) error {
	defer t.lock()()
	return t.saveProductionStatus(st)
}

func (t *memTx) SaveTeamMember(_ context.Context, tm *models.TeamMember) error {
	defer t.lock()()
	return t.saveTeamMember(tm)
}

func (t *memTx) SetMemberStatusByUser(_ context.Context, tournamentID, userID string, status models.MemberStatus) ([]models.TeamMember, error) {
	defer t.lock()()
	return t.setMemberStatusByUser(tournamentID, userID, status)
}

func (t *memTx) CreateMessage(_ context.Context, msg *models.Message) error {
	defer t.lock()()
	return t.createMessage(msg)
}

func (t *memTx) UpsertChecklistCheck(_ context.Context, c *models.ChecklistCheck) error {
	defer t.lock()()
	return t.upsertChecklistCheck(c)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateEmergency(_ context.Context, e *models.Emergency) error {
	defer m.lockWrite()()
	return m.createEmergency(e)
}

func (m *MemoryStore) createEmergency(e *models.Emergency) error {
	now := m.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	m.d.emergencies[e.ID] = *e
	return nil
}

func (m *MemoryStore) GetEmergency(_ context.Context, tournamentID, id string) (*models.Emergency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.d.emergencies[id]
	if !ok || e.TournamentID != tournamentID {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) SaveEmergency(_ context.Context, e *models.Emergency) error {
	defer m.lockWrite()()
	return m.saveEmergency(e)
}

func (m *MemoryStore) saveEmergency(e *models.Emergency) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = m.now()
	}
	m.d.emergencies[e.ID] = *e
	return nil
}

func (m *MemoryStore) DeleteEmergency(_ context.Context, tournamentID, id string) error {
	defer m.lockWrite()()
	return m.deleteEmergency(tournamentID, id)
}

func (m *MemoryStore) deleteEmergency(tournamentID, id string) error {
	e, ok := m.d.emergencies[id]
	if !ok || e.TournamentID != tournamentID {
		return ErrNotFound
	}
	delete(m.d.emergencies, id)
	return nil
}

func (m *MemoryStore) ListEmergencies(_ context.Context, f EmergencyFilter) ([]models.Emergency, int64, error) {
	m.mu.Lock()
	var list []models.Emergency
	for _, e := range m.d.emergencies {
		if matches(e, f) {
			list = append(list, e)
		}
	}
	m.mu.Unlock()

	sortEmergencies(list, f.Order)
	total := int64(len(list))

	if f.Offset > 0 {
		if f.Offset >= len(list) {
			list = nil
		} else {
			list = list[f.Offset:]
		}
	}
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, total, nil
}

func matches(e models.Emergency, f EmergencyFilter) bool {
	if e.TournamentID != f.TournamentID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if e.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if f.Synthetic != nil && e.Synthetic != *f.Synthetic {
		return false
	}
	return true
}

func sortEmergencies(list []models.Emergency, o Order) {
	switch o {
	case OrderStatusFirst:
		sort.SliceStable(list, func(i, j int) bool {
			si, sj := list[i].Status.Stage(), list[j].Status.Stage()
			if si != sj {
				return si < sj
			}
			return models.DisplayLess(list[i], list[j])
		})
	case OrderResolvedDesc:
		sort.SliceStable(list, func(i, j int) bool {
			ri, rj := list[i].ResolvedAt, list[j].ResolvedAt
			switch {
			case ri != nil && rj != nil && !ri.Equal(*rj):
				return ri.After(*rj)
			case ri != nil && rj == nil:
				return true
			case ri == nil && rj != nil:
				return false
			}
			return list[i].CreatedAt.After(list[j].CreatedAt)
		})
	default:
		models.SortForDisplay(list)
	}
}

func (m *MemoryStore) CountQualifying(_ context.Context, tournamentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.d.emergencies {
		if e.TournamentID == tournamentID && e.Qualifies() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetProductionStatus(_ context.Context, tournamentID string) (*models.ProductionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.d.production[tournamentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (m *MemoryStore) SaveProductionStatus(_ context.Context, st *models.ProductionStatus) error {
	defer m.lockWrite()()
	return m.saveProductionStatus(st)
}

func (m *MemoryStore) saveProductionStatus(st *models.ProductionStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = m.now()
	}
	m.d.production[st.TournamentID] = *st
	return nil
}

func (m *MemoryStore) ActiveMembership(_ context.Context, userID string) (*models.TournamentMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.d.users[userID]
	if !ok || !u.IsActive {
		return nil, ErrInactiveUser
	}
	for _, tm := range m.d.memberships {
		if tm.UserID != userID {
			continue
		}
		if t, ok := m.d.tournaments[tm.TournamentID]; ok && t.Status == models.TournamentActive {
			out := tm
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetMembership(_ context.Context, tournamentID, userID string) (*models.TournamentMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tm := range m.d.memberships {
		if tm.UserID == userID && tm.TournamentID == tournamentID {
			out := tm
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetTeamMember(_ context.Context, tournamentID, memberID string) (*models.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.d.team[memberID]
	if !ok || tm.TournamentID != tournamentID {
		return nil, ErrNotFound
	}
	return &tm, nil
}

func (m *MemoryStore) SaveTeamMember(_ context.Context, tm *models.TeamMember) error {
	defer m.lockWrite()()
	return m.saveTeamMember(tm)
}

func (m *MemoryStore) saveTeamMember(tm *models.TeamMember) error {
	if tm.UpdatedAt.IsZero() {
		tm.UpdatedAt = m.now()
	}
	m.d.team[tm.ID] = *tm
	return nil
}

func (m *MemoryStore) SetMemberStatusByUser(_ context.Context, tournamentID, userID string, status models.MemberStatus) ([]models.TeamMember, error) {
	defer m.lockWrite()()
	return m.setMemberStatusByUser(tournamentID, userID, status)
}

func (m *MemoryStore) setMemberStatusByUser(tournamentID, userID string, status models.MemberStatus) ([]models.TeamMember, error) {
	var out []models.TeamMember
	for id, tm := range m.d.team {
		if tm.TournamentID == tournamentID && tm.UserID == userID {
			tm.Status = status
			tm.UpdatedAt = m.now()
			m.d.team[id] = tm
			out = append(out, tm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CountMembersByStatus(_ context.Context, tournamentID string) (map[models.MemberStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[models.MemberStatus]int64{}
	for _, tm := range m.d.team {
		if tm.TournamentID == tournamentID {
			out[tm.Status]++
		}
	}
	return out, nil
}

func (m *MemoryStore) ListMembersByUsers(_ context.Context, tournamentID string, userIDs []string) ([]models.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []models.TeamMember
	for _, tm := range m.d.team {
		if tm.TournamentID == tournamentID && want[tm.UserID] {
			out = append(out, tm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateMessage(_ context.Context, msg *models.Message) error {
	defer m.lockWrite()()
	return m.createMessage(msg)
}

func (m *MemoryStore) createMessage(msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.d.messages = append(m.d.messages, *msg)
	return nil
}

func (m *MemoryStore) GetChecklistItem(_ context.Context, tournamentID, itemID string) (*models.ChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.d.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	if t, ok := m.d.templates[it.TemplateID]; !ok || t.TournamentID != tournamentID {
		return nil, ErrNotFound
	}
	return &it, nil
}

func (m *MemoryStore) UpsertChecklistCheck(_ context.Context, c *models.ChecklistCheck) error {
	defer m.lockWrite()()
	return m.upsertChecklistCheck(c)
}

func (m *MemoryStore) upsertChecklistCheck(c *models.ChecklistCheck) error {
	day := Day(c.Date)
	c.Date = day
	m.d.checks[checkKey{c.UserID, c.ItemID, day}] = *c
	return nil
}

func (m *MemoryStore) ListActiveTemplates(_ context.Context, tournamentID string) ([]models.ChecklistTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChecklistTemplate
	for _, t := range m.d.templates {
		if t.TournamentID == tournamentID && t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CountItemsByTemplate(_ context.Context, templateIDs []string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(templateIDs))
	want := toSet(templateIDs)
	for _, it := range m.d.items {
		if want[it.TemplateID] {
			out[it.TemplateID]++
		}
	}
	return out, nil
}

func (m *MemoryStore) CountChecksByTemplate(_ context.Context, templateIDs []string, day time.Time) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(templateIDs))
	want := toSet(templateIDs)
	d := Day(day)
	for k, c := range m.d.checks {
		if want[c.TemplateID] && c.IsChecked && k.day.Equal(d) {
			out[c.TemplateID]++
		}
	}
	return out, nil
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}
