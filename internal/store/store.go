// Package store is the durable source of truth for coordination state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/models"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInactiveUser = errors.New("store: user inactive or unknown")
)

type Order int

const (
	// OrderDisplay is severity (CRITICAL first) then newest first.
	OrderDisplay Order = iota
	// OrderStatusFirst puts ACTIVE before IN_PROGRESS before closed, then OrderDisplay.
	OrderStatusFirst
	// OrderResolvedDesc is most recently resolved first.
	OrderResolvedDesc
)

type EmergencyFilter struct {
	TournamentID string
	Statuses     []models.EmergencyStatus
	Type         models.EmergencyType
	Severity     models.Severity
	Since        time.Time
	Synthetic    *bool
	Order        Order
	Offset       int
	Limit        int // 0 = no limit
}

// Store is everything the coordination engine reads and writes.
// Tx runs fn against a transactional view; an error from fn rolls everything back.
type Store interface {
	Tx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error

	CreateEmergency(ctx context.Context, e *models.Emergency) error
	GetEmergency(ctx context.Context, tournamentID, id string) (*models.Emergency, error)
	SaveEmergency(ctx context.Context, e *models.Emergency) error
	DeleteEmergency(ctx context.Context, tournamentID, id string) error
	ListEmergencies(ctx context.Context, f EmergencyFilter) ([]models.Emergency, int64, error)
	CountQualifying(ctx context.Context, tournamentID string) (int64, error)

	GetProductionStatus(ctx context.Context, tournamentID string) (*models.ProductionStatus, error)
	SaveProductionStatus(ctx context.Context, st *models.ProductionStatus) error

	ActiveMembership(ctx context.Context, userID string) (*models.TournamentMember, error)
	GetMembership(ctx context.Context, tournamentID, userID string) (*models.TournamentMember, error)

	GetTeamMember(ctx context.Context, tournamentID, memberID string) (*models.TeamMember, error)
	SaveTeamMember(ctx context.Context, m *models.TeamMember) error
	SetMemberStatusByUser(ctx context.Context, tournamentID, userID string, status models.MemberStatus) ([]models.TeamMember, error)
	CountMembersByStatus(ctx context.Context, tournamentID string) (map[models.MemberStatus]int64, error)
	ListMembersByUsers(ctx context.Context, tournamentID string, userIDs []string) ([]models.TeamMember, error)

	CreateMessage(ctx context.Context, m *models.Message) error

	GetChecklistItem(ctx context.Context, tournamentID, itemID string) (*models.ChecklistItem, error)
	UpsertChecklistCheck(ctx context.Context, c *models.ChecklistCheck) error
	ListActiveTemplates(ctx context.Context, tournamentID string) ([]models.ChecklistTemplate, error)
	CountItemsByTemplate(ctx context.Context, templateIDs []string) (map[string]int64, error)
	CountChecksByTemplate(ctx context.Context, templateIDs []string, day time.Time) (map[string]int64, error)
}

// Day truncates t to midnight UTC, the key used for daily checklist ticks.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
