package models

import (
	"sort"
	"time"
)

type EmergencyType string

const (
	TypeTechnical EmergencyType = "TECHNICAL"
	TypeEquipment EmergencyType = "EQUIPMENT"
	TypeNetwork   EmergencyType = "NETWORK"
	TypePersonnel EmergencyType = "PERSONNEL"
	TypeSafety    EmergencyType = "SAFETY"
	TypeOther     EmergencyType = "OTHER"
)

var EmergencyTypes = []EmergencyType{TypeTechnical, TypeEquipment, TypeNetwork, TypePersonnel, TypeSafety, TypeOther}

func (t EmergencyType) Valid() bool {
	for _, v := range EmergencyTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities for display; unknown values sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// Escalates reports whether an open emergency of this severity forces EMERGENCY mode.
func (s Severity) Escalates() bool {
	return s == SeverityHigh || s == SeverityCritical
}

type EmergencyStatus string

const (
	StatusActive     EmergencyStatus = "ACTIVE"
	StatusInProgress EmergencyStatus = "IN_PROGRESS"
	StatusResolved   EmergencyStatus = "RESOLVED"
	StatusCancelled  EmergencyStatus = "CANCELLED"
)

var EmergencyStatuses = []EmergencyStatus{StatusActive, StatusInProgress, StatusResolved, StatusCancelled}

// OpenStatuses are the statuses counted as "active" everywhere.
var OpenStatuses = []EmergencyStatus{StatusActive, StatusInProgress}

// ClosedStatuses are the terminal statuses.
var ClosedStatuses = []EmergencyStatus{StatusResolved, StatusCancelled}

// Stage is the position in ACTIVE -> IN_PROGRESS -> {RESOLVED, CANCELLED}; -1 when unknown.
func (s EmergencyStatus) Stage() int {
	switch s {
	case StatusActive:
		return 0
	case StatusInProgress:
		return 1
	case StatusResolved, StatusCancelled:
		return 2
	default:
		return -1
	}
}

func (s EmergencyStatus) Valid() bool    { return s.Stage() >= 0 }
func (s EmergencyStatus) Open() bool     { return s == StatusActive || s == StatusInProgress }
func (s EmergencyStatus) Terminal() bool { return s.Stage() == 2 }

// CanTransition reports whether a status patch from s to next is legal.
// Same-status patches are allowed and treated as no-ops by callers.
func (s EmergencyStatus) CanTransition(next EmergencyStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.Stage() > s.Stage()
}

type Emergency struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	TournamentID string          `gorm:"type:varchar(36);index;not null" json:"tournamentId"`
	CreatedBy    string          `gorm:"column:user_id;type:varchar(36);not null" json:"createdBy"`
	Type         EmergencyType   `gorm:"type:varchar(20);not null" json:"type"`
	Severity     Severity        `gorm:"type:varchar(20);not null" json:"severity"`
	Title        string          `gorm:"type:varchar(200);not null" json:"title"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	Status       EmergencyStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	Resolution   *string         `gorm:"type:text" json:"resolution"`
	Synthetic    bool            `gorm:"not null;default:false" json:"synthetic"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	ResolvedAt   *time.Time      `json:"resolvedAt"`
}

// Qualifies reports whether e keeps its tournament in EMERGENCY mode.
func (e Emergency) Qualifies() bool {
	return e.Status.Open() && e.Severity.Escalates()
}

// Duration is resolvedAt - createdAt, zero while unresolved.
func (e Emergency) Duration() time.Duration {
	if e.ResolvedAt == nil {
		return 0
	}
	return e.ResolvedAt.Sub(e.CreatedAt)
}

// DisplayLess orders by severity (CRITICAL first), then newest first.
func DisplayLess(a, b Emergency) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func SortForDisplay(list []Emergency) {
	sort.SliceStable(list, func(i, j int) bool { return DisplayLess(list[i], list[j]) })
}
