package engine

import (
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
)

type EventType string

const (
	EvtEmergencyAlert          EventType = "emergencyAlert"
	EvtEmergencyUpdated        EventType = "emergencyUpdated"
	EvtProductionStatusChanged EventType = "productionStatusChanged"
	EvtProductionModeChanged   EventType = "productionModeChanged"
	EvtTeamMemberStatusChanged EventType = "teamMemberStatusChanged"
	EvtChecklistUpdated        EventType = "checklistUpdated"
	EvtNewMessage              EventType = "newMessage"
)

type Scope int

const (
	ScopeTournament Scope = iota
	ScopeUser
)

// Event is one outbound notification. Engine operations return them in emit
// order; the transport dispatches them once the store commit has happened.
type Event struct {
	Type    EventType
	Scope   Scope
	Target  string // tournament id or user id, depending on Scope
	Payload any
}

func tournamentEvent(tournamentID string, t EventType, payload any) Event {
	return Event{Type: t, Scope: ScopeTournament, Target: tournamentID, Payload: payload}
}

// Publisher is the broadcaster as seen by the engine.
type Publisher interface {
	BroadcastToTournament(tournamentID, event string, payload any)
	SendToUser(userID, event string, payload any)
}

// Dispatch publishes events in order.
func Dispatch(p Publisher, events []Event) {
	if p == nil {
		return
	}
	for _, ev := range events {
		switch ev.Scope {
		case ScopeUser:
			p.SendToUser(ev.Target, string(ev.Type), ev.Payload)
		default:
			p.BroadcastToTournament(ev.Target, string(ev.Type), ev.Payload)
		}
		metrics.EventPublished(string(ev.Type))
	}
}

func ContainsEvent(events []Event, t EventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// Payloads. Emergency and status payloads flatten the record next to the
// notification fields.

type EmergencyPayload struct {
	models.Emergency
	Action    string `json:"action"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

type ModeChangedPayload struct {
	Mode        models.Mode `json:"mode"`
	Reason      string      `json:"reason,omitempty"`
	EmergencyID string      `json:"emergencyId,omitempty"`
	ChangedBy   string      `json:"changedBy,omitempty"`
}

type StatusChangedPayload struct {
	models.ProductionStatus
	UpdatedBy string `json:"updatedBy"`
}

type MemberStatusPayload struct {
	MemberID  string              `json:"memberId,omitempty"`
	UserID    string              `json:"userId"`
	Status    models.MemberStatus `json:"status"`
	UpdatedBy string              `json:"updatedBy"`
}

type ChecklistPayload struct {
	UserID     string    `json:"userId"`
	ItemID     string    `json:"itemId"`
	TemplateID string    `json:"templateId"`
	IsChecked  bool      `json:"isChecked"`
	Date       time.Time `json:"date"`
}
