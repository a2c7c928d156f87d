package engine

import (
	"fmt"

	"github.com/DoyleJ11/floor-ops-backend/internal/models"
)

type Cause string

const (
	CauseEscalation Cause = "auto_escalation"
	CauseRecovery   Cause = "auto_recovery"
	CauseManual     Cause = "manual"
)

const RecoveryReason = "All emergencies resolved"

// ModeChange describes a transition the state machine decided on.
type ModeChange struct {
	From   models.Mode
	To     models.Mode
	Cause  Cause
	Reason string
}

/*
	Transitions

	any        --Escalate(qualifying e)--> EMERGENCY   currentIssues = e.title
	EMERGENCY  --Recover(0 qualifying)---> NORMAL      currentIssues = nil
	any        --SetManual(m, reason)----> m           currentIssues = reason, or nil for NORMAL without one

	Recover never leaves PRODUCTION or NORMAL; only EMERGENCY is owned by the
	emergency lifecycle.
*/

// Escalate forces EMERGENCY for a qualifying emergency. The change is
// reported even when the mode already was EMERGENCY so every escalation is
// announced.
func Escalate(st models.ProductionStatus, e models.Emergency) (models.ProductionStatus, *ModeChange) {
	if !e.Qualifies() {
		return st, nil
	}
	change := &ModeChange{
		From:   st.Mode,
		To:     models.ModeEmergency,
		Cause:  CauseEscalation,
		Reason: fmt.Sprintf("Auto-activated due to %s emergency: %s", e.Severity, e.Title),
	}
	title := e.Title
	st.Mode = models.ModeEmergency
	st.CurrentIssues = &title
	return st, change
}

// Recover returns to NORMAL once nothing qualifying is left.
func Recover(st models.ProductionStatus, qualifying int64) (models.ProductionStatus, *ModeChange) {
	if qualifying > 0 || st.Mode != models.ModeEmergency {
		return st, nil
	}
	change := &ModeChange{From: st.Mode, To: models.ModeNormal, Cause: CauseRecovery, Reason: RecoveryReason}
	st.Mode = models.ModeNormal
	st.CurrentIssues = nil
	return st, change
}

// SetManual applies an operator-chosen mode.
func SetManual(st models.ProductionStatus, mode models.Mode, reason string) (models.ProductionStatus, *ModeChange) {
	change := &ModeChange{From: st.Mode, To: mode, Cause: CauseManual, Reason: reason}
	st.Mode = mode
	switch {
	case reason != "":
		r := reason
		st.CurrentIssues = &r
	case mode == models.ModeNormal:
		st.CurrentIssues = nil
	}
	return st, change
}
