package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmergencyStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to EmergencyStatus
		want     bool
	}{
		{StatusActive, StatusInProgress, true},
		{StatusActive, StatusResolved, true},
		{StatusActive, StatusCancelled, true},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusActive, false},
		{StatusResolved, StatusResolved, true},
		{StatusResolved, StatusActive, false},
		{StatusResolved, StatusCancelled, false},
		{StatusCancelled, StatusInProgress, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransition(tc.to))
		})
	}
}

func TestSortForDisplay_SeverityThenNewest(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	list := []Emergency{
		{ID: "low", Severity: SeverityLow, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "high-old", Severity: SeverityHigh, CreatedAt: base},
		{ID: "crit", Severity: SeverityCritical, CreatedAt: base},
		{ID: "high-new", Severity: SeverityHigh, CreatedAt: base.Add(time.Minute)},
		{ID: "med", Severity: SeverityMedium, CreatedAt: base},
	}

	SortForDisplay(list)

	got := make([]string, 0, len(list))
	for _, e := range list {
		got = append(got, e.ID)
	}
	assert.Equal(t, []string{"crit", "high-new", "high-old", "med", "low"}, got)
}

func TestEmergency_Qualifies(t *testing.T) {
	assert.True(t, Emergency{Status: StatusActive, Severity: SeverityHigh}.Qualifies())
	assert.True(t, Emergency{Status: StatusInProgress, Severity: SeverityCritical}.Qualifies())
	assert.False(t, Emergency{Status: StatusResolved, Severity: SeverityCritical}.Qualifies())
	assert.False(t, Emergency{Status: StatusActive, Severity: SeverityMedium}.Qualifies())
}
