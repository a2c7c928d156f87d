package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	DefaultDays      = 30
	MaxDays          = 90
	dateLayout       = "2006-01-02"
)

type issues []apperr.Issue

func (is *issues) add(field, format string, args ...any) {
	*is = append(*is, apperr.Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (is issues) err() error {
	if len(is) == 0 {
		return nil
	}
	return apperr.Validation(is...)
}

func (is *issues) length(field, v string, min, max int) {
	n := utf8.RuneCountInString(v)
	switch {
	case n < min && min == 1:
		*is = append(*is, apperr.Issue{Field: field, Message: field + " is required"})
	case n < min:
		is.add(field, "%s must be at least %d characters", field, min)
	case n > max:
		is.add(field, "%s must be at most %d characters", field, max)
	}
}

type CreateEmergencyInput struct {
	Type        models.EmergencyType `json:"type"`
	Severity    models.Severity      `json:"severity"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
}

func (in *CreateEmergencyInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}

	var is issues
	if !in.Type.Valid() {
		is.add("type", "type must be one of %v", models.EmergencyTypes)
	}
	if !in.Severity.Valid() {
		is.add("severity", "severity must be one of %v", models.Severities)
	}
	is.length("title", in.Title, 1, 200)
	is.length("description", in.Description, 10, 1000)
	return is.err()
}

type UpdateEmergencyInput struct {
	Status      *models.EmergencyStatus `json:"status"`
	Title       *string                 `json:"title"`
	Description *string                 `json:"description"`
	Resolution  *string                 `json:"resolution"`
}

func (in *UpdateEmergencyInput) validate() error {
	var is issues
	if in.Status != nil && !in.Status.Valid() {
		is.add("status", "status must be one of %v", models.EmergencyStatuses)
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		in.Title = &t
		is.length("title", t, 1, 200)
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
		is.length("description", d, 10, 1000)
	}
	if in.Resolution != nil {
		is.length("resolution", *in.Resolution, 0, 1000)
	}
	return is.err()
}

type ListFilter struct {
	Status   models.EmergencyStatus `json:"status"`
	Type     models.EmergencyType   `json:"type"`
	Severity models.Severity        `json:"severity"`
	Page     int                    `json:"page"`
	Limit    int                    `json:"limit"`
}

func (f *ListFilter) validate() error {
	var is issues
	if f.Status != "" && !f.Status.Valid() {
		is.add("status", "status must be one of %v", models.EmergencyStatuses)
	}
	if f.Type != "" && !f.Type.Valid() {
		is.add("type", "type must be one of %v", models.EmergencyTypes)
	}
	if f.Severity != "" && !f.Severity.Valid() {
		is.add("severity", "severity must be one of %v", models.Severities)
	}
	paging(&is, &f.Page, &f.Limit)
	return is.err()
}

type HistoryFilter struct {
	Days   int                    `json:"days"`
	Status models.EmergencyStatus `json:"status"`
	Page   int                    `json:"page"`
	Limit  int                    `json:"limit"`
}

func (f *HistoryFilter) validate() error {
	var is issues
	if f.Status != "" && !f.Status.Terminal() {
		is.add("status", "status must be one of %v", models.ClosedStatuses)
	}
	dayRange(&is, &f.Days)
	paging(&is, &f.Page, &f.Limit)
	return is.err()
}

func paging(is *issues, page, limit *int) {
	if *page == 0 {
		*page = 1
	}
	if *limit == 0 {
		*limit = DefaultPageLimit
	}
	if *page < 1 {
		is.add("page", "page must be at least 1")
	}
	if *limit < 1 || *limit > MaxPageLimit {
		is.add("limit", "limit must be between 1 and %d", MaxPageLimit)
	}
}

func dayRange(is *issues, d *int) {
	if *d == 0 {
		*d = DefaultDays
	}
	if *d < 1 || *d > MaxDays {
		is.add("days", "days must be between 1 and %d", MaxDays)
	}
}

type SetModeInput struct {
	Mode   models.Mode `json:"mode"`
	Reason string      `json:"reason"`
}

func (in *SetModeInput) validate() error {
	in.Reason = strings.TrimSpace(in.Reason)
	var is issues
	if !in.Mode.Valid() {
		is.add("mode", "mode must be one of [NORMAL PRODUCTION EMERGENCY]")
	}
	is.length("reason", in.Reason, 0, 200)
	return is.err()
}

type StatusPatch struct {
	Mode          *models.Mode         `json:"mode"`
	FeatureTable  *string              `json:"featureTable"`
	StreamQuality *string              `json:"streamQuality"`
	UploadSpeed   *float64             `json:"uploadSpeed"`
	TeamStatus    *models.TeamSnapshot `json:"teamStatus"`
	CurrentIssues *string              `json:"currentIssues"`
	NextSchedule  *time.Time           `json:"nextSchedule"`
}

func (p *StatusPatch) validate() error {
	var is issues
	if p.Mode != nil && !p.Mode.Valid() {
		is.add("mode", "mode must be one of [NORMAL PRODUCTION EMERGENCY]")
	}
	if p.FeatureTable != nil {
		is.length("featureTable", *p.FeatureTable, 0, 100)
	}
	if p.StreamQuality != nil {
		is.length("streamQuality", *p.StreamQuality, 0, 50)
	}
	if p.UploadSpeed != nil && *p.UploadSpeed < 0 {
		is.add("uploadSpeed", "uploadSpeed must be >= 0")
	}
	if p.CurrentIssues != nil {
		is.length("currentIssues", *p.CurrentIssues, 0, 500)
	}
	return is.err()
}

type ChecklistToggleInput struct {
	ItemID     string `json:"itemId"`
	TemplateID string `json:"templateId"`
	IsChecked  bool   `json:"isChecked"`
	Date       string `json:"date"`
}

type MessageInput struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
}

var (
	messageTypes      = []string{"GENERAL", "BROADCAST", "EMERGENCY"}
	messagePriorities = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}
)

func (in *MessageInput) validate() error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Type == "" {
		in.Type = "GENERAL"
	}
	if in.Priority == "" {
		in.Priority = "MEDIUM"
	}
	var is issues
	is.length("content", in.Content, 1, 2000)
	if !oneOf(in.Type, messageTypes) {
		is.add("type", "type must be one of %v", messageTypes)
	}
	if !oneOf(in.Priority, messagePriorities) {
		is.add("priority", "priority must be one of %v", messagePriorities)
	}
	return is.err()
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// parseDay accepts YYYY-MM-DD or RFC 3339; empty means today.
func parseDay(field, v string, now time.Time) (time.Time, error) {
	if v == "" {
		return store.Day(now), nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return store.Day(t), nil
	}
	var is issues
	is.add(field, "%s must be a date (YYYY-MM-DD)", field)
	return time.Time{}, is.err()
}
