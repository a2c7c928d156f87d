package engine

import (
	"context"
	"math"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/cache"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"go.uber.org/zap"
)

func validMemberStatus(s models.MemberStatus) error {
	if s.Valid() {
		return nil
	}
	var is issues
	is.add("status", "status must be one of [ACTIVE BREAK OFFLINE EMERGENCY]")
	return is.err()
}

// UpdateMemberStatus sets one team member's status. Members may change their
// own; directors may change anyone's.
func (e *Engine) UpdateMemberStatus(ctx context.Context, c Caller, memberID string, status models.MemberStatus) (models.TeamMember, []Event, error) {
	if err := validMemberStatus(status); err != nil {
		return models.TeamMember{}, nil, err
	}
	m, err := e.store.GetTeamMember(ctx, c.TournamentID, memberID)
	if err != nil {
		return models.TeamMember{}, nil, storeErr("get team member", notFound(err, "Team member"))
	}
	if err := auth.Require(auth.ActionUpdateMemberStatus, c.Role, c.UserID, m.UserID); err != nil {
		return models.TeamMember{}, nil, err
	}

	old := m.Status
	m.Status = status
	m.UpdatedAt = e.now()
	if err := e.store.SaveTeamMember(ctx, m); err != nil {
		return models.TeamMember{}, nil, storeErr("update team member", err)
	}
	e.cache.Invalidate(ctx, cache.TeamStatsKey(c.TournamentID), cache.RealtimeMetricsKey(c.TournamentID))

	e.businessEvent("team_member_status_updated",
		zap.String("memberId", m.ID),
		zap.String("targetUserId", m.UserID),
		zap.String("oldStatus", string(old)),
		zap.String("newStatus", string(status)),
		zap.String("updatedBy", c.UserID),
	)

	return *m, []Event{tournamentEvent(c.TournamentID, EvtTeamMemberStatusChanged, MemberStatusPayload{
		MemberID:  m.ID,
		UserID:    m.UserID,
		Status:    status,
		UpdatedBy: c.UserID,
	})}, nil
}

// SetOwnStatus updates every team row of the caller in their tournament.
func (e *Engine) SetOwnStatus(ctx context.Context, c Caller, status models.MemberStatus) ([]models.TeamMember, []Event, error) {
	if err := validMemberStatus(status); err != nil {
		return nil, nil, err
	}
	members, err := e.store.SetMemberStatusByUser(ctx, c.TournamentID, c.UserID, status)
	if err != nil {
		return nil, nil, storeErr("update own status", err)
	}
	e.cache.Invalidate(ctx, cache.TeamStatsKey(c.TournamentID), cache.RealtimeMetricsKey(c.TournamentID))

	return members, []Event{tournamentEvent(c.TournamentID, EvtTeamMemberStatusChanged, MemberStatusPayload{
		UserID:    c.UserID,
		Status:    status,
		UpdatedBy: c.UserID,
	})}, nil
}

type TeamStats struct {
	Total    int64                         `json:"total"`
	ByStatus map[models.MemberStatus]int64 `json:"byStatus"`
}

func (e *Engine) TeamStats(ctx context.Context, c Caller) (TeamStats, error) {
	ts, err := cache.Fetch(ctx, e.cache, cache.TeamStatsKey(c.TournamentID), cache.TeamStatsTTL,
		func(ctx context.Context) (TeamStats, error) {
			counts, err := e.store.CountMembersByStatus(ctx, c.TournamentID)
			if err != nil {
				return TeamStats{}, err
			}
			ts := TeamStats{ByStatus: counts}
			for _, n := range counts {
				ts.Total += n
			}
			return ts, nil
		})
	if err != nil {
		return TeamStats{}, storeErr("team stats", err)
	}
	return ts, nil
}

// ToggleChecklistItem records the caller's tick for one item on one day.
func (e *Engine) ToggleChecklistItem(ctx context.Context, c Caller, in ChecklistToggleInput) (models.ChecklistCheck, []Event, error) {
	var is issues
	if in.ItemID == "" {
		is.add("itemId", "itemId is required")
	}
	if err := is.err(); err != nil {
		return models.ChecklistCheck{}, nil, err
	}
	now := e.now()
	day, err := parseDay("date", in.Date, now)
	if err != nil {
		return models.ChecklistCheck{}, nil, err
	}

	item, err := e.store.GetChecklistItem(ctx, c.TournamentID, in.ItemID)
	if err != nil {
		return models.ChecklistCheck{}, nil, storeErr("get checklist item", notFound(err, "Checklist item"))
	}
	if in.TemplateID != "" && in.TemplateID != item.TemplateID {
		return models.ChecklistCheck{}, nil, apperr.Validation(apperr.Issue{Field: "templateId", Message: "item does not belong to template"})
	}

	check := models.ChecklistCheck{
		UserID:     c.UserID,
		ItemID:     item.ID,
		TemplateID: item.TemplateID,
		Date:       day,
		IsChecked:  in.IsChecked,
	}
	if in.IsChecked {
		check.CheckedAt = &now
	}
	if err := e.store.UpsertChecklistCheck(ctx, &check); err != nil {
		return models.ChecklistCheck{}, nil, storeErr("toggle checklist item", err)
	}
	e.cache.InvalidatePattern(ctx, cache.TemplateStatsPattern(c.TournamentID))
	e.cache.Invalidate(ctx, cache.RealtimeMetricsKey(c.TournamentID))

	return check, []Event{tournamentEvent(c.TournamentID, EvtChecklistUpdated, ChecklistPayload{
		UserID:     c.UserID,
		ItemID:     check.ItemID,
		TemplateID: check.TemplateID,
		IsChecked:  check.IsChecked,
		Date:       day,
	})}, nil
}

type TemplateStat struct {
	TemplateID      string `json:"templateId"`
	Name            string `json:"name"`
	TotalItems      int64  `json:"totalItems"`
	CompletedChecks int64  `json:"completedChecks"`
	CompletionRate  int    `json:"completionRate"`
}

// TemplateStats reports per-template completion for one day.
func (e *Engine) TemplateStats(ctx context.Context, c Caller, date string) ([]TemplateStat, error) {
	day, err := parseDay("date", date, e.now())
	if err != nil {
		return nil, err
	}
	key := cache.TemplateStatsKey(c.TournamentID, day.Format(dateLayout))
	stats, err := cache.Fetch(ctx, e.cache, key, cache.TemplateStatsTTL, func(ctx context.Context) ([]TemplateStat, error) {
		templates, err := e.store.ListActiveTemplates(ctx, c.TournamentID)
		if err != nil || len(templates) == 0 {
			return []TemplateStat{}, err
		}
		ids := make([]string, len(templates))
		for i, t := range templates {
			ids[i] = t.ID
		}
		items, err := e.store.CountItemsByTemplate(ctx, ids)
		if err != nil {
			return nil, err
		}
		checks, err := e.store.CountChecksByTemplate(ctx, ids, day)
		if err != nil {
			return nil, err
		}
		out := make([]TemplateStat, 0, len(templates))
		for _, t := range templates {
			s := TemplateStat{TemplateID: t.ID, Name: t.Name, TotalItems: items[t.ID], CompletedChecks: checks[t.ID]}
			if s.TotalItems > 0 {
				s.CompletionRate = int(math.Round(float64(s.CompletedChecks) / float64(s.TotalItems) * 100))
			}
			out = append(out, s)
		}
		return out, nil
	})
	if err != nil {
		return nil, storeErr("template stats", err)
	}
	return stats, nil
}

// SendMessage stores a message and addresses it to the recipient's private
// channel, or to the whole tournament when there is no recipient.
func (e *Engine) SendMessage(ctx context.Context, c Caller, in MessageInput) (models.Message, []Event, error) {
	if err := in.validate(); err != nil {
		return models.Message{}, nil, err
	}
	msg := models.Message{
		ID:           e.newID(),
		TournamentID: c.TournamentID,
		SenderID:     c.UserID,
		Content:      in.Content,
		Type:         in.Type,
		Priority:     in.Priority,
		CreatedAt:    e.now(),
	}
	if in.RecipientID != "" {
		if _, err := e.store.GetMembership(ctx, c.TournamentID, in.RecipientID); err != nil {
			return models.Message{}, nil, storeErr("get recipient", notFound(err, "Recipient"))
		}
		r := in.RecipientID
		msg.RecipientID = &r
	}
	if err := e.store.CreateMessage(ctx, &msg); err != nil {
		return models.Message{}, nil, storeErr("send message", err)
	}

	ev := tournamentEvent(c.TournamentID, EvtNewMessage, msg)
	if msg.RecipientID != nil {
		ev = Event{Type: EvtNewMessage, Scope: ScopeUser, Target: *msg.RecipientID, Payload: msg}
	}
	return msg, []Event{ev}, nil
}

// OnlineMembers returns the team rows of the given online users.
func (e *Engine) OnlineMembers(ctx context.Context, c Caller, userIDs []string) ([]models.TeamMember, error) {
	if len(userIDs) == 0 {
		return []models.TeamMember{}, nil
	}
	members, err := e.store.ListMembersByUsers(ctx, c.TournamentID, userIDs)
	if err != nil {
		return nil, storeErr("online members", err)
	}
	if members == nil {
		members = []models.TeamMember{}
	}
	return members, nil
}
