package ws

import (
	"context"
	"encoding/json"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/engine"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/DoyleJ11/floor-ops-backend/pkg/types"
)

// command runs one client message against the engine and returns the events to publish.
type command func(ctx context.Context, e *engine.Engine, c engine.Caller, data json.RawMessage) ([]engine.Event, error)

var handlers = map[string]command{
	types.MsgEmergencyAlert: func(ctx context.Context, e *engine.Engine, c engine.Caller, data json.RawMessage) ([]engine.Event, error) {
		in, err := decode[engine.CreateEmergencyInput](data)
		if err != nil {
			return nil, err
		}
		_, events, err := e.CreateEmergency(ctx, c, in)
		return events, err
	},
	types.MsgProductionStatusUpdate: func(ctx context.Context, e *engine.Engine, c engine.Caller, data json.RawMessage) ([]engine.Event, error) {
		p, err := decode[engine.StatusPatch](data)
		if err != nil {
			return nil, err
		}
		_, events, err := e.UpdateProductionStatus(ctx, c, p)
		return events, err
	},
	types.MsgTeamMemberStatusUpdate: func(ctx context.Context, e *engine.Engine, c engine.Caller, data json.RawMessage) ([]engine.Event, error) {
		in, err := decode[struct {
			Status models.MemberStatus `json:"status"`
		}](data)
		if err != nil {
			return nil, err
		}
		_, events, err := e.SetOwnStatus(ctx, c, in.Status)
		return events, err
	},
	types.MsgChecklistItemToggle: func(ctx context.Context, e *engine.Engine, c engine.Caller, data json.RawMessage) ([]engine.Event, error) {
		in, err := decode[engine.ChecklistToggleInput](data)
		if err != nil {
			return nil, err
		}
		_, events, err := e.ToggleChecklistItem(ctx, c, in)
		return events, err
	},
	types.MsgSendMessage: func(ctx context.Context, e *engine.Engine, c engine.Caller, data json.RawMessage) ([]engine.Event, error) {
		in, err := decode[engine.MessageInput](data)
		if err != nil {
			return nil, err
		}
		_, events, err := e.SendMessage(ctx, c, in)
		return events, err
	},
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, apperr.Validation(apperr.Issue{Field: "data", Message: "malformed payload"})
	}
	return v, nil
}
