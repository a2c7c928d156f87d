package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/engine"
	"github.com/DoyleJ11/floor-ops-backend/internal/hub"
	"github.com/DoyleJ11/floor-ops-backend/internal/presence"
	"github.com/DoyleJ11/floor-ops-backend/internal/room"
	"github.com/DoyleJ11/floor-ops-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

type Deps struct {
	Auth     *auth.Authenticator
	Engine   *engine.Engine
	Hub      *hub.Hub
	Presence *presence.Tracker
	Log      *zap.Logger

	// OriginPatterns is passed to websocket.Accept; empty means same-origin only.
	OriginPatterns []string
	// ReadTimeout bounds the silence between two client messages.
	ReadTimeout time.Duration
}

func Handler(d Deps) http.HandlerFunc {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.ReadTimeout <= 0 {
		d.ReadTimeout = presence.DefaultTTL
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// The gate runs before the upgrade so rejected clients get a plain HTTP status.
		id, err := d.Auth.Authenticate(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			d.Log.Debug("socket rejected", zap.Error(err))
			apperr.Write(w, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: d.OriginPatterns})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		s := &session{
			deps:   d,
			conn:   conn,
			caller: id,
			room:   room.NewSession(uuid.NewString(), outboxSize),
			log: d.Log.With(
				zap.String("userId", id.UserID),
				zap.String("tournamentId", id.TournamentID),
			),
		}
		s.serve(r.Context())
	}
}

type session struct {
	deps   Deps
	conn   *websocket.Conn
	caller engine.Caller
	room   *room.Session
	log    *zap.Logger
}

func (s *session) serve(ctx context.Context) {
	// Mutations started by this client finish even if it disconnects mid-way.
	bg := context.WithoutCancel(ctx)
	d := s.deps

	rooms := []string{hub.TournamentRoom(s.caller.TournamentID), hub.UserRoom(s.caller.UserID)}
	for _, name := range rooms {
		d.Hub.Join(name, s.room)
	}
	defer func() {
		for _, name := range rooms {
			d.Hub.Leave(name, s.room.ID)
		}
	}()

	// Writer goroutine
	writeCtx, writeCancel := context.WithCancel(ctx)
	defer writeCancel()
	go func() {
		for {
			select {
			case frame := <-s.room.Outbox:
				wctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = s.conn.Write(wctx, websocket.MessageText, frame)
				cancel()
			case <-s.room.Done():
				// Dropped as a slow consumer or expired by the presence sweep.
				_ = s.conn.Close(websocket.StatusPolicyViolation, "session closed")
				return
			case <-writeCtx.Done():
				return
			}
		}
	}()

	rec := presence.Record{
		SessionID:    s.room.ID,
		UserID:       s.caller.UserID,
		TournamentID: s.caller.TournamentID,
		Role:         s.caller.Role,
	}
	if err := d.Presence.Connect(ctx, rec, s.room.Close); err != nil {
		s.log.Warn("presence connect failed", zap.Error(err))
	}
	defer func() {
		if err := d.Presence.Disconnect(bg, s.room.ID); err != nil {
			s.log.Warn("presence disconnect failed", zap.Error(err))
		}
	}()
	s.log.Info("socket connected", zap.String("sessionId", s.room.ID))

	if users, err := d.Presence.OnlineUsers(ctx, s.caller.TournamentID); err != nil {
		s.log.Warn("list online users failed", zap.Error(err))
	} else {
		s.reply(ctx, types.MsgOnlineUsers, users)
	}

	// Reader loop
	for {
		rctx, cancel := context.WithTimeout(ctx, d.ReadTimeout)
		_, data, err := s.conn.Read(rctx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.log.Info("socket closed", zap.String("sessionId", s.room.ID))
			default:
				s.log.Debug("socket read ended", zap.String("sessionId", s.room.ID), zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.replyError(ctx, "", apperr.Validation(apperr.Issue{Field: "message", Message: "bad json"}))
			continue
		}
		s.handle(ctx, bg, cm)
	}
}

func (s *session) handle(ctx, bg context.Context, cm types.ClientMessage) {
	if cm.Type == types.MsgHeartbeat {
		alive, err := s.deps.Presence.Heartbeat(bg, s.room.ID)
		if err != nil {
			s.log.Warn("heartbeat failed", zap.Error(err))
		}
		s.reply(ctx, types.MsgHeartbeatAck, map[string]bool{"alive": alive})
		return
	}

	h, ok := handlers[cm.Type]
	if !ok {
		s.replyError(ctx, cm.Type, apperr.Validation(apperr.Issue{Field: "type", Message: "unknown message type " + cm.Type}))
		return
	}
	events, err := h(bg, s.deps.Engine, s.caller, cm.Data)
	if err != nil {
		if apperr.Is(err, apperr.KindFatal) {
			s.log.Error("socket operation failed", zap.String("type", cm.Type), zap.Error(err))
		}
		s.replyError(ctx, cm.Type, err)
		return
	}
	engine.Dispatch(s.deps.Hub, events)
}

// reply writes straight to this connection; it never goes through a room.
func (s *session) reply(ctx context.Context, event string, data any) {
	frame, err := types.Encode(event, data, time.Now())
	if err != nil {
		s.log.Warn("encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = s.conn.Write(wctx, websocket.MessageText, frame)
}

func (s *session) replyError(ctx context.Context, request string, err error) {
	_, body := apperr.ToResponse(err)
	data := types.ErrorData{Message: body.Error, Code: string(body.Code), Request: request}
	for _, is := range body.Issues {
		data.Issues = append(data.Issues, types.FieldIssue{Field: is.Field, Message: is.Message})
	}
	s.reply(ctx, types.MsgError, data)
}
