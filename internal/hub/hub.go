// Package hub owns the room registry and turns engine events into frames.
package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/room"
	"github.com/DoyleJ11/floor-ops-backend/pkg/types"
	"go.uber.org/zap"
)

func TournamentRoom(tournamentID string) string { return "tournament:" + tournamentID }
func UserRoom(userID string) string             { return "user:" + userID }

type HubMsg interface{ isHubMsg() }

type JoinRoom struct {
	Room    string
	Session *room.Session
}

type LeaveRoom struct {
	Room      string
	SessionID string
}

// PublishRoom forwards a frame; rooms nobody has joined swallow it.
type PublishRoom struct {
	Room   string
	Frame  []byte
	Except string
}

type GetRoom struct {
	Room  string
	Reply chan *room.Room
}

type ShutdownHub struct{}

func (JoinRoom) isHubMsg()    {}
func (LeaveRoom) isHubMsg()   {}
func (PublishRoom) isHubMsg() {}
func (GetRoom) isHubMsg()     {}
func (ShutdownHub) isHubMsg() {}

// entry tracks membership so empty rooms can be reaped without asking the room.
type entry struct {
	room    *room.Room
	members map[string]struct{}
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*entry
	log    *zap.Logger
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Hub)

func WithClock(now func() time.Time) Option { return func(h *Hub) { h.now = now } }

func NewHub(parent context.Context, log *zap.Logger, opts ...Option) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 256),
		rooms:  make(map[string]*entry),
		log:    log,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) send(m HubMsg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Join(name string, s *room.Session) { h.send(JoinRoom{Room: name, Session: s}) }

func (h *Hub) Leave(name, sessionID string) { h.send(LeaveRoom{Room: name, SessionID: sessionID}) }

// Shutdown hangs up every session and stops the hub.
func (h *Hub) Shutdown() { h.send(ShutdownHub{}) }

// BroadcastToTournament publishes to everyone in the tournament room.
func (h *Hub) BroadcastToTournament(tournamentID, event string, payload any) {
	h.publish(TournamentRoom(tournamentID), "", event, payload)
}

// BroadcastToTournamentExcept publishes to the tournament room minus one session.
func (h *Hub) BroadcastToTournamentExcept(tournamentID, exceptSession, event string, payload any) {
	h.publish(TournamentRoom(tournamentID), exceptSession, event, payload)
}

// SendToUser publishes to every session of one user.
func (h *Hub) SendToUser(userID, event string, payload any) {
	h.publish(UserRoom(userID), "", event, payload)
}

// publish encodes once and hands the frame to the room. Broadcast failures
// are logged, never returned.
func (h *Hub) publish(name, except, event string, payload any) {
	frame, err := types.Encode(event, payload, h.now())
	if err != nil {
		h.log.Warn("encode event", zap.String("event", event), zap.String("room", name), zap.Error(err))
		return
	}
	h.send(PublishRoom{Room: name, Frame: frame, Except: except})
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case JoinRoom:
				e := h.rooms[msg.Room]
				if e == nil {
					// Rooms stop on Shutdown only, so queued joins are drained first.
					e = &entry{room: room.New(context.WithoutCancel(h.ctx), msg.Room), members: map[string]struct{}{}}
					h.rooms[msg.Room] = e
				}
				e.members[msg.Session.ID] = struct{}{}
				e.room.Send(room.Join{Session: msg.Session})

			case LeaveRoom:
				e := h.rooms[msg.Room]
				if e == nil {
					break
				}
				delete(e.members, msg.SessionID)
				e.room.Send(room.Leave{SessionID: msg.SessionID})
				if len(e.members) == 0 {
					e.room.Send(room.Shutdown{})
					delete(h.rooms, msg.Room)
				}

			case PublishRoom:
				if e := h.rooms[msg.Room]; e != nil {
					e.room.Send(room.Publish{Frame: msg.Frame, Except: msg.Except})
				}

			case GetRoom:
				var r *room.Room
				if e := h.rooms[msg.Room]; e != nil {
					r = e.room
				}
				msg.Reply <- r // May be nil

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for name, e := range h.rooms {
		e.room.Send(room.Shutdown{})
		delete(h.rooms, name)
	}
	h.cancel()
}
