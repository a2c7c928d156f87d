// Package room implements one broadcast channel as an actor goroutine.
package room

import (
	"context"
	"sync"

	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
)

// Session is one connection's delivery endpoint. The same session joins
// several rooms and shares one outbox across them.
type Session struct {
	ID     string
	Outbox chan []byte

	done chan struct{}
	once sync.Once
}

func NewSession(id string, buffer int) *Session {
	return &Session{ID: id, Outbox: make(chan []byte, buffer), done: make(chan struct{})}
}

// Close tells the connection owner to hang up. Safe to call from any room, any number of times.
func (s *Session) Close() { s.once.Do(func() { close(s.done) }) }

func (s *Session) Done() <-chan struct{} { return s.done }

type Msg interface{ isRoomMsg() }

type Join struct{ Session *Session }

func (Join) isRoomMsg() {}

type Leave struct{ SessionID string }

func (Leave) isRoomMsg() {}

// Publish delivers a pre-encoded frame to every session except Except.
type Publish struct {
	Frame  []byte
	Except string
}

func (Publish) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Name        string
	NumSessions int
	Delivered   int
}

type Room struct {
	name      string
	inbox     chan Msg
	sessions  map[string]*Session
	delivered int
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, name string) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		name:     name,
		inbox:    make(chan Msg, 256),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}

	go r.loop()
	return r
}

func (r *Room) Name() string { return r.name }

// Inbox exposes the actor's mailbox to the hub and to tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Send posts m unless the room has already stopped.
func (r *Room) Send(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.sessions[msg.Session.ID] = msg.Session

			case Leave:
				delete(r.sessions, msg.SessionID)

			case Publish:
				r.broadcast(msg.Frame, msg.Except)

			case GetState:
				msg.Reply <- View{Name: r.name, NumSessions: len(r.sessions), Delivered: r.delivered}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// shutdown hangs up every remaining session.
func (r *Room) shutdown() {
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
	r.cancel()
}

func (r *Room) broadcast(frame []byte, except string) {
	for id, s := range r.sessions {
		if id == except {
			continue
		}
		select {
		case s.Outbox <- frame:
			r.delivered++
		case <-s.done:
			delete(r.sessions, id)
		default:
			// Outbox full: drop the slow session.
			s.Close()
			delete(r.sessions, id)
			metrics.SessionDropped()
		}
	}
}
