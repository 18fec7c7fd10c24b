package hub

import (
	"context"

	"github.com/DoyleJ11/match-replay/internal/session"
)

type HubMsg interface{ isHubMsg() }

// Register adds an already opened session. Reply reports false when the id
// is taken; the caller still owns the session then.
type Register struct {
	Session *session.Session
	Reply   chan bool
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

// RemoveSession shuts the session down and forgets it.
type RemoveSession struct {
	ID string
}

type CountSessions struct {
	Reply chan int
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	ctx      context.Context
	cancel   context.CancelFunc
}

type ShutdownHub struct{}

func (Register) isHubMsg()      {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (CountSessions) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Context is cancelled when the hub shuts down; sessions should be opened
// under it.
func (h *Hub) Context() context.Context { return h.ctx }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				id := msg.Session.ID()
				if h.sessions[id] != nil {
					msg.Reply <- false
					break
				}
				h.sessions[id] = msg.Session
				msg.Reply <- true

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case RemoveSession:
				if s := h.sessions[msg.ID]; s != nil {
					stop(s)
					delete(h.sessions, msg.ID)
				}

			case CountSessions:
				msg.Reply <- len(h.sessions)

			case ShutdownHub:
				h.shutdownSessions()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) shutdownSessions() {
	for _, s := range h.sessions {
		stop(s)
	}
	clear(h.sessions)
}

func stop(s *session.Session) {
	select {
	case s.Inbox() <- session.Shutdown{}:
	case <-s.Done():
	}
}
