package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/hub"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"github.com/DoyleJ11/match-replay/internal/session"
	"github.com/DoyleJ11/match-replay/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	log = logging.OrNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		if id == "" {
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		}
		vw, vh, ok := viewport(r)
		if !ok {
			http.Error(w, "bad viewport", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetSession{ID: id, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.Snapshot, 8)
		clientID := uuid.NewString()
		log := log.With(zap.String("session", id), zap.String("client", clientID))

		select {
		case s.Inbox() <- session.Join{ClientID: clientID, Outbox: out}:
		case <-s.Done():
			conn.Close(websocket.StatusGoingAway, "session closed")
			return
		}
		defer func() {
			select {
			case s.Inbox() <- session.Leave{ClientID: clientID}:
			case <-s.Done():
			}
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				payload, _ := json.Marshal(toFrameMessage(snap, vw, vh))
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				err := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
			// Session dropped us or shut down.
			conn.Close(websocket.StatusGoingAway, "session closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			msg, errs, ok := toSessionMsg(cm)
			if !ok {
				writeError(r.Context(), conn, "unknown type")
				continue
			}

			select {
			case s.Inbox() <- msg:
			case <-s.Done():
				return
			}

			if errs != nil {
				go func() {
					select {
					case err := <-errs:
						if err != nil {
							writeError(writeCtx, conn, err.Error())
						}
					case <-writeCtx.Done():
					}
				}()
			}
		}
	}
}

// toSessionMsg maps a client command onto the session. errs is set for
// commands whose failure the client should hear about.
func toSessionMsg(m types.ClientMessage) (session.Msg, chan error, bool) {
	switch m.Type {
	case "Play":
		return session.Play{}, nil, true
	case "Pause":
		return session.Pause{}, nil, true
	case "Stop":
		return session.Stop{}, nil, true
	case "Seek":
		errs := make(chan error, 1)
		return session.Seek{TimeMs: m.TimeMs, Reply: errs}, errs, true
	case "SetSpeed":
		errs := make(chan error, 1)
		return session.SetSpeed{Speed: m.Speed, Reply: errs}, errs, true
	default:
		return nil, nil, false
	}
}

func toFrameMessage(snap session.Snapshot, vw, vh float64) types.ServerMessage {
	msg := types.ServerMessage{
		Type:       "Frame",
		Version:    snap.Version,
		TimeMs:     snap.Frame.TimeMs,
		DurationMs: snap.DurationMs,
		State:      snap.State,
	}
	if snap.Frame.Ball.Found {
		p := project(snap.Frame.Ball, vw, vh)
		msg.Ball = &p
	}
	for _, pr := range snap.Frame.Players {
		msg.Players = append(msg.Players, types.PlayerPoint{ID: pr.PlayerID, Point: project(pr.Resolved, vw, vh)})
	}
	return msg
}

func project(r engine.Resolved, vw, vh float64) types.Point {
	pos := r.Sample.Position
	x, y := engine.Project(float64(pos.X), float64(pos.Y), float64(pos.Z), vw, vh)
	return types.Point{X: x, Y: y, Z: pos.Z, Stale: r.Stale}
}

// viewport defaults to the field size in simulation units.
func viewport(r *http.Request) (float64, float64, bool) {
	q := r.URL.Query()
	w, h := engine.FieldWidth, engine.FieldHeight
	if v := q.Get("w"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return 0, 0, false
		}
		w = f
	}
	if v := q.Get("h"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return 0, 0, false
		}
		h = f
	}
	return w, h, true
}

func writeError(ctx context.Context, conn *websocket.Conn, text string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: text})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
