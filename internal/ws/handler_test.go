package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/hub"
	"github.com/DoyleJ11/match-replay/internal/session"
	"github.com/DoyleJ11/match-replay/internal/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedMatch struct{}

func (fixedMatch) FetchMetadata(context.Context, engine.MatchRef) (engine.Metadata, error) {
	return engine.Metadata{TotalDurationMs: 59_000, ChunkDurationMs: 60_000, ChunkCount: 1}, nil
}

func (fixedMatch) FetchChunk(context.Context, engine.MatchRef, engine.ChunkID) (*engine.ChunkPayload, error) {
	p := &engine.ChunkPayload{Players: map[uint32][]engine.Sample{}}
	for i := int64(0); i < 60; i++ {
		p.Ball = append(p.Ball, engine.Sample{Timestamp: i * 1000, Position: engine.Vec3{X: engine.FieldWidth / 2, Y: engine.FieldHeight / 2}})
		p.Players[3] = append(p.Players[3], engine.Sample{Timestamp: i * 1000, Position: engine.Vec3{X: -10, Y: 0}})
	}
	return p, nil
}

func setup(t *testing.T) (*httptest.Server, *session.Session) {
	t.Helper()
	h := hub.NewHub(context.Background())
	t.Cleanup(func() { h.Inbox() <- hub.ShutdownHub{} })

	s := session.Open(h.Context(), session.Config{
		ID:       "sess",
		Match:    engine.MatchRef{League: "l", Match: "m"},
		Metadata: fixedMatch{},
		Fetcher:  fixedMatch{},
	})
	ok := make(chan bool, 1)
	h.Inbox() <- hub.Register{Session: s, Reply: ok}
	require.True(t, <-ok)
	// wait for the only chunk so no merge frame races the tests
	require.Eventually(t, func() bool {
		reply := make(chan session.View, 1)
		s.Inbox() <- session.GetState{Reply: reply}
		return len((<-reply).LoadedChunks) == 1
	}, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(Handler(h, nil))
	t.Cleanup(srv.Close)
	return srv, s
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, data))
}

func TestHandler_StreamsProjectedFrames(t *testing.T) {
	srv, _ := setup(t)

	conn := dial(t, srv, "session=sess&w=1680&h=1090")

	first := readMsg(t, conn)
	assert.Equal(t, "Frame", first.Type)
	assert.Equal(t, engine.StateNotStarted, first.State)
	require.NotNil(t, first.Ball)
	assert.InDelta(t, 840, first.Ball.X, 1e-9)
	assert.InDelta(t, 545, first.Ball.Y, 1e-9)
	require.Len(t, first.Players, 1)
	assert.Zero(t, first.Players[0].X, "clamped to the touchline")

	send(t, conn, types.ClientMessage{Type: "Seek", TimeMs: 12_000})
	next := readMsg(t, conn)
	assert.Equal(t, int64(12_000), next.TimeMs)
	assert.Equal(t, engine.StateRunning, next.State)
}

func TestHandler_ReportsBadCommands(t *testing.T) {
	srv, _ := setup(t)
	conn := dial(t, srv, "session=sess")
	readMsg(t, conn) // join snapshot

	send(t, conn, map[string]string{"type": "Dance"})
	msg := readMsg(t, conn)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, "unknown type", msg.Error)

	send(t, conn, types.ClientMessage{Type: "SetSpeed", Speed: -1})
	msg = readMsg(t, conn)
	assert.Equal(t, "Error", msg.Type)
	assert.Contains(t, msg.Error, "speed")
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	srv, _ := setup(t)

	cases := []struct {
		query string
		code  int
	}{
		{query: "", code: http.StatusBadRequest},
		{query: "session=nope", code: http.StatusNotFound},
		{query: "session=sess&w=-3", code: http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Get(srv.URL + "/?" + tc.query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.code, resp.StatusCode, tc.query)
	}
}

func TestToFrameMessage_SkipsMissingBall(t *testing.T) {
	msg := toFrameMessage(session.Snapshot{Version: 3, State: engine.StatePaused}, 100, 100)
	assert.Nil(t, msg.Ball)
	assert.Empty(t, msg.Players)
	assert.Equal(t, 3, msg.Version)
}

func TestHandler_ClientsGetSeparateOutboxes(t *testing.T) {
	srv, s := setup(t)
	a := dial(t, srv, "session=sess")
	b := dial(t, srv, "session=sess")
	readMsg(t, a)
	readMsg(t, b)

	reply := make(chan session.View, 1)
	require.Eventually(t, func() bool {
		s.Inbox() <- session.GetState{Reply: reply}
		return (<-reply).NumClients == 2
	}, time.Second, 5*time.Millisecond)

	send(t, a, types.ClientMessage{Type: "Seek", TimeMs: 5_000})
	assert.Equal(t, int64(5_000), readMsg(t, a).TimeMs)
	assert.Equal(t, int64(5_000), readMsg(t, b).TimeMs)
}
