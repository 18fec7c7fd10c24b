package session

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/match-replay/internal/chunk"
	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"github.com/DoyleJ11/match-replay/internal/metrics"
	"go.uber.org/zap"
)

type Msg interface{ isSessionMsg() }

// Tick advances the clock. NowMs is a monotonic wall clock in milliseconds.
type Tick struct{ NowMs float64 }

type Play struct{}

type Pause struct{}

type Stop struct{}

// Seek jumps to TimeMs. Reply, if set, receives the outcome of loading the
// chunk under the new position; it should be buffered.
type Seek struct {
	TimeMs int64
	Reply  chan error
}

type SetSpeed struct {
	Speed float64
	Reply chan error
}

type Join struct {
	ClientID string
	Outbox   chan Snapshot
}

type Leave struct{ ClientID string }

type GetState struct {
	Reply chan View
}

// Reset drops every loaded sample and starts over from the beginning.
type Reset struct{}

type Shutdown struct{}

type run struct{ fn func() }

func (Tick) isSessionMsg()     {}
func (Play) isSessionMsg()     {}
func (Pause) isSessionMsg()    {}
func (Stop) isSessionMsg()     {}
func (Seek) isSessionMsg()     {}
func (SetSpeed) isSessionMsg() {}
func (Join) isSessionMsg()     {}
func (Leave) isSessionMsg()    {}
func (GetState) isSessionMsg() {}
func (Reset) isSessionMsg()    {}
func (Shutdown) isSessionMsg() {}
func (run) isSessionMsg()      {}

// Snapshot is what clients receive whenever time, state or data changes.
type Snapshot struct {
	Version    int
	State      engine.State
	DurationMs int64
	Frame      engine.Frame
}

type View struct {
	Version      int
	NumClients   int
	State        engine.State
	TimeMs       int64
	DurationMs   int64
	Speed        float64
	Degraded     bool
	LoadedChunks []engine.ChunkID
	Loading      bool
	InFlight     engine.ChunkID
}

type Config struct {
	ID       string
	Match    engine.MatchRef
	Metadata chunk.MetadataProvider
	Fetcher  chunk.Fetcher

	FetchTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Session is one match being played back: a clock, the store it reads from
// and the coordinator filling the store. All three are owned by the loop
// goroutine; everything else talks to it through Inbox.
type Session struct {
	id    string
	match engine.MatchRef

	inbox   chan Msg
	clock   *engine.Clock
	store   *engine.Store
	coord   *chunk.Coordinator
	version int
	clients map[string]chan Snapshot

	dirty   bool
	holding bool   // a seek is waiting for its chunk
	seekSeq uint64 // identifies the newest seek

	log     *zap.Logger
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// Open fetches match metadata and starts the session loop. Without metadata
// the session still opens in degraded mode, treating the match as one chunk.
func Open(parent context.Context, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)
	log := logging.OrNop(cfg.Logger).With(zap.String("session", cfg.ID), zap.Stringer("match", cfg.Match))

	meta, err := fetchMetadata(ctx, cfg)
	if err != nil {
		log.Warn("metadata unavailable, playing as a single chunk", zap.Error(err))
		meta = engine.Metadata{}
	}

	s := &Session{
		id:      cfg.ID,
		match:   cfg.Match,
		inbox:   make(chan Msg, 64),
		store:   engine.NewStore(meta),
		clients: make(map[string]chan Snapshot),
		log:     log,
		metrics: cfg.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.coord = chunk.New(ctx, chunk.Config{
		Match:        cfg.Match,
		Store:        s.store,
		Fetcher:      cfg.Fetcher,
		Dispatch:     s.dispatch,
		Current:      func() int64 { return s.clock.TimeMs() },
		OnMerged:     s.onMerged,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
		Metrics:      cfg.Metrics,
	})
	s.clock = s.newClock()
	s.prefetchStart()

	s.metrics.SessionOpened()
	log.Info("session opened",
		zap.Int64("duration_ms", meta.TotalDurationMs),
		zap.Int("chunks", s.store.ChunkCount()))

	go s.loop()
	return s
}

func fetchMetadata(ctx context.Context, cfg Config) (engine.Metadata, error) {
	if cfg.Metadata == nil {
		return engine.Metadata{}, errors.New("no metadata provider")
	}
	if cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.FetchTimeout)
		defer cancel()
	}
	return cfg.Metadata.FetchMetadata(ctx, cfg.Match)
}

func (s *Session) newClock() *engine.Clock {
	c := engine.NewClock(s.store.Metadata().TotalDurationMs)
	c.OnTimeChanged(func(ms int64) {
		s.coord.Prefetch(ms)
		s.dirty = true
	})
	c.OnStateChanged(func(prev, next engine.State) {
		s.log.Debug("playback state", zap.String("from", string(prev)), zap.String("to", string(next)))
		s.dirty = true
	})
	return c
}

func (s *Session) ID() string { return s.id }

func (s *Session) Match() engine.MatchRef { return s.match }

// Expose the inbox so the ws layer and tests can drive the session.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Tick:
				// time stands still until a held seek has its data
				if !s.holding {
					s.clock.Tick(msg.NowMs)
				}

			case Play:
				s.clock.Start()

			case Pause:
				s.clock.Pause()

			case Stop:
				s.clock.Stop()

			case Seek:
				s.seek(msg)

			case SetSpeed:
				err := s.clock.SetSpeed(msg.Speed)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case Join:
				if old, ok := s.clients[msg.ClientID]; ok && old != msg.Outbox {
					close(old)
				}
				s.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- s.snapshot()

			case Leave:
				if ch, ok := s.clients[msg.ClientID]; ok {
					close(ch)
					delete(s.clients, msg.ClientID)
				}

			case GetState:
				msg.Reply <- s.view()

			case Reset:
				s.reset()

			case Shutdown:
				s.shutdown()
				return

			case run:
				msg.fn()
			}

			if s.dirty && !s.holding {
				s.publish()
			}
		}
	}
}

func (s *Session) seek(msg Seek) {
	s.seekSeq++
	seq := s.seekSeq

	s.clock.Seek(msg.TimeMs)
	outcome := s.coord.EnsureLoaded(s.clock.TimeMs())

	select {
	case err := <-outcome:
		s.holding = false
		reply(msg.Reply, err)
		return
	default:
	}

	// Hold frames back until the data under the new position is in, so
	// clients never see the ball and players out of sync.
	s.holding = true
	go func() {
		err := <-outcome
		s.dispatch(func() {
			if seq == s.seekSeq {
				s.holding = false
				s.clock.ResetWallReference()
				s.dirty = true
			}
		})
		reply(msg.Reply, err)
	}()
}

func reply(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func (s *Session) onMerged(report engine.MergeReport, covering bool) {
	if s.inferDuration() {
		s.clock.SetDuration(s.store.LastBallTimestamp())
	}
	if covering {
		s.dirty = true
	}
}

func (s *Session) reset() {
	s.coord.Reset()
	s.store.Reset()
	s.clock = s.newClock()
	s.holding = false
	s.dirty = true
	s.prefetchStart()
	s.log.Info("session reset")
}

// inferDuration reports whether the match length has to come from the data.
// Without chunk metadata every merge extends it; otherwise only the final
// chunk knows where the match ends.
func (s *Session) inferDuration() bool {
	if s.store.Metadata().TotalDurationMs > 0 {
		return false
	}
	if s.store.Degraded() {
		return true
	}
	return s.store.IsChunkLoaded(engine.ChunkID(s.store.ChunkCount() - 1))
}

// prefetchStart queues the first chunk, and the last one too when the match
// length is unknown.
func (s *Session) prefetchStart() {
	s.coord.Prefetch(0)
	meta := s.store.Metadata()
	if meta.TotalDurationMs <= 0 && !s.store.Degraded() && s.store.ChunkCount() > 1 {
		s.coord.Prefetch(int64(s.store.ChunkCount()-1) * meta.ChunkDurationMs)
	}
}

// dispatch queues fn onto the loop. It gives up once the session is closed.
func (s *Session) dispatch(fn func()) {
	select {
	case s.inbox <- run{fn: fn}:
	case <-s.ctx.Done():
	}
}

func (s *Session) snapshot() Snapshot {
	frame := s.store.Resolve(s.clock.TimeMs())
	s.metrics.StaleResolves(frame.StaleCount())
	return Snapshot{
		Version:    s.version,
		State:      s.clock.State(),
		DurationMs: s.clock.DurationMs(),
		Frame:      frame,
	}
}

func (s *Session) publish() {
	s.dirty = false
	s.version++
	s.broadcast(s.snapshot())
}

func (s *Session) view() View {
	v := View{
		Version:      s.version,
		NumClients:   len(s.clients),
		State:        s.clock.State(),
		TimeMs:       s.clock.TimeMs(),
		DurationMs:   s.clock.DurationMs(),
		Speed:        s.clock.Speed(),
		Degraded:     s.store.Degraded(),
		LoadedChunks: s.store.LoadedChunks(),
	}
	v.InFlight, v.Loading = s.coord.InFlight()
	return v
}

func (s *Session) shutdown() {
	s.coord.Reset()
	s.store.Reset()
	for id, ch := range s.clients {
		close(ch) // Tell client no more snapshots
		delete(s.clients, id)
	}
	s.cancel()
	s.metrics.SessionClosed()
	s.log.Info("session closed")
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}
