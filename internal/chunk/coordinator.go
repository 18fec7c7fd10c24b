package chunk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"github.com/DoyleJ11/match-replay/internal/metrics"
	"go.uber.org/zap"
)

var ErrReset = errors.New("session reset while chunk was loading")

type Fetcher interface {
	FetchChunk(ctx context.Context, match engine.MatchRef, id engine.ChunkID) (*engine.ChunkPayload, error)
}

type MetadataProvider interface {
	FetchMetadata(ctx context.Context, match engine.MatchRef) (engine.Metadata, error)
}

type Config struct {
	Match   engine.MatchRef
	Store   *engine.Store
	Fetcher Fetcher

	// Dispatch runs fn on the goroutine that owns Store. Fetch results are
	// always applied through it.
	Dispatch func(fn func())
	// Current reports the playback position.
	Current func() int64
	// OnMerged runs after every merge. covering is true when Current still
	// falls inside the merged chunk.
	OnMerged func(report engine.MergeReport, covering bool)

	FetchTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

type flight struct {
	id      engine.ChunkID
	gen     uint64
	started time.Time
}

type waiter struct {
	id   engine.ChunkID
	done chan error // nil for Prefetch
}

func (w waiter) settle(err error) {
	if w.done != nil {
		w.done <- err
	}
}

// Coordinator keeps the chunk covering playback time loaded. At most one
// fetch is in flight at a time; callers asking while one is running are
// parked and re-evaluated when it lands.
//
// Every method must be called from the Dispatch goroutine.
type Coordinator struct {
	ctx context.Context
	cfg Config
	log *zap.Logger

	gen      uint64
	inflight *flight
	waiters  []waiter
}

func New(ctx context.Context, cfg Config) *Coordinator {
	if cfg.Current == nil {
		cfg.Current = func() int64 { return 0 }
	}
	if cfg.OnMerged == nil {
		cfg.OnMerged = func(engine.MergeReport, bool) {}
	}
	return &Coordinator{
		ctx: ctx,
		cfg: cfg,
		log: logging.OrNop(cfg.Logger).With(zap.Stringer("match", cfg.Match)),
	}
}

// EnsureLoaded makes sure the chunk covering t gets merged. The returned
// channel receives exactly one value: nil once the chunk is loaded (or needs
// no loading), or the fetch error. Fire and forget callers may ignore it.
func (c *Coordinator) EnsureLoaded(t int64) <-chan error {
	done := make(chan error, 1)
	if !c.ensure(t, done) {
		done <- nil
	}
	return done
}

// Prefetch is EnsureLoaded without an outcome. Repeated calls for a chunk
// that is already queued add nothing, so it is safe to call every frame.
func (c *Coordinator) Prefetch(t int64) {
	c.ensure(t, nil)
}

// ensure reports false when nothing needs loading.
func (c *Coordinator) ensure(t int64, done chan error) bool {
	store := c.cfg.Store
	id := store.ChunkIDForTime(t)

	if store.IsChunkLoaded(id) || !store.InRange(id) {
		return false
	}

	if done != nil || !c.queued(id) {
		c.waiters = append(c.waiters, waiter{id: id, done: done})
	}
	if c.inflight == nil {
		c.start(id)
	}
	return true
}

func (c *Coordinator) queued(id engine.ChunkID) bool {
	for _, w := range c.waiters {
		if w.id == id {
			return true
		}
	}
	return false
}

// InFlight reports the chunk currently being fetched.
func (c *Coordinator) InFlight() (engine.ChunkID, bool) {
	if c.inflight == nil {
		return 0, false
	}
	return c.inflight.id, true
}

// Reset forgets the in-flight fetch so its result is dropped on arrival and
// fails every parked caller with ErrReset.
func (c *Coordinator) Reset() {
	c.gen++
	if c.inflight != nil {
		c.log.Debug("dropping in-flight chunk", zap.Int64("chunk", int64(c.inflight.id)))
	}
	c.inflight = nil
	for _, w := range c.waiters {
		w.settle(ErrReset)
	}
	c.waiters = nil
}

func (c *Coordinator) start(id engine.ChunkID) {
	f := &flight{id: id, gen: c.gen, started: time.Now()}
	c.inflight = f
	c.log.Debug("fetching chunk", zap.Int64("chunk", int64(id)))

	go func() {
		ctx := c.ctx
		if c.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
			defer cancel()
		}
		payload, err := c.cfg.Fetcher.FetchChunk(ctx, c.cfg.Match, id)
		c.cfg.Dispatch(func() { c.complete(f, payload, err) })
	}()
}

func (c *Coordinator) complete(f *flight, payload *engine.ChunkPayload, err error) {
	took := time.Since(f.started)
	if f.gen != c.gen {
		c.log.Info("ignoring chunk that arrived after reset", zap.Int64("chunk", int64(f.id)))
		c.cfg.Metrics.ChunkFetched(metrics.OutcomeIgnored, took)
		return
	}
	c.inflight = nil

	if err != nil {
		err = fmt.Errorf("fetch chunk %d of %s: %w", f.id, c.cfg.Match, err)
		c.log.Warn("chunk fetch failed", zap.Int64("chunk", int64(f.id)), zap.Error(err))
		c.cfg.Metrics.ChunkFetched(metrics.OutcomeError, took)
	} else {
		c.cfg.Metrics.ChunkFetched(metrics.OutcomeOK, took)
		c.merge(f.id, payload)
	}

	pending := c.waiters[:0]
	for _, w := range c.waiters {
		switch {
		case c.cfg.Store.IsChunkLoaded(w.id):
			w.settle(nil)
		case err != nil && w.id == f.id:
			w.settle(err)
		default:
			pending = append(pending, w)
		}
	}
	c.waiters = pending

	if c.inflight == nil && len(c.waiters) > 0 {
		c.start(c.waiters[0].id)
	}
}

func (c *Coordinator) merge(id engine.ChunkID, payload *engine.ChunkPayload) {
	report, err := c.cfg.Store.MergeChunk(id, payload)
	if errors.Is(err, engine.ErrChunkAlreadyLoaded) {
		return
	}
	if report.OutOfOrder() {
		c.cfg.Metrics.IntegrityWarning()
		c.log.Warn("chunk merged out of timestamp order",
			zap.Int64("chunk", int64(id)),
			zap.Bool("ball", report.BallOutOfOrder),
			zap.Uint32s("players", report.PlayersOutOfOrder))
	}
	c.log.Debug("chunk merged",
		zap.Int64("chunk", int64(id)),
		zap.Int("new_players", report.PlayersCreated))

	covering := c.cfg.Store.ChunkIDForTime(c.cfg.Current()) == id
	c.cfg.OnMerged(report, covering)
}
