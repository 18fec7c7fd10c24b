package engine

import "errors"

var ErrChunkAlreadyLoaded = errors.New("chunk already loaded")

// ChunkID identifies the fixed width window [id*dur, (id+1)*dur).
type ChunkID int64

type Metadata struct {
	TotalDurationMs int64 `json:"total_duration_ms"`
	ChunkDurationMs int64 `json:"chunk_duration_ms"`
	ChunkCount      int   `json:"chunk_count"`
}

// ChunkPayload is the body of one chunk: per entity samples ordered by time.
type ChunkPayload struct {
	Ball    []Sample            `json:"ball"`
	Players map[uint32][]Sample `json:"players"`
}

// MergeReport describes what a merge did. Out of order entities were
// appended anyway; lookups on them are unreliable until the source is fixed.
type MergeReport struct {
	Chunk             ChunkID
	Duplicate         bool
	BallOutOfOrder    bool
	PlayersOutOfOrder []uint32
	PlayersCreated    int
}

func (r MergeReport) OutOfOrder() bool {
	return r.BallOutOfOrder || len(r.PlayersOutOfOrder) > 0
}

type PlayerResolved struct {
	PlayerID uint32
	Resolved
}

// Frame is everything visible at one virtual time.
type Frame struct {
	TimeMs  int64
	Ball    Resolved
	Players []PlayerResolved // ascending player id
}

// StaleCount is the number of stale entries in the frame, ball included.
func (f Frame) StaleCount() int {
	n := 0
	if f.Ball.Stale {
		n++
	}
	for _, p := range f.Players {
		if p.Stale {
			n++
		}
	}
	return n
}

// Store holds the merged time series of one match. It is not safe for
// concurrent use; merges and resolves must run on the same goroutine.
type Store struct {
	meta    Metadata
	ball    Track
	players map[uint32]*Track
	loaded  map[ChunkID]struct{}
}

func NewStore(meta Metadata) *Store {
	return &Store{
		meta:    meta,
		players: make(map[uint32]*Track),
		loaded:  make(map[ChunkID]struct{}),
	}
}

func (s *Store) Metadata() Metadata { return s.meta }

func (s *Store) SetMetadata(meta Metadata) { s.meta = meta }

// Degraded reports whether the store runs without chunk metadata, in which
// case the whole match is chunk 0.
func (s *Store) Degraded() bool { return s.meta.ChunkDurationMs <= 0 }

// ChunkCount is at least one.
func (s *Store) ChunkCount() int {
	if s.Degraded() || s.meta.ChunkCount < 1 {
		return 1
	}
	return s.meta.ChunkCount
}

func (s *Store) ChunkIDForTime(t int64) ChunkID {
	if s.Degraded() {
		return 0
	}
	if t < 0 {
		// floor for negative times
		return ChunkID((t - s.meta.ChunkDurationMs + 1) / s.meta.ChunkDurationMs)
	}
	return ChunkID(t / s.meta.ChunkDurationMs)
}

func (s *Store) InRange(id ChunkID) bool {
	return id >= 0 && int(id) < s.ChunkCount()
}

func (s *Store) IsChunkLoaded(id ChunkID) bool {
	_, ok := s.loaded[id]
	return ok
}

func (s *Store) LoadedChunks() []ChunkID {
	return sortedKeys(s.loaded)
}

// LastBallTimestamp is used as the match duration when metadata is missing.
func (s *Store) LastBallTimestamp() int64 {
	last, ok := s.ball.Last()
	if !ok {
		return 0
	}
	return last.Timestamp
}

func (s *Store) PlayerIDs() []uint32 {
	return sortedKeys(s.players)
}

// MergeChunk appends the payload to each entity's track, creating tracks for
// players seen for the first time. A chunk id that is already loaded is
// skipped and reported with ErrChunkAlreadyLoaded.
func (s *Store) MergeChunk(id ChunkID, payload *ChunkPayload) (MergeReport, error) {
	report := MergeReport{Chunk: id}
	if s.IsChunkLoaded(id) {
		report.Duplicate = true
		return report, ErrChunkAlreadyLoaded
	}
	s.loaded[id] = struct{}{}
	if payload == nil {
		return report, nil
	}

	report.BallOutOfOrder = !s.ball.appendSamples(payload.Ball)

	for _, pid := range sortedKeys(payload.Players) {
		tr, ok := s.players[pid]
		if !ok {
			tr = &Track{}
			s.players[pid] = tr
			report.PlayersCreated++
		}
		if !tr.appendSamples(payload.Players[pid]) {
			report.PlayersOutOfOrder = append(report.PlayersOutOfOrder, pid)
		}
	}
	return report, nil
}

// Resolve looks up the ball and every player at t, advancing their cursors.
func (s *Store) Resolve(t int64) Frame {
	// Clamped data is only stale while the chunk covering t is still missing.
	missing := !s.IsChunkLoaded(s.ChunkIDForTime(t))

	f := Frame{TimeMs: t, Ball: s.resolveTrack(&s.ball, t, missing)}
	ids := s.PlayerIDs()
	f.Players = make([]PlayerResolved, 0, len(ids))
	for _, pid := range ids {
		r := s.resolveTrack(s.players[pid], t, missing)
		if !r.Found {
			continue
		}
		f.Players = append(f.Players, PlayerResolved{PlayerID: pid, Resolved: r})
	}
	return f
}

func (s *Store) resolveTrack(tr *Track, t int64, missing bool) Resolved {
	r := tr.Resolve(t)
	if r.Clamped && missing {
		r.Stale = true
	}
	return r
}

// Reset drops all samples and loaded chunks. Metadata is kept.
func (s *Store) Reset() {
	s.ball.clear()
	clear(s.players)
	clear(s.loaded)
}

// MatchRef names one match: the league it was played in and its id.
type MatchRef struct {
	League string `json:"league"`
	Match  string `json:"match"`
}

func (m MatchRef) String() string { return m.League + "/" + m.Match }
