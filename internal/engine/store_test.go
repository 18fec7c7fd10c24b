package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoChunkStore() *Store {
	return NewStore(Metadata{TotalDurationMs: 119_000, ChunkDurationMs: 60_000, ChunkCount: 2})
}

func chunkPayload(from int64, n int, players ...uint32) *ChunkPayload {
	p := &ChunkPayload{Ball: samplesEvery(from, 1000, n), Players: map[uint32][]Sample{}}
	for _, pid := range players {
		p.Players[pid] = samplesEvery(from, 1000, n)
	}
	return p
}

func TestStore_ChunkIDForTime(t *testing.T) {
	s := twoChunkStore()
	cases := []struct {
		t    int64
		want ChunkID
	}{
		{0, 0},
		{59_999, 0},
		{60_000, 1},
		{119_000, 1},
		{180_000, 3},
		{-1, -1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.ChunkIDForTime(tc.t), "t=%d", tc.t)
	}

	degraded := NewStore(Metadata{})
	assert.Equal(t, ChunkID(0), degraded.ChunkIDForTime(500_000))
	assert.Equal(t, 1, degraded.ChunkCount())
	assert.True(t, degraded.InRange(0))
	assert.False(t, degraded.InRange(1))
}

func TestStore_CoverageCheck(t *testing.T) {
	s := twoChunkStore()
	const at = 61_000

	assert.False(t, s.IsChunkLoaded(s.ChunkIDForTime(at)))
	_, err := s.MergeChunk(1, chunkPayload(60_000, 60))
	require.NoError(t, err)
	assert.True(t, s.IsChunkLoaded(s.ChunkIDForTime(at)))
	assert.False(t, s.IsChunkLoaded(0))
	assert.Equal(t, []ChunkID{1}, s.LoadedChunks())
}

func TestStore_MergeSameChunkTwiceIsSkipped(t *testing.T) {
	s := twoChunkStore()

	_, err := s.MergeChunk(0, chunkPayload(0, 60, 7))
	require.NoError(t, err)

	report, err := s.MergeChunk(0, chunkPayload(0, 60, 7))
	require.True(t, errors.Is(err, ErrChunkAlreadyLoaded))
	assert.True(t, report.Duplicate)
	assert.Equal(t, 60, s.ball.Len())
	assert.Equal(t, 60, s.players[7].Len())

	f := s.Resolve(30_500)
	assert.Equal(t, int64(30_000), f.Ball.Sample.Timestamp)
}

func TestStore_CreatesPlayerTracksLazily(t *testing.T) {
	s := twoChunkStore()

	report, err := s.MergeChunk(0, chunkPayload(0, 60, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, report.PlayersCreated)

	report, err = s.MergeChunk(1, chunkPayload(60_000, 60, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, report.PlayersCreated)
	assert.Equal(t, []uint32{1, 2, 3}, s.PlayerIDs())

	f := s.Resolve(61_000)
	require.Len(t, f.Players, 3)
	assert.Equal(t, uint32(1), f.Players[0].PlayerID)
	assert.Equal(t, uint32(3), f.Players[2].PlayerID)
	// player 3 has nothing past chunk 0 but chunk 1 is loaded
	assert.True(t, f.Players[2].Clamped)
	assert.False(t, f.Players[2].Stale)
}

func TestStore_OutOfOrderMergeIsAcceptedAndReported(t *testing.T) {
	s := twoChunkStore()

	_, err := s.MergeChunk(1, chunkPayload(60_000, 60, 5))
	require.NoError(t, err)

	report, err := s.MergeChunk(0, chunkPayload(0, 60, 5))
	require.NoError(t, err)
	assert.True(t, report.OutOfOrder())
	assert.True(t, report.BallOutOfOrder)
	assert.Equal(t, []uint32{5}, report.PlayersOutOfOrder)
	assert.Equal(t, 120, s.ball.Len())

	// lookups keep working without panicking
	assert.NotPanics(t, func() {
		for ts := int64(0); ts < 120_000; ts += 7_000 {
			s.Resolve(ts)
		}
	})
}

func TestStore_ExampleScenario(t *testing.T) {
	s := twoChunkStore()

	_, err := s.MergeChunk(0, chunkPayload(0, 60)) // 0..59000
	require.NoError(t, err)

	f := s.Resolve(61_000)
	require.True(t, f.Ball.Found)
	assert.Equal(t, int64(59_000), f.Ball.Sample.Timestamp)
	assert.True(t, f.Ball.Clamped)
	assert.True(t, f.Ball.Stale)

	_, err = s.MergeChunk(1, chunkPayload(60_000, 60)) // 60000..119000
	require.NoError(t, err)

	f = s.Resolve(61_000)
	assert.GreaterOrEqual(t, f.Ball.Sample.Timestamp, int64(60_000))
	assert.Equal(t, int64(61_000), f.Ball.Sample.Timestamp)
	assert.False(t, f.Ball.Stale)
	assert.Equal(t, 0, f.StaleCount())
}

func TestStore_Reset(t *testing.T) {
	s := twoChunkStore()
	_, err := s.MergeChunk(0, chunkPayload(0, 60, 9))
	require.NoError(t, err)
	s.Resolve(40_000)

	s.Reset()

	assert.Empty(t, s.LoadedChunks())
	assert.Empty(t, s.PlayerIDs())
	assert.Equal(t, 0, s.ball.Len())
	assert.Equal(t, 0, s.ball.cursor)
	assert.False(t, s.Resolve(40_000).Ball.Found)
	assert.Equal(t, int64(60_000), s.Metadata().ChunkDurationMs)

	_, err = s.MergeChunk(0, chunkPayload(0, 60))
	assert.NoError(t, err, "chunk can be merged again after reset")
}

func TestStore_LastBallTimestamp(t *testing.T) {
	s := NewStore(Metadata{})
	assert.Equal(t, int64(0), s.LastBallTimestamp())

	_, err := s.MergeChunk(0, chunkPayload(0, 12))
	require.NoError(t, err)
	assert.Equal(t, int64(11_000), s.LastBallTimestamp())
}

func TestChunkPayload_DecodesWireShape(t *testing.T) {
	raw := `{"ball":[{"timestamp":0,"position":[420,272.5,0]}],
	         "players":{"17":[{"timestamp":0,"position":[100,200,0]},{"timestamp":10,"position":[101,200,0]}]}}`

	var p ChunkPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.Len(t, p.Ball, 1)
	assert.Equal(t, float32(272.5), p.Ball[0].Position.Y)
	require.Len(t, p.Players[17], 2)
	assert.Equal(t, int64(10), p.Players[17][1].Timestamp)
}
