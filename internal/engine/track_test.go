package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samplesEvery builds n samples starting at from, step ms apart, x = index.
func samplesEvery(from, step int64, n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Timestamp: from + int64(i)*step, Position: Vec3{X: float32(i)}}
	}
	return out
}

func newTrack(samples []Sample) *Track {
	tr := &Track{}
	tr.appendSamples(samples)
	return tr
}

func TestTrack_MonotonicResolveNeverMovesBackwards(t *testing.T) {
	tr := newTrack(samplesEvery(0, 1000, 50))

	prev := -1
	for ts := int64(0); ts <= 49_000; ts += 370 {
		r := tr.Resolve(ts)
		require.True(t, r.Found)
		require.GreaterOrEqual(t, tr.cursor, prev, "cursor moved backwards at t=%d", ts)
		require.LessOrEqual(t, r.Sample.Timestamp, ts)
		prev = tr.cursor
	}
}

func TestTrack_ResolveReturnsLastSampleAtOrBefore(t *testing.T) {
	tr := newTrack(samplesEvery(0, 1000, 10))

	cases := []struct {
		name   string
		t      int64
		wantTs int64
	}{
		{name: "exact hit", t: 3000, wantTs: 3000},
		{name: "between samples", t: 3999, wantTs: 3000},
		{name: "before first sample", t: -50, wantTs: 0},
		{name: "past the end", t: 20_000, wantTs: 9000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tr.Resolve(tc.t)
			assert.Equal(t, tc.wantTs, r.Sample.Timestamp)
		})
	}
}

func TestTrack_BackwardSeekResetsCursor(t *testing.T) {
	tr := newTrack(samplesEvery(0, 1000, 30))

	r := tr.Resolve(25_500)
	require.Equal(t, int64(25_000), r.Sample.Timestamp)

	r = tr.Resolve(4_200)
	assert.Equal(t, int64(4_000), r.Sample.Timestamp)
	assert.Equal(t, 4, tr.cursor)
}

func TestTrack_GapResetRescansFromStart(t *testing.T) {
	tr := newTrack(samplesEvery(0, 1000, 200))

	tr.Resolve(2_000)
	require.Equal(t, 2, tr.cursor)

	// Pretend the cursor went somewhere nonsensical; the gap rule must
	// recover it rather than trusting the old position.
	tr.cursor = 1
	target := int64(2_000) + StaleGapMs + 1
	r := tr.Resolve(target)

	fresh := newTrack(samplesEvery(0, 1000, 200)).Resolve(target)
	assert.Equal(t, fresh.Sample, r.Sample)
	assert.Equal(t, int64(62_000), r.Sample.Timestamp)
}

func TestTrack_OutOfRangeCursorIsClamped(t *testing.T) {
	tr := newTrack(samplesEvery(0, 1000, 5))
	tr.cursor = 99

	r := tr.Resolve(2_500)
	require.True(t, r.Found)
	assert.Equal(t, int64(2_000), r.Sample.Timestamp)
}

func TestTrack_ClampAtEnd(t *testing.T) {
	tr := newTrack(samplesEvery(0, 1000, 5))

	r := tr.Resolve(4_500)
	assert.True(t, r.Clamped)
	assert.False(t, r.Stale)
	assert.Equal(t, int64(4_000), r.Sample.Timestamp)

	r = tr.Resolve(4_000 + StaleToleranceMs + 1)
	assert.True(t, r.Clamped)
	assert.True(t, r.Stale)
}

func TestTrack_EmptyTrack(t *testing.T) {
	tr := &Track{}
	r := tr.Resolve(1000)
	assert.False(t, r.Found)
	assert.False(t, r.Stale)
}

func TestTrack_AppendReportsDisorder(t *testing.T) {
	tr := newTrack(samplesEvery(10_000, 1000, 3))

	assert.True(t, tr.appendSamples(samplesEvery(12_000, 1000, 2)), "equal timestamps are allowed")
	assert.False(t, tr.appendSamples(samplesEvery(0, 1000, 2)))
	assert.Equal(t, 7, tr.Len())
}

func TestVec3_JSON(t *testing.T) {
	var v Vec3
	require.NoError(t, v.UnmarshalJSON([]byte(`[1.5,2,0.25]`)))
	assert.Equal(t, Vec3{X: 1.5, Y: 2, Z: 0.25}, v)

	require.NoError(t, v.UnmarshalJSON([]byte(`[3,4]`)))
	assert.Equal(t, Vec3{X: 3, Y: 4}, v)

	assert.Error(t, v.UnmarshalJSON([]byte(`[1]`)))
}
