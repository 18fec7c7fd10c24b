package engine

import (
	"encoding/json"
	"fmt"
)

const (
	// StaleGapMs is how far t may run ahead of the cursor before the cursor
	// is rewound and the track rescanned from the start.
	StaleGapMs int64 = 60_000
	// StaleToleranceMs is the largest distance between t and the resolved
	// sample that is still considered fresh.
	StaleToleranceMs int64 = 5_000
)

type Vec3 struct {
	X, Y, Z float32
}

// Positions travel as [x, y, z] arrays. Two component arrays are accepted
// and leave Z at zero.
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float32{v.X, v.Y, v.Z})
}

func (v *Vec3) UnmarshalJSON(data []byte) error {
	var parts []float32
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	switch len(parts) {
	case 2:
		*v = Vec3{X: parts[0], Y: parts[1]}
	case 3:
		*v = Vec3{X: parts[0], Y: parts[1], Z: parts[2]}
	default:
		return fmt.Errorf("position: want 2 or 3 components, got %d", len(parts))
	}
	return nil
}

type Sample struct {
	Timestamp int64 `json:"timestamp"`
	Position  Vec3  `json:"position"`
}

// Resolved is the outcome of looking up one track at a virtual time.
type Resolved struct {
	Sample Sample
	Found  bool // false only for an empty track
	Stale  bool
	// Clamped is set when t lies past the last buffered sample.
	Clamped bool
}

// Track is one entity's ordered samples plus the cursor used to find the
// current sample without rescanning. The cursor is only moved by Resolve.
type Track struct {
	samples []Sample
	cursor  int
}

func (tr *Track) Len() int { return len(tr.samples) }

// Last returns the newest sample, if any.
func (tr *Track) Last() (Sample, bool) {
	if len(tr.samples) == 0 {
		return Sample{}, false
	}
	return tr.samples[len(tr.samples)-1], true
}

// appendSamples appends in arrival order and reports whether the sequence is
// still non-decreasing by timestamp afterwards.
func (tr *Track) appendSamples(in []Sample) bool {
	ordered := true
	prev, hasPrev := tr.Last()
	for _, s := range in {
		if hasPrev && s.Timestamp < prev.Timestamp {
			ordered = false
		}
		prev, hasPrev = s, true
	}
	tr.samples = append(tr.samples, in...)
	return ordered
}

func (tr *Track) clear() {
	tr.samples = nil
	tr.cursor = 0
}

// Resolve returns the last sample with timestamp <= t. When t precedes the
// first sample the first sample is returned; when t is past the buffered
// data the last sample is returned with Clamped set.
func (tr *Track) Resolve(t int64) Resolved {
	n := len(tr.samples)
	if n == 0 {
		return Resolved{}
	}

	tr.cursor = clampInt(tr.cursor, 0, n-1)

	cur := tr.samples[tr.cursor].Timestamp
	if cur > t || t-cur > StaleGapMs {
		// seek backwards or a large jump forwards
		tr.cursor = 0
	}

	for tr.cursor < n-1 && tr.samples[tr.cursor+1].Timestamp <= t {
		tr.cursor++
	}

	s := tr.samples[tr.cursor]
	return Resolved{
		Sample:  s,
		Found:   true,
		Stale:   absInt64(t-s.Timestamp) > StaleToleranceMs,
		Clamped: tr.cursor == n-1 && t > s.Timestamp,
	}
}
