package types

import "github.com/DoyleJ11/match-replay/internal/engine"

type ClientMessage struct {
	Type   string  `json:"type"` // "Play" | "Pause" | "Stop" | "Seek" | "SetSpeed"
	TimeMs int64   `json:"time_ms,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
}

type ServerMessage struct {
	Type       string        `json:"type"` // "Frame" | "Error"
	Version    int           `json:"version,omitempty"`
	TimeMs     int64         `json:"time_ms"`
	DurationMs int64         `json:"duration_ms,omitempty"`
	State      engine.State  `json:"state,omitempty"`
	Ball       *Point        `json:"ball,omitempty"`
	Players    []PlayerPoint `json:"players,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Point is a position already projected onto the client's viewport.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float32 `json:"z,omitempty"`
	Stale bool    `json:"stale,omitempty"`
}

type PlayerPoint struct {
	ID uint32 `json:"id"`
	Point
}
