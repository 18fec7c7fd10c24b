// Package types holds the websocket wire messages.
//
// Client -> Server
//
//	Play, Pause, Stop: {}
//	Seek:
//	  time_ms: number
//	SetSpeed:
//	  speed: number // > 0
//
// Server -> Client
//
//	Frame:
//	  version: number
//	  time_ms: number
//	  duration_ms: number
//	  state: "not_started" | "running" | "paused" | "ended"
//	  ball: { x, y, z, stale } // omitted when nothing is loaded yet
//	  players: [{ id, x, y, z, stale }]
//
//	Error:
//	  error: string
//
// x and y are projected onto the viewport given by the w and h query
// parameters of /ws. z is passed through in simulation units.
package types
