package ir

import "time"

// Operation is a mutating request issued by a command, journaled so a
// later "operation wait" can resume waiting on it.
type Operation struct {
	ID             string    `json:"id"`
	Method         string    `json:"method"`
	Handle         Handle    `json:"handle"`
	StatusCode     int       `json:"status_code"`
	AsyncOperation string    `json:"async_operation,omitempty"`
	NoWait         bool      `json:"no_wait"`
	WaitID         string    `json:"wait_id,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
}
