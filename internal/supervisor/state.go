package supervisor

import "time"

// Status is the supervision state of the model server.
type Status string

const (
	StatusNotStarted  Status = "not_started"
	StatusStarting    Status = "starting"
	StatusReady       Status = "ready"
	StatusUnreachable Status = "unreachable"
)

// State is a read-only projection of the supervisor.
type State struct {
	Status Status
	// Owned is true only while a child spawned by this process is alive.
	Owned     bool
	PID       int
	LastCheck time.Time
	LastError string
}
