package models

import "time"

type ExecStatus string

const (
	ExecStatusPending  ExecStatus = "pending"
	ExecStatusRunning  ExecStatus = "running"
	ExecStatusComplete ExecStatus = "complete"
	ExecStatusFailed   ExecStatus = "failed"
)

// Execution records one invocation of the external tool within a sweep.
type Execution struct {
	ID          int64
	SweepID     int64
	SequenceNum int
	Spec        RunSpec
	CommandLine string
	Status      ExecStatus
	ExitCode    *int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Artifact    string // final name after rename, empty until collected
	PID         *int
}

func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}
