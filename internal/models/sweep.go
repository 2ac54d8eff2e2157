package models

import (
	"fmt"
	"time"
)

type SweepState string

const (
	SweepStateNotStarted SweepState = "not_started"
	SweepStatePreparing  SweepState = "preparing"
	SweepStateRunning    SweepState = "running"
	SweepStateDone       SweepState = "done"
	SweepStateAborted    SweepState = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s SweepState) Terminal() bool {
	return s == SweepStateDone || s == SweepStateAborted
}

var sweepTransitions = map[SweepState][]SweepState{
	SweepStateNotStarted: {SweepStatePreparing, SweepStateAborted},
	SweepStatePreparing:  {SweepStateRunning, SweepStateAborted},
	SweepStateRunning:    {SweepStateRunning, SweepStateDone, SweepStateAborted},
}

// CanTransition reports whether a sweep may move from s to next.
// Running -> Running is the step between schedule entries.
func (s SweepState) CanTransition(next SweepState) bool {
	for _, allowed := range sweepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Sweep struct {
	ID          int64
	Token       string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Target      string
	WorkDir     string
	LogPath     string
	State       SweepState
	// CurrentIndex is the schedule position being run, -1 before the first run.
	CurrentIndex int
	Error        string
	// ArtifactCount is derived from the sweep's executions when read back.
	ArtifactCount int
}

// Advance moves the sweep to next, rejecting transitions the state machine
// does not allow.
func (s *Sweep) Advance(next SweepState) error {
	if !s.State.CanTransition(next) {
		return fmt.Errorf("invalid sweep transition %s -> %s", s.State, next)
	}
	s.State = next
	if next.Terminal() {
		now := time.Now()
		s.CompletedAt = &now
	}
	return nil
}
