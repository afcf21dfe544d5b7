package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StrategyStatus is the run state of a strategy record.
type StrategyStatus string

const (
	StrategyRunning StrategyStatus = "running"
	StrategyPaused  StrategyStatus = "paused"
	StrategyStopped StrategyStatus = "stopped"
)

// ErrInvalidTransition is wrapped when a strategy cannot move to the
// requested status from its current one.
var ErrInvalidTransition = errors.New("invalid strategy status transition")

// Strategy is a named, parameterized strategy attached to one broker
// account. Status is derived from the latest run.
type Strategy struct {
	ID        int64
	AccountID int64
	Name      string
	Type      string
	Params    json.RawMessage
	Enabled   bool
	Status    StrategyStatus
	CreatedAt time.Time
}

// StrategyRun is one running period of a strategy. EndedAt is nil while
// the run is running or paused.
type StrategyRun struct {
	ID         int64
	StrategyID int64
	Status     StrategyStatus
	StartedAt  time.Time
	EndedAt    *time.Time
}

// Open reports whether the run has not been stopped.
func (r StrategyRun) Open() bool {
	return r.Status == StrategyRunning || r.Status == StrategyPaused
}

// NextStatus validates moving from cur to want. Starting a stopped strategy
// opens a new run; every other allowed move updates the open run.
func NextStatus(cur, want StrategyStatus) (newRun bool, err error) {
	switch {
	case want == StrategyRunning && cur == StrategyStopped:
		return true, nil
	case want == StrategyRunning && cur == StrategyPaused,
		want == StrategyPaused && cur == StrategyRunning,
		want == StrategyStopped && (cur == StrategyRunning || cur == StrategyPaused):
		return false, nil
	}
	return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur, want)
}
