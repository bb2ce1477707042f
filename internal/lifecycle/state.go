// Package lifecycle tracks a submitted generation job until it reaches a
// terminal status, reconciling jobs that stall while processing.
package lifecycle

import (
	"time"

	"genclient/internal/domain"
)

// Phase is the poller's position in its state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePolling   Phase = "polling"
	PhaseCompleted Phase = "completed"
	PhasePartial   Phase = "partial"
	PhaseFailed    Phase = "failed"
)

// IsTerminal reports whether the phase ends polling.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhasePartial || p == PhaseFailed
}

func phaseFor(status domain.JobStatus) Phase {
	switch status {
	case domain.JobStatusCompleted:
		return PhaseCompleted
	case domain.JobStatusPartial:
		return PhasePartial
	case domain.JobStatusFailed:
		return PhaseFailed
	default:
		return PhasePolling
	}
}

// State is everything the poller knows about one job. Snapshot is the latest
// server view and is only ever replaced, never merged.
type State struct {
	JobID          int64
	Phase          Phase
	Snapshot       *domain.JobSnapshot
	StuckThreshold time.Duration
	LastProgressAt time.Time
	AutoSynced     bool
	Fetches        int
	LastError      error
}

// Processing reports whether the latest snapshot says the job is processing.
func (s State) Processing() bool {
	return s.Phase == PhasePolling && s.Snapshot != nil && s.Snapshot.Job.Status == domain.JobStatusProcessing
}

// CanSync reports whether a manual reconciliation may be requested.
func (s State) CanSync() bool {
	return s.Processing()
}

// Stuck reports whether the job has sat in processing with nothing completed
// for longer than the threshold since the last observed progress.
func (s State) Stuck(now time.Time) bool {
	if !s.Processing() || s.Snapshot.Job.CompletedItems != 0 {
		return false
	}
	return now.Sub(s.LastProgressAt) > s.StuckThreshold
}

// EventKind identifies an input to Reduce.
type EventKind int

const (
	EventStarted EventKind = iota
	EventSnapshot
	EventFetchFailed
	EventTick
	EventReset
)

// Event is one input to the state machine.
type Event struct {
	Kind     EventKind
	JobID    int64
	Snapshot *domain.JobSnapshot
	Err      error
	At       time.Time
}

// Effect is work the session must perform after a transition.
type Effect int

const (
	EffectStopPolling Effect = iota + 1
	EffectAutoSync
)

// Reduce applies ev to s. It is pure: all side effects are returned as
// effects for the caller to run.
func Reduce(s State, ev Event) (State, []Effect) {
	switch ev.Kind {
	case EventStarted:
		return State{
			JobID:          ev.JobID,
			Phase:          PhasePolling,
			StuckThreshold: s.StuckThreshold,
			LastProgressAt: ev.At,
		}, nil

	case EventReset:
		return State{Phase: PhaseIdle, StuckThreshold: s.StuckThreshold}, []Effect{EffectStopPolling}

	case EventSnapshot:
		if s.Phase != PhasePolling || ev.Snapshot == nil {
			return s, nil
		}
		prev := s.Snapshot
		snap := *ev.Snapshot
		s.Snapshot = &snap
		s.Fetches++
		s.LastError = nil
		if prev == nil || prev.Job.Status != snap.Job.Status || prev.Job.CompletedItems != snap.Job.CompletedItems {
			s.LastProgressAt = ev.At
			s.AutoSynced = false
		}
		if snap.Job.Status.IsTerminal() {
			s.Phase = phaseFor(snap.Job.Status)
			return s, []Effect{EffectStopPolling}
		}
		return checkStuck(s, ev.At)

	case EventFetchFailed:
		if s.Phase != PhasePolling {
			return s, nil
		}
		s.LastError = ev.Err
		return s, nil

	case EventTick:
		if s.Phase != PhasePolling {
			return s, nil
		}
		return checkStuck(s, ev.At)
	}
	return s, nil
}

func checkStuck(s State, now time.Time) (State, []Effect) {
	if s.AutoSynced || !s.Stuck(now) {
		return s, nil
	}
	s.AutoSynced = true
	return s, []Effect{EffectAutoSync}
}
