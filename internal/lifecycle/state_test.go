package lifecycle

import (
	"errors"
	"testing"
	"time"

	"genclient/internal/domain"
)

func snapshot(status domain.JobStatus, completed, total int) *domain.JobSnapshot {
	return &domain.JobSnapshot{
		Job:             domain.GenerationJob{ID: 7, Status: status, TotalItems: total, CompletedItems: completed},
		ProgressPercent: domain.ProgressPercent(completed, total),
	}
}

func hasEffect(effects []Effect, want Effect) bool {
	for _, e := range effects {
		if e == want {
			return true
		}
	}
	return false
}

func TestReduceStartEntersPolling(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s, effects := Reduce(State{StuckThreshold: 30 * time.Second}, Event{Kind: EventStarted, JobID: 7, At: t0})
	if s.Phase != PhasePolling || s.JobID != 7 || !s.LastProgressAt.Equal(t0) {
		t.Fatalf("unexpected state %+v", s)
	}
	if len(effects) != 0 {
		t.Fatalf("unexpected effects %v", effects)
	}
	if s.StuckThreshold != 30*time.Second {
		t.Fatalf("threshold lost: %v", s.StuckThreshold)
	}
}

func TestReduceTerminalSnapshotStopsPolling(t *testing.T) {
	tests := []struct {
		status domain.JobStatus
		want   Phase
	}{
		{domain.JobStatusCompleted, PhaseCompleted},
		{domain.JobStatusPartial, PhasePartial},
		{domain.JobStatusFailed, PhaseFailed},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			t0 := time.Unix(1000, 0)
			s, _ := Reduce(State{}, Event{Kind: EventStarted, JobID: 7, At: t0})
			s, effects := Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(tc.status, 1, 2), At: t0})
			if s.Phase != tc.want {
				t.Fatalf("phase = %s, want %s", s.Phase, tc.want)
			}
			if !hasEffect(effects, EffectStopPolling) {
				t.Fatalf("expected stop effect, got %v", effects)
			}
			after, effects := Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusProcessing, 0, 2), At: t0})
			if after.Phase != tc.want || after.Snapshot.Job.Status != tc.status || len(effects) != 0 {
				t.Fatalf("terminal state reverted: %+v %v", after, effects)
			}
		})
	}
}

func TestReduceReplacesSnapshotWholesale(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s, _ := Reduce(State{}, Event{Kind: EventStarted, JobID: 7, At: t0})
	first := snapshot(domain.JobStatusProcessing, 1, 3)
	first.Items = []domain.GenerationItem{{ID: 1, Status: domain.ItemStatusCompleted}, {ID: 2}, {ID: 3}}
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: first, At: t0})
	second := snapshot(domain.JobStatusProcessing, 2, 3)
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: second, At: t0.Add(time.Second)})
	if len(s.Snapshot.Items) != 0 || s.Snapshot.Job.CompletedItems != 2 || s.Fetches != 2 {
		t.Fatalf("snapshot was merged instead of replaced: %+v", s.Snapshot)
	}
}

func TestReduceAutoSyncFiresOncePerStall(t *testing.T) {
	threshold := 30 * time.Second
	t0 := time.Unix(1000, 0)
	s, _ := Reduce(State{StuckThreshold: threshold}, Event{Kind: EventStarted, JobID: 7, At: t0})
	s, effects := Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusProcessing, 0, 3), At: t0})
	if len(effects) != 0 {
		t.Fatalf("fresh job must not sync: %v", effects)
	}

	s, effects = Reduce(s, Event{Kind: EventTick, At: t0.Add(threshold)})
	if len(effects) != 0 {
		t.Fatalf("sync fired at exactly the threshold: %v", effects)
	}
	s, effects = Reduce(s, Event{Kind: EventTick, At: t0.Add(threshold + time.Second)})
	if !hasEffect(effects, EffectAutoSync) || !s.AutoSynced {
		t.Fatalf("expected auto sync, got %v", effects)
	}
	for i := 2; i < 5; i++ {
		s, effects = Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusProcessing, 0, 3), At: t0.Add(threshold + time.Duration(i)*time.Second)})
		if len(effects) != 0 {
			t.Fatalf("auto sync repeated for the same stall: %v", effects)
		}
	}
}

func TestReduceNeverAutoSyncsAfterPartialProgress(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s, _ := Reduce(State{StuckThreshold: time.Second}, Event{Kind: EventStarted, JobID: 7, At: t0})
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusProcessing, 1, 3), At: t0})
	_, effects := Reduce(s, Event{Kind: EventTick, At: t0.Add(time.Hour)})
	if len(effects) != 0 {
		t.Fatalf("job with completed items must not auto sync: %v", effects)
	}
}

func TestReduceIgnoresPendingJobs(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s, _ := Reduce(State{StuckThreshold: time.Second}, Event{Kind: EventStarted, JobID: 7, At: t0})
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusPending, 0, 3), At: t0})
	_, effects := Reduce(s, Event{Kind: EventTick, At: t0.Add(time.Hour)})
	if len(effects) != 0 {
		t.Fatalf("pending job must not auto sync: %v", effects)
	}
	if s.CanSync() {
		t.Fatal("manual sync must be unavailable while pending")
	}
}

func TestReduceStatusChangeRearmsAutoSync(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s, _ := Reduce(State{StuckThreshold: time.Second}, Event{Kind: EventStarted, JobID: 7, At: t0})
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusPending, 0, 1), At: t0})
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusProcessing, 0, 1), At: t0.Add(10 * time.Second)})
	if !s.LastProgressAt.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("status change should count as progress: %v", s.LastProgressAt)
	}
	_, effects := Reduce(s, Event{Kind: EventTick, At: t0.Add(10*time.Second + 500*time.Millisecond)})
	if len(effects) != 0 {
		t.Fatalf("threshold measured from the wrong point: %v", effects)
	}
}

func TestReduceFetchFailureKeepsPolling(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s, _ := Reduce(State{}, Event{Kind: EventStarted, JobID: 7, At: t0})
	boom := errors.New("boom")
	s, effects := Reduce(s, Event{Kind: EventFetchFailed, Err: boom, At: t0})
	if s.Phase != PhasePolling || !errors.Is(s.LastError, boom) || len(effects) != 0 {
		t.Fatalf("unexpected state %+v %v", s, effects)
	}
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusProcessing, 0, 1), At: t0})
	if s.LastError != nil {
		t.Fatalf("successful fetch should clear the error: %v", s.LastError)
	}
}

func TestReduceResetReturnsToIdle(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s, _ := Reduce(State{StuckThreshold: time.Second}, Event{Kind: EventStarted, JobID: 7, At: t0})
	s, _ = Reduce(s, Event{Kind: EventSnapshot, Snapshot: snapshot(domain.JobStatusProcessing, 0, 1), At: t0})
	s, effects := Reduce(s, Event{Kind: EventReset})
	if s.Phase != PhaseIdle || s.Snapshot != nil || s.JobID != 0 || !hasEffect(effects, EffectStopPolling) {
		t.Fatalf("unexpected reset state %+v %v", s, effects)
	}
	if _, effects := Reduce(s, Event{Kind: EventTick, At: t0.Add(time.Hour)}); len(effects) != 0 {
		t.Fatalf("idle state produced effects: %v", effects)
	}
}
