package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"genclient/internal/domain"
	"genclient/internal/infra"
)

const (
	DefaultInterval       = 3 * time.Second
	DefaultStuckThreshold = 30 * time.Second
)

// JobClient is the subset of the RPC client the poller needs.
type JobClient interface {
	GetJobStatus(ctx context.Context, jobID int64) (*domain.JobSnapshot, error)
	SyncJob(ctx context.Context, jobID int64) (*domain.SyncResult, error)
}

// Options configures sessions.
type Options struct {
	Client         JobClient
	Interval       time.Duration
	StuckThreshold time.Duration
	Logger         *infra.Logger
	Now            func() time.Time
}

func (o Options) withDefaults() (Options, error) {
	if o.Client == nil {
		return o, errors.New("lifecycle: client is required")
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.StuckThreshold <= 0 {
		o.StuckThreshold = DefaultStuckThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = infra.OrDiscard(o.Logger)
	return o, nil
}

type fetchResult struct {
	snap *domain.JobSnapshot
	err  error
}

// Session polls one job. It owns a single loop goroutine; status fetches run
// in a helper goroutine with at most one in flight.
type Session struct {
	jobID  int64
	opts   Options
	logger infra.Logger

	mu     sync.Mutex
	state  State
	closed bool

	cancel    context.CancelFunc
	stopOnce  sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
	nudge     chan struct{}
	snapshots chan domain.JobSnapshot
}

// Start creates a session for jobID and begins polling immediately. The
// session stops on its own once the job is terminal, or when Stop is called
// or ctx is cancelled.
func Start(ctx context.Context, jobID int64, opts Options) (*Session, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		jobID:     jobID,
		opts:      opts,
		logger:    opts.Logger.With().Int64("job_id", jobID).Logger(),
		cancel:    cancel,
		done:      make(chan struct{}),
		nudge:     make(chan struct{}, 1),
		snapshots: make(chan domain.JobSnapshot, 1),
	}
	s.state, _ = Reduce(State{StuckThreshold: opts.StuckThreshold}, Event{Kind: EventStarted, JobID: jobID, At: opts.Now()})

	s.wg.Add(1)
	go s.run(loopCtx)
	go func() {
		s.wg.Wait()
		close(s.snapshots)
		close(s.done)
	}()
	s.logger.Info().Dur("interval", opts.Interval).Msg("poller: started")
	return s, nil
}

// JobID returns the job the session tracks.
func (s *Session) JobID() int64 { return s.jobID }

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshots delivers each applied server snapshot. Only the latest undelivered
// snapshot is kept. The channel is closed when the session ends.
func (s *Session) Snapshots() <-chan domain.JobSnapshot {
	return s.snapshots
}

// Done is closed after the session and all of its goroutines have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the job reaches a terminal phase. It returns
// ErrSessionClosed if the session was torn down first.
func (s *Session) Wait(ctx context.Context) (State, error) {
	select {
	case <-ctx.Done():
		return s.State(), ctx.Err()
	case <-s.done:
	}
	st := s.State()
	if !st.Phase.IsTerminal() {
		return st, domain.ErrSessionClosed
	}
	return st, nil
}

// Stop tears the session down. Any in-flight fetch is cancelled and its result
// discarded; no status fetch is issued once Stop returns.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
	})
	<-s.done
}

// Sync asks the server to reconcile the job with its upstream provider. It is
// only available while the job is processing. A successful sync triggers an
// immediate refetch; the new state arrives through the normal snapshot path.
func (s *Session) Sync(ctx context.Context) (*domain.SyncResult, error) {
	s.mu.Lock()
	closed, st := s.closed, s.state
	s.mu.Unlock()
	if closed {
		return nil, domain.ErrSessionClosed
	}
	if !st.CanSync() {
		return nil, fmt.Errorf("lifecycle: job %d is %s: %w", s.jobID, statusOf(st), domain.ErrSyncUnavailable)
	}
	res, err := s.opts.Client.SyncJob(ctx, s.jobID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: sync job %d: %w", s.jobID, err)
	}
	s.logger.Info().Int("synced", res.Synced).Str("message", res.Message).Msg("poller: manual sync finished")
	s.refetch()
	return res, nil
}

func statusOf(st State) string {
	if st.Snapshot == nil {
		return string(st.Phase)
	}
	return string(st.Snapshot.Job.Status)
}

func (s *Session) refetch() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.cancel()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	results := make(chan fetchResult, 1)
	inFlight := false
	dispatch := func() {
		if ctx.Err() != nil {
			return
		}
		if inFlight {
			s.logger.Debug().Msg("poller: previous fetch still in flight, skipping tick")
			return
		}
		inFlight = true
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			snap, err := s.opts.Client.GetJobStatus(ctx, s.jobID)
			results <- fetchResult{snap: snap, err: err}
		}()
	}

	dispatch()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("poller: stopped")
			return
		case <-ticker.C:
			if s.apply(ctx, Event{Kind: EventTick, At: s.opts.Now()}) {
				return
			}
			dispatch()
		case <-s.nudge:
			dispatch()
		case res := <-results:
			inFlight = false
			if ctx.Err() != nil {
				return
			}
			ev := Event{Kind: EventSnapshot, Snapshot: res.snap, At: s.opts.Now()}
			if res.err != nil {
				s.logger.Warn().Err(res.err).Msg("poller: status fetch failed")
				ev = Event{Kind: EventFetchFailed, Err: res.err, At: ev.At}
			}
			if s.apply(ctx, ev) {
				return
			}
		}
	}
}

// apply runs the reducer under the lock and executes its effects. It reports
// whether polling must stop.
func (s *Session) apply(ctx context.Context, ev Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	prev := s.state
	next, effects := Reduce(s.state, ev)
	s.state = next
	s.mu.Unlock()

	if ev.Kind == EventSnapshot && next.Snapshot != nil && next.Fetches != prev.Fetches {
		s.publish(*next.Snapshot)
		s.logger.Debug().
			Str("status", string(next.Snapshot.Job.Status)).
			Int("completed", next.Snapshot.Job.CompletedItems).
			Int("total", next.Snapshot.Job.TotalItems).
			Msg("poller: snapshot")
	}

	stop := false
	for _, effect := range effects {
		switch effect {
		case EffectStopPolling:
			s.logger.Info().Str("phase", string(next.Phase)).Int("fetches", next.Fetches).Msg("poller: job reached terminal status")
			stop = true
		case EffectAutoSync:
			s.autoSync(ctx, next)
		}
	}
	return stop
}

func (s *Session) autoSync(ctx context.Context, st State) {
	s.logger.Warn().
		Dur("since_progress", s.opts.Now().Sub(st.LastProgressAt)).
		Msg("poller: job looks stuck, requesting sync")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.opts.Client.SyncJob(ctx, s.jobID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("poller: automatic sync failed")
			}
			return
		}
		s.logger.Info().Int("synced", res.Synced).Msg("poller: automatic sync finished")
		s.refetch()
	}()
}

// publish replaces any undelivered snapshot with snap.
func (s *Session) publish(snap domain.JobSnapshot) {
	for {
		select {
		case s.snapshots <- snap:
			return
		default:
		}
		select {
		case <-s.snapshots:
		default:
		}
	}
}
