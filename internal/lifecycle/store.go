package lifecycle

import (
	"context"
	"sync"

	"genclient/internal/domain"
)

// Store keeps at most one active session per job ID.
type Store struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[int64]*Session
	closed   bool
}

// NewStore constructs a Store. Sessions it starts are torn down by Close.
func NewStore(opts Options) (*Store, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{opts: opts, ctx: ctx, cancel: cancel, sessions: make(map[int64]*Session)}, nil
}

// Start returns the active session for jobID, starting one if none is
// running. A finished session is replaced.
func (st *Store) Start(jobID int64) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil, domain.ErrSessionClosed
	}
	if s, ok := st.sessions[jobID]; ok {
		select {
		case <-s.Done():
		default:
			return s, nil
		}
	}
	s, err := Start(st.ctx, jobID, st.opts)
	if err != nil {
		return nil, err
	}
	st.sessions[jobID] = s
	return s, nil
}

// Get returns the session registered for jobID.
func (st *Store) Get(jobID int64) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[jobID]
	return s, ok
}

// Reset stops and forgets the session for jobID, as when the user starts a
// new job.
func (st *Store) Reset(jobID int64) {
	st.mu.Lock()
	s, ok := st.sessions[jobID]
	delete(st.sessions, jobID)
	st.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// Close stops every session and rejects further starts.
func (st *Store) Close() {
	st.mu.Lock()
	st.closed = true
	sessions := make([]*Session, 0, len(st.sessions))
	for id, s := range st.sessions {
		sessions = append(sessions, s)
		delete(st.sessions, id)
	}
	st.mu.Unlock()

	st.cancel()
	for _, s := range sessions {
		s.Stop()
	}
}
