package credits

import (
	"context"
	"errors"
	"testing"
)

type stubFetcher struct {
	values []int
	err    error
	calls  int
}

func (s *stubFetcher) GetCredits(ctx context.Context) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	v := s.values[0]
	if len(s.values) > 1 {
		s.values = s.values[1:]
	}
	return v, nil
}

func TestEnsureFetchesOnce(t *testing.T) {
	f := &stubFetcher{values: []int{50}}
	b := NewBalance(f, nil)

	if _, ok := b.Current(); ok {
		t.Fatal("balance should be unknown before first fetch")
	}
	for i := 0; i < 3; i++ {
		snap, err := b.Ensure(context.Background())
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if snap.Credits != 50 {
			t.Fatalf("credits = %d, want 50", snap.Credits)
		}
	}
	if f.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", f.calls)
	}
}

func TestInvalidateRefetchesInsteadOfDecrementing(t *testing.T) {
	f := &stubFetcher{values: []int{50, 20}}
	b := NewBalance(f, nil)
	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	b.Invalidate(context.Background())
	snap, ok := b.Current()
	if !ok || snap.Credits != 20 || snap.Stale {
		t.Fatalf("unexpected snapshot after invalidate: %+v", snap)
	}
	if f.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", f.calls)
	}
}

func TestInvalidateKeepsStaleValueOnFailure(t *testing.T) {
	f := &stubFetcher{values: []int{50}}
	b := NewBalance(f, nil)
	_, _ = b.Refresh(context.Background())

	f.err = errors.New("offline")
	b.Invalidate(context.Background())
	snap, ok := b.Current()
	if !ok || snap.Credits != 50 || !snap.Stale {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	f.err = nil
	f.values = []int{35}
	snap, err := b.Ensure(context.Background())
	if err != nil || snap.Credits != 35 {
		t.Fatalf("ensure after stale = %+v, %v", snap, err)
	}
}
