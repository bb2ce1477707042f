package submit

import (
	"context"
	"errors"
	"testing"

	"genclient/internal/credits"
	"genclient/internal/domain"
	"genclient/internal/rpc"
)

type countingCreator struct {
	calls  int
	keys   []string
	result *domain.CreateJobResult
	err    error
}

func (c *countingCreator) CreateJob(ctx context.Context, params domain.GenerationParams, key string) (*domain.CreateJobResult, error) {
	c.calls++
	c.keys = append(c.keys, key)
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type sequenceFetcher struct {
	values []int
	calls  int
}

func (s *sequenceFetcher) GetCredits(ctx context.Context) (int, error) {
	s.calls++
	v := s.values[0]
	if len(s.values) > 1 {
		s.values = s.values[1:]
	}
	return v, nil
}

func batchParams(count int) domain.GenerationParams {
	return domain.GenerationParams{
		Mode:      domain.ModeMultiAngle,
		Tier:      domain.TierStandard,
		ItemCount: count,
		ImageURL:  "https://cdn.example.com/source.png",
	}
}

func newGate(t *testing.T, creator JobCreator, fetcher credits.Fetcher) *Gate {
	t.Helper()
	g, err := NewGate(Options{Creator: creator, Balance: credits.NewBalance(fetcher, nil)})
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return g
}

func TestSubmitNeverCallsServerWhenBalanceTooLow(t *testing.T) {
	creator := &countingCreator{}
	gate := newGate(t, creator, &sequenceFetcher{values: []int{25}})

	_, err := gate.Submit(context.Background(), batchParams(3))
	var insufficient *domain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	if insufficient.Required != 30 || insufficient.Balance != 25 {
		t.Fatalf("unexpected numbers %+v", insufficient)
	}
	if creator.calls != 0 {
		t.Fatalf("create called %d times", creator.calls)
	}
}

func TestSubmitRejectsMissingInputs(t *testing.T) {
	tests := []struct {
		name   string
		params domain.GenerationParams
		want   string
	}{
		{
			name:   "motion without video",
			params: domain.GenerationParams{Mode: domain.ModeMotionControl, Tier: domain.Tier720p, DurationSeconds: 10, ImageURL: "https://x/img.png"},
			want:   "reference video",
		},
		{
			name:   "motion without image",
			params: domain.GenerationParams{Mode: domain.ModeMotionControl, Tier: domain.Tier720p, DurationSeconds: 10, VideoURL: "https://x/v.mp4"},
			want:   "character image",
		},
		{
			name:   "multi angle without source",
			params: domain.GenerationParams{Mode: domain.ModeMultiAngle, Tier: domain.TierHD, ItemCount: 2},
			want:   "source image",
		},
		{
			name:   "logo with blank prompt",
			params: domain.GenerationParams{Mode: domain.ModeLogo, Tier: domain.TierStandard, ItemCount: 2, Prompt: "   "},
			want:   "prompt",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			creator := &countingCreator{}
			fetcher := &sequenceFetcher{values: []int{1000}}
			gate := newGate(t, creator, fetcher)
			_, err := gate.Submit(context.Background(), tc.params)
			var pre *domain.PreconditionError
			if !errors.As(err, &pre) {
				t.Fatalf("expected precondition error, got %v", err)
			}
			if len(pre.Missing) != 1 || pre.Missing[0] != tc.want {
				t.Fatalf("missing = %v, want [%s]", pre.Missing, tc.want)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatal("precondition error should unwrap to ErrValidation")
			}
			if creator.calls != 0 || fetcher.calls != 0 {
				t.Fatalf("network touched: create=%d credits=%d", creator.calls, fetcher.calls)
			}
		})
	}
}

func TestSubmitCreatesJobAndRefetchesBalance(t *testing.T) {
	creator := &countingCreator{result: &domain.CreateJobResult{JobID: 41, TotalItems: 3, CreditsUsed: 30}}
	fetcher := &sequenceFetcher{values: []int{50, 20}}
	gate := newGate(t, creator, fetcher)

	res, err := gate.Submit(context.Background(), batchParams(3))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.JobID != 41 || res.TotalItems != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if creator.calls != 1 || creator.keys[0] == "" {
		t.Fatalf("create calls=%d keys=%v", creator.calls, creator.keys)
	}
	snap, _ := gate.balance.Current()
	if fetcher.calls != 2 || snap.Credits != 20 || snap.Stale {
		t.Fatalf("balance not refetched after spend: calls=%d snap=%+v", fetcher.calls, snap)
	}
}

func TestSubmitUsesFreshIdempotencyKeys(t *testing.T) {
	creator := &countingCreator{result: &domain.CreateJobResult{JobID: 1, TotalItems: 1, CreditsUsed: 10}}
	gate := newGate(t, creator, &sequenceFetcher{values: []int{500}})
	for i := 0; i < 2; i++ {
		if _, err := gate.Submit(context.Background(), batchParams(1)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if creator.keys[0] == creator.keys[1] {
		t.Fatalf("idempotency key reused across submissions: %v", creator.keys)
	}
}

func TestSubmitServerRejectionBecomesUpsell(t *testing.T) {
	creator := &countingCreator{err: &rpc.RemoteError{Op: rpc.ProcCreateJob, Status: 402, Code: rpc.CodeInsufficientCredits, Message: "not enough credits"}}
	fetcher := &sequenceFetcher{values: []int{50, 12}}
	gate := newGate(t, creator, fetcher)

	_, err := gate.Submit(context.Background(), batchParams(3))
	var insufficient *domain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	if insufficient.Required != 30 || insufficient.Balance != 12 {
		t.Fatalf("unexpected numbers %+v", insufficient)
	}
	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		t.Fatal("raw server error leaked to caller")
	}
}

func TestSubmitWrapsTransportFailure(t *testing.T) {
	creator := &countingCreator{err: &rpc.OperationError{Op: rpc.ProcCreateJob, Err: errors.New("connection reset")}}
	gate := newGate(t, creator, &sequenceFetcher{values: []int{50}})
	_, err := gate.Submit(context.Background(), batchParams(3))
	if !errors.Is(err, domain.ErrOperationFailed) {
		t.Fatalf("expected operation failure, got %v", err)
	}
	if errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatal("transport failure misreported as insufficient credits")
	}
}

func TestCheckReturnsQuote(t *testing.T) {
	gate := newGate(t, &countingCreator{}, &sequenceFetcher{values: []int{50}})
	quote, err := gate.Check(context.Background(), batchParams(3))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if quote.Estimate != 30 || quote.Balance != 50 || !quote.Sufficient {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestQuoteIgnoresMissingUploads(t *testing.T) {
	gate := newGate(t, &countingCreator{}, &sequenceFetcher{values: []int{20}})
	params := batchParams(3)
	params.ImageURL = ""

	quote, err := gate.Quote(context.Background(), params)
	var insufficient *domain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	if quote.Shortfall != 10 || insufficient.Required != 30 {
		t.Fatalf("unexpected quote %+v / %+v", quote, insufficient)
	}
}
