// Package submit checks the client-side preconditions of a generation request
// and issues the creation call only when all of them hold.
package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"genclient/internal/credits"
	"genclient/internal/domain"
	"genclient/internal/infra"
	"genclient/internal/pricing"
)

// JobCreator issues the job creation request.
type JobCreator interface {
	CreateJob(ctx context.Context, params domain.GenerationParams, idempotencyKey string) (*domain.CreateJobResult, error)
}

// Options configures a Gate.
type Options struct {
	Creator JobCreator
	Balance *credits.Balance
	Logger  *infra.Logger
	NewKey  func() string
}

// Gate validates inputs and balance before creating a job.
type Gate struct {
	creator JobCreator
	balance *credits.Balance
	logger  *infra.Logger
	newKey  func() string
}

// NewGate constructs a Gate.
func NewGate(opts Options) (*Gate, error) {
	if opts.Creator == nil {
		return nil, errors.New("submit: creator is required")
	}
	if opts.Balance == nil {
		return nil, errors.New("submit: balance is required")
	}
	newKey := opts.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	return &Gate{creator: opts.Creator, balance: opts.Balance, logger: infra.OrDiscard(opts.Logger), newKey: newKey}, nil
}

// MissingInputs lists the required inputs absent from params for its mode.
func MissingInputs(params domain.GenerationParams) []string {
	var missing []string
	switch params.Mode {
	case domain.ModeMotionControl:
		if strings.TrimSpace(params.VideoURL) == "" {
			missing = append(missing, "reference video")
		}
		if strings.TrimSpace(params.ImageURL) == "" {
			missing = append(missing, "character image")
		}
	case domain.ModeMultiAngle:
		if strings.TrimSpace(params.ImageURL) == "" {
			missing = append(missing, "source image")
		}
	case domain.ModeLogo:
		if strings.TrimSpace(params.Prompt) == "" {
			missing = append(missing, "prompt")
		}
	}
	return missing
}

// Check runs every precondition and returns the quote it was judged on. The
// balance is the last one fetched; it is only read from the server when none
// is known yet.
func (g *Gate) Check(ctx context.Context, params domain.GenerationParams) (pricing.Quote, error) {
	if missing := MissingInputs(params); len(missing) > 0 {
		return pricing.Quote{}, &domain.PreconditionError{Missing: missing}
	}
	return g.Quote(ctx, params)
}

// Quote prices params against the known balance without looking at the
// inputs. Callers use it to refuse work, such as uploads, that would only
// lead to a rejected submission.
func (g *Gate) Quote(ctx context.Context, params domain.GenerationParams) (pricing.Quote, error) {
	snap, err := g.balance.Ensure(ctx)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("submit: load balance: %w", err)
	}
	quote, err := pricing.NewQuote(params, snap.Credits)
	if err != nil {
		return pricing.Quote{}, err
	}
	if !quote.Sufficient {
		return quote, &domain.InsufficientCreditsError{Required: quote.Estimate, Balance: quote.Balance}
	}
	return quote, nil
}

// Submit creates the job if Check passes. A server-side insufficient balance
// rejection is reported as *domain.InsufficientCreditsError against a freshly
// read balance, the same as a client-side one.
func (g *Gate) Submit(ctx context.Context, params domain.GenerationParams) (*domain.CreateJobResult, error) {
	quote, err := g.Check(ctx, params)
	if err != nil {
		return nil, err
	}
	key := g.newKey()
	res, err := g.creator.CreateJob(ctx, params, key)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			g.balance.Invalidate(ctx)
			latest, _ := g.balance.Current()
			g.logger.Warn().
				Int("estimate", quote.Estimate).
				Int("balance", latest.Credits).
				Msg("submit: server rejected job for insufficient credits")
			return nil, &domain.InsufficientCreditsError{Required: quote.Estimate, Balance: latest.Credits}
		}
		return nil, fmt.Errorf("submit: create job: %w", err)
	}
	g.balance.Invalidate(ctx)

	g.logger.Info().
		Int64("job_id", res.JobID).
		Str("mode", string(params.Mode)).
		Int("total", res.TotalItems).
		Int("credits_used", res.CreditsUsed).
		Str("idempotency_key", key).
		Msg("submit: job created")
	if res.CreditsUsed != quote.Estimate {
		g.logger.Warn().
			Int64("job_id", res.JobID).
			Int("estimate", quote.Estimate).
			Int("credits_used", res.CreditsUsed).
			Msg("submit: server charged a different amount than estimated")
	}
	return res, nil
}
