// Package workflow drives one generation request end to end: local
// validation, the credit check, uploads, submission, polling and packaging.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"genclient/internal/archive"
	"genclient/internal/domain"
	"genclient/internal/infra"
	"genclient/internal/lifecycle"
	"genclient/internal/pricing"
	"genclient/internal/storage"
	"genclient/internal/submit"
	"genclient/internal/upload"
)

// Input slot names. They match the names reported for missing inputs.
const (
	SlotReferenceVideo = "reference video"
	SlotCharacterImage = "character image"
	SlotSourceImage    = "source image"
	SlotBrandImage     = "brand reference"
)

// Options wires the Runner to its collaborators. Packager and Sink are
// optional; without them Run stops once the job is terminal.
type Options struct {
	Uploads  *upload.Transport
	Gate     *submit.Gate
	Store    *lifecycle.Store
	Packager *archive.Packager
	Sink     storage.Sink

	ImageMaxMB int64
	VideoMaxMB int64
	Logger     *infra.Logger
}

// Inputs are the user's request: parameters plus local files to upload.
type Inputs struct {
	Params    domain.GenerationParams
	ImagePath string
	VideoPath string
}

// Hooks receive progress. Any of them may be nil. UploadProgress may be
// called concurrently for different slots and Snapshot runs on its own
// goroutine.
type Hooks struct {
	UploadProgress func(slot string, percent int)
	Quote          func(pricing.Quote)
	Submitted      func(domain.CreateJobResult)
	Snapshot       func(domain.JobSnapshot)
}

// Outcome is what a finished run produced.
type Outcome struct {
	Job      domain.CreateJobResult
	Final    lifecycle.State
	Archive  *archive.Result
	Location string
}

// Runner executes generation requests.
type Runner struct {
	opts   Options
	logger *infra.Logger
}

type input struct {
	slot   upload.Slot
	path   string
	asset  *domain.UploadedAsset
	assign func(*domain.GenerationParams, *domain.UploadedAsset)
}

// NewRunner constructs a Runner.
func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Uploads == nil:
		return nil, errors.New("workflow: upload transport is required")
	case opts.Gate == nil:
		return nil, errors.New("workflow: submission gate is required")
	case opts.Store == nil:
		return nil, errors.New("workflow: session store is required")
	}
	if opts.ImageMaxMB <= 0 {
		opts.ImageMaxMB = 10
	}
	if opts.VideoMaxMB <= 0 {
		opts.VideoMaxMB = 100
	}
	return &Runner{opts: opts, logger: infra.OrDiscard(opts.Logger)}, nil
}

// WithoutPackaging returns a copy of r that stops once a job is terminal.
func (r *Runner) WithoutPackaging() *Runner {
	opts := r.opts
	opts.Packager = nil
	return &Runner{opts: opts, logger: r.logger}
}

// Run validates and uploads the inputs, submits the job and follows it to a
// terminal state. Nothing is uploaded when the balance cannot cover the
// estimate.
func (r *Runner) Run(ctx context.Context, in Inputs, hooks Hooks) (*Outcome, error) {
	params := in.Params
	inputs, err := r.inputsFor(in)
	if err != nil {
		return nil, err
	}

	for _, inp := range inputs {
		asset, err := r.opts.Uploads.Inspect(ctx, inp.path, inp.slot)
		if err != nil {
			return nil, err
		}
		inp.asset = asset
		if asset.Kind == domain.AssetKindVideo {
			params.DurationSeconds = asset.Duration
		}
	}

	quote, err := r.opts.Gate.Quote(ctx, params)
	if err != nil {
		return nil, err
	}
	if hooks.Quote != nil {
		hooks.Quote(quote)
	}

	if err := r.uploadAll(ctx, inputs, &params, hooks); err != nil {
		return nil, err
	}

	res, err := r.opts.Gate.Submit(ctx, params)
	if err != nil {
		return nil, err
	}
	if hooks.Submitted != nil {
		hooks.Submitted(*res)
	}

	out, err := r.Follow(ctx, res.JobID, hooks)
	if out != nil {
		out.Job = *res
	}
	return out, err
}

// Follow polls jobID until it is terminal, then packages its outputs when a
// packager is configured. Cancelling ctx tears the poller down.
func (r *Runner) Follow(ctx context.Context, jobID int64, hooks Hooks) (*Outcome, error) {
	session, err := r.opts.Store.Start(jobID)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range session.Snapshots() {
			if hooks.Snapshot != nil {
				hooks.Snapshot(snap)
			}
		}
	}()

	final, err := session.Wait(ctx)
	if err != nil {
		r.opts.Store.Reset(jobID)
		wg.Wait()
		return &Outcome{Job: domain.CreateJobResult{JobID: jobID}, Final: final}, err
	}
	wg.Wait()

	out := &Outcome{Job: domain.CreateJobResult{JobID: jobID}, Final: final}
	if final.Snapshot != nil {
		out.Job.TotalItems = final.Snapshot.Job.TotalItems
	}
	r.logger.Info().Int64("job_id", jobID).Str("phase", string(final.Phase)).Int("fetches", final.Fetches).Msg("workflow: job finished")

	if r.opts.Packager == nil || final.Snapshot == nil || !archive.Ready(*final.Snapshot) {
		return out, nil
	}
	result, location, err := r.Package(ctx, *final.Snapshot)
	if err != nil {
		return out, err
	}
	out.Archive, out.Location = result, location
	return out, nil
}

// Package archives the completed outputs of snap and stores the archive in
// the sink, if one is configured.
func (r *Runner) Package(ctx context.Context, snap domain.JobSnapshot) (*archive.Result, string, error) {
	if r.opts.Packager == nil {
		return nil, "", errors.New("workflow: no packager configured")
	}
	result, err := r.opts.Packager.Package(ctx, snap)
	if err != nil {
		return nil, "", err
	}
	if r.opts.Sink == nil {
		return result, "", nil
	}
	location, err := r.opts.Sink.Save(ctx, result.Name, result.Data, "application/zip")
	if err != nil {
		return result, "", fmt.Errorf("workflow: store archive: %w", err)
	}
	r.logger.Info().Int64("job_id", snap.Job.ID).Str("location", location).Msg("workflow: archive stored")
	return result, location, nil
}

func (r *Runner) inputsFor(in Inputs) ([]*input, error) {
	image := func(name string) *input {
		return &input{
			slot: upload.ImageSlot(name, r.opts.ImageMaxMB),
			path: in.ImagePath,
			assign: func(p *domain.GenerationParams, a *domain.UploadedAsset) {
				p.ImageURL = a.URL
			},
		}
	}
	video := &input{
		slot: upload.VideoSlot(SlotReferenceVideo, r.opts.VideoMaxMB),
		path: in.VideoPath,
		assign: func(p *domain.GenerationParams, a *domain.UploadedAsset) {
			p.VideoURL = a.URL
			p.DurationSeconds = a.Duration
		},
	}

	var required, optional []*input
	switch in.Params.Mode {
	case domain.ModeMotionControl:
		required = []*input{video, image(SlotCharacterImage)}
	case domain.ModeMultiAngle:
		required = []*input{image(SlotSourceImage)}
	case domain.ModeLogo:
		optional = []*input{image(SlotBrandImage)}
	default:
		return nil, &domain.ValidationError{Field: "mode", Reason: fmt.Sprintf("unsupported mode %q", in.Params.Mode)}
	}

	var missing []string
	out := make([]*input, 0, len(required)+len(optional))
	for _, inp := range required {
		if inp.path == "" {
			missing = append(missing, inp.slot.Name)
			continue
		}
		out = append(out, inp)
	}
	if in.Params.Mode == domain.ModeLogo && in.Params.Prompt == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return nil, &domain.PreconditionError{Missing: missing}
	}
	for _, inp := range optional {
		if inp.path != "" {
			out = append(out, inp)
		}
	}
	return out, nil
}

func (r *Runner) uploadAll(ctx context.Context, inputs []*input, params *domain.GenerationParams, hooks Hooks) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, inp := range inputs {
		g.Go(func() error {
			progress := func(pct int) {
				if hooks.UploadProgress != nil {
					hooks.UploadProgress(inp.slot.Name, pct)
				}
			}
			asset, err := r.opts.Uploads.Upload(gctx, inp.path, inp.slot, progress)
			if err != nil {
				return err
			}
			inp.asset = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, inp := range inputs {
		inp.assign(params, inp.asset)
	}
	return nil
}
