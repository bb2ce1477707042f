// Package archive bundles the completed outputs of a terminal job into one
// zip archive.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"genclient/internal/domain"
	"genclient/internal/infra"
	"genclient/pkg/zip"
)

const DefaultConcurrency = 4

// Options configures a Packager.
type Options struct {
	Fetcher     Fetcher
	Concurrency int
	Logger      *infra.Logger
	Now         func() time.Time
}

// Packager fetches completed items in parallel and zips whatever arrived.
type Packager struct {
	fetcher     Fetcher
	concurrency int
	logger      *infra.Logger
	now         func() time.Time
}

// Skipped records an item that could not be included.
type Skipped struct {
	ItemID int64
	Label  string
	Err    error
}

// Result is a finished archive.
type Result struct {
	JobID   int64
	Name    string
	Data    []byte
	Files   []string
	Skipped []Skipped
}

// NewPackager constructs a Packager.
func NewPackager(opts Options) (*Packager, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("archive: fetcher is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Packager{fetcher: opts.Fetcher, concurrency: concurrency, logger: infra.OrDiscard(opts.Logger), now: now}, nil
}

// Ready reports whether snap can be packaged: the job is terminal and at
// least one item completed.
func Ready(snap domain.JobSnapshot) bool {
	return snap.Job.Status.IsTerminal() && len(snap.CompletedItems()) > 0
}

type fetched struct {
	asset zip.Asset
	err   error
}

// Package downloads every completed item of snap and returns the archive.
// Entries are numbered by the item's position among completed items, so
// names do not depend on which fetches succeed. A failed fetch is logged and
// left out; the call fails only if nothing could be fetched.
func (p *Packager) Package(ctx context.Context, snap domain.JobSnapshot) (*Result, error) {
	if !Ready(snap) {
		return nil, fmt.Errorf("archive: job %d is %s with %d completed items: %w",
			snap.Job.ID, snap.Job.Status, len(snap.CompletedItems()), domain.ErrNotReady)
	}
	items := snap.CompletedItems()
	slots := make([]fetched, len(items))
	logger := p.logger.With().Int64("job_id", snap.Job.ID).Logger()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, item := range items {
		g.Go(func() error {
			if item.ResultURL == "" {
				slots[i].err = errors.New("item has no result url")
				return nil
			}
			data, contentType, err := p.fetcher.Fetch(gctx, item.ResultURL)
			if err != nil {
				slots[i].err = err
				return nil
			}
			ext := extensionFor(contentType, data, item.ResultURL)
			slots[i].asset = zip.Asset{
				Filename: EntryName(i+1, len(items), labelFor(item), ext),
				MIME:     contentType,
				Data:     data,
				Modified: p.now(),
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	res := &Result{JobID: snap.Job.ID, Name: fmt.Sprintf("job-%d.zip", snap.Job.ID)}
	assets := make([]zip.Asset, 0, len(items))
	for i, slot := range slots {
		if slot.err != nil {
			logger.Warn().Err(slot.err).Int64("item_id", items[i].ID).Msg("archive: item fetch failed, skipping")
			res.Skipped = append(res.Skipped, Skipped{ItemID: items[i].ID, Label: items[i].Label, Err: slot.err})
			continue
		}
		assets = append(assets, slot.asset)
		res.Files = append(res.Files, slot.asset.Filename)
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("archive: none of %d items could be fetched: %w", len(items), domain.ErrOperationFailed)
	}
	data, err := zip.ArchiveAssets(assets)
	if err != nil {
		return nil, fmt.Errorf("archive: build: %w", err)
	}
	res.Data = data
	logger.Info().Int("files", len(res.Files)).Int("skipped", len(res.Skipped)).Int("bytes", len(data)).Msg("archive: built")
	return res, nil
}

func labelFor(item domain.GenerationItem) string {
	if item.Label != "" {
		return item.Label
	}
	return fmt.Sprintf("item-%d", item.ID)
}
