// Package upload validates local input files and streams them to the
// generation backend's upload endpoint with progress feedback.
package upload

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"genclient/internal/domain"
	"genclient/internal/infra"
)

// Uploader is the binary upload endpoint.
type Uploader interface {
	UploadFile(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
}

// Options configures the Transport.
type Options struct {
	Uploader Uploader
	Prober   VideoProber
	Logger   *infra.Logger
}

// Transport validates and uploads local files.
type Transport struct {
	uploader Uploader
	prober   VideoProber
	logger   *infra.Logger
}

// Error is returned for any failure after validation passed. It unwraps to
// domain.ErrUploadFailed only; server error codes stay in Cause so that a
// rejected transfer never reads as a validation failure.
type Error struct {
	Slot  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload: %s: %v", e.Slot, e.Cause)
}

func (e *Error) Unwrap() error {
	return domain.ErrUploadFailed
}

// NewTransport constructs a Transport. A nil prober defaults to ffprobe on PATH.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Uploader == nil {
		return nil, errors.New("upload: uploader is required")
	}
	prober := opts.Prober
	if prober == nil {
		prober = FFprobe{}
	}
	return &Transport{uploader: opts.Uploader, prober: prober, logger: infra.OrDiscard(opts.Logger)}, nil
}

// Upload validates the file at path against slot and, if it passes, streams
// it to the server. Validation failures are returned as
// *domain.ValidationError before any bytes are transferred.
func (t *Transport) Upload(ctx context.Context, path string, slot Slot, progress ProgressFunc) (*domain.UploadedAsset, error) {
	asset, err := t.Inspect(ctx, path, slot)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ValidationError{Field: slot.Name, Reason: ReasonUnreadable, Message: fmt.Sprintf("%s: %v", slot.Name, err)}
	}
	defer f.Close()

	pr := newProgressReader(f, asset.Bytes, progress)
	pr.start()
	url, err := t.uploader.UploadFile(ctx, filepath.Base(path), asset.MIME, pr)
	if err != nil {
		pr.finish(false)
		t.logger.Warn().Err(err).Str("slot", slot.Name).Int("progress", pr.percent()).Msg("upload: transfer failed")
		return nil, &Error{Slot: slot.Name, Cause: err}
	}
	pr.finish(true)
	asset.URL = url
	t.logger.Info().Str("slot", slot.Name).Str("url", url).Int64("bytes", asset.Bytes).Msg("upload: stored")
	return asset, nil
}

// Inspect runs every client-side check for path without transferring it.
func (t *Transport) Inspect(ctx context.Context, path string, slot Slot) (*domain.UploadedAsset, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		msg := fmt.Sprintf("%s: cannot read %s", slot.Name, path)
		return nil, &domain.ValidationError{Field: slot.Name, Reason: ReasonUnreadable, Message: msg}
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, &domain.ValidationError{Field: slot.Name, Reason: ReasonUnreadable, Message: fmt.Sprintf("%s: %v", slot.Name, err)}
	}
	mime := mtype.String()
	if err := ValidateFile(slot, mime, info.Size()); err != nil {
		return nil, err
	}
	asset := &domain.UploadedAsset{Kind: slot.Kind, MIME: baseMIME(mime), Bytes: info.Size()}

	switch slot.Kind {
	case domain.AssetKindVideo:
		meta, err := t.prober.Probe(ctx, path)
		if err != nil {
			return nil, &domain.ValidationError{Field: slot.Name, Reason: ReasonUnreadable, Message: fmt.Sprintf("%s: cannot read video metadata: %v", slot.Name, err)}
		}
		check, err := ValidateVideo(slot, meta)
		if err != nil {
			return nil, err
		}
		if check.Clamped {
			t.logger.Warn().
				Str("slot", slot.Name).
				Float64("duration", meta.Duration).
				Float64("clamped_to", check.Duration).
				Msg("upload: video longer than generation window, only the leading part will be used")
		}
		asset.Width, asset.Height = meta.Width, meta.Height
		asset.Duration = check.Duration
		asset.Clamped = check.Clamped
	case domain.AssetKindImage:
		if w, h, ok := imageSize(path); ok {
			asset.Width, asset.Height = w, h
		}
	}
	return asset, nil
}

func imageSize(path string) (int, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// baseMIME strips parameters such as "; charset=binary".
func baseMIME(m string) string {
	for i := 0; i < len(m); i++ {
		if m[i] == ';' {
			return m[:i]
		}
	}
	return m
}
