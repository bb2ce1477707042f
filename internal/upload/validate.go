package upload

import (
	"fmt"
	"strings"

	"genclient/internal/domain"
)

// Validation reasons reported in domain.ValidationError.Reason.
const (
	ReasonUnreadable       = "unreadable"
	ReasonEmpty            = "empty"
	ReasonUnsupportedType  = "unsupported_type"
	ReasonTooLarge         = "too_large"
	ReasonTooShort         = "too_short"
	ReasonResolutionTooLow = "resolution_too_low"
)

const megabyte = 1 << 20

// Slot describes one input position of a generation form.
type Slot struct {
	Name     string
	Kind     domain.AssetKind
	MaxBytes int64
}

// ImageSlot returns a slot accepting image/* files up to maxMB megabytes.
func ImageSlot(name string, maxMB int64) Slot {
	return Slot{Name: name, Kind: domain.AssetKindImage, MaxBytes: maxMB * megabyte}
}

// VideoSlot returns a slot accepting video/* files up to maxMB megabytes.
func VideoSlot(name string, maxMB int64) Slot {
	return Slot{Name: name, Kind: domain.AssetKindVideo, MaxBytes: maxMB * megabyte}
}

// ValidateFile checks type and size against the slot.
func ValidateFile(slot Slot, mime string, size int64) error {
	if size <= 0 {
		return &domain.ValidationError{Field: slot.Name, Reason: ReasonEmpty, Message: fmt.Sprintf("%s: file is empty", slot.Name)}
	}
	if !strings.HasPrefix(strings.ToLower(mime), slot.Kind.MIMEPrefix()) {
		return &domain.ValidationError{
			Field:   slot.Name,
			Reason:  ReasonUnsupportedType,
			Message: fmt.Sprintf("%s: expected %s* file, got %s", slot.Name, slot.Kind.MIMEPrefix(), mime),
		}
	}
	if slot.MaxBytes > 0 && size > slot.MaxBytes {
		return &domain.ValidationError{
			Field:   slot.Name,
			Reason:  ReasonTooLarge,
			Message: fmt.Sprintf("%s: file is %.1fMB, limit is %dMB", slot.Name, float64(size)/megabyte, slot.MaxBytes/megabyte),
		}
	}
	return nil
}

// VideoCheck is the outcome of validating probed video metadata.
type VideoCheck struct {
	Duration float64
	Clamped  bool
}

// ValidateVideo applies the reference video rules: shorter than the minimum
// or below the minimum dimension is rejected, longer than the maximum is
// accepted with the duration clamped.
func ValidateVideo(slot Slot, meta VideoMeta) (VideoCheck, error) {
	if meta.Duration < domain.MinVideoSeconds {
		return VideoCheck{}, &domain.ValidationError{
			Field:   slot.Name,
			Reason:  ReasonTooShort,
			Message: fmt.Sprintf("%s: video is too short (%.1fs, minimum %.0fs)", slot.Name, meta.Duration, domain.MinVideoSeconds),
		}
	}
	if meta.Width < domain.MinVideoDimension || meta.Height < domain.MinVideoDimension {
		return VideoCheck{}, &domain.ValidationError{
			Field:   slot.Name,
			Reason:  ReasonResolutionTooLow,
			Message: fmt.Sprintf("%s: video resolution too low (%dx%d, minimum %dpx per side)", slot.Name, meta.Width, meta.Height, domain.MinVideoDimension),
		}
	}
	if meta.Duration > domain.MaxVideoSeconds {
		return VideoCheck{Duration: domain.MaxVideoSeconds, Clamped: true}, nil
	}
	return VideoCheck{Duration: meta.Duration}, nil
}
