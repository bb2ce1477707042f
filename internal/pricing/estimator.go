// Package pricing derives the credit price of a generation request from its
// parameters. Prices are recomputed on every call; nothing is cached.
package pricing

import (
	"fmt"
	"math"

	"genclient/internal/domain"
)

// Rates are expressed in hundredths of a credit per unit. A unit is one
// second of reference video for motion control and one output otherwise.
var rateTable = map[domain.GenerationMode]map[domain.Tier]int64{
	domain.ModeMotionControl: {
		domain.Tier720p:  100,
		domain.Tier1080p: 160,
	},
	domain.ModeMultiAngle: {
		domain.TierStandard: 1000,
		domain.TierHD:       1500,
		domain.TierUltra:    2500,
	},
	domain.ModeLogo: {
		domain.TierStandard: 500,
		domain.TierHD:       800,
		domain.TierUltra:    1200,
	},
}

// Quality multipliers in percent.
var qualityMultiplier = map[domain.QualityMode]int64{
	domain.QualityFast:     80,
	domain.QualityBalanced: 100,
	domain.QualityMax:      150,
}

// Item count ceilings per mode.
const (
	MaxMultiAngleItems = 12
	MaxLogoItems       = 8
)

// Estimate returns the integer credit cost for params. Fractions always round
// up, never in the caller's favour.
func Estimate(params domain.GenerationParams) (int, error) {
	rates, ok := rateTable[params.Mode]
	if !ok {
		return 0, &domain.ValidationError{Field: "mode", Reason: fmt.Sprintf("unsupported mode %q", params.Mode)}
	}
	rate, ok := rates[params.Tier]
	if !ok {
		return 0, &domain.ValidationError{Field: "tier", Reason: fmt.Sprintf("tier %q not available for %s", params.Tier, params.Mode)}
	}
	quality := params.Quality
	if quality == "" {
		quality = domain.QualityBalanced
	}
	mult, ok := qualityMultiplier[quality]
	if !ok {
		return 0, &domain.ValidationError{Field: "quality", Reason: fmt.Sprintf("unsupported quality %q", quality)}
	}

	// units are scaled by 1000 so fractional seconds price exactly.
	var milliUnits int64
	switch params.Mode {
	case domain.ModeMotionControl:
		if params.DurationSeconds <= 0 {
			return 0, &domain.ValidationError{Field: "duration", Reason: "reference video duration is required"}
		}
		seconds := math.Min(params.DurationSeconds, domain.MaxVideoSeconds)
		milliUnits = int64(math.Ceil(seconds * 1000))
	default:
		count, err := itemCount(params)
		if err != nil {
			return 0, err
		}
		milliUnits = int64(count) * 1000
	}

	// rate [1/100 credit] * milliUnits [1/1000 unit] * mult [1/100]
	numerator := rate * milliUnits * mult
	const denominator = 100 * 1000 * 100
	cost := (numerator + denominator - 1) / denominator
	return int(cost), nil
}

// Items returns the number of outputs a request will produce.
func Items(params domain.GenerationParams) (int, error) {
	if params.Mode == domain.ModeMotionControl {
		return 1, nil
	}
	return itemCount(params)
}

func itemCount(params domain.GenerationParams) (int, error) {
	limit := MaxMultiAngleItems
	if params.Mode == domain.ModeLogo {
		limit = MaxLogoItems
	}
	if params.ItemCount < 1 || params.ItemCount > limit {
		return 0, &domain.ValidationError{Field: "itemCount", Reason: fmt.Sprintf("must be between 1 and %d", limit)}
	}
	return params.ItemCount, nil
}

// Tiers lists the tiers offered for a mode in ascending price order.
func Tiers(mode domain.GenerationMode) []domain.Tier {
	switch mode {
	case domain.ModeMotionControl:
		return []domain.Tier{domain.Tier720p, domain.Tier1080p}
	case domain.ModeMultiAngle, domain.ModeLogo:
		return []domain.Tier{domain.TierStandard, domain.TierHD, domain.TierUltra}
	default:
		return nil
	}
}
