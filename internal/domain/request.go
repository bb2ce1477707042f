package domain

// GenerationMode enumerates the supported generation workflows.
type GenerationMode string

const (
	ModeMotionControl GenerationMode = "motion_control"
	ModeMultiAngle    GenerationMode = "multi_angle"
	ModeLogo          GenerationMode = "logo"
)

// Tier is the resolution or quality tier a job is rendered at.
type Tier string

const (
	Tier720p     Tier = "720p"
	Tier1080p    Tier = "1080p"
	TierStandard Tier = "standard"
	TierHD       Tier = "hd"
	TierUltra    Tier = "ultra"
)

// QualityMode adjusts the compute spent per item.
type QualityMode string

const (
	QualityFast     QualityMode = "fast"
	QualityBalanced QualityMode = "balanced"
	QualityMax      QualityMode = "max"
)

// GenerationParams are the user-selected parameters a job is priced and
// created from.
type GenerationParams struct {
	Mode            GenerationMode `json:"mode"`
	Tier            Tier           `json:"tier"`
	Quality         QualityMode    `json:"quality,omitempty"`
	ItemCount       int            `json:"itemCount"`
	DurationSeconds float64        `json:"durationSeconds,omitempty"`
	Prompt          string         `json:"prompt,omitempty"`
	Label           string         `json:"label,omitempty"`
	ImageURL        string         `json:"imageUrl,omitempty"`
	VideoURL        string         `json:"videoUrl,omitempty"`
}

// CreateJobResult is returned by the server when a job is accepted.
type CreateJobResult struct {
	JobID       int64 `json:"jobId"`
	TotalItems  int   `json:"totalItems"`
	CreditsUsed int   `json:"creditsUsed"`
}

// SyncResult is returned by a reconciliation request.
type SyncResult struct {
	Synced  int    `json:"synced"`
	Message string `json:"message"`
}
