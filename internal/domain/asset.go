package domain

// AssetKind enumerates input media types.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// MIMEPrefix returns the MIME type prefix accepted for the kind.
func (k AssetKind) MIMEPrefix() string {
	return string(k) + "/"
}

// UploadedAsset is an input file that has been transferred to durable
// storage and can be referenced by a job.
type UploadedAsset struct {
	Kind     AssetKind
	URL      string
	MIME     string
	Bytes    int64
	Width    int
	Height   int
	Duration float64
	// Clamped is set when the media was longer than the generation window and
	// only the leading portion will be used.
	Clamped bool
}

// Reference video limits for motion-control generation.
const (
	MinVideoSeconds   = 3.0
	MaxVideoSeconds   = 30.0
	MinVideoDimension = 720
)
