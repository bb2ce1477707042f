package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// VideoMeta holds the properties of a local video needed before upload.
type VideoMeta struct {
	Duration float64
	Width    int
	Height   int
}

// VideoProber reads metadata from a local video file.
type VideoProber interface {
	Probe(ctx context.Context, path string) (VideoMeta, error)
}

// FFprobe probes videos with the ffprobe binary.
type FFprobe struct {
	Path string
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
		Tags      struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe and extracts duration and pixel dimensions of the first
// video stream. Dimensions are swapped for 90/270 degree rotations so they
// describe the displayed frame.
func (f FFprobe) Probe(ctx context.Context, path string) (VideoMeta, error) {
	bin := strings.TrimSpace(f.Path)
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return VideoMeta{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseFFprobe(stdout.Bytes())
}

func parseFFprobe(raw []byte) (VideoMeta, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return VideoMeta{}, fmt.Errorf("ffprobe: decode output: %w", err)
	}
	var meta VideoMeta
	found := false
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		meta.Width, meta.Height = s.Width, s.Height
		if rot, err := strconv.Atoi(strings.TrimSpace(s.Tags.Rotate)); err == nil && (rot%180 != 0) {
			meta.Width, meta.Height = meta.Height, meta.Width
		}
		meta.Duration = parseSeconds(s.Duration)
		break
	}
	if !found {
		return VideoMeta{}, fmt.Errorf("ffprobe: no video stream")
	}
	if meta.Duration <= 0 {
		meta.Duration = parseSeconds(out.Format.Duration)
	}
	return meta, nil
}

func parseSeconds(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
