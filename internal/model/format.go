package model

import (
	"fmt"
	"strings"
)

// VideoFormat is one entry from the extractor's format list. Fields mirror
// yt-dlp's --dump-json output; absent values use the zero value ("" / 0).
type VideoFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
	FPS        float64 `json:"fps"`
	TBR        float64 `json:"tbr"`             // total bitrate, kbps
	VBR        float64 `json:"vbr"`             // video-only bitrate, kbps
	Filesize   int64   `json:"filesize"`        // exact, bytes
	FilesizeAp int64   `json:"filesize_approx"` // approximate, bytes

	// LowRes is an advisory tag set by the selector for direct-compatible
	// entries below 480p. Simple-mode callers use it to hide noisy entries;
	// the selector itself never filters on it.
	LowRes bool `json:"-"`
}

// HasVideo reports whether the format carries a video stream.
func (f VideoFormat) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// HasAudio reports whether the format carries an audio stream.
func (f VideoFormat) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// BitrateKbps returns the best available bitrate figure, preferring the
// total bitrate over the video-only one. 0 means unknown.
func (f VideoFormat) BitrateKbps() float64 {
	if f.TBR > 0 {
		return f.TBR
	}
	return f.VBR
}

// SizeBytes returns the reported file size, preferring the exact figure.
func (f VideoFormat) SizeBytes() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeAp
}

// SizeLabel renders a short size for list views: 144MB, 705MB, 1.3GB.
func (f VideoFormat) SizeLabel() string {
	b := f.SizeBytes()
	if b <= 0 {
		return "unknown"
	}
	mb := float64(b) / (1024 * 1024)
	if mb >= 1024 {
		gb := mb / 1024
		if gb >= 10 {
			return fmt.Sprintf("%.0fGB", gb)
		}
		return fmt.Sprintf("%.1fGB", gb)
	}
	if mb >= 100 {
		return fmt.Sprintf("%.0fMB", mb)
	}
	return fmt.Sprintf("%.1fMB", mb)
}

// BitrateLabel renders the bitrate in Mbps for list views, e.g. "4.4 Mbps".
func (f VideoFormat) BitrateLabel() string {
	kbps := f.BitrateKbps()
	if kbps <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.1f Mbps", kbps/1000)
}

// ResolutionLabel renders "1080p" style labels, or "audio" for audio-only.
func (f VideoFormat) ResolutionLabel() string {
	if f.Height <= 0 {
		if !f.HasVideo() && f.HasAudio() {
			return "audio"
		}
		return "unknown"
	}
	return fmt.Sprintf("%dp", f.Height)
}

// VideoInfo is the metadata snapshot for one URL, parsed from the
// extractor's JSON output.
type VideoInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Channel  string        `json:"channel"`
	Uploader string        `json:"uploader"`
	Duration float64       `json:"duration"` // seconds, 0 if unknown
	Formats  []VideoFormat `json:"formats"`

	URL string `json:"-"` // original input URL, not from JSON
}

// DurationLabel formats the duration as H:MM:SS or M:SS.
func (v VideoInfo) DurationLabel() string {
	if v.Duration <= 0 {
		return "unknown"
	}
	total := int(v.Duration)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// EncoderKind selects the ffmpeg video encoder.
type EncoderKind string

const (
	EncoderGPU EncoderKind = "gpu" // h264_videotoolbox
	EncoderCPU EncoderKind = "cpu" // libx264
)

// Codec returns the ffmpeg encoder name for the kind.
func (e EncoderKind) Codec() string {
	if e == EncoderCPU {
		return "libx264"
	}
	return "h264_videotoolbox"
}

// ParseEncoderKind validates an encoder setting value.
func ParseEncoderKind(s string) (EncoderKind, error) {
	switch EncoderKind(strings.ToLower(s)) {
	case EncoderGPU:
		return EncoderGPU, nil
	case EncoderCPU:
		return EncoderCPU, nil
	default:
		return "", fmt.Errorf("invalid encoder %q (valid: gpu|cpu)", s)
	}
}

// ResolutionCapHeight maps a resolution cap label ("1080p") to a pixel
// height. Empty or "No limit" means uncapped (0).
func ResolutionCapHeight(label string) int {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "720p":
		return 720
	case "1080p":
		return 1080
	case "1440p":
		return 1440
	case "2160p":
		return 2160
	default:
		return 0
	}
}

// Settings holds the persisted user preferences the pipeline consumes.
// The orchestrator receives this struct explicitly and reads no globals.
type Settings struct {
	OutDir        string
	Encoder       EncoderKind
	BitratePreset string            // fallback preset: "4M" | "8M" | "16M"
	MaxResolution string            // fallback cap label: "" | "720p" | ... | "2160p"
	Favorites     map[string]string // resolution label ("2160p") -> Mbps string
	AudioOnly     bool
	KeepRaw       bool
	SimpleMode    bool
	PreferH264    bool

	YTDLPBinary  string // explicit path; empty = look up in PATH
	FFmpegBinary string
	Verbose      bool
}

// PresetMbps parses the bitrate preset into Mbps, defaulting to 8.
func (s Settings) PresetMbps() float64 {
	p := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s.BitratePreset)), "M")
	var mbps float64
	if _, err := fmt.Sscanf(p, "%f", &mbps); err != nil || mbps <= 0 {
		return 8
	}
	return mbps
}

// RunOptions are the per-invocation choices supplied by the caller on top
// of the persisted Settings.
type RunOptions struct {
	// ChosenFormat is a pre-selected format, skipping the choice stage.
	// Nil means automatic selection (best direct, else best transcode
	// candidate, else fallback).
	ChosenFormat *VideoFormat

	// ChosenFormatID selects a format by extractor id when the caller has
	// not fetched metadata itself (the non-interactive CLI path). Ignored
	// when ChosenFormat is set; an id absent from the metadata is an error.
	ChosenFormatID string

	// OverrideMbps is the raw per-download bitrate override field. Empty
	// means no override. Non-numeric or non-positive values are ignored
	// with a warning.
	OverrideMbps string
}
