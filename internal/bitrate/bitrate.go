// Package bitrate resolves the target encoding bitrate for a transcode.
package bitrate

import (
	"errors"
	"strconv"
	"strings"

	"yt2qt/internal/model"
)

// Clamp bounds in kbps.
const (
	MinKbps         = 300
	MaxKbps         = 20000
	MaxOverrideKbps = 50000
)

// ErrInvalidOverride marks a bitrate override that is not a positive
// number. Callers warn and fall back to source-derived resolution.
var ErrInvalidOverride = errors.New("invalid bitrate override")

// Clamp bounds kbps to [lo, hi].
func Clamp(kbps, lo, hi int) int {
	if kbps < lo {
		return lo
	}
	if kbps > hi {
		return hi
	}
	return kbps
}

// Resolve computes the target bitrate in kbps.
//
// An explicit override (Mbps, as typed by the user) wins and gets the
// wider clamp. Otherwise the source format's reported bitrate is used,
// then the preset, both with the normal clamp. A malformed override
// returns the fallback result together with ErrInvalidOverride so the
// caller can surface a warning without aborting.
func Resolve(format *model.VideoFormat, override string, presetMbps float64) (int, error) {
	override = strings.TrimSpace(override)
	if override != "" {
		mbps, err := strconv.ParseFloat(override, 64)
		if err == nil && mbps > 0 {
			return Clamp(int(mbps*1000), MinKbps, MaxOverrideKbps), nil
		}
		return resolveFromSource(format, presetMbps), ErrInvalidOverride
	}
	return resolveFromSource(format, presetMbps), nil
}

func resolveFromSource(format *model.VideoFormat, presetMbps float64) int {
	if format != nil {
		if kbps := format.BitrateKbps(); kbps > 0 {
			return Clamp(int(kbps), MinKbps, MaxKbps)
		}
	}
	if presetMbps <= 0 {
		presetMbps = 8
	}
	return Clamp(int(presetMbps*1000), MinKbps, MaxKbps)
}

// AutoFillOverride implements the advisory favorite stage: when the
// override field is empty and a favorite exists for the chosen format's
// resolution label, the favorite pre-populates the override. A non-empty
// override is never replaced.
func AutoFillOverride(override string, format *model.VideoFormat, favorites map[string]string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	if format == nil || favorites == nil {
		return override
	}
	if fav, ok := favorites[format.ResolutionLabel()]; ok && strings.TrimSpace(fav) != "" {
		return fav
	}
	return override
}
