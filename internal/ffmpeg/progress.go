package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

var (
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	speedRe = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// etaAlpha is the exponential smoothing factor for ETA estimates. ffmpeg's
// reported speed jitters between status lines; raw remaining-time estimates
// bounce too much to display directly.
const etaAlpha = 0.3

// minSpeed floor-clamps the reported speed multiplier so a near-stalled
// encode cannot blow the remaining-time estimate up through division.
const minSpeed = 0.1

// Progress is one parsed ffmpeg status line.
type Progress struct {
	Percent *float64 // nil when total duration is unknown
	ETA     *time.Duration
	Speed   float64 // multiplier, 0 when the line carried none
}

// ProgressParser extracts percent and smoothed ETA from ffmpeg status
// lines. It is stateful: the total media duration fixes the percent scale
// and successive ETA estimates are blended. One parser serves one ffmpeg
// invocation.
type ProgressParser struct {
	totalSeconds float64 // 0 = unknown, no percent estimates
	lastSpeed    float64
	smoothedETA  float64
	haveETA      bool
}

// NewProgressParser returns a parser scaled to the given media duration in
// seconds. Pass 0 when the duration is unknown; the parser then never
// reports a percentage and the caller should show an indeterminate state.
func NewProgressParser(totalSeconds float64) *ProgressParser {
	return &ProgressParser{totalSeconds: totalSeconds, lastSpeed: 1.0}
}

// ParseLine consumes one output line. The second return is false for lines
// with no time= token; such lines carry no progress.
func (p *ProgressParser) ParseLine(line string) (Progress, bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	h, _ := strconv.ParseFloat(m[1], 64)
	min, _ := strconv.ParseFloat(m[2], 64)
	sec, _ := strconv.ParseFloat(m[3], 64)
	elapsed := h*3600 + min*60 + sec

	if sm := speedRe.FindStringSubmatch(line); sm != nil {
		if v, err := strconv.ParseFloat(sm[1], 64); err == nil && v > 0 {
			p.lastSpeed = v
		}
	}

	out := Progress{Speed: p.lastSpeed}
	if p.totalSeconds <= 0 {
		return out, true
	}

	pct := elapsed / p.totalSeconds * 100
	if pct > 100 {
		pct = 100
	}
	out.Percent = &pct

	speed := p.lastSpeed
	if speed < minSpeed {
		speed = minSpeed
	}
	remaining := (p.totalSeconds - elapsed) / speed
	if remaining < 0 {
		remaining = 0
	}
	if !p.haveETA {
		p.smoothedETA = remaining
		p.haveETA = true
	} else {
		p.smoothedETA = etaAlpha*remaining + (1-etaAlpha)*p.smoothedETA
	}
	eta := time.Duration(p.smoothedETA * float64(time.Second))
	out.ETA = &eta
	return out, true
}
