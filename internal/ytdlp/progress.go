package ytdlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	percentRe = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)
	etaRe     = regexp.MustCompile(`ETA\s+([0-9:]+)`)
	speedRe   = regexp.MustCompile(`\bat\s+([0-9.]+[KMG]i?B/s)`)
)

// Progress is one parsed yt-dlp download progress line.
type Progress struct {
	Percent float64
	ETA     *time.Duration
	Speed   string // e.g. "2.50MiB/s", empty when absent
}

// ParseProgress extracts progress from one yt-dlp output line. The second
// return is false for lines that carry no percentage; such lines are plain
// log output.
func ParseProgress(line string) (Progress, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}
	p := Progress{Percent: pct}
	if em := etaRe.FindStringSubmatch(line); em != nil {
		if d, ok := parseClock(em[1]); ok {
			p.ETA = &d
		}
	}
	if sm := speedRe.FindStringSubmatch(line); sm != nil {
		p.Speed = sm[1]
	}
	return p, true
}

// parseClock converts "SS", "MM:SS" or "HH:MM:SS" to a duration.
func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, false
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}
