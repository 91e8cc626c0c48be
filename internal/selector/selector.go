// Package selector classifies and ranks extractor formats into streams
// playable as-is versus streams that need a mux and re-encode.
package selector

import (
	"sort"
	"strings"

	"yt2qt/internal/model"
)

// Container extensions QuickTime opens without remuxing.
var directContainers = map[string]bool{
	"mp4": true,
	"m4v": true,
	"mov": true,
}

// LowResHeight is the advisory threshold below which direct formats are
// tagged low resolution. Simple-mode callers hide tagged entries; the
// selector itself never filters on it.
const LowResHeight = 480

func h264Family(vcodec string) bool {
	return strings.HasPrefix(vcodec, "avc") || strings.HasPrefix(vcodec, "h264")
}

func hevcFamily(vcodec string) bool {
	return strings.HasPrefix(vcodec, "hev1") ||
		strings.HasPrefix(vcodec, "hvc1") ||
		strings.HasPrefix(vcodec, "hevc")
}

func av1Family(vcodec string) bool {
	return strings.HasPrefix(vcodec, "av01")
}

// SelectFormats splits formats into direct-compatible and transcode
// candidates, each sorted descending by (height, bitrate). preferH264
// restricts direct compatibility to the H.264 family; when false the HEVC
// family is accepted too.
func SelectFormats(formats []model.VideoFormat, preferH264 bool) (direct, transcode []model.VideoFormat) {
	for _, f := range formats {
		switch {
		case IsDirect(f, preferH264):
			f.LowRes = f.Height > 0 && f.Height < LowResHeight
			direct = append(direct, f)
		case IsTranscodeCandidate(f):
			transcode = append(transcode, f)
		}
	}
	sortByQuality(direct)
	sortByQuality(transcode)
	return direct, transcode
}

// IsDirect reports whether f plays in QuickTime as downloaded.
func IsDirect(f model.VideoFormat, preferH264 bool) bool {
	if !f.HasVideo() || !f.HasAudio() {
		return false
	}
	if !directContainers[f.Ext] {
		return false
	}
	if h264Family(f.VCodec) {
		return true
	}
	return !preferH264 && hevcFamily(f.VCodec)
}

// IsTranscodeCandidate reports whether f is a video-only stream the
// transcode path can use.
func IsTranscodeCandidate(f model.VideoFormat) bool {
	return f.HasVideo() && !f.HasAudio() && f.Ext == "mp4" && av1Family(f.VCodec)
}

// sortByQuality orders formats descending by height, then bitrate. Stable
// so equal-quality entries keep extractor order.
func sortByQuality(fs []model.VideoFormat) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Height != fs[j].Height {
			return fs[i].Height > fs[j].Height
		}
		return fs[i].BitrateKbps() > fs[j].BitrateKbps()
	})
}

// FallbackPick chooses the best video-only stream when no user selection
// happened: video-only entries at or under capHeight (0 = no cap), best
// quality first. When the cap excludes everything the search is retried
// uncapped; false means the list holds no video-only stream at all.
func FallbackPick(formats []model.VideoFormat, capHeight int) (model.VideoFormat, bool) {
	pick := func(cap int) (model.VideoFormat, bool) {
		var candidates []model.VideoFormat
		for _, f := range formats {
			if !f.HasVideo() || f.HasAudio() {
				continue
			}
			if cap > 0 && f.Height > cap {
				continue
			}
			candidates = append(candidates, f)
		}
		if len(candidates) == 0 {
			return model.VideoFormat{}, false
		}
		sortByQuality(candidates)
		return candidates[0], true
	}

	if f, ok := pick(capHeight); ok {
		return f, true
	}
	if capHeight > 0 {
		return pick(0)
	}
	return model.VideoFormat{}, false
}
