// Package ffmpeg wraps the transcoder: locating the binary, building
// mux/re-encode argument lists, and parsing its progress output.
package ffmpeg

import (
	"errors"
	"fmt"

	"yt2qt/internal/model"
	"yt2qt/internal/util"
)

// ErrNotFound is returned when no ffmpeg binary could be located.
var ErrNotFound = errors.New("ffmpeg not found")

// FindBinary locates ffmpeg. An explicit path or command name wins when it
// resolves; otherwise PATH is searched.
func FindBinary(explicit string) (string, error) {
	if explicit != "" {
		if util.FileExists(explicit) {
			return explicit, nil
		}
		if p := util.LookPath(explicit); p != "" {
			return p, nil
		}
		return "", fmt.Errorf("%w at %s", ErrNotFound, explicit)
	}
	if p := util.LookPath("ffmpeg"); p != "" {
		return p, nil
	}
	return "", ErrNotFound
}

// Profile holds the resolved encoding parameters for one transcode.
type Profile struct {
	BitrateKbps int
	Encoder     model.EncoderKind
}

// BuildMuxArgs assembles the argument list for muxing a video-only and an
// audio-only input into a QuickTime-friendly MP4. Stream mapping is
// explicit so leftover streams in either input cannot leak through, and
// +faststart moves the moov atom up front for immediate playback.
func (p Profile) BuildMuxArgs(videoIn, audioIn, out string) []string {
	args := []string{
		"-y",
		"-i", videoIn,
		"-i", audioIn,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", p.Encoder.Codec(),
	}
	if p.Encoder == model.EncoderCPU {
		// Hardware encoders reject software preset names.
		args = append(args, "-preset", "medium")
	}
	args = append(args,
		"-b:v", fmt.Sprintf("%dk", p.BitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", p.BitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", 2*p.BitrateKbps),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-shortest",
		out,
	)
	return args
}

// BuildAudioOnlyArgs assembles the argument list for converting a raw
// audio download into an AAC .m4a file.
func BuildAudioOnlyArgs(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-vn",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		out,
	}
}
