package ffmpeg

import (
	"strings"
	"testing"

	"yt2qt/internal/model"
)

func argValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestBuildMuxArgs_GPU(t *testing.T) {
	p := Profile{BitrateKbps: 8000, Encoder: model.EncoderGPU}
	args := p.BuildMuxArgs("in.video.mp4", "in.audio.webm", "out.mp4")

	if v, _ := argValue(args, "-c:v"); v != "h264_videotoolbox" {
		t.Errorf("-c:v = %q, want h264_videotoolbox", v)
	}
	for _, a := range args {
		if a == "-preset" {
			t.Error("hardware encoder args must not carry -preset")
		}
	}
	if v, _ := argValue(args, "-b:v"); v != "8000k" {
		t.Errorf("-b:v = %q, want 8000k", v)
	}
	if v, _ := argValue(args, "-maxrate"); v != "8000k" {
		t.Errorf("-maxrate = %q, want 8000k", v)
	}
	if v, _ := argValue(args, "-bufsize"); v != "16000k" {
		t.Errorf("-bufsize = %q, want 16000k (2x bitrate)", v)
	}
	if v, _ := argValue(args, "-map"); v != "0:v:0" {
		t.Errorf("first -map = %q, want 0:v:0", v)
	}
	if v, _ := argValue(args, "-movflags"); v != "+faststart" {
		t.Errorf("-movflags = %q, want +faststart", v)
	}
	if args[len(args)-1] != "out.mp4" {
		t.Errorf("last arg = %q, want output path", args[len(args)-1])
	}
}

func TestBuildMuxArgs_CPU(t *testing.T) {
	p := Profile{BitrateKbps: 1200, Encoder: model.EncoderCPU}
	args := p.BuildMuxArgs("v", "a", "out.mp4")

	if v, _ := argValue(args, "-c:v"); v != "libx264" {
		t.Errorf("-c:v = %q, want libx264", v)
	}
	if v, ok := argValue(args, "-preset"); !ok || v != "medium" {
		t.Errorf("-preset = %q (present=%v), want medium", v, ok)
	}
	if v, _ := argValue(args, "-pix_fmt"); v != "yuv420p" {
		t.Errorf("-pix_fmt = %q, want yuv420p", v)
	}
	if v, _ := argValue(args, "-b:a"); v != "192k" {
		t.Errorf("-b:a = %q, want 192k", v)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-map 0:v:0") || !strings.Contains(joined, "-map 1:a:0") {
		t.Errorf("stream mapping missing from %q", joined)
	}
}

func TestBuildAudioOnlyArgs(t *testing.T) {
	args := BuildAudioOnlyArgs("in.audio.webm", "out.m4a")

	if args[0] != "-y" {
		t.Errorf("first arg = %q, want -y", args[0])
	}
	if v, _ := argValue(args, "-i"); v != "in.audio.webm" {
		t.Errorf("-i = %q", v)
	}
	found := false
	for _, a := range args {
		if a == "-vn" {
			found = true
		}
	}
	if !found {
		t.Error("-vn missing")
	}
	if v, _ := argValue(args, "-c:a"); v != "aac" {
		t.Errorf("-c:a = %q, want aac", v)
	}
	if args[len(args)-1] != "out.m4a" {
		t.Errorf("last arg = %q, want out.m4a", args[len(args)-1])
	}
}
