package model

import "testing"

func TestBitrateKbpsPrefersTotal(t *testing.T) {
	f := VideoFormat{TBR: 1200, VBR: 1000}
	if got := f.BitrateKbps(); got != 1200 {
		t.Errorf("BitrateKbps() = %v, want 1200", got)
	}
	f = VideoFormat{VBR: 1000}
	if got := f.BitrateKbps(); got != 1000 {
		t.Errorf("BitrateKbps() = %v, want VBR fallback 1000", got)
	}
}

func TestSizeLabel(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "unknown"},
		{50 * 1024 * 1024, "50.0MB"},
		{150 * 1024 * 1024, "150MB"},
		{1400 * 1024 * 1024, "1.4GB"},
		{11 * 1024 * 1024 * 1024, "11GB"},
	}
	for _, tt := range tests {
		f := VideoFormat{Filesize: tt.bytes}
		if got := f.SizeLabel(); got != tt.want {
			t.Errorf("SizeLabel(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestResolutionLabel(t *testing.T) {
	if got := (VideoFormat{Height: 1080, VCodec: "avc1"}).ResolutionLabel(); got != "1080p" {
		t.Errorf("got %q, want 1080p", got)
	}
	if got := (VideoFormat{ACodec: "mp4a.40.2"}).ResolutionLabel(); got != "audio" {
		t.Errorf("got %q, want audio", got)
	}
	if got := (VideoFormat{VCodec: "avc1"}).ResolutionLabel(); got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}

func TestDurationLabel(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "unknown"},
		{125, "2:05"},
		{3661, "1:01:01"},
	}
	for _, tt := range tests {
		v := VideoInfo{Duration: tt.seconds}
		if got := v.DurationLabel(); got != tt.want {
			t.Errorf("DurationLabel(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestResolutionCapHeight(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"", 0},
		{"No limit", 0},
		{"720p", 720},
		{"1080p", 1080},
		{"2160p", 2160},
		{" 1440P ", 1440},
	}
	for _, tt := range tests {
		if got := ResolutionCapHeight(tt.label); got != tt.want {
			t.Errorf("ResolutionCapHeight(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
}

func TestPresetMbps(t *testing.T) {
	tests := []struct {
		preset string
		want   float64
	}{
		{"", 8},
		{"4M", 4},
		{"8M", 8},
		{"16M", 16},
		{"garbage", 8},
	}
	for _, tt := range tests {
		s := Settings{BitratePreset: tt.preset}
		if got := s.PresetMbps(); got != tt.want {
			t.Errorf("PresetMbps(%q) = %v, want %v", tt.preset, got, tt.want)
		}
	}
}

func TestParseEncoderKind(t *testing.T) {
	if k, err := ParseEncoderKind("GPU"); err != nil || k != EncoderGPU {
		t.Errorf("ParseEncoderKind(GPU) = %v, %v", k, err)
	}
	if _, err := ParseEncoderKind("quick"); err == nil {
		t.Error("ParseEncoderKind(quick) should fail")
	}
	if got := EncoderCPU.Codec(); got != "libx264" {
		t.Errorf("cpu codec = %q", got)
	}
	if got := EncoderGPU.Codec(); got != "h264_videotoolbox" {
		t.Errorf("gpu codec = %q", got)
	}
}
