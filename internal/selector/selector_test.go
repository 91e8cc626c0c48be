package selector

import (
	"reflect"
	"testing"

	"yt2qt/internal/model"
)

func fmtIDs(fs []model.VideoFormat) []string {
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.FormatID
	}
	return ids
}

func sampleFormats() []model.VideoFormat {
	return []model.VideoFormat{
		{FormatID: "sb0", Ext: "mhtml", VCodec: "none", ACodec: "none"},
		{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2", TBR: 129},
		{FormatID: "18", Ext: "mp4", VCodec: "avc1.42001E", ACodec: "mp4a.40.2", Height: 360, TBR: 500},
		{FormatID: "22", Ext: "mp4", VCodec: "avc1.64001F", ACodec: "mp4a.40.2", Height: 720, TBR: 1200},
		{FormatID: "hevc1", Ext: "mp4", VCodec: "hev1.1.6.L93.B0", ACodec: "mp4a.40.2", Height: 1080, TBR: 2500},
		{FormatID: "av1-1080", Ext: "mp4", VCodec: "av01.0.08M.08", ACodec: "none", Height: 1080, TBR: 1800},
		{FormatID: "av1-2160", Ext: "mp4", VCodec: "av01.0.12M.08", ACodec: "none", Height: 2160, TBR: 9000},
		{FormatID: "vp9", Ext: "webm", VCodec: "vp9", ACodec: "none", Height: 2160, TBR: 8000},
		{FormatID: "av1-webm", Ext: "webm", VCodec: "av01.0.08M.08", ACodec: "none", Height: 1440, TBR: 4000},
	}
}

func TestSelectFormats_Classification(t *testing.T) {
	direct, transcode := SelectFormats(sampleFormats(), true)

	if got, want := fmtIDs(direct), []string{"22", "18"}; !reflect.DeepEqual(got, want) {
		t.Errorf("direct = %v, want %v", got, want)
	}
	// AV1-in-mp4 only; the webm AV1 and vp9 streams are excluded.
	if got, want := fmtIDs(transcode), []string{"av1-2160", "av1-1080"}; !reflect.DeepEqual(got, want) {
		t.Errorf("transcode = %v, want %v", got, want)
	}
	for _, f := range transcode {
		if f.HasAudio() {
			t.Errorf("transcode candidate %s has audio", f.FormatID)
		}
		if f.Ext != "mp4" {
			t.Errorf("transcode candidate %s ext = %q", f.FormatID, f.Ext)
		}
	}
}

func TestSelectFormats_HEVCWhenAllowed(t *testing.T) {
	direct, _ := SelectFormats(sampleFormats(), false)
	if got, want := fmtIDs(direct), []string{"hevc1", "22", "18"}; !reflect.DeepEqual(got, want) {
		t.Errorf("direct with HEVC = %v, want %v", got, want)
	}
}

func TestSelectFormats_SortOrder(t *testing.T) {
	formats := []model.VideoFormat{
		{FormatID: "a", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720, TBR: 900},
		{FormatID: "b", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 1080, TBR: 700},
		{FormatID: "c", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720, TBR: 1500},
		{FormatID: "d", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720}, // unknown bitrate sorts as 0
	}
	direct, _ := SelectFormats(formats, true)
	if got, want := fmtIDs(direct), []string{"b", "c", "a", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSelectFormats_StableTies(t *testing.T) {
	formats := []model.VideoFormat{
		{FormatID: "first", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720, TBR: 1000},
		{FormatID: "second", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720, TBR: 1000},
	}
	direct, _ := SelectFormats(formats, true)
	if got, want := fmtIDs(direct), []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tie order = %v, want %v", got, want)
	}
}

func TestSelectFormats_Idempotent(t *testing.T) {
	formats := sampleFormats()
	d1, t1 := SelectFormats(formats, true)
	d2, t2 := SelectFormats(formats, true)
	if !reflect.DeepEqual(d1, d2) || !reflect.DeepEqual(t1, t2) {
		t.Error("repeated selection differs")
	}
}

func TestSelectFormats_LowResTag(t *testing.T) {
	direct, _ := SelectFormats(sampleFormats(), true)
	for _, f := range direct {
		want := f.Height > 0 && f.Height < LowResHeight
		if f.LowRes != want {
			t.Errorf("format %s (h=%d) LowRes = %v, want %v", f.FormatID, f.Height, f.LowRes, want)
		}
	}
}

func TestFallbackPick(t *testing.T) {
	formats := sampleFormats()

	f, ok := FallbackPick(formats, 0)
	if !ok || f.FormatID != "av1-2160" {
		t.Errorf("uncapped pick = %v (%v), want av1-2160", f.FormatID, ok)
	}

	f, ok = FallbackPick(formats, 1080)
	if !ok || f.FormatID != "av1-1080" {
		t.Errorf("1080 cap pick = %v (%v), want av1-1080", f.FormatID, ok)
	}

	// Cap below every stream: retried without the cap.
	f, ok = FallbackPick(formats, 100)
	if !ok || f.FormatID != "av1-2160" {
		t.Errorf("too-small cap pick = %v (%v), want av1-2160 from uncapped retry", f.FormatID, ok)
	}

	// Audio-only list: nothing to pick.
	if _, ok := FallbackPick([]model.VideoFormat{
		{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2"},
	}, 0); ok {
		t.Error("expected no pick from audio-only list")
	}
}

func TestFallbackPick_VBRTiebreak(t *testing.T) {
	formats := []model.VideoFormat{
		{FormatID: "low", Ext: "webm", VCodec: "vp9", ACodec: "none", Height: 1080, VBR: 1000},
		{FormatID: "high", Ext: "webm", VCodec: "vp9", ACodec: "none", Height: 1080, VBR: 3000},
	}
	f, ok := FallbackPick(formats, 0)
	if !ok || f.FormatID != "high" {
		t.Errorf("pick = %v (%v), want high by vbr", f.FormatID, ok)
	}
}
