package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yt2qt/internal/model"
	"yt2qt/internal/progress"
	"yt2qt/internal/util"
)

type recordingReporter struct {
	updates []progress.Update
	results []progress.Result
	logs    []progress.Log
}

func (r *recordingReporter) Update(u progress.Update) { r.updates = append(r.updates, u) }
func (r *recordingReporter) Log(l progress.Log)       { r.logs = append(r.logs, l) }
func (r *recordingReporter) Result(res progress.Result) {
	r.results = append(r.results, res)
}

// fakeRunner simulates yt-dlp and ffmpeg by path.
type fakeRunner struct {
	t        *testing.T
	ytPath   string
	ffPath   string
	metaJSON string

	downloadExit   int  // exit code for download calls
	skipWriteVideo bool // exit clean but write no file
	partOnly       bool // write only an in-progress temp file
	transcodeExit  int
	skipWriteMux   bool

	downloads  int
	transcodes int
	ffmpegArgs [][]string
}

func (f *fakeRunner) Run(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	switch spec.Path {
	case f.ytPath:
		if contains(spec.Args, "-J") {
			return util.CmdResult{Stdout: []byte(f.metaJSON)}, nil
		}
		return f.runDownload(spec)
	case f.ffPath:
		return f.runFFmpeg(spec)
	}
	return util.CmdResult{Code: -1}, errors.New("unexpected tool path: " + spec.Path)
}

func (f *fakeRunner) runDownload(spec util.CmdSpec) (util.CmdResult, error) {
	f.downloads++
	tmpl := argValue(f.t, spec.Args, "-o")
	ext := "mp4"
	if contains(spec.Args, "bestaudio") {
		ext = "webm"
	}
	out := strings.NewReplacer("%(id)s", "abc123", "%(ext)s", ext).Replace(tmpl)

	if spec.Line != nil {
		spec.Line("[download] Destination: " + out)
		spec.Line("[download]  50.0% of 10.00MiB at 1.00MiB/s ETA 00:04")
		spec.Line("[download]  30.0% of 10.00MiB at 1.00MiB/s ETA 00:06") // fragment restart noise
		spec.Line("[download] 100.0% of 10.00MiB at 1.00MiB/s ETA 00:00")
	}
	if f.partOnly {
		if err := os.WriteFile(out+".part", []byte("partial"), 0o644); err != nil {
			f.t.Fatalf("fake partial write: %v", err)
		}
	} else if !f.skipWriteVideo {
		if err := os.WriteFile(out, []byte("downloaded"), 0o644); err != nil {
			f.t.Fatalf("fake download write: %v", err)
		}
	}
	if f.downloadExit != 0 {
		return util.CmdResult{Code: f.downloadExit}, errors.New("exit status")
	}
	return util.CmdResult{}, nil
}

func (f *fakeRunner) runFFmpeg(spec util.CmdSpec) (util.CmdResult, error) {
	f.transcodes++
	f.ffmpegArgs = append(f.ffmpegArgs, spec.Args)
	out := spec.Args[len(spec.Args)-1]

	if spec.Line != nil {
		spec.Line("Stream mapping:")
		spec.Line("frame=  100 time=00:00:50.00 bitrate= 800.0kbits/s speed=2.0x")
		spec.Line("frame=  200 time=00:01:40.00 bitrate= 800.0kbits/s speed=2.0x")
	}
	if !f.skipWriteMux {
		if err := os.WriteFile(out, make([]byte, 2048), 0o644); err != nil {
			f.t.Fatalf("fake ffmpeg write: %v", err)
		}
	}
	if f.transcodeExit != 0 {
		return util.CmdResult{Code: f.transcodeExit}, errors.New("exit status")
	}
	return util.CmdResult{}, nil
}

func contains(ss []string, q string) bool {
	for _, s := range ss {
		if s == q {
			return true
		}
	}
	return false
}

func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("flag %s missing from %v", flag, args)
	return ""
}

const directMetaJSON = `{"id":"abc123","title":"Test: Video?","duration":125,"formats":[` +
	`{"format_id":"22","ext":"mp4","vcodec":"avc1.64001f","acodec":"mp4a.40.2","height":720,"tbr":1200}]}`

const av1MetaJSON = `{"id":"abc123","title":"AV1 Clip","duration":100,"formats":[` +
	`{"format_id":"399","ext":"mp4","vcodec":"av01.0.08M.08","acodec":"none","height":1080,"tbr":1800},` +
	`{"format_id":"140","ext":"m4a","vcodec":"none","acodec":"mp4a.40.2","tbr":129}]}`

const audioOnlyMetaJSON = `{"id":"abc123","title":"Podcast","duration":3600,"formats":[` +
	`{"format_id":"140","ext":"m4a","vcodec":"none","acodec":"mp4a.40.2","tbr":129}]}`

// newTestService sets up fake binaries in a temp dir and a service wired to
// the fake runner. ffmpegMissing points the ffmpeg setting at a nonexistent
// path.
func newTestService(t *testing.T, metaJSON string, settings model.Settings, ffmpegMissing bool) (*Service, *fakeRunner, *recordingReporter, string) {
	t.Helper()
	binDir := t.TempDir()
	outDir := t.TempDir()

	ytPath := filepath.Join(binDir, "yt-dlp")
	ffPath := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(ytPath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !ffmpegMissing {
		if err := os.WriteFile(ffPath, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	settings.OutDir = outDir
	settings.YTDLPBinary = ytPath
	settings.FFmpegBinary = ffPath
	if settings.Encoder == "" {
		settings.Encoder = model.EncoderGPU
	}

	runner := &fakeRunner{t: t, ytPath: ytPath, ffPath: ffPath, metaJSON: metaJSON}
	rep := &recordingReporter{}
	svc := NewService(
		WithSettings(settings),
		WithRunner(runner),
		WithReporter(rep),
		WithJobID("job-1"),
	)
	return svc, runner, rep, outDir
}

func TestRun_DirectDownload(t *testing.T) {
	svc, runner, rep, outDir := newTestService(t, directMetaJSON, model.Settings{PreferH264: true}, false)

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Strategy != StrategyDirect {
		t.Errorf("strategy = %q, want direct", res.Strategy)
	}
	if runner.downloads != 1 {
		t.Errorf("downloads = %d, want 1", runner.downloads)
	}
	if runner.transcodes != 0 {
		t.Errorf("transcodes = %d, want 0", runner.transcodes)
	}
	want := filepath.Join(outDir, "Test_ Video_.mp4")
	if res.OutputPath != want {
		t.Errorf("output = %q, want %q", res.OutputPath, want)
	}
	if len(rep.results) != 1 || rep.results[0].Err != nil {
		t.Errorf("reporter results = %+v", rep.results)
	}
}

func TestRun_DirectDownload_Collision(t *testing.T) {
	svc, _, _, outDir := newTestService(t, directMetaJSON, model.Settings{PreferH264: true}, false)
	if err := os.WriteFile(filepath.Join(outDir, "Test_ Video_.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := filepath.Base(res.OutputPath); got != "Test_ Video_ (1).mp4" {
		t.Errorf("output = %q, want Test_ Video_ (1).mp4", got)
	}
}

func TestRun_TranscodePipeline(t *testing.T) {
	svc, runner, rep, outDir := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true}, false)

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Strategy != StrategyTranscode {
		t.Errorf("strategy = %q, want transcode", res.Strategy)
	}
	if runner.downloads != 2 {
		t.Errorf("downloads = %d, want 2 (video + audio)", runner.downloads)
	}
	if runner.transcodes != 1 {
		t.Errorf("transcodes = %d, want 1", runner.transcodes)
	}
	if got := filepath.Base(res.OutputPath); got != "AV1 Clip.mp4" {
		t.Errorf("output = %q, want AV1 Clip.mp4", got)
	}

	args := strings.Join(runner.ffmpegArgs[0], " ")
	if !strings.Contains(args, "-b:v 1800k") {
		t.Errorf("ffmpeg args missing source-derived bitrate: %s", args)
	}
	if !strings.Contains(args, "abc123.video.mp4") || !strings.Contains(args, "abc123.audio.webm") {
		t.Errorf("ffmpeg args missing role-prefixed inputs: %s", args)
	}

	// Intermediates removed (keep-raw off).
	if p := util.FindByPrefix(outDir, "abc123.video."); p != "" {
		t.Errorf("video intermediate survived: %s", p)
	}
	if p := util.FindByPrefix(outDir, "abc123.audio."); p != "" {
		t.Errorf("audio intermediate survived: %s", p)
	}

	// Percent never decreases within a stage despite the jittery 30% line.
	last := map[progress.Stage]float64{}
	for _, u := range rep.updates {
		if u.Percent < 0 {
			continue
		}
		if prev, ok := last[u.Stage]; ok && u.Percent < prev {
			t.Errorf("stage %s percent regressed: %.1f after %.1f", u.Stage, u.Percent, prev)
		}
		last[u.Stage] = u.Percent
	}
}

func TestRun_TranscodeKeepRaw(t *testing.T) {
	svc, _, _, outDir := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true, KeepRaw: true}, false)

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if util.FindByPrefix(outDir, "abc123.video.") == "" {
		t.Error("video intermediate should be kept")
	}
	if util.FindByPrefix(outDir, "abc123.audio.") == "" {
		t.Error("audio intermediate should be kept")
	}
	if len(res.RawKept) != 2 {
		t.Errorf("RawKept = %v, want both intermediates", res.RawKept)
	}
}

func TestRun_BitrateOverrideBeatsSource(t *testing.T) {
	svc, runner, _, _ := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true}, false)

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{OverrideMbps: "15"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	args := strings.Join(runner.ffmpegArgs[0], " ")
	if !strings.Contains(args, "-b:v 15000k") {
		t.Errorf("override not applied: %s", args)
	}
}

func TestRun_CleanExitMissingFile(t *testing.T) {
	svc, runner, _, _ := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true}, false)
	runner.skipWriteVideo = true

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if !errors.Is(err, ErrFileNotFoundAfterDownload) {
		t.Fatalf("err = %v, want ErrFileNotFoundAfterDownload", err)
	}
}

func TestRun_TranscodeCleanExitMissingOutput(t *testing.T) {
	svc, runner, _, _ := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true}, false)
	runner.skipWriteMux = true

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if !errors.Is(err, ErrFileNotFoundAfterDownload) {
		t.Fatalf("err = %v, want ErrFileNotFoundAfterDownload", err)
	}
}

func TestRun_DownloadFailure(t *testing.T) {
	svc, runner, _, _ := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true}, false)
	runner.downloadExit = 1
	runner.skipWriteVideo = true

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if se.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", se.ExitCode)
	}
}

func TestRun_InterruptedDownloadLeavesOnlyTempFile(t *testing.T) {
	// A killed yt-dlp exits non-zero with just a .part file on disk. That is
	// not the expected output, so the exit code stands and the failure
	// surfaces at the download stage, never reaching ffmpeg.
	svc, runner, _, _ := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true}, false)
	runner.downloadExit = 1
	runner.partOnly = true

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if se.Stage != string(progress.StageDownloadingVideo) {
		t.Errorf("failed stage = %q, want %q", se.Stage, progress.StageDownloadingVideo)
	}
	if runner.transcodes != 0 {
		t.Errorf("transcodes = %d, want 0 after a failed download", runner.transcodes)
	}
}

func TestRun_DirectInterruptedDownloadFails(t *testing.T) {
	svc, runner, _, outDir := newTestService(t, directMetaJSON, model.Settings{PreferH264: true}, false)
	runner.downloadExit = 1
	runner.partOnly = true

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err == nil {
		t.Fatalf("Run succeeded with only %q on disk", res.OutputPath)
	}
	if p := util.FindByPrefix(outDir, "Test_ Video_"); p != "" {
		t.Errorf("a temp file was located as the result: %s", p)
	}
}

func TestRun_NonZeroExitWithFileIsSuccess(t *testing.T) {
	// yt-dlp warnings can surface as non-zero exits; the file's presence is
	// what decides success.
	svc, runner, _, _ := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true}, false)
	runner.downloadExit = 1

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OutputPath == "" {
		t.Error("expected an output path")
	}
}

func TestRun_AudioOnlyWithoutFFmpeg(t *testing.T) {
	svc, runner, _, outDir := newTestService(t, audioOnlyMetaJSON, model.Settings{PreferH264: true, AudioOnly: true}, true)

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Strategy != StrategyAudioOnly {
		t.Errorf("strategy = %q, want audio", res.Strategy)
	}
	if runner.transcodes != 0 {
		t.Errorf("transcodes = %d, want 0 without ffmpeg", runner.transcodes)
	}
	want := filepath.Join(outDir, "abc123.audio.webm")
	if res.OutputPath != want {
		t.Errorf("output = %q, want raw download %q", res.OutputPath, want)
	}
}

func TestRun_AudioOnlyWithFFmpeg(t *testing.T) {
	svc, runner, _, outDir := newTestService(t, audioOnlyMetaJSON, model.Settings{PreferH264: true, AudioOnly: true}, false)

	res, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.transcodes != 1 {
		t.Errorf("transcodes = %d, want 1", runner.transcodes)
	}
	if got := filepath.Base(res.OutputPath); got != "Podcast.m4a" {
		t.Errorf("output = %q, want Podcast.m4a", got)
	}
	if util.FindByPrefix(outDir, "abc123.audio.") != "" {
		t.Error("raw audio should be removed after conversion")
	}
}

func TestRun_NoCompatibleFormat(t *testing.T) {
	svc, _, _, _ := newTestService(t, audioOnlyMetaJSON, model.Settings{PreferH264: true}, false)

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if !errors.Is(err, ErrNoCompatibleFormat) {
		t.Fatalf("err = %v, want ErrNoCompatibleFormat", err)
	}
}

func TestRun_UnknownFormatID(t *testing.T) {
	svc, _, _, _ := newTestService(t, directMetaJSON, model.Settings{PreferH264: true}, false)

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{ChosenFormatID: "999"})
	if err == nil || !strings.Contains(err.Error(), "999") {
		t.Fatalf("err = %v, want unknown format id error", err)
	}
}

func TestRun_StalePrefixPurgedBeforeDownload(t *testing.T) {
	svc, _, _, outDir := newTestService(t, av1MetaJSON, model.Settings{PreferH264: true, KeepRaw: true}, false)
	stale := filepath.Join(outDir, "abc123.video.part")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Run(context.Background(), "https://youtu.be/abc123", model.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale prefixed file should have been purged")
	}
}
