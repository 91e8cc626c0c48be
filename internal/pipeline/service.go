// Package pipeline orchestrates the download → mux/transcode → finalize
// workflow for a single URL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"yt2qt/internal/bitrate"
	"yt2qt/internal/ffmpeg"
	"yt2qt/internal/model"
	"yt2qt/internal/progress"
	"yt2qt/internal/selector"
	"yt2qt/internal/util"
	"yt2qt/internal/ytdlp"
)

// Strategy names the branch a run took.
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategyTranscode Strategy = "transcode"
	StrategyFallback  Strategy = "fallback"
	StrategyAudioOnly Strategy = "audio"
)

// Service runs one job at a time. Independent Service instances may run
// concurrently; jobs do not collide on disk because intermediates are
// keyed by video id.
type Service struct {
	settings model.Settings
	runner   util.CmdRunner
	reporter progress.Reporter
	jobID    string
}

// Option configures a Service.
type Option func(*Service)

// WithSettings sets the resolved user settings for the run.
func WithSettings(s model.Settings) Option {
	return func(sv *Service) {
		sv.settings = s
	}
}

// WithRunner injects a custom command runner (useful for testing).
func WithRunner(r util.CmdRunner) Option {
	return func(sv *Service) {
		sv.runner = r
	}
}

// WithReporter attaches a progress reporter (used by TUI).
func WithReporter(rp progress.Reporter) Option {
	return func(sv *Service) {
		sv.reporter = rp
	}
}

// WithJobID sets the job ID associated with reporter events.
func WithJobID(id string) Option {
	return func(sv *Service) {
		sv.jobID = id
	}
}

// NewService constructs a Service, applying defaults for missing pieces.
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, o := range opts {
		o(s)
	}
	if s.runner == nil {
		s.runner = util.NewDefaultRunner()
	}
	if s.reporter == nil {
		s.reporter = progress.Nop{}
	}
	if s.jobID == "" {
		s.jobID = uuid.NewString()
	}
	return s
}

// Result is the outcome of one Run.
type Result struct {
	URL        string
	Info       *model.VideoInfo
	Strategy   Strategy
	OutputPath string
	Bytes      int64
	RawKept    []string // intermediate files left behind when keep-raw is set
}

// job carries the per-run state threaded through the stage methods.
type job struct {
	url       string
	info      *model.VideoInfo
	safeTitle string
	ytdlp     *ytdlp.Client
	ffmpeg    string // binary path, "" when unavailable
}

// Run executes the full pipeline for url. Errors abort only this job;
// the Service stays usable for another Run.
func (s *Service) Run(ctx context.Context, url string, opts model.RunOptions) (Result, error) {
	res, err := s.run(ctx, url, opts)
	if err != nil {
		s.reporter.Update(progress.Update{
			JobID:   s.jobID,
			Stage:   progress.StageError,
			Percent: -1,
			Message: err.Error(),
		})
	}
	s.reporter.Result(progress.Result{
		JobID:      s.jobID,
		OutputPath: res.OutputPath,
		Bytes:      res.Bytes,
		Err:        err,
	})
	return res, err
}

func (s *Service) run(ctx context.Context, url string, opts model.RunOptions) (Result, error) {
	res := Result{URL: url}

	s.update(progress.StageDeps, -1, "Checking tools")
	ytPath, err := ytdlp.FindBinary(s.settings.YTDLPBinary)
	if err != nil {
		return res, err
	}
	ffPath, ffErr := ffmpeg.FindBinary(s.settings.FFmpegBinary)
	if ffErr != nil {
		ffPath = ""
	}

	if err := util.EnsureDir(s.settings.OutDir); err != nil {
		return res, fmt.Errorf("output directory: %w", err)
	}

	j := &job{
		url:    url,
		ytdlp:  ytdlp.New(ytPath, s.runner),
		ffmpeg: ffPath,
	}

	s.update(progress.StageMetadata, -1, "Fetching metadata")
	info, err := j.ytdlp.FetchInfo(ctx, url)
	if err != nil {
		return res, err
	}
	j.info = info
	j.safeTitle = util.SanitizeTitle(info.Title)
	res.Info = info
	s.logf("Title: %s (id %s)", info.Title, info.ID)

	if s.settings.AudioOnly {
		res.Strategy = StrategyAudioOnly
		return s.runAudioOnly(ctx, j, res)
	}

	chosen := opts.ChosenFormat
	if chosen == nil && opts.ChosenFormatID != "" {
		f, ok := findFormatID(info.Formats, opts.ChosenFormatID)
		if !ok {
			return res, fmt.Errorf("format %q not offered for this video", opts.ChosenFormatID)
		}
		chosen = &f
	}

	if chosen == nil {
		// Automatic selection: best direct, else best transcode candidate,
		// else the bestvideo/bestaudio fallback.
		direct, transcode := selector.SelectFormats(info.Formats, s.settings.PreferH264)
		switch {
		case len(direct) > 0:
			chosen = &direct[0]
		case len(transcode) > 0:
			chosen = &transcode[0]
		default:
			cap := model.ResolutionCapHeight(s.settings.MaxResolution)
			f, ok := selector.FallbackPick(info.Formats, cap)
			if !ok {
				return res, ErrNoCompatibleFormat
			}
			s.logf("Fallback pick: %s (%s, %s)", f.FormatID, f.ResolutionLabel(), f.BitrateLabel())
			chosen = &f
			res.Strategy = StrategyFallback
		}
	}

	if selector.IsDirect(*chosen, s.settings.PreferH264) {
		res.Strategy = StrategyDirect
		return s.runDirect(ctx, j, *chosen, res)
	}
	if res.Strategy == "" {
		res.Strategy = StrategyTranscode
	}

	return s.runTranscode(ctx, j, *chosen, opts.OverrideMbps, res)
}

// runDirect downloads an already-compatible format straight to its final
// name. No transcode step and no ffmpeg requirement.
func (s *Service) runDirect(ctx context.Context, j *job, f model.VideoFormat, res Result) (Result, error) {
	ext := f.Ext
	if ext == "" {
		ext = "mp4"
	}
	target := util.NextAvailablePath(s.settings.OutDir, j.safeTitle, "."+ext)
	stem := strings.TrimSuffix(filepath.Base(target), "."+ext)

	s.logf("Direct download: format %s to %s", f.FormatID, filepath.Base(target))
	dlErr := s.download(ctx, j, progress.StageDownloading, ytdlp.DownloadRequest{
		URL:      j.url,
		FormatID: f.FormatID,
		Dir:      s.settings.OutDir,
		Template: stem + ".%(ext)s",
	})

	if !util.FileExists(target) {
		// The container extension usually matches the metadata, but locate
		// by stem before giving up.
		if found := util.FindByPrefix(s.settings.OutDir, stem+"."); found != "" {
			target = found
		} else if dlErr != nil {
			return res, dlErr
		} else {
			return res, ErrFileNotFoundAfterDownload
		}
	}
	s.warnIgnoredExit(dlErr)

	return s.finish(res, target, nil, nil)
}

// runTranscode downloads the video-only stream plus best audio, then muxes
// and re-encodes them into an H.264 MP4.
func (s *Service) runTranscode(ctx context.Context, j *job, f model.VideoFormat, overrideMbps string, res Result) (Result, error) {
	if j.ffmpeg == "" {
		return res, ffmpeg.ErrNotFound
	}

	overrideMbps = bitrate.AutoFillOverride(overrideMbps, &f, s.settings.Favorites)
	kbps, err := bitrate.Resolve(&f, overrideMbps, s.settings.PresetMbps())
	if errors.Is(err, bitrate.ErrInvalidOverride) {
		s.logf("Ignoring invalid bitrate override %q; using source bitrate", overrideMbps)
	}
	s.logf("Target bitrate: %d kbps, encoder: %s", kbps, s.settings.Encoder.Codec())

	videoPrefix := j.info.ID + ".video."
	audioPrefix := j.info.ID + ".audio."
	util.PurgePrefix(s.settings.OutDir, videoPrefix)
	util.PurgePrefix(s.settings.OutDir, audioPrefix)

	dlErr := s.download(ctx, j, progress.StageDownloadingVideo, ytdlp.DownloadRequest{
		URL:      j.url,
		FormatID: f.FormatID,
		Dir:      s.settings.OutDir,
		Template: "%(id)s.video.%(ext)s",
	})
	videoPath, err := s.locate(videoPrefix, dlErr)
	if err != nil {
		return res, err
	}

	dlErr = s.download(ctx, j, progress.StageDownloadingAudio, ytdlp.DownloadRequest{
		URL:      j.url,
		FormatID: "bestaudio",
		Dir:      s.settings.OutDir,
		Template: "%(id)s.audio.%(ext)s",
	})
	audioPath, err := s.locate(audioPrefix, dlErr)
	if err != nil {
		return res, err
	}

	target := util.NextAvailablePath(s.settings.OutDir, j.safeTitle, ".mp4")
	profile := ffmpeg.Profile{BitrateKbps: kbps, Encoder: s.settings.Encoder}
	txErr := s.transcode(ctx, j, profile.BuildMuxArgs(videoPath, audioPath, target), "Converting")
	if !util.FileExists(target) {
		if txErr != nil {
			return res, txErr
		}
		return res, ErrFileNotFoundAfterDownload
	}
	s.warnIgnoredExit(txErr)

	return s.finish(res, target, []string{videoPath, audioPath}, nil)
}

// runAudioOnly downloads the best audio stream and converts it to .m4a.
// Without ffmpeg the raw download is returned as-is rather than failing.
func (s *Service) runAudioOnly(ctx context.Context, j *job, res Result) (Result, error) {
	audioPrefix := j.info.ID + ".audio."
	util.PurgePrefix(s.settings.OutDir, audioPrefix)

	dlErr := s.download(ctx, j, progress.StageDownloadingAudio, ytdlp.DownloadRequest{
		URL:      j.url,
		FormatID: "bestaudio",
		Dir:      s.settings.OutDir,
		Template: "%(id)s.audio.%(ext)s",
	})
	audioPath, err := s.locate(audioPrefix, dlErr)
	if err != nil {
		return res, err
	}

	if j.ffmpeg == "" {
		s.logf("ffmpeg not found; keeping raw audio file %s", filepath.Base(audioPath))
		return s.finish(res, audioPath, nil, nil)
	}

	target := util.NextAvailablePath(s.settings.OutDir, j.safeTitle, ".m4a")
	txErr := s.transcode(ctx, j, ffmpeg.BuildAudioOnlyArgs(audioPath, target), "Converting audio")
	if !util.FileExists(target) {
		if txErr != nil {
			return res, txErr
		}
		return res, ErrFileNotFoundAfterDownload
	}
	s.warnIgnoredExit(txErr)

	return s.finish(res, target, []string{audioPath}, nil)
}

// locate resolves a role-prefixed intermediate after a download. The
// file's presence is the success predicate: a non-zero exit with the file
// on disk is a noisy success, a clean exit with no file is a failure.
func (s *Service) locate(prefix string, dlErr error) (string, error) {
	path := util.FindByPrefix(s.settings.OutDir, prefix)
	if path == "" {
		if dlErr != nil {
			return "", dlErr
		}
		return "", ErrFileNotFoundAfterDownload
	}
	s.warnIgnoredExit(dlErr)
	return path, nil
}

// warnIgnoredExit logs a subprocess failure that the success predicate
// overruled because the expected file exists.
func (s *Service) warnIgnoredExit(err error) {
	if err == nil {
		return
	}
	var se *StageError
	if errors.As(err, &se) {
		s.logf("%s exited with code %d but the output file exists; continuing", se.Stage, se.ExitCode)
		return
	}
	s.logf("ignoring subprocess error, output file exists: %v", err)
}

// download runs one yt-dlp download, streaming progress to the reporter.
// Percent never decreases within the stage even when the tool's output
// jitters. A non-zero exit is fatal unless the caller can still locate the
// expected file; that check lives with the caller, so this only records
// the failure.
func (s *Service) download(ctx context.Context, j *job, stage progress.Stage, req ytdlp.DownloadRequest) error {
	lastPct := -1.0
	var tail []string
	result, err := j.ytdlp.Download(ctx, req, func(line string) {
		s.reporter.Log(progress.Log{JobID: s.jobID, Stream: progress.StreamStdout, Line: line})
		tail = appendTail(tail, line)
		p, ok := ytdlp.ParseProgress(line)
		if !ok || p.Percent < lastPct {
			return
		}
		lastPct = p.Percent
		u := progress.Update{
			JobID:   s.jobID,
			Stage:   stage,
			Percent: p.Percent,
			ETA:     p.ETA,
		}
		if p.Speed != "" {
			sp := p.Speed
			u.Speed = &sp
		}
		s.reporter.Update(u)
	})
	if err != nil {
		if errors.Is(err, util.ErrLaunch) {
			return ytdlp.ErrNotFound
		}
		return &StageError{Stage: string(stage), ExitCode: result.Code, Output: strings.Join(tail, "\n")}
	}
	return nil
}

// transcode runs one ffmpeg invocation, streaming parsed progress to the
// reporter. With an unknown media duration the stage reports indeterminate
// progress instead of a fabricated percentage.
func (s *Service) transcode(ctx context.Context, j *job, args []string, label string) error {
	parser := ffmpeg.NewProgressParser(j.info.Duration)
	lastPct := -1.0
	var tail []string
	result, err := s.runner.Run(ctx, util.CmdSpec{
		Path: j.ffmpeg,
		Args: args,
		Line: func(line string) {
			s.reporter.Log(progress.Log{JobID: s.jobID, Stream: progress.StreamStderr, Line: line})
			tail = appendTail(tail, line)
			p, ok := parser.ParseLine(line)
			if !ok {
				return
			}
			u := progress.Update{
				JobID:   s.jobID,
				Stage:   progress.StageConverting,
				Percent: -1,
				ETA:     p.ETA,
				Message: label,
			}
			if p.Percent != nil {
				if *p.Percent < lastPct {
					return
				}
				lastPct = *p.Percent
				u.Percent = *p.Percent
			}
			if p.Speed > 0 {
				sp := fmt.Sprintf("%.2gx", p.Speed)
				u.Speed = &sp
			}
			s.reporter.Update(u)
		},
	})
	if err != nil {
		if errors.Is(err, util.ErrLaunch) {
			return ffmpeg.ErrNotFound
		}
		return &StageError{Stage: string(progress.StageConverting), ExitCode: result.Code, Output: strings.Join(tail, "\n")}
	}
	return nil
}

// finish removes intermediates (honoring keep-raw), stats the output, and
// emits the completion events.
func (s *Service) finish(res Result, outputPath string, intermediates []string, err error) (Result, error) {
	if err != nil {
		return res, err
	}
	if len(intermediates) > 0 {
		if s.settings.KeepRaw {
			res.RawKept = intermediates
			s.logf("Keeping raw files: %s", strings.Join(basenames(intermediates), ", "))
		} else {
			s.update(progress.StageCleanup, -1, "Removing intermediate files")
			for _, p := range intermediates {
				util.RemoveIfExists(p)
			}
		}
	}
	res.OutputPath = outputPath
	if fi, statErr := os.Stat(outputPath); statErr == nil {
		res.Bytes = fi.Size()
	}
	s.update(progress.StageCompleted, 100, fmt.Sprintf("Saved: %s", filepath.Base(outputPath)))
	return res, nil
}

func (s *Service) update(stage progress.Stage, pct float64, msg string) {
	s.reporter.Update(progress.Update{JobID: s.jobID, Stage: stage, Percent: pct, Message: msg})
}

func (s *Service) logf(format string, args ...any) {
	s.reporter.Log(progress.Log{
		JobID:  s.jobID,
		Stream: progress.StreamStdout,
		Line:   fmt.Sprintf(format, args...),
	})
}

// appendTail keeps the last few output lines for error reporting.
func appendTail(tail []string, line string) []string {
	const keep = 20
	tail = append(tail, line)
	if len(tail) > keep {
		tail = tail[len(tail)-keep:]
	}
	return tail
}

func findFormatID(formats []model.VideoFormat, id string) (model.VideoFormat, bool) {
	for _, f := range formats {
		if f.FormatID == id {
			return f, true
		}
	}
	return model.VideoFormat{}, false
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
