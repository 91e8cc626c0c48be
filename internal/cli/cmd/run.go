package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"yt2qt/internal/config"
	"yt2qt/internal/ffmpeg"
	"yt2qt/internal/model"
	"yt2qt/internal/pipeline"
	"yt2qt/internal/progress"
	"yt2qt/internal/ui"
	"yt2qt/internal/ytdlp"
)

type runMode struct {
	ForceTUI bool
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "run [urls...]",
		Short:         "Download and convert one or more videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args, runMode{ForceTUI: false})
		},
	}
	bindRunFlags(cmd.Flags())
	return cmd
}

type runInputs struct {
	URLs     []string
	Settings model.Settings
	Options  model.RunOptions
	NoUI     bool
}

func assembleRunInputs(cmd *cobra.Command, args []string) (runInputs, error) {
	settings, err := config.Load()
	if err != nil {
		return runInputs{}, err
	}

	// Run flags override loaded settings only when set on the command line.
	fs := cmd.Flags()
	if fs.Changed("encoder") {
		v, _ := fs.GetString("encoder")
		enc, err := model.ParseEncoderKind(v)
		if err != nil {
			return runInputs{}, err
		}
		settings.Encoder = enc
	}
	if fs.Changed("bitrate-preset") {
		settings.BitratePreset, _ = fs.GetString("bitrate-preset")
	}
	if fs.Changed("max-resolution") {
		v, _ := fs.GetString("max-resolution")
		if model.ResolutionCapHeight(v) == 0 && !strings.EqualFold(v, "no limit") && v != "" {
			return runInputs{}, fmt.Errorf("invalid --max-resolution: %q (valid: 720p|1080p|1440p|2160p)", v)
		}
		settings.MaxResolution = v
	}
	if fs.Changed("audio-only") {
		settings.AudioOnly, _ = fs.GetBool("audio-only")
	}
	if fs.Changed("keep-raw") {
		settings.KeepRaw, _ = fs.GetBool("keep-raw")
	}
	if fs.Changed("allow-hevc") {
		allow, _ := fs.GetBool("allow-hevc")
		settings.PreferH264 = !allow
	}
	if v := getPersistentString(cmd, "out-dir", ""); v != "" {
		settings.OutDir = filepath.Clean(v)
	}
	if v := getPersistentString(cmd, "ytdlp-binary", ""); v != "" {
		settings.YTDLPBinary = v
	}
	if v := getPersistentString(cmd, "ffmpeg-binary", ""); v != "" {
		settings.FFmpegBinary = v
	}
	if ok, _ := cmd.Flags().GetBool("verbose"); ok {
		settings.Verbose = true
	}

	override, _ := fs.GetString("bitrate")
	formatID, _ := fs.GetString("format")
	noUI, _ := fs.GetBool("no-ui")

	for _, raw := range args {
		if strings.TrimSpace(raw) == "" {
			return runInputs{}, errors.New("empty URL argument")
		}
	}

	return runInputs{
		URLs:     args,
		Settings: settings,
		Options: model.RunOptions{
			ChosenFormatID: formatID,
			OverrideMbps:   override,
		},
		NoUI: noUI,
	}, nil
}

func runExecute(cmd *cobra.Command, args []string, mode runMode) error {
	in, err := assembleRunInputs(cmd, args)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}

	useTUI := mode.ForceTUI || (!in.NoUI && isTerminal())
	if useTUI {
		if err := ui.Run(cmd.Context(), in.URLs, in.Settings, in.Options); err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		return nil
	}

	for _, rawURL := range in.URLs {
		if err := processOne(cmd.Context(), rawURL, in); err != nil {
			var ee *ExitError
			if errors.As(err, &ee) {
				return ee
			}
			return &ExitError{Code: ExitCLIError, Err: err}
		}
	}
	return nil
}

func processOne(ctx context.Context, rawURL string, in runInputs) error {
	svc := pipeline.NewService(
		pipeline.WithSettings(in.Settings),
		pipeline.WithReporter(&consoleReporter{verbose: in.Settings.Verbose}),
	)
	res, err := svc.Run(ctx, rawURL, in.Options)
	if err != nil {
		return &ExitError{Code: classifyExitCode(err), Err: err}
	}
	fmt.Printf("Saved: %s (%0.2f MB)\n", res.OutputPath, float64(res.Bytes)/(1024*1024))
	return nil
}

func classifyExitCode(err error) int {
	switch {
	case errors.Is(err, ytdlp.ErrNotFound), errors.Is(err, ffmpeg.ErrNotFound):
		return ExitMissingDep
	case errors.Is(err, pipeline.ErrNoCompatibleFormat),
		errors.Is(err, pipeline.ErrFileNotFoundAfterDownload),
		errors.Is(err, ytdlp.ErrMetadata):
		return ExitDownloadError
	}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		if se.Stage == string(progress.StageConverting) {
			return ExitTranscodeError
		}
		return ExitDownloadError
	}
	return ExitCLIError
}

// consoleReporter renders progress as plain text for non-TTY runs.
type consoleReporter struct {
	verbose   bool
	lastStage progress.Stage
}

func (c *consoleReporter) Update(u progress.Update) {
	if u.Stage != c.lastStage {
		c.lastStage = u.Stage
		if u.Message != "" {
			fmt.Printf("[%s] %s\n", u.Stage, u.Message)
		} else {
			fmt.Printf("[%s]\n", u.Stage)
		}
		return
	}
	if u.Percent >= 0 {
		line := fmt.Sprintf("[%s] %.1f%%", u.Stage, u.Percent)
		if u.ETA != nil {
			line += fmt.Sprintf(" ETA %s", u.ETA.Round(time.Second))
		}
		if u.Speed != nil {
			line += fmt.Sprintf(" (%s)", *u.Speed)
		}
		fmt.Printf("\r%-60s", line)
	}
}

func (c *consoleReporter) Log(l progress.Log) {
	if c.verbose {
		fmt.Fprintln(os.Stderr, l.Line)
	}
}

func (c *consoleReporter) Result(r progress.Result) {
	fmt.Println()
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
