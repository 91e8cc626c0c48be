package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"yt2qt/internal/config"
)

const (
	ExitOK             = 0
	ExitCLIError       = 1
	ExitMissingDep     = 2
	ExitDownloadError  = 3
	ExitTranscodeError = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "yt2qt [urls...]",
		Short:         "Download YouTube videos as QuickTime-ready MP4s",
		Long:          "yt2qt downloads a YouTube video and hands you an MP4 that QuickTime Player opens without complaint. Already-compatible H.264 streams are saved as-is; AV1-only videos are downloaded and re-encoded through ffmpeg, with hardware encoding on Apple silicon.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runExecute(cmd, args, runMode{ForceTUI: false})
		},
	}

	// Persistent flags available to all subcommands
	root.PersistentFlags().StringP("out-dir", "o", "", "Output directory (default: ~/Downloads)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Show full subprocess commands/output")
	root.PersistentFlags().String("ytdlp-binary", "", "Path to yt-dlp or youtube-dl")
	root.PersistentFlags().String("ffmpeg-binary", "", "Path to ffmpeg")

	// Also bind run-specific flags on root, so `yt2qt <url>` works without
	// the run subcommand.
	bindRunFlags(root.Flags())

	// Subcommands
	root.AddCommand(newRunCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newTuiCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newUpdateCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

func bindRunFlags(fs *pflag.FlagSet) {
	fs.String("encoder", "", "Video encoder: gpu (h264_videotoolbox) or cpu (libx264)")
	fs.String("bitrate-preset", "", "Fallback bitrate preset, e.g. 4M, 8M, 16M")
	fs.String("bitrate", "", "Per-download bitrate override in Mbps (e.g. 12)")
	fs.String("max-resolution", "", "Fallback resolution cap: 720p, 1080p, 1440p, 2160p")
	fs.StringP("format", "f", "", "Extractor format id to download (see 'yt2qt analyze')")
	fs.Bool("audio-only", false, "Download best audio and save as .m4a")
	fs.Bool("keep-raw", false, "Keep raw video/audio downloads after conversion")
	fs.Bool("allow-hevc", false, "Also treat HEVC streams as directly compatible")
	fs.Bool("no-ui", false, "Disable TUI; use plain textual output")
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	_ = config.Init(root)
	return root.ExecuteContext(ctx)
}

// getPersistentString reads a persistent flag through the merged flag set,
// which covers both the root command itself and subcommands.
func getPersistentString(cmd *cobra.Command, name, def string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil || v == "" {
		return def
	}
	return v
}
