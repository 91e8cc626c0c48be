package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yt2qt/internal/ffmpeg"
	"yt2qt/internal/ytdlp"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Diagnose external dependencies (yt-dlp, ffmpeg)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			yt, yerr := ytdlp.FindBinary(getPersistentString(cmd, "ytdlp-binary", ""))
			if yerr != nil {
				return &ExitError{Code: ExitMissingDep, Err: yerr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp: %s\n", yt)
			if v, err := ytdlp.New(yt, nil).Version(cmd.Context()); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp version: %s\n", v)
			}

			ff, ferr := ffmpeg.FindBinary(getPersistentString(cmd, "ffmpeg-binary", ""))
			if ferr != nil {
				// ffmpeg is optional for direct and raw-audio downloads, so
				// report rather than fail outright.
				fmt.Fprintln(cmd.OutOrStdout(), "ffmpeg: not found (conversion unavailable; direct downloads still work)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ffmpeg: %s\n", ff)
			return nil
		},
	}
}
