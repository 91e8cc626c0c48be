package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yt2qt/internal/ytdlp"
)

// version is set via -ldflags at release time.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print yt2qt and yt-dlp versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "yt2qt %s\n", version)
			yt, err := ytdlp.FindBinary(getPersistentString(cmd, "ytdlp-binary", ""))
			if err != nil {
				return nil
			}
			if v, err := ytdlp.New(yt, nil).Version(cmd.Context()); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp %s\n", v)
			}
			return nil
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "update",
		Short:         "Run yt-dlp's self-updater",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			yt, err := ytdlp.FindBinary(getPersistentString(cmd, "ytdlp-binary", ""))
			if err != nil {
				return &ExitError{Code: ExitMissingDep, Err: err}
			}
			out, err := ytdlp.New(yt, nil).Update(cmd.Context())
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			return nil
		},
	}
}
