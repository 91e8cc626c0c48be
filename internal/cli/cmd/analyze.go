package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"yt2qt/internal/model"
	"yt2qt/internal/selector"
	"yt2qt/internal/ytdlp"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "analyze <url>",
		Short:         "List compatible and convertible formats for a URL",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := assembleRunInputs(cmd, args)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			return analyze(cmd, args[0], in.Settings)
		},
	}
	bindRunFlags(cmd.Flags())
	cmd.Flags().Bool("simple", false, "Hide low-resolution direct formats")
	return cmd
}

func analyze(cmd *cobra.Command, url string, settings model.Settings) error {
	binary, err := ytdlp.FindBinary(settings.YTDLPBinary)
	if err != nil {
		return &ExitError{Code: ExitMissingDep, Err: err}
	}
	client := ytdlp.New(binary, nil)

	info, err := client.FetchInfo(cmd.Context(), url)
	if err != nil {
		return &ExitError{Code: ExitDownloadError, Err: err}
	}

	simple, _ := cmd.Flags().GetBool("simple")
	direct, transcode := selector.SelectFormats(info.Formats, settings.PreferH264)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", info.Title)
	if info.Channel != "" {
		fmt.Fprintf(out, "Channel: %s\n", info.Channel)
	}
	fmt.Fprintf(out, "Duration: %s\n\n", info.DurationLabel())

	w := tabwriter.NewWriter(out, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tRESOLUTION\tEXT\tCODEC\tBITRATE\tSIZE")
	shown := 0
	for _, f := range direct {
		if simple && f.LowRes {
			continue
		}
		printFormatRow(w, f, "direct")
		shown++
	}
	for _, f := range transcode {
		printFormatRow(w, f, "convert")
		shown++
	}
	w.Flush()
	if shown == 0 {
		fmt.Fprintln(out, "No compatible or convertible formats; a run would use the bestvideo/bestaudio fallback.")
	}
	return nil
}

func printFormatRow(w *tabwriter.Writer, f model.VideoFormat, class string) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		f.FormatID, class, f.ResolutionLabel(), f.Ext, f.VCodec, f.BitrateLabel(), f.SizeLabel())
}
