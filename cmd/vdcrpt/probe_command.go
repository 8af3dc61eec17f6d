package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vdcrpt/internal/config"
	"vdcrpt/internal/transcoder"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE",
		Short: "Show container and stream details reported by ffprobe",
		Args:  exactArgs(1, "FILE"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.componentLogger("cli-probe")
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			result, err := transcoder.NewFromConfig(cfg, logger).Probe(cmd.Context(), path)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:     %s\n", path)
			fmt.Fprintf(out, "Format:   %s\n", result.Format.FormatName)
			fmt.Fprintf(out, "Duration: %.2fs\n", result.DurationSeconds())
			if size := result.SizeBytes(); size > 0 {
				fmt.Fprintf(out, "Size:     %s\n", humanize.IBytes(uint64(size)))
			}
			if rate := result.BitRate(); rate > 0 {
				fmt.Fprintf(out, "Bit rate: %s\n", humanize.SI(float64(rate), "b/s"))
			}
			rows := make([][]string, 0, len(result.Streams))
			for _, s := range result.Streams {
				rows = append(rows, []string{strconv.Itoa(s.Index), s.CodecType, s.CodecName, streamDetail(s)})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Type", "Codec", "Details"}, rows, []columnAlignment{alignRight}))
			return nil
		},
	}
}

func streamDetail(s transcoder.Stream) string {
	switch s.CodecType {
	case "video":
		if s.Width > 0 && s.Height > 0 {
			return fmt.Sprintf("%dx%d", s.Width, s.Height)
		}
	case "audio":
		parts := make([]string, 0, 2)
		if s.SampleRate != "" {
			parts = append(parts, s.SampleRate+" Hz")
		}
		if s.Channels > 0 {
			parts = append(parts, fmt.Sprintf("%d ch", s.Channels))
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
