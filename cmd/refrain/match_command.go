package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sydlexius/refrain/internal/match"
	"github.com/sydlexius/refrain/internal/provider"
	"github.com/sydlexius/refrain/internal/research"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var q provider.Query
	var mode string
	var top int
	cmd := &cobra.Command{
		Use:   "match <title>",
		Short: "Look a song up in every source and show scored candidates without storing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Match.Mode = mode
			}
			scorer, err := newScorer(cfg)
			if err != nil {
				return err
			}
			logger := cliLogger(cmd.ErrOrStderr(), cfg)
			registry, _ := localSources(cfg, logger)

			q.Title = args[0]
			pipeline := research.NewPipeline(registry, nil, scorer, cfg.Match.RepresentativeSource, logger)
			printPreview(cmd.OutOrStdout(), pipeline.Preview(cmd.Context(), q), top)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Artist, "artist", "", "Artist hint")
	cmd.Flags().StringVar(&q.Album, "album", "", "Album hint")
	cmd.Flags().IntVar(&q.Year, "year", 0, "Release year hint")
	cmd.Flags().StringVar(&mode, "mode", "", "Match mode: strict or loose (default from config)")
	cmd.Flags().IntVar(&top, "top", 5, "Candidates shown per source")
	return cmd
}

func printPreview(out io.Writer, previews []research.SourcePreview, top int) {
	if len(previews) == 0 {
		fmt.Fprintln(out, "No sources enabled")
		return
	}
	for _, pv := range previews {
		header := pv.Source.DisplayName()
		if pv.FromCache {
			header += " (cached)"
		}
		fmt.Fprintln(out, header)
		if pv.Err != nil {
			fmt.Fprintf(out, "  lookup failed: %v\n\n", pv.Err)
			continue
		}
		if len(pv.Evaluations) == 0 {
			fmt.Fprint(out, "  no candidates\n\n")
			continue
		}
		fmt.Fprintln(out, renderTable(previewTable(pv.Evaluations, top)))
		fmt.Fprintln(out, decisionLine(pv.Decision))
		fmt.Fprintln(out)
	}
}

func previewTable(evals []match.Evaluation, top int) ([]string, [][]string, []columnAlignment) {
	headers := []string{"Score", "Title", "Artist", "Album", "ID", "Verdict"}
	if top > 0 && len(evals) > top {
		evals = evals[:top]
	}
	rows := make([][]string, 0, len(evals))
	for _, ev := range evals {
		verdict := "ok"
		if !ev.Accepted {
			verdict = ev.Reason
		}
		rows = append(rows, []string{
			strconv.FormatFloat(ev.Score, 'f', 2, 64),
			ev.Candidate.Title,
			ev.Candidate.Artist,
			ev.Candidate.Album,
			ev.Candidate.SourceID,
			verdict,
		})
	}
	return headers, rows, []columnAlignment{alignRight}
}

func decisionLine(d match.Decision) string {
	if d.Accepted && d.Candidate != nil {
		return fmt.Sprintf("  accepted %s (%.2f >= %.2f, %s)", d.Candidate.SourceID, d.Score, d.Threshold, d.Mode)
	}
	return fmt.Sprintf("  no match among %d candidates (best %.2f < %.2f, %s)", d.Evaluated, d.Score, d.Threshold, d.Mode)
}
