package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/provider"
	"github.com/sydlexius/refrain/internal/research"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "verify <source>",
		Short: "Re-fetch stored matches from a batch-capable source and refresh their artwork and links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := cliLogger(cmd.ErrOrStderr(), cfg)
			registry, _ := localSources(cfg, logger)

			p := newPool(cfg, logger)
			defer p.Close() //nolint:errcheck
			store := catalog.NewStore(p, cfg.Database.Driver)

			v := research.NewVerifier(registry, store, logger)
			res, err := v.Verify(cmd.Context(), provider.ProviderName(args[0]), limit)
			if err != nil {
				return err
			}
			cached := ""
			if res.FromCache {
				cached = " (from cache)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: checked %d, updated %d, unchanged %d, missing %d%s\n",
				res.Source.DisplayName(), res.Checked, res.Updated, res.Unchanged, res.Missing, cached)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum matches to check, stalest first")
	return cmd
}
