package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"vintagevision/internal/directory"
	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
	"vintagevision/internal/matching"
)

var matchFlags struct {
	category string
	tier     string
	top      int
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank the expert directory for a category and tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		category := domain.ParseDomain(matchFlags.category)
		escCfg := cfg.EscalationConfig()
		if _, ok := escCfg.Tier(matchFlags.tier); !ok {
			return fmt.Errorf("unknown tier %q", matchFlags.tier)
		}

		var src directory.Source = directory.File{Path: cfg.ExpertDirectoryPath}
		if cfg.ExpertDirectoryDSN != "" {
			pg, err := directory.OpenPostgres(cmd.Context(), cfg.ExpertDirectoryDSN)
			if err != nil {
				return err
			}
			defer pg.Close()
			src = pg
		}
		return runMatch(cmd.Context(), cmd.OutOrStdout(), src, escCfg, category, matchFlags.tier, matchFlags.top)
	},
}

func init() {
	f := matchCmd.Flags()
	f.StringVar(&matchFlags.category, "category", "general", "Item category to match")
	f.StringVar(&matchFlags.tier, "tier", escalation.TierFullAuthentication, "Service tier id")
	f.IntVar(&matchFlags.top, "top", 5, "Number of experts to show (0 = all)")
}

func runMatch(ctx context.Context, w io.Writer, src directory.Source, cfg escalation.Config, category domain.Domain, tierID string, top int) error {
	pool, err := src.Experts(ctx)
	if err != nil {
		return err
	}
	req := domain.ExpertRequest{TierID: tierID, ItemCategory: category}
	ranked := matching.Matcher{Tiers: cfg.Tiers}.Rank(req, pool)
	if len(ranked) == 0 {
		fmt.Fprintf(w, "No active experts for %s (%d in directory)\n", category, len(pool))
		return nil
	}
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	fmt.Fprintf(w, "Best experts for %s / %s\n\n", category, tierID)
	for i, m := range ranked {
		name := runewidth.FillRight(runewidth.Truncate(m.Expert.Name, 24, "…"), 24)
		fmt.Fprintf(w, "%2d. %s %6.1f  %s\n", i+1, name, m.MatchScore, strings.Join(m.Reasons, "; "))
	}
	return nil
}
