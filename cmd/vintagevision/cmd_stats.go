package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vintagevision/internal/store"
)

var statsSince time.Duration

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize escalation offers and expert corrections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		return runStats(cmd.Context(), cmd.OutOrStdout(), st, time.Now().Add(-statsSince))
	},
}

func init() {
	statsCmd.Flags().DurationVar(&statsSince, "since", 30*24*time.Hour, "Look-back window")
}

func runStats(ctx context.Context, w io.Writer, st *store.Store, since time.Time) error {
	esc, err := st.GetEscalationStats(ctx, since)
	if err != nil {
		return fmt.Errorf("escalation stats: %w", err)
	}
	fields, err := st.GetCorrectionsByField(ctx, since)
	if err != nil {
		return fmt.Errorf("correction stats: %w", err)
	}

	fmt.Fprintf(w, "Since %s\n\n", since.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Evaluations:  %d\n", esc.TotalEvaluations)
	offerRate := 0.0
	if esc.TotalEvaluations > 0 {
		offerRate = 100 * float64(esc.Offered) / float64(esc.TotalEvaluations)
	}
	fmt.Fprintf(w, "Offered:      %d (%.1f%%)\n", esc.Offered, offerRate)
	fmt.Fprintf(w, "Urgency:      low %d, medium %d, high %d, critical %d\n",
		esc.UrgencyLow, esc.UrgencyMedium, esc.UrgencyHigh, esc.UrgencyCritical)
	fmt.Fprintf(w, "Corrections:  %d\n", esc.TotalCorrections)
	if len(fields) > 0 {
		fmt.Fprintln(w, "\nMost corrected fields:")
		for _, f := range fields {
			fmt.Fprintf(w, "  %-14s %d\n", f.Field, f.CorrectionCount)
		}
	}
	return nil
}
