package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"vintagevision/internal/app"
	"vintagevision/internal/evaluation"
	"vintagevision/internal/httpx"
	"vintagevision/internal/integrations/llm"
	"vintagevision/internal/store"
)

var evalFlags struct {
	groundTruth string
	live        bool
	imageRoot   string
	fidelity    float64
	seed        uint64
	parallel    int
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score AI identifications against ground truth",
	Long: `Eval runs every ground-truth item through an analyzer, scores each field,
and prints the aggregate report. By default a seeded mock generator stands in
for the vision model; --live calls the configured provider with each item's
photo. The command fails when overall accuracy is below the gate.`,
	RunE: runEval,
}

func init() {
	f := evalCmd.Flags()
	f.StringVar(&evalFlags.groundTruth, "ground-truth", "", "Ground-truth YAML (default: ground_truth_path from config)")
	f.BoolVar(&evalFlags.live, "live", false, "Use the configured vision model instead of the mock generator")
	f.StringVar(&evalFlags.imageRoot, "image-root", "", "Directory that relative image paths resolve against (default: ground-truth file's directory)")
	f.Float64Var(&evalFlags.fidelity, "fidelity", 0.8, "Mock generator: chance each field is reproduced faithfully")
	f.Uint64Var(&evalFlags.seed, "seed", 1, "Mock generator seed")
	f.IntVar(&evalFlags.parallel, "parallel", 0, "Concurrent analyses (default: eval_parallel from config)")
}

func runEval(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	path := evalFlags.groundTruth
	if path == "" {
		path = cfg.GroundTruthPath
	}
	items, err := evaluation.LoadGroundTruth(path)
	if err != nil {
		return err
	}
	parallel := evalFlags.parallel
	if parallel <= 0 {
		parallel = cfg.EvalParallel
	}

	var analyzer evaluation.Analyzer
	if evalFlags.live {
		if !cfg.LLMConfigured() {
			return fmt.Errorf("--live needs an API key for llm_provider=%s: %w", cfg.LLMProvider, llm.ErrNotConfigured)
		}
		httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		root := evalFlags.imageRoot
		if root == "" {
			root = filepath.Dir(path)
		}
		analyzer = llm.EvalAnalyzer{Client: app.NewAnalyzer(cfg, app.CorrectionExamples(st)), ImageRoot: root}
		log.Printf("eval live provider=%s items=%d parallel=%d", cfg.LLMProvider, len(items), parallel)
	} else {
		analyzer = evaluation.NewMockGenerator(evalFlags.seed, evalFlags.fidelity)
		log.Printf("eval mock fidelity=%.2f seed=%d items=%d parallel=%d", evalFlags.fidelity, evalFlags.seed, len(items), parallel)
	}

	rep, err := evaluation.Runner{Analyzer: analyzer, Parallel: parallel}.Run(cmd.Context(), items)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), evaluation.FormatReport(rep))
	if !rep.Passed() {
		return fmt.Errorf("accuracy gate failed: average %.1f below %.0f", rep.AverageScore, evaluation.AccuracyGate)
	}
	return nil
}
