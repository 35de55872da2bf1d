package evaluation

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"vintagevision/internal/domain"
)

const defaultParallel = 4

// Analyzer produces the AI output to be scored for one ground-truth item.
type Analyzer interface {
	Analyze(ctx context.Context, item GroundTruthItem) (domain.AnalysisResult, error)
}

type AnalyzerFunc func(ctx context.Context, item GroundTruthItem) (domain.AnalysisResult, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, item GroundTruthItem) (domain.AnalysisResult, error) {
	return f(ctx, item)
}

// Runner scores a batch of items concurrently. Results keep input order.
type Runner struct {
	Analyzer Analyzer
	Parallel int
}

// Run analyzes and scores every item. A failed analysis is scored as an
// empty result so one bad record cannot abort the batch; only context
// cancellation stops the run.
func (r Runner) Run(ctx context.Context, items []GroundTruthItem) (Report, error) {
	parallel := r.Parallel
	if parallel < 1 {
		parallel = defaultParallel
	}
	results := make([]TestResult, len(items))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, item := range items {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			actual, err := r.Analyzer.Analyze(gCtx, item)
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Printf("eval analyze error item=%s: %v", item.ID, err)
				actual = domain.AnalysisResult{}
			}
			results[i] = Evaluate(item, actual)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep := BuildReport(results)
	log.Printf("eval complete items=%d avg=%.1f median=%d accuracy=%.1f", rep.TotalItems, rep.AverageScore, rep.MedianScore, rep.OverallAccuracy)
	return rep, nil
}
