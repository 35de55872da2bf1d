package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"vintagevision/internal/domain"
	"vintagevision/internal/evaluation"
)

// EvalAnalyzer runs live vision analysis over ground-truth photos so the
// evaluation harness can score the real model.
type EvalAnalyzer struct {
	Client *Client
	// ImageRoot resolves relative image paths.
	ImageRoot string
}

func (a EvalAnalyzer) Analyze(ctx context.Context, item evaluation.GroundTruthItem) (domain.AnalysisResult, error) {
	if item.ImagePath == "" {
		return domain.AnalysisResult{}, fmt.Errorf("item %s has no image_path", item.ID)
	}
	path := item.ImagePath
	if !filepath.IsAbs(path) && a.ImageRoot != "" {
		path = filepath.Join(a.ImageRoot, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("read image for %s: %w", item.ID, err)
	}
	// No hint: the score must reflect what the model sees in the photo.
	result, _, err := a.Client.Analyze(ctx, Image{Data: data}, "")
	return result, err
}
