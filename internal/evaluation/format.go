package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"vintagevision/internal/domain"
)

const (
	idColumnWidth   = 14
	nameColumnWidth = 32
)

// FormatReport renders a plain-text report for console and CI logs.
func FormatReport(rep Report) string {
	var sb strings.Builder
	sb.WriteString("VintageVision evaluation report\n")
	sb.WriteString("===============================\n")
	sb.WriteString(fmt.Sprintf("Items:            %d\n", rep.TotalItems))
	sb.WriteString(fmt.Sprintf("Average score:    %.1f\n", rep.AverageScore))
	sb.WriteString(fmt.Sprintf("Median score:     %d\n", rep.MedianScore))
	if rep.Passed() {
		sb.WriteString(fmt.Sprintf("Overall accuracy: %.1f (PASS, gate %.0f)\n", rep.OverallAccuracy, AccuracyGate))
	} else {
		sb.WriteString(fmt.Sprintf("Overall accuracy: 0 (FAIL, average below gate %.0f)\n", AccuracyGate))
	}

	d := rep.Distribution
	sb.WriteString("\nDistribution\n")
	sb.WriteString(fmt.Sprintf("  %-19s %d\n", "excellent (>=90)", d.Excellent))
	sb.WriteString(fmt.Sprintf("  %-19s %d\n", "good (75-89)", d.Good))
	sb.WriteString(fmt.Sprintf("  %-19s %d\n", "acceptable (60-74)", d.Acceptable))
	sb.WriteString(fmt.Sprintf("  %-19s %d\n", "poor (40-59)", d.Poor))
	sb.WriteString(fmt.Sprintf("  %-19s %d\n", "failed (<40)", d.Failed))

	if len(rep.CategoryBreakdown) > 0 {
		sb.WriteString("\nBy category\n")
		cats := make([]domain.Domain, 0, len(rep.CategoryBreakdown))
		for c := range rep.CategoryBreakdown {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
		for _, c := range cats {
			s := rep.CategoryBreakdown[c]
			sb.WriteString(fmt.Sprintf("  %s %3d items  avg %.1f\n", runewidth.FillRight(string(c), 12), s.Count, s.AverageScore))
		}
	}

	if len(rep.Results) > 0 {
		sb.WriteString("\nItems\n")
		for _, r := range rep.Results {
			id := runewidth.FillRight(runewidth.Truncate(r.Item.ID, idColumnWidth, "…"), idColumnWidth)
			name := runewidth.FillRight(runewidth.Truncate(r.Item.Name, nameColumnWidth, "…"), nameColumnWidth)
			sb.WriteString(fmt.Sprintf("  %s %s %3d", id, name, r.Overall))
			if len(r.CompleteMisses) > 0 {
				sb.WriteString("  missed: " + joinFields(r.CompleteMisses))
			}
			if len(r.NeedsImprovement) > 0 {
				sb.WriteString("  weak: " + joinFields(r.NeedsImprovement))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func joinFields(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
