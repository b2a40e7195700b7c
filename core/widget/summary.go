package widget

import (
	"math"
	"strings"

	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

// ComputeSummary computes a summary field from the whole value tree.
// With divide paths the values are divided left to right (v0 / v1 / v2 ...),
// otherwise the summed paths are added up. Absent values count as 0.
func ComputeSummary(cfg *schema.SummaryConfig, tree valuetree.Tree) float64 {
	if cfg == nil {
		return 0
	}
	value := func(path string) float64 {
		v, ok := valuetree.Get(tree, path)
		if !ok {
			return 0
		}
		return ToNumber(v)
	}

	if len(cfg.DivideFields) > 0 {
		result := value(cfg.DivideFields[0])
		for _, p := range cfg.DivideFields[1:] {
			result = result / value(p)
		}
		return result
	}
	var sum float64
	for _, p := range cfg.SummaryFields {
		sum += value(p)
	}
	return sum
}

// Truthy reports whether a computed result is worth storing: non-zero and finite.
func Truthy(f float64) bool {
	return f != 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FormatSummary formats a computed result rounded to 2 decimals, "-" when it is not a number.
// A division by zero shows as "Infinity" (or "-Infinity") even though it is never stored.
func FormatSummary(f float64) string {
	if math.IsNaN(f) {
		return "-"
	}
	return FormatNumber(f, 2)
}

func renderSummary(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	cfg := ctx.Field.Summary()
	result := ComputeSummary(cfg, ctx.Tree)
	v.Display = FormatSummary(result)
	if Truthy(result) {
		v.Value = result
	}
	if cfg != nil {
		v.Footer = strings.TrimSpace(cfg.Footer)
	}
	return v, nil
}
