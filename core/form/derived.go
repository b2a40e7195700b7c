package form

import (
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
	"github.com/trezcool/schoolstats/core/widget"
)

// visit calls fn for every field of doc bound to a path of tree, in display order.
// Row templates are visited once per existing row.
func visit(fields schema.Fields, parent string, tree valuetree.Tree, fn func(f *schema.Field, path string)) {
	for _, f := range fields.All() {
		path := valuetree.JoinPath(parent, f.Key)
		fn(f, path)
		if f.HasFields() {
			visit(f.Fields, path, tree, fn)
		}
		switch f.Type {
		case schema.TypeAllowAdd:
			for i := range widget.RowsOf(valuetree.Lookup(tree, path)) {
				visit(f.RowFields(), valuetree.Index(path, i), tree, fn)
			}
		case schema.TypeAutoRow:
			rowsPath := widget.AutoRowRowsPath(path)
			for i := range widget.AutoRowRows(valuetree.Lookup(tree, path)) {
				visit(f.RowFields(), valuetree.Index(rowsPath, i), tree, fn)
			}
		}
	}
}

// ComputeDerived recomputes every summary field of doc from tree.
// A result is written only when it is truthy (non-zero and finite); otherwise
// the stored value is left as is. Each result is visible to the summaries that
// reference it: passes repeat until nothing changes, once per summary at most,
// so cyclic references settle instead of looping.
func ComputeDerived(doc schema.Fields, tree valuetree.Tree) valuetree.Tree {
	out := tree
	for pass, passes := 0, 1; pass < passes; pass++ {
		changed := false
		summaries := 0
		visit(doc, "", tree, func(f *schema.Field, path string) {
			if f.Type != schema.TypeSummary {
				return
			}
			summaries++
			result := widget.ComputeSummary(f.Summary(), out)
			if !widget.Truthy(result) {
				return
			}
			if cur, ok := valuetree.Get(out, path); ok && widget.ToNumber(cur) == result {
				return
			}
			out = valuetree.Set(out, path, result)
			changed = true
		})
		if !changed {
			break
		}
		passes = summaries + 1
	}
	return out
}

// MissingRequired returns the paths of required fields that hold no value.
// Required is advisory: nothing is ever blocked on it.
func MissingRequired(doc schema.Fields, tree valuetree.Tree) []string {
	missing := make([]string, 0)
	visit(doc, "", tree, func(f *schema.Field, path string) {
		if !f.Required || !f.Type.HasValue() {
			return
		}
		if isEmpty(valuetree.Lookup(tree, path)) {
			missing = append(missing, path)
		}
	})
	return missing
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		if _, _, pending := widget.PendingFile(val); pending {
			return false
		}
		if name, ok := val["fileName"]; ok {
			return name == ""
		}
		if _, ok := val["rows"]; ok {
			return len(widget.AutoRowRows(val)) == 0
		}
		return len(val) == 0
	}
	return false
}
