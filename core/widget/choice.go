package widget

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

func errUnknownOption(path, value string) error {
	return core.NewFieldError(path, fmt.Sprintf("%q is not one of the available options", value))
}

func options(f *schema.Field) []schema.Option {
	if cfg := f.Options(); cfg != nil {
		return cfg.Options
	}
	return nil
}

// Select sets the single choice of a dropdown. An empty value clears it.
func Select(f *schema.Field, path, value string) ([]valuetree.Edit, error) {
	if value == "" {
		return edit(path, ""), nil
	}
	if cfg := f.Options(); cfg == nil || !cfg.Has(value) {
		return nil, errUnknownOption(path, value)
	}
	return edit(path, value), nil
}

func renderDropdown(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	v.Value = ctx.Value
	v.Options = options(ctx.Field)
	if cfg := ctx.Field.Options(); cfg != nil {
		v.Highlight = cfg.Highlight
		v.Display = cfg.Label(toString(ctx.Value))
	}
	return v, nil
}

// SelectedValues returns the ordered selection of a multiSelect value.
func SelectedValues(current interface{}) []string {
	switch vals := current.(type) {
	case []string:
		return append([]string(nil), vals...)
	case []interface{}:
		sel := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				sel = append(sel, s)
			}
		}
		return sel
	}
	return []string{}
}

func selection(vals []string) []interface{} {
	sel := make([]interface{}, len(vals))
	for i, v := range vals {
		sel[i] = v
	}
	return sel
}

func indexOf(vals []string, s string) int {
	for i, v := range vals {
		if v == s {
			return i
		}
	}
	return -1
}

// Toggle selects value when it is not selected yet, unselects it otherwise.
func Toggle(f *schema.Field, path string, current interface{}, value string) ([]valuetree.Edit, error) {
	sel := SelectedValues(current)
	if i := indexOf(sel, value); i >= 0 {
		return RemoveTag(path, current, value), nil
	}
	return AddTag(f, path, current, value)
}

// AddTag appends value to the selection. Selecting an already selected value is a no-op.
func AddTag(f *schema.Field, path string, current interface{}, value string) ([]valuetree.Edit, error) {
	if cfg := f.Options(); cfg == nil || !cfg.Has(value) {
		return nil, errUnknownOption(path, value)
	}
	sel := SelectedValues(current)
	if indexOf(sel, value) >= 0 {
		return nil, nil
	}
	return edit(path, selection(append(sel, value))), nil
}

// RemoveTag removes value from the selection.
func RemoveTag(path string, current interface{}, value string) []valuetree.Edit {
	sel := SelectedValues(current)
	kept := make([]string, 0, len(sel))
	for _, v := range sel {
		if v != value {
			kept = append(kept, v)
		}
	}
	return edit(path, selection(kept))
}

// ClearTags empties the selection.
func ClearTags(path string) []valuetree.Edit {
	return edit(path, []interface{}{})
}

// SetTags replaces the whole selection, dropping duplicates.
func SetTags(f *schema.Field, path string, values []string) ([]valuetree.Edit, error) {
	sel := make([]string, 0, len(values))
	for _, v := range values {
		if cfg := f.Options(); cfg == nil || !cfg.Has(v) {
			return nil, errUnknownOption(path, v)
		}
		if indexOf(sel, v) < 0 {
			sel = append(sel, v)
		}
	}
	return edit(path, selection(sel)), nil
}

// FilterOptions returns the options whose label or value contains query, ignoring case.
func FilterOptions(opts []schema.Option, query string) []schema.Option {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return opts
	}
	filtered := make([]schema.Option, 0, len(opts))
	for _, o := range opts {
		if strings.Contains(strings.ToLower(o.Label), q) || strings.Contains(strings.ToLower(o.Value), q) {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

func renderMultiSelect(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	sel := SelectedValues(ctx.Value)
	v.Value = sel
	v.Options = options(ctx.Field)
	cfg := ctx.Field.Options()
	labels := make([]string, 0, len(sel))
	v.Tags = make([]schema.Option, 0, len(sel))
	for _, s := range sel {
		label := s
		if cfg != nil {
			label = cfg.Label(s)
		}
		v.Tags = append(v.Tags, schema.Option{Label: label, Value: s})
		labels = append(labels, label)
	}
	v.Display = strings.Join(labels, ", ")
	return v, nil
}

// SetChecked sets a checkbox value.
func SetChecked(path string, checked bool) []valuetree.Edit {
	return edit(path, checked)
}

func renderCheckbox(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	// repeated instances of a field must not share a DOM id
	v.ID = ctx.Field.Key + "-" + uuid.NewString()[:5]
	checked, _ := ctx.Value.(bool)
	v.Value = checked
	v.Display = fmt.Sprint(checked)
	return v, nil
}
