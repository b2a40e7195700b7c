package widget

import (
	"fmt"
	"strconv"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

const (
	autoRowTotalKey = "total"
	autoRowRowsKey  = "rows"

	// DefaultMaxAutoRows bounds the count of autoRow fields without a configured max.
	DefaultMaxAutoRows = 500
)

var (
	errMaxRows = "maximum number of rows reached"
	errMinRows = "at least one row is required"
)

// NewRow returns a fresh row: every template key set to "".
func NewRow(fields schema.Fields) map[string]interface{} {
	row := make(map[string]interface{}, fields.Len())
	for _, k := range fields.Keys() {
		row[k] = ""
	}
	return row
}

// RowsOf returns the rows of a sequence value.
func RowsOf(v interface{}) []interface{} {
	rows, _ := v.([]interface{})
	return rows
}

// AutoRowRowsPath returns the path of the rows of an autoRow field at path.
func AutoRowRowsPath(path string) string { return valuetree.JoinPath(path, autoRowRowsKey) }

// AddRow appends a fresh row, unless the configured maximum is reached.
func AddRow(f *schema.Field, path string, current interface{}) ([]valuetree.Edit, error) {
	cfg := f.AllowAdd()
	if cfg == nil {
		return nil, core.NewFieldError(path, "not a repeatable group")
	}
	rows := RowsOf(current)
	if cfg.Max > 0 && len(rows) >= cfg.Max {
		return nil, core.NewFieldError(path, errMaxRows)
	}
	next := make([]interface{}, len(rows), len(rows)+1)
	copy(next, rows)
	return edit(path, append(next, NewRow(cfg.Fields))), nil
}

// RemoveLastRow drops the last row. The last remaining row cannot be removed.
func RemoveLastRow(f *schema.Field, path string, current interface{}) ([]valuetree.Edit, error) {
	if f.AllowAdd() == nil {
		return nil, core.NewFieldError(path, "not a repeatable group")
	}
	rows := RowsOf(current)
	if len(rows) <= 1 {
		return nil, core.NewFieldError(path, errMinRows)
	}
	next := make([]interface{}, len(rows)-1)
	copy(next, rows)
	return edit(path, next), nil
}

func rowHeaders(header string, n int) []string {
	if header == "" {
		return nil
	}
	headers := make([]string, n)
	for i := range headers {
		headers[i] = header + " " + strconv.Itoa(i+1)
	}
	return headers
}

func renderAllowAdd(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	cfg := ctx.Field.AllowAdd()
	if cfg == nil {
		return v, nil
	}

	var edits []valuetree.Edit
	rows := RowsOf(ctx.Value)
	if len(rows) == 0 {
		rows = []interface{}{NewRow(cfg.Fields)}
		edits = edit(ctx.Path, rows)
	}
	v.Value = rows
	v.Rows = &RowsView{
		Count:     len(rows),
		Headers:   rowHeaders(cfg.HeaderWithIndex, len(rows)),
		ShowTotal: cfg.ShowTotal,
		CanAdd:    cfg.Max <= 0 || len(rows) < cfg.Max,
		CanRemove: len(rows) > 1,
		RowsPath:  ctx.Path,
	}
	if cfg.ShowTotal {
		label := cfg.HeaderWithIndex
		if label == "" {
			label = "rows"
		}
		v.Display = fmt.Sprintf("%s: %d", label, len(rows))
	}
	return v, edits
}

// AutoRowRows returns the rows of an autoRow value.
func AutoRowRows(v interface{}) []interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return RowsOf(m[autoRowRowsKey])
}

// ResizeRows sets the row count of an autoRow field: growing appends fresh rows,
// shrinking truncates from the end. A zero, negative or invalid count clears the
// rows and resets the total to "".
func ResizeRows(f *schema.Field, path string, current interface{}, count string) ([]valuetree.Edit, error) {
	cfg := f.AutoRow()
	if cfg == nil {
		return nil, core.NewFieldError(path, "not an auto sized group")
	}
	n := ToInt(count)
	if n <= 0 {
		return edit(path, map[string]interface{}{autoRowTotalKey: "", autoRowRowsKey: []interface{}{}}), nil
	}
	limit := cfg.Max
	if limit <= 0 {
		limit = DefaultMaxAutoRows
	}
	if n > limit {
		return nil, core.NewFieldError(path, fmt.Sprintf("at most %d rows are allowed", limit))
	}

	rows := AutoRowRows(current)
	next := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		if i < len(rows) {
			next = append(next, rows[i])
		} else {
			next = append(next, NewRow(cfg.Fields))
		}
	}
	return edit(path, map[string]interface{}{autoRowTotalKey: n, autoRowRowsKey: next}), nil
}

func renderAutoRow(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	cfg := ctx.Field.AutoRow()
	if cfg == nil {
		return v, nil
	}
	rows := AutoRowRows(ctx.Value)
	var total interface{} = ""
	if m, ok := ctx.Value.(map[string]interface{}); ok && m[autoRowTotalKey] != nil {
		total = m[autoRowTotalKey]
	}
	v.Value = ctx.Value
	v.Display = toString(total)
	v.NoIncrement = true
	v.Rows = &RowsView{
		Count:      len(rows),
		CountLabel: cfg.Label,
		RowsPath:   AutoRowRowsPath(ctx.Path),
	}
	return v, nil
}
