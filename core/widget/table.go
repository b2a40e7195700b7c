package widget

import (
	"fmt"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

// InitTable returns the row → column matrix of current with every missing cell set to "".
// changed is false when current already was fully shaped.
func InitTable(cfg *schema.TableConfig, current interface{}) (matrix map[string]interface{}, changed bool) {
	cur, ok := current.(map[string]interface{})
	if !ok {
		cur = map[string]interface{}{}
		changed = true
	}
	matrix = make(map[string]interface{}, len(cur))
	for k, v := range cur {
		matrix[k] = v
	}
	for _, row := range cfg.Rows {
		cells, ok := matrix[row.Key].(map[string]interface{})
		if !ok {
			cells = map[string]interface{}{}
			changed = true
		} else {
			cp := make(map[string]interface{}, len(cells))
			for k, v := range cells {
				cp[k] = v
			}
			cells = cp
		}
		for _, col := range cfg.Cols {
			if _, ok := cells[col.Key]; !ok {
				cells[col.Key] = ""
				changed = true
			}
		}
		matrix[row.Key] = cells
	}
	return matrix, changed
}

// SetCell sets one cell of a table. Numeric columns follow the number widget rule.
func SetCell(f *schema.Field, path, row, col, input string) ([]valuetree.Edit, error) {
	cfg := f.Table()
	if cfg == nil || !cfg.HasRow(row) {
		return nil, core.NewFieldError(path, fmt.Sprintf("unknown row %q", row))
	}
	c, ok := cfg.Column(col)
	if !ok {
		return nil, core.NewFieldError(path, fmt.Sprintf("unknown column %q", col))
	}
	cellPath := valuetree.JoinPath(path, row, col)
	if c.Type == schema.ColumnNumber {
		return SetNumber(cellPath, input), nil
	}
	return edit(cellPath, input), nil
}

func renderTable(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	cfg := ctx.Field.Table()
	if cfg == nil {
		return v, nil
	}

	matrix, changed := InitTable(cfg, ctx.Value)
	var edits []valuetree.Edit
	if changed {
		edits = edit(ctx.Path, matrix)
	}

	tv := &TableView{Title: cfg.Title, Cols: cfg.Cols, Rows: make([]TableRowView, 0, len(cfg.Rows))}
	for _, row := range cfg.Rows {
		cells, _ := matrix[row.Key].(map[string]interface{})
		rv := TableRowView{Key: row.Key, Name: row.Name, Cells: make([]CellView, 0, len(cfg.Cols))}
		for _, col := range cfg.Cols {
			cell := CellView{
				Col:     col.Key,
				Path:    valuetree.JoinPath(ctx.Path, row.Key, col.Key),
				Numeric: col.Type == schema.ColumnNumber,
			}
			if cell.Numeric {
				cell.Display = FormatNumber(cells[col.Key])
			} else {
				cell.Display = toString(cells[col.Key])
			}
			rv.Cells = append(rv.Cells, cell)
		}
		tv.Rows = append(tv.Rows, rv)
	}
	v.Table = tv
	v.Value = matrix
	return v, edits
}
