package widget

import (
	"github.com/trezcool/schoolstats/core/schema"
)

type (
	// View is the renderable state of one widget.
	View struct {
		Type     schema.Type `json:"type"`
		ID       string      `json:"id"`
		Path     string      `json:"path"`
		Label    string      `json:"label"`
		Required bool        `json:"required,omitempty"`
		Inline   bool        `json:"inline,omitempty"`
		// Display is the formatted value.
		Display string      `json:"display"`
		Value   interface{} `json:"value,omitempty"`

		// NoIncrement tells the client not to offer wheel or arrow increments.
		NoIncrement bool            `json:"noIncrement,omitempty"`
		Highlight   bool            `json:"highlight,omitempty"`
		Options     []schema.Option `json:"options,omitempty"`
		Tags        []schema.Option `json:"tags,omitempty"`
		Footer      string          `json:"footer,omitempty"`

		File  *FileView  `json:"file,omitempty"`
		Table *TableView `json:"table,omitempty"`
		Rows  *RowsView  `json:"rows,omitempty"`
	}

	FileView struct {
		Filled   bool   `json:"filled"`
		Pending  bool   `json:"pending,omitempty"`
		FileName string `json:"fileName,omitempty"`
		URL      string `json:"url,omitempty"`
		ViewURL  string `json:"viewUrl,omitempty"`
		Accept   string `json:"accept,omitempty"`
		MaxSize  int64  `json:"maxSize"`
	}

	CellView struct {
		Col     string `json:"col"`
		Path    string `json:"path"`
		Display string `json:"display"`
		Numeric bool   `json:"numeric,omitempty"`
	}

	TableRowView struct {
		Key   string     `json:"key"`
		Name  string     `json:"name"`
		Cells []CellView `json:"cells"`
	}

	TableView struct {
		Title string          `json:"title,omitempty"`
		Cols  []schema.Column `json:"cols"`
		Rows  []TableRowView  `json:"rows"`
	}

	RowsView struct {
		Count     int      `json:"count"`
		Headers   []string `json:"headers,omitempty"`
		ShowTotal bool     `json:"showTotal,omitempty"`
		CanAdd    bool     `json:"canAdd"`
		CanRemove bool     `json:"canRemove"`
		// CountLabel labels the count input of autoRow fields.
		CountLabel string `json:"countLabel,omitempty"`
		// RowsPath is the path the rows are stored at.
		RowsPath string `json:"rowsPath"`
	}
)

func baseView(ctx RenderContext) View {
	return View{
		Type:     ctx.Field.Type,
		ID:       ctx.Field.Key,
		Path:     ctx.Path,
		Label:    ctx.Field.Name,
		Required: ctx.Field.Required,
		Inline:   ctx.Field.Inline,
	}
}
