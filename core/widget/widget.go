// Package widget implements the per field type behaviour of report forms.
//
// A widget renders a field bound to a path of the value tree into a View, and
// every user action on it is a plain function returning the edits to commit.
// Soft errors (disallowed file, max rows reached, unknown option...) are
// returned as *core.ValidationError and produce no edit.
package widget

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

// DefaultMaxUploadSize is the maximum size of a file attachment: 7 MiB.
const DefaultMaxUploadSize int64 = 7 * 1024 * 1024

var ErrNoWidget = errors.New("no widget registered for field type")

type (
	// RenderContext is what a widget is rendered from.
	RenderContext struct {
		Field *schema.Field
		// Path is the absolute path of the field value.
		Path string
		// Value is the current value, "" when absent.
		Value interface{}
		// Tree is the whole value tree of the report section.
		Tree valuetree.Tree
		// Location dates are shown in, time.Local when nil.
		Location *time.Location
	}

	// Widget renders a field. The returned edits are committed right after the render
	// so that the value tree always holds a fully shaped value once a field has been shown.
	Widget interface {
		Render(ctx RenderContext) (View, []valuetree.Edit)
	}

	// Func adapts a function to the Widget interface.
	Func func(ctx RenderContext) (View, []valuetree.Edit)

	Options struct {
		MaxUploadSize int64
	}
)

func (fn Func) Render(ctx RenderContext) (View, []valuetree.Edit) { return fn(ctx) }

// Registry maps every field type to its widget.
type Registry struct {
	widgets map[schema.Type]Widget
	opts    Options
}

// NewRegistry returns a Registry holding a widget for every type of the closed set.
func NewRegistry(opts Options) *Registry {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	r := &Registry{widgets: make(map[schema.Type]Widget), opts: opts}
	r.Register(schema.TypeText, Func(renderText))
	r.Register(schema.TypeTextarea, Func(renderText))
	r.Register(schema.TypeNumber, Func(renderNumber))
	r.Register(schema.TypeDropdown, Func(renderDropdown))
	r.Register(schema.TypeMultiSelect, Func(renderMultiSelect))
	r.Register(schema.TypeCheckbox, Func(renderCheckbox))
	r.Register(schema.TypeDate, Func(renderDate))
	r.Register(schema.TypeFile, fileWidget{maxSize: opts.MaxUploadSize})
	r.Register(schema.TypeTable, Func(renderTable))
	r.Register(schema.TypeAllowAdd, Func(renderAllowAdd))
	r.Register(schema.TypeAutoRow, Func(renderAutoRow))
	r.Register(schema.TypeSummary, Func(renderSummary))
	r.Register(schema.TypeGroup, Func(renderGroup))
	return r
}

func (r *Registry) Register(t schema.Type, w Widget) {
	r.widgets[t] = w
}

func (r *Registry) Options() Options { return r.opts }

// Render renders ctx.Field with the widget registered for its type.
func (r *Registry) Render(ctx RenderContext) (View, []valuetree.Edit, error) {
	w, ok := r.widgets[ctx.Field.Type]
	if !ok {
		return View{}, nil, errors.Wrapf(ErrNoWidget, "%q", ctx.Field.Type)
	}
	if ctx.Value == nil {
		ctx.Value = ""
	}
	view, edits := w.Render(ctx)
	return view, edits, nil
}

func renderGroup(ctx RenderContext) (View, []valuetree.Edit) {
	return baseView(ctx), nil
}

func edit(path string, value interface{}) []valuetree.Edit {
	return []valuetree.Edit{{Path: path, Value: value}}
}
