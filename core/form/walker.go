// Package form walks report form schemas against a value tree.
//
// It produces the ordered render units of a form, resolves value paths back to
// their schema field, runs the derived field step after every committed edit and
// the post-processing pass that prepares a tree for persistence.
package form

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
	"github.com/trezcool/schoolstats/core/widget"
)

var ErrFormNotFound = errors.New("form not found")

// Kind is the kind of a render unit.
type Kind string

const (
	KindSection Kind = "section"
	KindLeaf    Kind = "leaf"
)

// Unit is one renderable element of a form, in display order.
type Unit struct {
	Kind  Kind          `json:"kind"`
	Path  string        `json:"path"`
	Depth int           `json:"depth"`
	Field *schema.Field `json:"-"`
	Name  string        `json:"name"`
	// Value is the current value at Path, "" when absent. Sections have none.
	Value interface{} `json:"value,omitempty"`
	View  *widget.View `json:"view,omitempty"`
}

// Walker renders forms with a widget registry.
type Walker struct {
	reg *widget.Registry
	loc *time.Location
}

// NewWalker returns a Walker showing dates in loc, time.Local when nil.
func NewWalker(reg *widget.Registry, loc *time.Location) *Walker {
	return &Walker{reg: reg, loc: loc}
}

type walk struct {
	reg   *widget.Registry
	loc   *time.Location
	tree  valuetree.Tree
	edits []valuetree.Edit
	units []Unit
}

// Walk renders root, one form of a schema document, against tree.
// Walk is depth-first pre-order: children are visited in schema order and rows
// in index order. The initial edits widgets make on render are applied as the
// walk goes; the returned tree holds them and edits lists them in order.
func (w *Walker) Walk(root *schema.Field, tree valuetree.Tree) (units []Unit, out valuetree.Tree, edits []valuetree.Edit, err error) {
	wk := &walk{reg: w.reg, loc: w.loc, tree: tree}
	if root.HasFields() {
		wk.section(root, root.Key, 0)
		if err := wk.fields(root.Fields, root.Key, 1); err != nil {
			return nil, tree, nil, err
		}
	}
	// a form can be a single field of its own, rendered after its children
	if root.Type.HasValue() {
		if err := wk.leaf(root, root.Key, 0); err != nil {
			return nil, tree, nil, err
		}
	}
	return wk.units, wk.tree, wk.edits, nil
}

// WalkDocument renders the form keyed formKey of doc.
func (w *Walker) WalkDocument(doc schema.Fields, formKey string, tree valuetree.Tree) ([]Unit, valuetree.Tree, []valuetree.Edit, error) {
	root, ok := doc.Get(formKey)
	if !ok {
		return nil, tree, nil, errors.Wrapf(ErrFormNotFound, "%q", formKey)
	}
	return w.Walk(root, tree)
}

func (wk *walk) section(f *schema.Field, path string, depth int) {
	wk.units = append(wk.units, Unit{Kind: KindSection, Path: path, Depth: depth, Field: f, Name: f.Name})
}

func (wk *walk) fields(fs schema.Fields, parent string, depth int) error {
	for _, f := range fs.All() {
		path := valuetree.JoinPath(parent, f.Key)
		if f.HasFields() {
			wk.section(f, path, depth)
			if err := wk.fields(f.Fields, path, depth+1); err != nil {
				return err
			}
			continue
		}
		if err := wk.leaf(f, path, depth); err != nil {
			return err
		}
	}
	return nil
}

func (wk *walk) leaf(f *schema.Field, path string, depth int) error {
	value := valuetree.Lookup(wk.tree, path)
	view, edits, err := wk.reg.Render(widget.RenderContext{Field: f, Path: path, Value: value, Tree: wk.tree, Location: wk.loc})
	if err != nil {
		return errors.Wrapf(err, "rendering %s", path)
	}
	if len(edits) > 0 {
		wk.tree = valuetree.Apply(wk.tree, edits...)
		wk.edits = append(wk.edits, edits...)
		value = valuetree.Lookup(wk.tree, path)
	}
	wk.units = append(wk.units, Unit{Kind: KindLeaf, Path: path, Depth: depth, Field: f, Name: f.Name, Value: value, View: &view})

	switch f.Type {
	case schema.TypeAllowAdd:
		return wk.rows(f, path, widget.RowsOf(value), depth+1)
	case schema.TypeAutoRow:
		return wk.rows(f, widget.AutoRowRowsPath(path), widget.AutoRowRows(value), depth+1)
	}
	return nil
}

func (wk *walk) rows(f *schema.Field, rowsPath string, rows []interface{}, depth int) error {
	tmpl := f.RowFields()
	for i := range rows {
		if err := wk.fields(tmpl, valuetree.Index(rowsPath, i), depth); err != nil {
			return err
		}
	}
	return nil
}

// FieldAt resolves a value path to the schema field bound at it.
// Row indices of allowAdd fields and the `rows.<i>` segments of autoRow fields
// resolve to the row template.
func FieldAt(doc schema.Fields, path string) (*schema.Field, bool) {
	segs := valuetree.ParsePath(path)
	fields := doc
	var f *schema.Field
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		if f != nil {
			switch f.Type {
			case schema.TypeAllowAdd:
				if !isIndex(seg) {
					return nil, false
				}
				fields, f = f.RowFields(), nil
				continue
			case schema.TypeAutoRow:
				if seg != "rows" || i+1 >= len(segs) || !isIndex(segs[i+1]) {
					return nil, false
				}
				i++
				fields, f = f.RowFields(), nil
				continue
			}
		}
		next, ok := fields.Get(seg)
		if !ok {
			return nil, false
		}
		f = next
		fields = f.Fields
	}
	return f, f != nil
}

func isIndex(seg string) bool {
	i, err := strconv.Atoi(seg)
	return err == nil && i >= 0
}
