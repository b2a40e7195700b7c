package form

import (
	"fmt"
	"strings"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

// SectionData returns the saved answers of another section of the same report.
type SectionData func(sectionKey string) (valuetree.Tree, error)

// Prefill returns the edits copying into tree the values the fields of doc take
// from other sections. Values absent from their section are skipped.
func Prefill(doc schema.Fields, tree valuetree.Tree, data SectionData) ([]valuetree.Edit, error) {
	var (
		edits []valuetree.Edit
		err   error
	)
	sections := make(map[string]valuetree.Tree)
	visit(doc, "", tree, func(f *schema.Field, path string) {
		if f.From == nil || err != nil {
			return
		}
		src, ok := sections[f.From.Section]
		if !ok {
			if src, err = data(f.From.Section); err != nil {
				return
			}
			sections[f.From.Section] = src
		}
		if v, ok := valuetree.Get(src, f.From.Path); ok {
			edits = append(edits, valuetree.Edit{Path: path, Value: v})
		}
	})
	if err != nil {
		return nil, err
	}
	return edits, nil
}

type lock struct {
	path string
	by   string
}

func locksOf(doc schema.Fields, tree valuetree.Tree) []lock {
	var locks []lock
	visit(doc, "", tree, func(f *schema.Field, path string) {
		if f.LockedBy != "" {
			locks = append(locks, lock{path: path, by: f.LockedBy})
		}
	})
	return locks
}

func checked(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

// checkLocks refuses an edit at path when it lands in a field whose checkbox is checked or unset.
func checkLocks(doc schema.Fields, tree valuetree.Tree, path string) error {
	for _, l := range locksOf(doc, tree) {
		if path != l.path && !strings.HasPrefix(path, l.path+".") {
			continue
		}
		if v, ok := valuetree.Get(tree, l.by); !ok || checked(v) {
			return core.NewFieldError(path, fmt.Sprintf("uncheck %s first", l.by))
		}
	}
	return nil
}

// clearLocked clears the fields locked by a checkbox the edit e just checked.
func clearLocked(doc schema.Fields, tree valuetree.Tree, e valuetree.Edit) valuetree.Tree {
	if !checked(e.Value) {
		return tree
	}
	for _, l := range locksOf(doc, tree) {
		if l.by == e.Path {
			tree = valuetree.Set(tree, l.path, nil)
		}
	}
	return tree
}
