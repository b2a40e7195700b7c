// Package valuetree implements the nested answers document of a report section.
//
// A Tree is never mutated in place: every write returns a new Tree that shares
// the untouched branches with the previous one.
package valuetree

import (
	"reflect"
	"sort"
)

// Tree is a nested document of JSON-like values addressed by dotted paths.
type Tree map[string]interface{}

// Edit replaces the value at Path. A nil Value removes it.
type Edit struct {
	Path  string      `json:"path" validate:"required"`
	Value interface{} `json:"value"`
}

// New returns an empty Tree.
func New() Tree { return Tree{} }

// FromMap wraps m, converting a nil map to an empty Tree.
func FromMap(m map[string]interface{}) Tree {
	if m == nil {
		return Tree{}
	}
	return Tree(m)
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Tree:
		return m, true
	}
	return nil, false
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

// Get returns the value at path and whether it exists.
func Get(tree Tree, path string) (interface{}, bool) {
	return GetPath(tree, ParsePath(path))
}

// GetPath is Get with an already parsed path.
func GetPath(tree Tree, path Path) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(tree)
	for _, seg := range path {
		if m, ok := asMap(cur); ok {
			v, found := m[seg]
			if !found {
				return nil, false
			}
			cur = v
			continue
		}
		if s, ok := asSlice(cur); ok {
			i, isIdx := isIndex(seg)
			if !isIdx || i >= len(s) {
				return nil, false
			}
			cur = s[i]
			continue
		}
		return nil, false
	}
	return cur, true
}

// Lookup returns the value at path, or "" when absent.
// Absence means "no answer yet", never a fault.
func Lookup(tree Tree, path string) interface{} {
	v, ok := Get(tree, path)
	if !ok || v == nil {
		return ""
	}
	return v
}

// Set returns a copy of tree with value stored at path.
// Missing intermediate containers are created: a sequence when the next
// segment is an index, a mapping otherwise. A nil value removes the entry.
// A sequence grows by at most one element: an index past its end leaves
// tree as is, and so does removing a missing entry.
// tree itself is left untouched.
func Set(tree Tree, path string, value interface{}) Tree {
	p := ParsePath(path)
	if len(p) == 0 {
		if m, ok := asMap(value); ok {
			return Clone(Tree(m))
		}
		return copyMap(tree)
	}
	res, changed := setIn(map[string]interface{}(tree), p, value)
	if !changed {
		return tree
	}
	m, _ := res.(map[string]interface{})
	return Tree(m)
}

// Settable reports whether Set(tree, path, v) would store v: every index of path
// addresses an existing element or the one right after the last.
func Settable(tree Tree, path string) bool {
	var cur interface{} = map[string]interface{}(tree)
	for _, seg := range ParsePath(path) {
		i, isIdx := isIndex(seg)
		if s, ok := asSlice(cur); ok && isIdx {
			if i > len(s) {
				return false
			}
			if i < len(s) {
				cur = s[i]
			} else {
				cur = nil
			}
			continue
		}
		if m, ok := asMap(cur); ok {
			cur = m[seg]
			continue
		}
		// a missing container: only a first element may be created in it
		if isIdx && i > 0 {
			return false
		}
		cur = nil
	}
	return true
}

func setIn(node interface{}, path Path, value interface{}) (interface{}, bool) {
	seg := path[0]
	last := len(path) == 1

	if s, ok := asSlice(node); ok {
		if i, isIdx := isIndex(seg); isIdx {
			if i > len(s) || (i == len(s) && value == nil) {
				return node, false
			}
			n := len(s)
			if i == n {
				n++
			}
			var child interface{} = value
			if !last {
				var cur interface{}
				if i < len(s) {
					cur = s[i]
				}
				var changed bool
				if child, changed = setIn(cur, path[1:], value); !changed {
					return node, false
				}
			}
			cp := make([]interface{}, n)
			copy(cp, s)
			cp[i] = child
			return cp, true
		}
		// a key on a sequence turns it into a mapping
		node = nil
	}

	m, ok := asMap(node)
	if !ok {
		if value == nil {
			return node, false
		}
		if i, isIdx := isIndex(seg); isIdx {
			if i > 0 {
				return node, false
			}
			return setIn([]interface{}{}, path, value)
		}
		m = nil
	}
	if last {
		if value == nil {
			if _, found := m[seg]; !found {
				return node, false
			}
			cp := copyMap(m)
			delete(cp, seg)
			return map[string]interface{}(cp), true
		}
		cp := copyMap(m)
		cp[seg] = value
		return map[string]interface{}(cp), true
	}
	child, changed := setIn(m[seg], path[1:], value)
	if !changed {
		return node, false
	}
	cp := copyMap(m)
	cp[seg] = child
	return map[string]interface{}(cp), true
}

// Delete returns a copy of tree without the value at path.
// When path does not exist, tree is returned as is.
func Delete(tree Tree, path string) Tree {
	if _, ok := Get(tree, path); !ok {
		return tree
	}
	return Set(tree, path, nil)
}

// Apply applies edits in order and returns the resulting tree.
func Apply(tree Tree, edits ...Edit) Tree {
	for _, e := range edits {
		tree = Set(tree, e.Path, e.Value)
	}
	return tree
}

func copyMap(m map[string]interface{}) Tree {
	cp := make(Tree, len(m)+1)
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Clone returns a deep copy of tree.
func Clone(tree Tree) Tree {
	if tree == nil {
		return Tree{}
	}
	return Tree(cloneValue(map[string]interface{}(tree)).(map[string]interface{}))
}

func cloneValue(v interface{}) interface{} {
	if m, ok := asMap(v); ok {
		cp := make(map[string]interface{}, len(m))
		for k, val := range m {
			cp[k] = cloneValue(val)
		}
		return cp
	}
	if s, ok := asSlice(v); ok {
		cp := make([]interface{}, len(s))
		for i, val := range s {
			cp[i] = cloneValue(val)
		}
		return cp
	}
	if s, ok := v.([]string); ok {
		return append([]string(nil), s...)
	}
	return v
}

// DiffKeys returns the sorted paths whose values differ between a and b.
// Sequences of different lengths are reported as a whole.
func DiffKeys(a, b Tree) []string {
	var keys []string
	diff("", map[string]interface{}(a), map[string]interface{}(b), &keys)
	sort.Strings(keys)
	return keys
}

func diff(prefix string, a, b interface{}, keys *[]string) {
	am, aIsMap := asMap(a)
	bm, bIsMap := asMap(b)
	if aIsMap && bIsMap {
		seen := make(map[string]struct{}, len(am))
		for k, av := range am {
			seen[k] = struct{}{}
			bv, ok := bm[k]
			if !ok {
				*keys = append(*keys, JoinPath(prefix, k))
				continue
			}
			diff(JoinPath(prefix, k), av, bv, keys)
		}
		for k := range bm {
			if _, ok := seen[k]; !ok {
				*keys = append(*keys, JoinPath(prefix, k))
			}
		}
		return
	}
	as, aIsSlice := asSlice(a)
	bs, bIsSlice := asSlice(b)
	if aIsSlice && bIsSlice && len(as) == len(bs) {
		for i := range as {
			diff(Index(prefix, i), as[i], bs[i], keys)
		}
		return
	}
	if !reflect.DeepEqual(a, b) {
		*keys = append(*keys, prefix)
	}
}
