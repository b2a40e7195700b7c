package valuetree

import (
	"strconv"
	"strings"
)

// Sep separates the segments of a path.
const Sep = "."

// Path is a parsed path: a sequence of map keys and sequence indices.
type Path []string

// ParsePath parses a dotted path such as `rows.2.col1`.
// The bracket form `rows[2].col1` is accepted too. Empty segments are dropped.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	s = strings.NewReplacer("[", Sep, "]", "").Replace(s)
	parts := strings.Split(s, Sep)
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			p = append(p, part)
		}
	}
	return p
}

// JoinPath joins path segments with Sep, ignoring empty ones.
func JoinPath(segments ...string) string {
	kept := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, Sep)
}

// Index joins a parent path and a sequence index.
func Index(parent string, i int) string {
	return JoinPath(parent, strconv.Itoa(i))
}

func (p Path) String() string { return strings.Join(p, Sep) }

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Last returns the last segment of the path, or "".
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// isIndex reports whether seg addresses a sequence element.
func isIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(seg)
	return i, err == nil
}
