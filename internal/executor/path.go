package executor

import (
	"strconv"
	"strings"
)

// Path locates a value in the response: field names and list indices.
type Path []PathElement

// PathElement is a response key (string) or a list index (int).
type PathElement any

// String renders p the way errors mention it, e.g. users[1].name.
func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Child returns a new path with elem appended; p is not modified.
func (p Path) Child(elem PathElement) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

// root returns the path of the top-level field p starts at.
func (p Path) root() Path {
	for _, elem := range p {
		if name, ok := elem.(string); ok {
			return Path{name}
		}
	}
	return Path{}
}

// tombstones records subtrees that were nulled by Non-Null propagation so
// that async work queued beneath them is dropped.
type tombstones map[string]struct{}

func (t tombstones) mark(p Path) {
	if key := p.String(); key != "" {
		t[key] = struct{}{}
	}
}

func (t tombstones) covers(p Path) bool {
	if len(t) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if _, ok := t[p[:i].String()]; ok {
			return true
		}
	}
	return false
}
