// Package resolve maps display names to entity ids, ignoring case and
// surrounding whitespace.
package resolve

import "strings"

type Ref struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type Index map[string]uint64

func Key(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// New builds an index. When two refs share a key the first one wins.
func New(refs []Ref) Index {
	idx := make(Index, len(refs))
	for _, r := range refs {
		k := Key(r.Name)
		if k == "" {
			continue
		}
		if _, dup := idx[k]; !dup {
			idx[k] = r.ID
		}
	}
	return idx
}

func (idx Index) Lookup(name string) (uint64, bool) {
	id, ok := idx[Key(name)]
	return id, ok
}
