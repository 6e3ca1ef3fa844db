package metadata

import (
	"github.com/matzehuels/metarender/pkg/recipe"
)

// Key identifies a rendered output: its package name and canonical
// variant key.
type Key struct {
	Name    string
	Variant string
}

// Entry pairs an output descriptor with its resolved metadata.
type Entry struct {
	Output recipe.Output
	Meta   *Resolved
}

// Key returns the entry's key.
func (e Entry) Key() Key {
	return Key{Name: e.Meta.Name(), Variant: e.Meta.Variant().Key()}
}

// OutputSet is an insertion-ordered map of rendered outputs.
type OutputSet struct {
	keys    []Key
	entries map[Key]Entry
}

// NewOutputSet returns an empty set.
func NewOutputSet() *OutputSet {
	return &OutputSet{entries: make(map[Key]Entry)}
}

// Put stores e under its key. A new key is appended; an existing one keeps
// its position.
func (s *OutputSet) Put(e Entry) {
	k := e.Key()
	if _, ok := s.entries[k]; !ok {
		s.keys = append(s.keys, k)
	}
	s.entries[k] = e
}

// Get returns the entry stored under k.
func (s *OutputSet) Get(k Key) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.entries[k]
	return e, ok
}

// Len returns the number of entries.
func (s *OutputSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the keys in insertion order.
func (s *OutputSet) Keys() []Key {
	if s == nil {
		return nil
	}
	return append([]Key(nil), s.keys...)
}

// Entries returns the entries in insertion order.
func (s *OutputSet) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.keys))
	for i, k := range s.keys {
		out[i] = s.entries[k]
	}
	return out
}

// Index returns the position of k, or -1.
func (s *OutputSet) Index(k Key) int {
	for i, key := range s.Keys() {
		if key == k {
			return i
		}
	}
	return -1
}

// Lookup finds the entry of the output called name. A name that occurs
// once matches regardless of variant; otherwise the variant must match too.
func (s *OutputSet) Lookup(name, variantKey string) (Key, bool) {
	var matches []Key
	for _, k := range s.Keys() {
		if k.Name == name {
			matches = append(matches, k)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	k := Key{Name: name, Variant: variantKey}
	_, ok := s.Get(k)
	return k, ok
}

// Merge stores every entry of o into s.
func (s *OutputSet) Merge(o *OutputSet) {
	for _, e := range o.Entries() {
		s.Put(e)
	}
}

// Clone returns a shallow copy; entries are immutable.
func (s *OutputSet) Clone() *OutputSet {
	c := NewOutputSet()
	c.Merge(s)
	return c
}
