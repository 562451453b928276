// Package httpheader provides an ordered, case-insensitive header multimap.
//
// Unlike net/http.Header, it preserves insertion order and allows duplicate
// names, both of which the scope/event protocol requires (an outgoing request
// carries one "cookie" entry per stored cookie, in jar order).
package httpheader

import (
	"iter"
	"strings"
)

type entry struct {
	name  string
	value string
}

// Headers is an ordered multimap of header names to values. Lookups are
// case-insensitive; the stored name keeps its original casing. The zero
// value is not usable, construct with New.
type Headers struct {
	entries []entry
}

// New creates an empty Headers collection.
func New() *Headers {
	return &Headers{}
}

// FromMap creates a Headers collection from a plain map. Iteration order of
// the map is not defined, so callers that care about ordering should use Add.
func FromMap(m map[string]string) *Headers {
	h := New()
	for name, value := range m {
		h.Add(name, value)
	}
	return h
}

// Add appends a name/value pair, keeping any existing entries with the same name.
func (h *Headers) Add(name, value string) {
	h.entries = append(h.entries, entry{name: name, value: value})
}

// Set replaces all entries with the given name by a single entry. The new
// entry takes the position of the first replaced one, or is appended if the
// name was not present.
func (h *Headers) Set(name, value string) {
	replaced := false
	kept := h.entries[:0]
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			if !replaced {
				kept = append(kept, entry{name: name, value: value})
				replaced = true
			}
			continue
		}
		kept = append(kept, e)
	}
	if !replaced {
		kept = append(kept, entry{name: name, value: value})
	}
	h.entries = kept
}

// Get returns the first value for name, or "" if absent.
func (h *Headers) Get(name string) string {
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return e.value
		}
	}
	return ""
}

// Has reports whether at least one entry with the given name exists.
func (h *Headers) Has(name string) bool {
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return true
		}
	}
	return false
}

// Values returns all values for name in insertion order.
func (h *Headers) Values(name string) []string {
	var vals []string
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			vals = append(vals, e.value)
		}
	}
	return vals
}

// Del removes all entries with the given name.
func (h *Headers) Del(name string) {
	kept := h.entries[:0]
	for _, e := range h.entries {
		if !strings.EqualFold(e.name, name) {
			kept = append(kept, e)
		}
	}
	h.entries = kept
}

// Len returns the number of stored entries, counting duplicates.
func (h *Headers) Len() int {
	return len(h.entries)
}

// Clone returns a deep copy.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return New()
	}
	c := &Headers{entries: make([]entry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// All returns an iterator over name/value pairs in insertion order.
func (h *Headers) All() iter.Seq2[string, string] {
	return func(yield func(name, value string) bool) {
		for _, e := range h.entries {
			if !yield(e.name, e.value) {
				return
			}
		}
	}
}

// Update merges other into h: for each distinct name in other, existing
// entries in h are replaced; duplicates within other are all kept.
func (h *Headers) Update(other *Headers) {
	if other == nil {
		return
	}
	seen := make(map[string]bool)
	for _, e := range other.entries {
		lower := strings.ToLower(e.name)
		if !seen[lower] {
			h.Set(e.name, e.value)
			seen[lower] = true
			continue
		}
		h.Add(e.name, e.value)
	}
}
