// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Header multimap. HTTP allows a field name to appear on many lines, so a name maps to a sequence of values.

package hemi

// Header maps a case-sensitive field name to its values. Names are walked in the order they were first added.
type Header struct {
	// States
	names  []string            // in first insertion order
	values map[string][]string // never holds an empty list
}

// Assign replaces all values of name. Assigning no values is a no-op.
func (h *Header) Assign(name string, values ...string) {
	if len(values) == 0 {
		return
	}
	if h.values == nil {
		h.values = make(map[string][]string)
	}
	if _, ok := h.values[name]; !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = append([]string(nil), values...)
}

// Insert appends values to name without clobbering prior values.
func (h *Header) Insert(name string, values ...string) {
	if len(values) == 0 {
		return
	}
	if h.values == nil {
		h.values = make(map[string][]string)
	}
	prior, ok := h.values[name]
	if !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = append(prior, values...)
}

// Append assigns when name is absent and inserts otherwise.
func (h *Header) Append(name string, values ...string) {
	if h.Has(name) {
		h.Insert(name, values...)
	} else {
		h.Assign(name, values...)
	}
}

func (h *Header) Del(name string) {
	if _, ok := h.values[name]; !ok {
		return
	}
	delete(h.values, name)
	for i, n := range h.names {
		if n == name {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

func (h *Header) Has(name string) bool {
	_, ok := h.values[name]
	return ok
}
func (h *Header) HasValue(name string, value string) bool {
	for _, v := range h.values[name] {
		if v == value {
			return true
		}
	}
	return false
}
func (h *Header) Count(name string) int { return len(h.values[name]) }
func (h *Header) Len() int              { return len(h.names) }

// Value returns the idx-th value of name.
func (h *Header) Value(name string, idx int) (value string, ok bool) {
	values := h.values[name]
	if idx < 0 || idx >= len(values) {
		return "", false
	}
	return values[idx], true
}

// First is Value(name, 0) without the ok.
func (h *Header) First(name string) string {
	value, _ := h.Value(name, 0)
	return value
}

// Values returns the values of name. The returned slice must not be modified.
func (h *Header) Values(name string) []string { return h.values[name] }

// Names returns the field names in first insertion order.
func (h *Header) Names() []string { return append([]string(nil), h.names...) }

// Walk calls fn for each name in insertion order until fn returns false.
func (h *Header) Walk(fn func(name string, values []string) bool) {
	for _, name := range h.names {
		if !fn(name, h.values[name]) {
			return
		}
	}
}

func (h *Header) Reset() {
	h.names = h.names[:0]
	clear(h.values)
}

func (h *Header) Clone() Header {
	var c Header
	h.Walk(func(name string, values []string) bool {
		c.Assign(name, values...)
		return true
	})
	return c
}
