package timeseries

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// SelectorKind identifies the shape of a Selector.
type SelectorKind int

// Selector shapes.
const (
	// SelectAll selects everything available at its level.
	SelectAll SelectorKind = iota
	// SelectOne selects a single name.
	SelectOne
	// SelectMany selects a list of names.
	SelectMany
	// SelectEach selects names with a sub-selector for the next level.
	SelectEach
)

// Selector chooses names at one level of a selection: device types,
// measurements of a device type, or devices of a measurement.
//
// The zero value selects everything. In JSON a selector is null (all),
// a string (one), an array of strings (many) or an object mapping each
// name to the selector of the next level.
type Selector struct {
	kind  SelectorKind
	names []string
	each  map[string]Selector
}

// All selects everything at its level.
func All() Selector {
	return Selector{}
}

// One selects a single name.
func One(name string) Selector {
	return Selector{kind: SelectOne, names: []string{name}}
}

// Many selects the given names, in order.
func Many(names ...string) Selector {
	return Selector{kind: SelectMany, names: append([]string(nil), names...)}
}

// Each selects the keys of m, each with its own sub-selector.
func Each(m map[string]Selector) Selector {
	each := make(map[string]Selector, len(m))
	for k, v := range m {
		each[k] = v
	}
	return Selector{kind: SelectEach, each: each}
}

// Kind returns the selector's shape.
func (s Selector) Kind() SelectorKind {
	return s.kind
}

// IsAll reports whether the selector selects everything.
func (s Selector) IsAll() bool {
	return s.kind == SelectAll
}

// selection is one selected name with the selector for the next level.
type selection struct {
	name string
	sub  Selector
}

// expand turns the selector into an ordered list of selected names.
//
// All yields available in its given order; One and Many yield their names
// in order with duplicates removed; Each yields its keys sorted. Every
// sub-selector is All except those carried by Each.
func (s Selector) expand(available []string) []selection {
	var out []selection
	switch s.kind {
	case SelectAll:
		out = make([]selection, 0, len(available))
		for _, name := range available {
			out = append(out, selection{name: name})
		}
	case SelectOne, SelectMany:
		seen := make(map[string]bool, len(s.names))
		for _, name := range s.names {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, selection{name: name})
		}
	case SelectEach:
		keys := make([]string, 0, len(s.each))
		for k := range s.each {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, selection{name: k, sub: s.each[k]})
		}
	}
	return out
}

// UnmarshalJSON decodes null, a string, an array of strings or an object.
func (s *Selector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = All()
		return nil
	}

	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if name == "" {
			*s = All()
			return nil
		}
		*s = One(name)
	case '[':
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return fmt.Errorf("selector list: %w", err)
		}
		if len(names) == 0 {
			*s = All()
			return nil
		}
		*s = Many(names...)
	case '{':
		var m map[string]Selector
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("selector mapping: %w", err)
		}
		if len(m) == 0 {
			*s = All()
			return nil
		}
		*s = Each(m)
	default:
		return fmt.Errorf("selector: unsupported JSON value %s", data)
	}
	return nil
}

// MarshalJSON encodes the selector in the shape UnmarshalJSON accepts.
func (s Selector) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case SelectOne:
		return json.Marshal(s.names[0])
	case SelectMany:
		return json.Marshal(s.names)
	case SelectEach:
		return json.Marshal(s.each)
	default:
		return []byte("null"), nil
	}
}
