package plan

import (
	"reflect"
	"strings"
)

// Fields holds a setting entry's field values. Values are strings, numbers,
// booleans, UUIDs, or nested lists and maps.
type Fields map[string]any

// Setting is one entry in the registry: an abstract setting kind and its
// field values.
type Setting struct {
	Tag    SettingTag
	Fields Fields
}

// Registry is an ordered, mutable collection of setting entries. Order is
// significant: later entries may update earlier ones in place, and rendered
// list fragments accumulate in registry order. Entries are append-only
// except through Update and Remove.
//
// A Registry is not safe for concurrent mutation.
type Registry struct {
	entries []*Setting
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns the entries in insertion order. The returned slice is
// shared; callers must not mutate it.
func (r *Registry) Entries() []*Setting {
	return r.entries
}

// Has reports whether any entry carries the given tag.
func (r *Registry) Has(tag SettingTag) bool {
	for _, e := range r.entries {
		if e.Tag == tag {
			return true
		}
	}
	return false
}

// Add appends a new entry unconditionally.
func (r *Registry) Add(tag SettingTag, fields Fields) {
	r.entries = append(r.entries, &Setting{Tag: tag, Fields: fields})
}

// Update merges fields into every existing entry of the given tag that
// matches the filter, overwriting matching keys and leaving others
// untouched. A nil filter matches every entry of the tag. If no entry
// matched, a new entry is appended instead.
//
// Filter keys may be dotted paths ("target.uuid"), resolved through nested
// field maps.
func (r *Registry) Update(tag SettingTag, fields Fields, filter Fields) {
	found := false
	for _, e := range r.entries {
		if e.Tag != tag || !e.matches(filter) {
			continue
		}
		found = true
		for k, v := range fields {
			setField(e.Fields, k, v)
		}
	}
	if !found {
		r.Add(tag, fields)
	}
}

// Remove deletes every entry of the given tag that matches the filter. A nil
// filter removes all entries of the tag.
func (r *Registry) Remove(tag SettingTag, filter Fields) {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Tag == tag && e.matches(filter) {
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
}

// matches reports whether every (key, expected) pair in filter matches the
// entry's current fields.
func (s *Setting) matches(filter Fields) bool {
	for k, want := range filter {
		got, ok := lookupField(s.Fields, k)
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// lookupField resolves a possibly dotted key path through nested field maps.
func lookupField(fields Fields, key string) (any, bool) {
	head, rest, nested := strings.Cut(key, ".")
	v, ok := fields[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return v, true
	}
	switch inner := v.(type) {
	case Fields:
		return lookupField(inner, rest)
	case map[string]any:
		return lookupField(Fields(inner), rest)
	}
	return nil, false
}

// setField assigns a possibly dotted key path, creating intermediate maps as
// needed.
func setField(fields Fields, key string, value any) {
	head, rest, nested := strings.Cut(key, ".")
	if !nested {
		fields[head] = value
		return
	}
	switch inner := fields[head].(type) {
	case Fields:
		setField(inner, rest, value)
	case map[string]any:
		setField(Fields(inner), rest, value)
	default:
		m := Fields{}
		fields[head] = m
		setField(m, rest, value)
	}
}
