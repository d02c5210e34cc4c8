package plan

import (
	"fmt"
	"reflect"
	"strings"
)

// Compile renders the ordered setting entries against a resolved map
// definition set and accumulates the fragments into a single wire DTO.
//
// Merge rules, applied key by key in registry order: nested mappings merge
// recursively, scalar and mapping leaves are overwritten by later entries,
// and list values accumulate by appending. Compilation is a pure function of
// its inputs.
func Compile(defs map[SettingTag]Definition, settings []*Setting) (map[string]any, error) {
	dto := map[string]any{}
	for _, s := range settings {
		def, ok := defs[s.Tag]
		if !ok {
			return nil, NewCompilationError(s.Tag, "", "setting is not valid for the target protocol version")
		}
		if err := renderInto(dto, def, s.Tag, s.Fields); err != nil {
			return nil, err
		}
	}
	return dto, nil
}

// renderInto renders one definition node against the entry's fields and
// merges the result into out.
func renderInto(out map[string]any, def Definition, tag SettingTag, ctx Fields) error {
	for key, node := range def {
		switch n := node.(type) {
		case Definition:
			nested, ok := out[key].(map[string]any)
			if !ok {
				nested = map[string]any{}
			}
			if err := renderInto(nested, n, tag, ctx); err != nil {
				return err
			}
			out[key] = nested

		case []any:
			name, group := splitGroupKey(key)
			rendered, err := renderList(n, group, tag, ctx)
			if err != nil {
				return err
			}
			if existing, ok := out[name].([]any); ok {
				out[name] = append(existing, rendered...)
			} else {
				out[name] = rendered
			}

		default:
			v, err := resolveValue(node, tag, ctx)
			if err != nil {
				return err
			}
			out[key] = v
		}
	}
	return nil
}

// renderList builds the sub-objects for a list node. Without a group label
// each element renders once against the entry's fields. With a group label
// the elements render once per item of the named group collection, each item
// supplying the resolution context (a cross product of template elements and
// group items).
func renderList(elems []any, group string, tag SettingTag, ctx Fields) ([]any, error) {
	contexts := []Fields{ctx}
	if group != "" {
		items, ok := ctx[group]
		if !ok {
			return nil, NewCompilationError(tag, group, "group collection missing from setting fields")
		}
		contexts = nil
		rv := reflect.ValueOf(items)
		if rv.Kind() != reflect.Slice {
			return nil, NewCompilationError(tag, group, "group collection is not a list")
		}
		for i := 0; i < rv.Len(); i++ {
			item, err := groupContext(rv.Index(i).Interface())
			if err != nil {
				return nil, NewCompilationError(tag, group, err.Error())
			}
			contexts = append(contexts, item)
		}
	}

	// Non-nil so an empty group still serializes as [].
	rendered := []any{}
	for _, elem := range elems {
		for _, c := range contexts {
			switch e := elem.(type) {
			case Definition:
				sub := map[string]any{}
				if err := renderInto(sub, e, tag, c); err != nil {
					return nil, err
				}
				rendered = append(rendered, sub)
			default:
				v, err := resolveValue(elem, tag, c)
				if err != nil {
					return nil, err
				}
				rendered = append(rendered, v)
			}
		}
	}
	return rendered, nil
}

func groupContext(item any) (Fields, error) {
	switch m := item.(type) {
	case Fields:
		return m, nil
	case map[string]any:
		return Fields(m), nil
	}
	return nil, fmt.Errorf("group item %v is not a field mapping", item)
}

// splitGroupKey splits "targets[ids]" into ("targets", "ids").
func splitGroupKey(key string) (name, group string) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, ""
	}
	end := strings.IndexByte(key, ']')
	if end < open {
		return key, ""
	}
	return key[:open], key[open+1 : end]
}

// resolveValue resolves a leaf node: "$name" substitutes the entry field,
// "@name:table" translates the entry field through a value map, anything
// else is copied verbatim.
func resolveValue(node any, tag SettingTag, ctx Fields) (any, error) {
	s, ok := node.(string)
	if !ok {
		return node, nil
	}
	switch {
	case strings.HasPrefix(s, "$"):
		name := s[1:]
		v, ok := ctx[name]
		if !ok {
			return nil, NewCompilationError(tag, name, "no value for substitution")
		}
		return v, nil

	case strings.HasPrefix(s, "@"):
		name, table, found := strings.Cut(s[1:], ":")
		if !found {
			return nil, NewCompilationError(tag, name, "malformed translation reference")
		}
		v, ok := ctx[name]
		if !ok {
			return nil, NewCompilationError(tag, name, "no value for translation")
		}
		return translateValue(v, table, tag, name)
	}
	return s, nil
}

// translateValue resolves v through a translation table: either
// semicolon-separated equality pairs ("on=ENABLED;off=DISABLED") or a single
// "true;false" pair selected by a boolean value.
func translateValue(v any, table string, tag SettingTag, field string) (any, error) {
	if strings.Contains(table, "=") {
		for _, pair := range strings.Split(table, ";") {
			src, dst, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, NewCompilationError(tag, field, fmt.Sprintf("malformed value map %q", table))
			}
			if src == fmt.Sprintf("%v", v) {
				return dst, nil
			}
		}
		return nil, NewCompilationError(tag, field, fmt.Sprintf("value %v not resolvable in map %q", v, table))
	}

	t, f, ok := strings.Cut(table, ";")
	if !ok {
		return nil, NewCompilationError(tag, field, fmt.Sprintf("malformed value map %q", table))
	}
	b, ok := v.(bool)
	if !ok {
		return nil, NewCompilationError(tag, field, fmt.Sprintf("value %v not resolvable in map %q", v, table))
	}
	if b {
		return t, nil
	}
	return f, nil
}
