package plan

// CollationGroup declares which entry fields fold into a named group
// collection when same-tag entries are collated.
type CollationGroup struct {
	// Label is the group collection name the map definition iterates with a
	// "[label]" list node.
	Label string
	// Fields are the entry field names accumulated into the collection.
	Fields []string
}

// Collation describes how multiple entries sharing a tag fold into one
// grouped entry for legacy protocol generations. Non-groupable fields follow
// the keep-first policy unless KeepLast is set.
type Collation struct {
	Groups   []CollationGroup
	KeepLast bool
}

// collate folds every run of same-tag entries with a collation rule into a
// single entry: groupable fields accumulate, entry by entry in registry
// order, into per-label collections of field mappings; other fields follow
// the keep-first/keep-last policy. Entries without a rule pass through
// untouched. The result is deterministic for a fixed input order.
func collate(settings []*Setting, rules map[SettingTag]Collation) []*Setting {
	out := make([]*Setting, 0, len(settings))
	done := map[SettingTag]bool{}

	for i, s := range settings {
		if done[s.Tag] {
			continue
		}
		rule, ok := rules[s.Tag]
		if !ok {
			out = append(out, s)
			continue
		}

		fieldLabel := map[string]string{}
		for _, g := range rule.Groups {
			for _, f := range g.Fields {
				fieldLabel[f] = g.Label
			}
		}

		merged := Fields{}
		for _, e := range settings[i:] {
			if e.Tag != s.Tag {
				continue
			}
			grouped := map[string]Fields{}
			for k, v := range e.Fields {
				label, groupable := fieldLabel[k]
				if groupable {
					if grouped[label] == nil {
						grouped[label] = Fields{}
					}
					grouped[label][k] = v
					continue
				}
				if _, exists := merged[k]; !exists || rule.KeepLast {
					merged[k] = v
				}
			}
			for _, g := range rule.Groups {
				item, ok := grouped[g.Label]
				if !ok {
					continue
				}
				list, _ := merged[g.Label].([]any)
				merged[g.Label] = append(list, item)
			}
		}

		out = append(out, &Setting{Tag: s.Tag, Fields: merged})
		done[s.Tag] = true
	}
	return out
}
