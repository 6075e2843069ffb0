package core

import (
	"strings"

	"github.com/spf13/cast"
)

// TrimStrings removes surrounding whitespace from every top-level string field.
func TrimStrings() Step {
	return Step{
		Name: "trim_strings",
		Transform: func(rec Record, _ map[string]any) (Record, error) {
			for k, v := range rec {
				if s, ok := v.(string); ok {
					rec[k] = strings.TrimSpace(s)
				}
			}
			return rec, nil
		},
	}
}

// NormalizeTags lower-cases and trims tags, dropping blanks and duplicates
// while keeping first-seen order.
func NormalizeTags() Step {
	return Step{
		Name: "normalize_tags",
		Transform: func(rec Record, _ map[string]any) (Record, error) {
			raw, ok := rec["tags"]
			if !ok || raw == nil {
				return rec, nil
			}
			tags, err := cast.ToStringSliceE(raw)
			if err != nil {
				return nil, err
			}
			seen := make(map[string]struct{}, len(tags))
			out := make([]string, 0, len(tags))
			for _, tag := range tags {
				tag = strings.ToLower(strings.TrimSpace(tag))
				if tag == "" {
					continue
				}
				if _, dup := seen[tag]; dup {
					continue
				}
				seen[tag] = struct{}{}
				out = append(out, tag)
			}
			rec["tags"] = out
			return rec, nil
		},
	}
}

// SetDefault fills field with value when it is absent, nil or an empty string.
func SetDefault(field string, value any) Step {
	return Step{
		Name:    "set_default",
		Options: map[string]any{"field": field, "value": value},
		Transform: func(rec Record, opts map[string]any) (Record, error) {
			f := cast.ToString(opts["field"])
			if isMissing(rec[f], rec[f] != nil) {
				rec[f] = opts["value"]
			}
			return rec, nil
		},
	}
}

// ApplyTemplate merges the custom field defaults of the template named by the
// record's templateId. Fields already present in customFields are kept.
func ApplyTemplate(templates map[string]map[string]any) Step {
	return Step{
		Name: "apply_template",
		Transform: func(rec Record, _ map[string]any) (Record, error) {
			id := cast.ToString(rec["templateId"])
			if id == "" {
				return rec, nil
			}
			defaults, ok := templates[id]
			if !ok {
				return rec, nil
			}
			fields, err := cast.ToStringMapE(rec["customFields"])
			if err != nil && rec["customFields"] != nil {
				return nil, err
			}
			merged := make(map[string]any, len(fields)+len(defaults))
			for k, v := range defaults {
				merged[k] = v
			}
			for k, v := range fields {
				merged[k] = v
			}
			rec["customFields"] = merged
			return rec, nil
		},
	}
}

// StampMetadata sets metadata[key] = value.
func StampMetadata(key string, value any) Step {
	return Step{
		Name:    "stamp_metadata",
		Options: map[string]any{"key": key},
		Transform: func(rec Record, opts map[string]any) (Record, error) {
			meta, err := cast.ToStringMapE(rec["metadata"])
			if err != nil && rec["metadata"] != nil {
				return nil, err
			}
			out := make(map[string]any, len(meta)+1)
			for k, v := range meta {
				out[k] = v
			}
			out[cast.ToString(opts["key"])] = value
			rec["metadata"] = out
			return rec, nil
		},
	}
}
