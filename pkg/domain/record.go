package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Record is the field view of an item used as a private working copy by the
// mutation pipeline. Keys are the JSON field names of Item.
type Record map[string]any

// System fields are owned by the pipeline and never decoded from a record.
const (
	FieldID        = "id"
	FieldVersion   = "version"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldCreatedBy = "createdBy"
	FieldStage     = "workflowStage"
)

var systemFields = map[string]struct{}{
	FieldID:        {},
	FieldVersion:   {},
	FieldCreatedAt: {},
	FieldUpdatedAt: {},
}

// IsSystemField reports whether the field is managed by the pipeline.
func IsSystemField(field string) bool {
	_, ok := systemFields[field]
	return ok
}

type fieldSpec struct {
	shape  string
	assign func(dst, src *Item)
}

var itemFields = map[string]fieldSpec{
	"name":             {"string", func(d, s *Item) { d.Name = s.Name }},
	"description":      {"string", func(d, s *Item) { d.Description = s.Description }},
	"category":         {"string", func(d, s *Item) { d.Category = s.Category }},
	"priority":         {"string", func(d, s *Item) { d.Priority = s.Priority }},
	"status":           {"string", func(d, s *Item) { d.Status = s.Status }},
	"dueDate":          {"RFC 3339 timestamp", func(d, s *Item) { d.DueDate = s.DueDate }},
	"assignee":         {"string", func(d, s *Item) { d.Assignee = s.Assignee }},
	FieldCreatedBy:     {"string", func(d, s *Item) { d.CreatedBy = s.CreatedBy }},
	"tags":             {"array of strings", func(d, s *Item) { d.Tags = s.Tags }},
	"customFields":     {"object", func(d, s *Item) { d.CustomFields = s.CustomFields }},
	"metadata":         {"object", func(d, s *Item) { d.Metadata = s.Metadata }},
	"dependencies":     {"array of item ids", func(d, s *Item) { d.Dependencies = s.Dependencies }},
	"linkedItems":      {"array of item ids", func(d, s *Item) { d.LinkedItems = s.LinkedItems }},
	"attachmentIds":    {"array of attachment ids", func(d, s *Item) { d.AttachmentIDs = s.AttachmentIDs }},
	"reminderSettings": {"object", func(d, s *Item) { d.ReminderSettings = s.ReminderSettings }},
	"estimatedHours":   {"number", func(d, s *Item) { d.EstimatedHours = s.EstimatedHours }},
	"budget":           {"number", func(d, s *Item) { d.Budget = s.Budget }},
	"location":         {"string", func(d, s *Item) { d.Location = s.Location }},
	"externalRefs":     {"array of strings", func(d, s *Item) { d.ExternalRefs = s.ExternalRefs }},
	"approvalRequired": {"boolean", func(d, s *Item) { d.ApprovalRequired = s.ApprovalRequired }},
	"templateId":       {"string", func(d, s *Item) { d.TemplateID = s.TemplateID }},
	"parentItemId":     {"string", func(d, s *Item) { d.ParentItemID = s.ParentItemID }},
	FieldStage:         {"string", func(d, s *Item) { d.WorkflowStage = s.WorkflowStage }},
}

// IsItemField reports whether the field name is a known mutable item field.
func IsItemField(field string) bool {
	_, ok := itemFields[field]
	return ok
}

// Record returns the field view of the item. Empty optional fields are omitted.
func (i Item) Record() (Record, error) {
	raw, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", i.ID, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode item %s record: %w", i.ID, err)
	}
	return rec, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneMap(r))
}

// Fields returns the record keys in lexical order.
func (r Record) Fields() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Overlay returns a copy of r with every field of changes applied on top.
func (r Record) Overlay(changes Record) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range changes {
		out[k] = cloneValue(v)
	}
	return out
}

// DecodeRecord applies every mutable field of rec onto base. Each field is
// decoded independently so that a value that does not match the declared shape
// of its field is reported as a violation rather than coerced. Unknown fields
// are violations; system fields are ignored because base owns them.
func DecodeRecord(base Item, rec Record) (Item, []Violation) {
	out := base.Clone()
	var violations []Violation
	for _, field := range rec.Fields() {
		if IsSystemField(field) {
			continue
		}
		spec, ok := itemFields[field]
		if !ok {
			violations = append(violations, Violation{Field: field, Reason: "unknown field"})
			continue
		}
		raw, err := json.Marshal(map[string]any{field: rec[field]})
		if err != nil {
			violations = append(violations, Violation{Field: field, Reason: "value is not serializable"})
			continue
		}
		var decoded Item
		if err := json.Unmarshal(raw, &decoded); err != nil {
			violations = append(violations, Violation{Field: field, Reason: "expected " + spec.shape})
			continue
		}
		spec.assign(&out, &decoded)
	}
	return out, violations
}
