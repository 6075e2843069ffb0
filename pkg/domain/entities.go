// Package domain defines the item record, its snapshots and audit entries,
// the capability model, and the collaborator contracts consumed by the
// mutation pipeline.
package domain

import (
	"sort"
	"time"
)

// Action identifies the kind of mutation applied to an item.
type Action string

// Supported mutation actions used by the permission gate and audit trail.
const (
	// ActionCreate indicates an item was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an item was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// AuditAction returns the past-tense label recorded in audit entries.
func (a Action) AuditAction() string {
	switch a {
	case ActionCreate:
		return "created"
	case ActionUpdate:
		return "updated"
	case ActionDelete:
		return "deleted"
	default:
		return string(a)
	}
}

// WorkflowStage represents the item review workflow.
type WorkflowStage string

// Canonical workflow stages. The zero value means the item has not entered the workflow.
const (
	StageNone     WorkflowStage = ""
	StageBacklog  WorkflowStage = "backlog"
	StageInReview WorkflowStage = "in_review"
	StageApproved WorkflowStage = "approved"
	StageDone     WorkflowStage = "done"
	// StageBlocked is reachable from every non-terminal stage.
	StageBlocked WorkflowStage = "blocked"
)

// Capability is a named grant held by an actor.
type Capability string

// Capabilities recognised by the permission gate.
const (
	CapabilityRead     Capability = "read"
	CapabilityWrite    Capability = "write"
	CapabilityAdmin    Capability = "admin"
	CapabilityApprover Capability = "approver"
)

// CapabilitySet is an immutable-by-convention set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the provided capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the capability is present.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// HasAny reports whether at least one of the capabilities is present.
func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Sorted returns the capabilities in lexical order.
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actor is the authenticated principal performing a mutation.
type Actor struct {
	ID           string
	Capabilities CapabilitySet
}

// Item is a mutable work-item record.
type Item struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Status      string     `json:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`

	Tags             []string       `json:"tags,omitempty"`
	CustomFields     map[string]any `json:"customFields,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Dependencies     []string       `json:"dependencies,omitempty"`
	LinkedItems      []string       `json:"linkedItems,omitempty"`
	AttachmentIDs    []string       `json:"attachmentIds,omitempty"`
	ReminderSettings map[string]any `json:"reminderSettings,omitempty"`

	EstimatedHours   *float64 `json:"estimatedHours,omitempty"`
	Budget           *float64 `json:"budget,omitempty"`
	Location         string   `json:"location,omitempty"`
	ExternalRefs     []string `json:"externalRefs,omitempty"`
	ApprovalRequired bool     `json:"approvalRequired,omitempty"`
	TemplateID       string   `json:"templateId,omitempty"`
	ParentItemID     string   `json:"parentItemId,omitempty"`

	WorkflowStage WorkflowStage `json:"workflowStage,omitempty"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of the item so callers never share facet storage.
func (i Item) Clone() Item {
	cp := i
	if i.DueDate != nil {
		d := *i.DueDate
		cp.DueDate = &d
	}
	if i.EstimatedHours != nil {
		v := *i.EstimatedHours
		cp.EstimatedHours = &v
	}
	if i.Budget != nil {
		v := *i.Budget
		cp.Budget = &v
	}
	cp.Tags = cloneStrings(i.Tags)
	cp.Dependencies = cloneStrings(i.Dependencies)
	cp.LinkedItems = cloneStrings(i.LinkedItems)
	cp.AttachmentIDs = cloneStrings(i.AttachmentIDs)
	cp.ExternalRefs = cloneStrings(i.ExternalRefs)
	cp.CustomFields = cloneMap(i.CustomFields)
	cp.Metadata = cloneMap(i.Metadata)
	cp.ReminderSettings = cloneMap(i.ReminderSettings)
	return cp
}

// SnapshotRef points at an immutable ItemSnapshot.
type SnapshotRef struct {
	ItemID  string `json:"itemId"`
	Version int64  `json:"version"`
}

// ItemSnapshot is an immutable copy of an item at a prior version.
type ItemSnapshot struct {
	ItemID     string    `json:"itemId"`
	Version    int64     `json:"version"`
	Item       Item      `json:"item"`
	CapturedAt time.Time `json:"capturedAt"`
	CapturedBy string    `json:"capturedBy,omitempty"`
}

// Ref returns the (item, version) key of the snapshot.
func (s ItemSnapshot) Ref() SnapshotRef {
	return SnapshotRef{ItemID: s.ItemID, Version: s.Version}
}

// AuditEntry is an append-only record of a committed mutation.
type AuditEntry struct {
	ID                string       `json:"id"`
	ItemID            string       `json:"itemId"`
	Action            string       `json:"action"`
	ActorID           string       `json:"actorId"`
	BeforeSnapshotRef *SnapshotRef `json:"beforeSnapshotRef,omitempty"`
	AfterState        *Item        `json:"afterState,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
}

// Violation reports a single field-level validation failure.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Warning reports a non-fatal failure collected while completing a mutation.
type Warning struct {
	Stage   string `json:"stage"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, elem := range typed {
			out[i] = cloneValue(elem)
		}
		return out
	case []string:
		return cloneStrings(typed)
	default:
		return v
	}
}
