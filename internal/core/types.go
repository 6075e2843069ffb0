// Package core implements the item mutation pipeline: permission checks,
// processing, validation, versioning, conflict resolution, persistence and
// best-effort side effects.
package core

import "itemcore/pkg/domain"

type (
	Item          = domain.Item
	ItemSnapshot  = domain.ItemSnapshot
	Record        = domain.Record
	Actor         = domain.Actor
	Action        = domain.Action
	Capability    = domain.Capability
	CapabilitySet = domain.CapabilitySet
	Violation     = domain.Violation
	Warning       = domain.Warning
	WorkflowStage = domain.WorkflowStage
	AuditEntry    = domain.AuditEntry
	Clock         = domain.Clock
	ClockFunc     = domain.ClockFunc
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	FieldStage = domain.FieldStage
)

const (
	StageNone     = domain.StageNone
	StageBacklog  = domain.StageBacklog
	StageInReview = domain.StageInReview
	StageApproved = domain.StageApproved
	StageDone     = domain.StageDone
	StageBlocked  = domain.StageBlocked
)
