package core

import (
	"fmt"

	"itemcore/pkg/domain"
)

// Decision is the outcome of a permission check. A denial is a value, not an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Err converts a denial into a PermissionDenied error; allowed decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return domain.PermissionDenied(d.Reason)
}

// PermissionGate decides whether an actor may perform an action on an item.
// It is pure: it performs no I/O and holds no state.
type PermissionGate struct{}

// Check evaluates the capability and ownership policy. For creates target is
// the item about to be stored; for updates and deletes it is the stored item.
func (PermissionGate) Check(actor Actor, action Action, target *Item) Decision {
	if actor.ID == "" {
		return deny("actor is not authenticated")
	}
	caps := actor.Capabilities
	if !caps.HasAny(domain.CapabilityWrite, domain.CapabilityAdmin) {
		return deny("actor %s lacks write capability", actor.ID)
	}
	admin := caps.Has(domain.CapabilityAdmin)
	switch action {
	case ActionCreate:
		if target != nil && target.CreatedBy != "" && target.CreatedBy != actor.ID && !admin {
			return deny("actor %s cannot create items on behalf of %s", actor.ID, target.CreatedBy)
		}
		return allow()
	case ActionUpdate, ActionDelete:
		if target == nil {
			return deny("%s requires a target item", action)
		}
		if target.CreatedBy != actor.ID && !admin {
			return deny("actor %s does not own item %s", actor.ID, target.ID)
		}
		return allow()
	default:
		return deny("unknown action %q", action)
	}
}

// CheckStageTransition applies the approval gate to an update from stored to
// next. The stored item's approvalRequired flag governs, so an update cannot
// lift the requirement and approve in one step. Entering the approved stage of
// a gated item, or clearing the flag, needs the admin or approver capability.
func (PermissionGate) CheckStageTransition(actor Actor, stored, next Item) Decision {
	approver := actor.Capabilities.HasAny(domain.CapabilityAdmin, domain.CapabilityApprover)
	if stored.ApprovalRequired && !next.ApprovalRequired && !approver {
		return deny("actor %s cannot lift the approval requirement of item %s", actor.ID, stored.ID)
	}
	gated := stored.ApprovalRequired || next.ApprovalRequired
	if stored.WorkflowStage == next.WorkflowStage || next.WorkflowStage != StageApproved || !gated {
		return allow()
	}
	if approver {
		return allow()
	}
	return deny("actor %s cannot approve item %s", actor.ID, stored.ID)
}
