package core

import (
	"fmt"
	"reflect"
	"strings"

	"itemcore/pkg/domain"
)

// ConflictStrategy selects how a stale expected version is handled.
type ConflictStrategy string

// Supported strategies. The zero value behaves as StrategyFail.
const (
	StrategyFail          ConflictStrategy = "fail"
	StrategyLastWriteWins ConflictStrategy = "lastWriteWins"
	StrategyMerge         ConflictStrategy = "merge"
)

// MergeFunc reconciles one field changed both by the caller and by a
// concurrent writer. It returns ok=false when the field cannot be merged.
type MergeFunc func(field string, base, latest, incoming any) (any, bool)

// ConflictInput describes a pending update against the freshly read store state.
type ConflictInput struct {
	ItemID   string
	Strategy ConflictStrategy
	Expected int64
	Stored   int64
	// Base is the item as of Expected, Latest as of Stored.
	Base     Record
	Latest   Record
	Incoming Record
	Merge    MergeFunc
}

// ConflictDecision tells the pipeline whether and how to write.
type ConflictDecision struct {
	Proceed bool
	// Condition is the version the compare-and-swap write is conditioned on.
	Condition  int64
	NewVersion int64
	Changes    Record
	Err        error
}

// ConflictResolver applies the configured strategy to a version comparison.
type ConflictResolver struct{}

// Resolve decides the write for in. Matching versions always proceed.
func (ConflictResolver) Resolve(in ConflictInput) ConflictDecision {
	proceed := ConflictDecision{
		Proceed:    true,
		Condition:  in.Stored,
		NewVersion: in.Stored + 1,
		Changes:    in.Incoming.Clone(),
	}
	if in.Expected == in.Stored {
		return proceed
	}
	switch in.Strategy {
	case StrategyLastWriteWins:
		return proceed
	case StrategyMerge:
		merged, unresolved := mergeChanges(in)
		if len(unresolved) > 0 {
			err := domain.VersionMismatch(in.ItemID, in.Expected, in.Stored)
			err.Message = fmt.Sprintf("unresolved merge conflicts on fields: %s", strings.Join(unresolved, ", "))
			for _, field := range unresolved {
				err.Violations = append(err.Violations, Violation{Field: field, Reason: "concurrently modified"})
			}
			return ConflictDecision{Err: err}
		}
		proceed.Changes = merged
		return proceed
	default:
		return ConflictDecision{Err: domain.VersionMismatch(in.ItemID, in.Expected, in.Stored)}
	}
}

func mergeChanges(in ConflictInput) (Record, []string) {
	merged := in.Incoming.Clone()
	if merged == nil {
		merged = Record{}
	}
	var unresolved []string
	for _, field := range in.Incoming.Fields() {
		base, latest := in.Base[field], in.Latest[field]
		if reflect.DeepEqual(base, latest) {
			continue
		}
		if in.Merge == nil {
			unresolved = append(unresolved, field)
			continue
		}
		value, ok := in.Merge(field, base, latest, in.Incoming[field])
		if !ok {
			unresolved = append(unresolved, field)
			continue
		}
		merged[field] = value
	}
	return merged, unresolved
}
