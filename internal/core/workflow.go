package core

import "fmt"

type stageMachine struct {
	terminal map[WorkflowStage]struct{}
	valid    map[WorkflowStage]struct{}
	edges    map[WorkflowStage]map[WorkflowStage]struct{}
}

var itemWorkflow = newStageMachine(
	[]WorkflowStage{StageDone},
	map[WorkflowStage][]WorkflowStage{
		StageNone:     {StageBacklog, StageInReview, StageBlocked},
		StageBacklog:  {StageInReview, StageBlocked},
		StageInReview: {StageApproved, StageBacklog, StageBlocked},
		StageApproved: {StageDone, StageBlocked},
		StageBlocked:  {StageBacklog, StageInReview},
		StageDone:     nil,
	},
)

func newStageMachine(terminal []WorkflowStage, edges map[WorkflowStage][]WorkflowStage) stageMachine {
	m := stageMachine{
		terminal: toSet(terminal...),
		valid:    make(map[WorkflowStage]struct{}, len(edges)),
		edges:    make(map[WorkflowStage]map[WorkflowStage]struct{}, len(edges)),
	}
	for from, targets := range edges {
		if from != StageNone {
			m.valid[from] = struct{}{}
		}
		m.edges[from] = toSet(targets...)
	}
	return m
}

// ValidStage reports whether the stage is a known workflow stage.
func ValidStage(stage WorkflowStage) bool {
	_, ok := itemWorkflow.valid[stage]
	return ok
}

// TerminalStage reports whether no transition leaves the stage.
func TerminalStage(stage WorkflowStage) bool {
	_, ok := itemWorkflow.terminal[stage]
	return ok
}

// CheckTransition validates a workflow move. Staying in the same stage is a
// no-op and always allowed. Failures are reported on the workflowStage field.
func CheckTransition(from, to WorkflowStage) []Violation {
	if from == to {
		return nil
	}
	if _, ok := itemWorkflow.valid[to]; !ok {
		return []Violation{{Field: FieldStage, Reason: fmt.Sprintf("invalid stage %q", to)}}
	}
	if TerminalStage(from) {
		return []Violation{{Field: FieldStage, Reason: fmt.Sprintf("cannot leave terminal stage %s", from)}}
	}
	if _, ok := itemWorkflow.edges[from][to]; !ok {
		label := string(from)
		if from == StageNone {
			label = "none"
		}
		return []Violation{{Field: FieldStage, Reason: fmt.Sprintf("transition %s -> %s is not allowed", label, to)}}
	}
	return nil
}

func toSet[T comparable](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
