package core

import (
	"context"
	"fmt"

	"itemcore/pkg/domain"
)

// TransformFunc rewrites a working record. It must not retain or mutate
// anything outside the record it is handed.
type TransformFunc func(rec Record, options map[string]any) (Record, error)

// Step is a named, configured transformation in a processor chain.
type Step struct {
	Name      string
	Options   map[string]any
	Transform TransformFunc
}

// ProcessorChain runs steps in order over a private working copy.
type ProcessorChain struct{}

// Apply runs every step against a clone of working. The first failing or
// panicking step aborts the chain with a ProcessorFailure naming it and the
// partially transformed copy is discarded.
func (ProcessorChain) Apply(ctx context.Context, working Record, steps []Step) (Record, error) {
	current := working.Clone()
	if current == nil {
		current = Record{}
	}
	for i, step := range steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step[%d]", i)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if step.Transform == nil {
			return nil, domain.ProcessorFailure(name, fmt.Errorf("no transform configured"))
		}
		next, err := runStep(step, current)
		if err != nil {
			return nil, domain.ProcessorFailure(name, err)
		}
		if next == nil {
			next = Record{}
		}
		current = next
	}
	return current, nil
}

func runStep(step Step, rec Record) (out Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Transform(rec.Clone(), step.Options)
}
