package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"

	"itemcore/pkg/domain"
)

// Phase names a stage of the mutation pipeline.
type Phase string

// Pipeline phases in execution order. Cancellation is honoured at every
// boundary before PhasePersisting completes; later phases always run.
const (
	PhaseAuthorizing    Phase = "authorizing"
	PhasePreprocessing  Phase = "preprocessing"
	PhaseValidating     Phase = "validating"
	PhaseSnapshotting   Phase = "snapshotting"
	PhaseCleaningUp     Phase = "cleaning_up"
	PhasePersisting     Phase = "persisting"
	PhasePostprocessing Phase = "postprocessing"
	PhaseNotifying      Phase = "notifying"
	PhaseAuditing       Phase = "auditing"
	PhaseDone           Phase = "done"
)

type mutation struct {
	logger Logger
	action Action
	itemID string
	actor  string
	phase  Phase
}

func (s *Service) begin(action Action, itemID string, actor Actor) *mutation {
	return &mutation{logger: s.logger, action: action, itemID: itemID, actor: actor.ID}
}

func (m *mutation) enter(ctx context.Context, phase Phase) error {
	if err := ctx.Err(); err != nil {
		m.logger.Warn(EventStageFailed, m.attrs("phase", string(phase), "error", err)...)
		return err
	}
	m.enterCommitted(phase)
	return nil
}

func (m *mutation) enterCommitted(phase Phase) {
	m.phase = phase
	m.logger.Debug(EventStageEntered, m.attrs("phase", string(phase))...)
}

func (m *mutation) fail(err error) error {
	m.logger.Warn(EventStageFailed, m.attrs("phase", string(m.phase), "kind", string(domain.KindOf(err)), "error", err)...)
	return err
}

func (m *mutation) committed(version int64) {
	m.logger.Info(EventMutationCommitted, m.attrs("version", version)...)
}

func (m *mutation) done(warnings int) {
	m.phase = PhaseDone
	m.logger.Debug(EventStageEntered, m.attrs("phase", string(PhaseDone), "warnings", warnings)...)
}

func (m *mutation) attrs(kv ...any) []any {
	return append([]any{"action", string(m.action), "item_id", m.itemID, "actor_id", m.actor}, kv...)
}

// systemFieldViolations reports protected fields whose proposed value differs
// from base. Absent fields are left alone.
func systemFieldViolations(base, proposed Record, extra ...string) []Violation {
	var violations []Violation
	for _, field := range proposed.Fields() {
		if !domain.IsSystemField(field) && !contains(extra, field) {
			continue
		}
		if !sameValue(base[field], proposed[field]) {
			violations = append(violations, Violation{Field: field, Reason: "is immutable"})
		}
	}
	return violations
}

// diffRecords returns the mutable fields of proposed that differ from base.
// Fields dropped from proposed are cleared.
func diffRecords(base, proposed Record) Record {
	delta := Record{}
	for field, value := range proposed {
		if protectedField(field) {
			continue
		}
		if prev, ok := base[field]; !ok || !sameValue(prev, value) {
			delta[field] = value
		}
	}
	for field := range base {
		if protectedField(field) {
			continue
		}
		if _, ok := proposed[field]; !ok {
			delta[field] = nil
		}
	}
	return delta
}

func protectedField(field string) bool {
	return domain.IsSystemField(field) || field == domain.FieldCreatedBy
}

func sameValue(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}

func stringField(rec Record, field string) string {
	s, _ := rec[field].(string)
	return s
}

func dependentIDs(item Item) []string {
	return uniqueStrings(append(append([]string(nil), item.LinkedItems...), item.Dependencies...))
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func stepName(err error) string {
	var e *domain.Error
	if errors.As(err, &e) && e.Step != "" {
		return e.Step
	}
	return "post_processor"
}

type errorString string

func (e errorString) Error() string { return string(e) }
