package core

import (
	"context"
	"errors"
	"testing"

	"itemcore/pkg/domain"
)

func TestProcessorChainAppliesStepsInOrder(t *testing.T) {
	appendStep := func(name string) Step {
		return Step{Name: name, Transform: func(rec Record, _ map[string]any) (Record, error) {
			trail, _ := rec["trail"].(string)
			rec["trail"] = trail + name
			return rec, nil
		}}
	}
	in := Record{"trail": ""}
	out, err := ProcessorChain{}.Apply(context.Background(), in, []Step{appendStep("a"), appendStep("b"), appendStep("c")})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["trail"] != "abc" {
		t.Fatalf("unexpected trail %v", out["trail"])
	}
	if in["trail"] != "" {
		t.Fatalf("input must not be mutated: %+v", in)
	}
}

func TestProcessorChainFailures(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		step Step
		want string
	}{
		{"error", Step{Name: "fails", Transform: func(Record, map[string]any) (Record, error) { return nil, errors.New("nope") }}, "fails"},
		{"panic", Step{Name: "panics", Transform: func(Record, map[string]any) (Record, error) { panic("boom") }}, "panics"},
		{"missing transform", Step{Name: "empty"}, "empty"},
		{"unnamed", Step{Transform: func(Record, map[string]any) (Record, error) { return nil, errors.New("x") }}, "step[1]"},
	}
	noop := Step{Name: "noop", Transform: func(rec Record, _ map[string]any) (Record, error) { return rec, nil }}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ProcessorChain{}.Apply(ctx, Record{"name": "x"}, []Step{noop, tc.step})
			if domain.KindOf(err) != domain.KindProcessor {
				t.Fatalf("expected processor failure, got %v", err)
			}
			var e *domain.Error
			if !errors.As(err, &e) || e.Step != tc.want {
				t.Fatalf("expected step %q, got %+v", tc.want, err)
			}
		})
	}
}

func TestProcessorChainStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ProcessorChain{}.Apply(ctx, Record{}, []Step{TrimStrings()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestBuiltinSteps(t *testing.T) {
	ctx := context.Background()
	templates := map[string]map[string]any{"bug": {"severity": "minor", "component": "core"}}
	in := Record{
		"name":         "  Crash  ",
		"tags":         []any{" UI ", "ui", ""},
		"templateId":   "bug",
		"customFields": map[string]any{"severity": "major"},
	}
	out, err := ProcessorChain{}.Apply(ctx, in, []Step{
		TrimStrings(),
		NormalizeTags(),
		SetDefault("status", "open"),
		SetDefault("name", "unused"),
		ApplyTemplate(templates),
		StampMetadata("source", "import"),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["name"] != "Crash" || out["status"] != "open" {
		t.Fatalf("unexpected scalar fields: %+v", out)
	}
	tags, _ := out["tags"].([]string)
	if len(tags) != 1 || tags[0] != "ui" {
		t.Fatalf("unexpected tags %v", out["tags"])
	}
	custom, _ := out["customFields"].(map[string]any)
	if custom["severity"] != "major" || custom["component"] != "core" {
		t.Fatalf("unexpected custom fields %v", custom)
	}
	meta, _ := out["metadata"].(map[string]any)
	if meta["source"] != "import" {
		t.Fatalf("unexpected metadata %v", meta)
	}
}

func TestNormalizeTagsRejectsNonList(t *testing.T) {
	_, err := ProcessorChain{}.Apply(context.Background(), Record{"tags": map[string]any{"a": 1}}, []Step{NormalizeTags()})
	if domain.KindOf(err) != domain.KindProcessor {
		t.Fatalf("expected processor failure, got %v", err)
	}
}
