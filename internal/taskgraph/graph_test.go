package taskgraph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/role"
)

func stepIDs(steps []Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.Role.ID
	}
	return ids
}

func TestBuild_Modes(t *testing.T) {
	tests := []struct {
		mode   analysis.Mode
		steps  []string
		layers [][]string
	}{
		{
			mode:   analysis.ModeMedicalOnly,
			steps:  []string{role.Verifier, role.Medical},
			layers: [][]string{{role.Verifier}, {role.Medical}},
		},
		{
			mode:   analysis.ModeComprehensive,
			steps:  []string{role.Verifier, role.Medical, role.Nutrition, role.Exercise},
			layers: [][]string{{role.Verifier}, {role.Medical}, {role.Nutrition, role.Exercise}},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			g, err := Build(tt.mode)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := stepIDs(g.Steps()); !reflect.DeepEqual(got, tt.steps) {
				t.Errorf("Steps() = %v, want %v", got, tt.steps)
			}
			var layers [][]string
			for _, l := range g.Layers() {
				layers = append(layers, stepIDs(l))
			}
			if !reflect.DeepEqual(layers, tt.layers) {
				t.Errorf("Layers() = %v, want %v", layers, tt.layers)
			}
			if g.Len() != len(tt.steps) {
				t.Errorf("Len() = %d, want %d", g.Len(), len(tt.steps))
			}
		})
	}
}

func TestBuild_UnknownMode(t *testing.T) {
	_, err := Build("cardiology")
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v, want ErrUnknownMode", err)
	}
}

func TestDependsOn(t *testing.T) {
	g, err := Build(analysis.ModeComprehensive)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := g.DependsOn(role.Exercise); !reflect.DeepEqual(got, []string{role.Medical}) {
		t.Errorf("DependsOn(exercise) = %v", got)
	}
	if got := g.DependsOn(role.Verifier); len(got) != 0 {
		t.Errorf("DependsOn(verifier) = %v, want none", got)
	}
}

func TestEveryModeContainsPrimary(t *testing.T) {
	for _, m := range analysis.Modes() {
		g, err := Build(m)
		if err != nil {
			t.Fatalf("Build(%s): %v", m, err)
		}
		found := false
		for _, s := range g.Steps() {
			if s.Role.Primary {
				found = true
			}
		}
		if !found {
			t.Errorf("mode %s has no primary role", m)
		}
	}
}

func TestBuild_Cycle(t *testing.T) {
	_, err := build([]stepSpec{
		{id: role.Verifier, deps: []string{role.Medical}},
		{id: role.Medical, deps: []string{role.Verifier}},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := build([]stepSpec{{id: role.Medical, deps: []string{"triage"}}})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuild_UnknownRole(t *testing.T) {
	_, err := build([]stepSpec{{id: "triage"}})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}
