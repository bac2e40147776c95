package definition

import (
	"testing"

	"github.com/stagegate/stagegate/model"
)

func TestLoadFile(t *testing.T) {
	l := NewLoader()
	def, err := l.LoadFile("testdata/approvals.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if def.Domain != "approvals" {
		t.Errorf("Domain = %q, want approvals", def.Domain)
	}
	if def.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", def.Version)
	}
	if def.Checksum == "" {
		t.Error("Checksum not computed")
	}
	if def.SourceFile != "testdata/approvals.yaml" {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}

	if len(def.Flows) != 1 {
		t.Fatalf("Flows count = %d, want 1", len(def.Flows))
	}
	f := def.Flows[0]
	if f.ID != "purchase" {
		t.Errorf("Flows[0].ID = %q, want purchase", f.ID)
	}
	if len(f.Stages) != 4 {
		t.Fatalf("Stages count = %d, want 4", len(f.Stages))
	}
	if f.Stages[0].Status != model.StatusInProcess {
		t.Errorf("Stages[0].Status = %q", f.Stages[0].Status)
	}
	first := f.Stages[0].Transitions
	if len(first) != 3 {
		t.Fatalf("Stages[0].Transitions count = %d, want 3", len(first))
	}
	if first[0].TargetStageID != "finance-review" {
		t.Errorf("Transitions[0].TargetStageID = %q", first[0].TargetStageID)
	}
	if len(first[0].Conditions) != 1 || first[0].Conditions[0] != "high-value" {
		t.Errorf("Transitions[0].Conditions = %v", first[0].Conditions)
	}

	if len(def.ConditionGroups) != 2 {
		t.Fatalf("ConditionGroups count = %d, want 2", len(def.ConditionGroups))
	}
	g := def.ConditionGroups[0]
	if g.ID != "high-value" || g.Operator != model.GroupAnd {
		t.Errorf("ConditionGroups[0] = {%q %q}", g.ID, g.Operator)
	}
	if len(g.Conditions) != 1 || g.Conditions[0].Operator != model.OpGreaterThan {
		t.Errorf("ConditionGroups[0].Conditions = %v", g.Conditions)
	}
}

func TestLoadFile_missing(t *testing.T) {
	l := NewLoader()
	if _, err := l.LoadFile("testdata/does-not-exist.yaml"); err == nil {
		t.Error("LoadFile on missing file returned nil error")
	}
}

func TestLoadAll(t *testing.T) {
	l := NewLoader()
	defs, err := l.LoadAll([]string{"testdata"})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(defs) == 0 {
		t.Fatal("LoadAll returned no definitions")
	}
	found := false
	for _, d := range defs {
		if d.Domain == "approvals" {
			found = true
		}
	}
	if !found {
		t.Error("approvals domain not loaded")
	}
}

func TestLoadAll_missing_dir(t *testing.T) {
	l := NewLoader()
	if _, err := l.LoadAll([]string{"testdata/missing-dir"}); err == nil {
		t.Error("LoadAll on missing directory returned nil error")
	}
}
