package ir

import (
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	a := ObjectKey("specs/alpha.md", 12, "Overview")
	b := ObjectKey("specs/alpha.md", 12, "Overview")
	if a != b {
		t.Errorf("identical inputs produced different keys: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "obj-") {
		t.Errorf("key %q lacks obj- prefix", a)
	}

	// Any component change changes the key.
	for _, other := range []string{
		ObjectKey("specs/beta.md", 12, "Overview"),
		ObjectKey("specs/alpha.md", 13, "Overview"),
		ObjectKey("specs/alpha.md", 12, "Overview2"),
	} {
		if other == a {
			t.Errorf("distinct inputs collided on key %q", a)
		}
	}

	// Separator prevents boundary ambiguity between components.
	if ObjectKey("a", 1, "2b") == ObjectKey("a", 12, "b") {
		t.Error("component boundary ambiguity in key derivation")
	}
}

func TestGeneratePID(t *testing.T) {
	tests := []struct {
		typeRef string
		seq     int
		want    string
	}{
		{"hlr", 1, "HLR-001"},
		{"hlr", 42, "HLR-042"},
		{"section", 7, "SECTION-007"},
		{"req", 1000, "REQ-1000"},
	}
	for _, tt := range tests {
		if got := GeneratePID(tt.typeRef, tt.seq); got != tt.want {
			t.Errorf("GeneratePID(%q, %d) = %q, want %q", tt.typeRef, tt.seq, got, tt.want)
		}
	}
}

func TestNewSnapshotOrder(t *testing.T) {
	spec := &Specification{TypeRef: "document", PID: "DOC-001", Path: "a.md"}
	parent := &Object{Key: "obj-p", PID: "SEC-001", Title: "Parent", Level: 2}
	child := &Object{Key: "obj-c", ParentKey: "obj-p", PID: "SEC-002", Title: "Child", Level: 3}
	parent.Children = append(parent.Children, child)
	parent.Floats = append(parent.Floats, &Float{Key: "flt-1", ParentObjectKey: "obj-p", TypeRef: "figure"})
	child.Relations = append(child.Relations, &Relation{SourceObjectKey: "obj-c", Selector: "@", TargetText: "SEC-001"})
	spec.Objects = append(spec.Objects, parent)

	snap := NewSnapshot(spec)
	if len(snap.Objects) != 2 || snap.Objects[0] != parent || snap.Objects[1] != child {
		t.Fatalf("objects not in document order: %+v", snap.Objects)
	}
	if snap.ObjectByKey("obj-c") != child {
		t.Error("ObjectByKey missed child")
	}
	if snap.ObjectByPID("SEC-001") != parent {
		t.Error("ObjectByPID missed parent")
	}
	if got := snap.FloatsOf("obj-p"); len(got) != 1 || got[0].Key != "flt-1" {
		t.Errorf("FloatsOf(obj-p) = %+v", got)
	}
	if len(snap.Relations) != 1 {
		t.Errorf("relations = %d, want 1", len(snap.Relations))
	}
}
