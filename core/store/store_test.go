package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.EnsureSchema(); err != nil {
			t.Fatalf("EnsureSchema run %d: %v", i+1, err)
		}
	}
}

// specFixture builds a two-level specification with attributes, a float,
// a relation, and a view.
func specFixture() *ir.Specification {
	spec := &ir.Specification{TypeRef: "document", Title: "Spec", PID: "DOC-001", Path: "a.md"}
	spec.Attributes = append(spec.Attributes, &ir.AttributeValue{
		OwnerKind: ir.OwnerSpecification, OwnerKey: "DOC-001",
		Name: "revision", RawValue: "3", Datatype: ir.DatatypeInteger,
	})

	parent := &ir.Object{Key: "obj-p", TypeRef: "section", Title: "Parent", PID: "SEC-001", Level: 2, Line: 3}
	child := &ir.Object{Key: "obj-c", ParentKey: "obj-p", TypeRef: "requirement", Title: "Child", PID: "REQ-001", Level: 3, Line: 8}
	parent.Children = append(parent.Children, child)

	status := &ir.AttributeValue{
		OwnerKind: ir.OwnerObject, OwnerKey: "obj-c",
		Name: "status", RawValue: "Draft", Datatype: ir.DatatypeEnum,
	}
	ir.Cast(status, []string{"Draft", "Approved"})
	child.Attributes = append(child.Attributes, status)
	child.Floats = append(child.Floats, &ir.Float{
		Key: "flt-1", ParentObjectKey: "obj-c", TypeRef: "figure", Label: "fig:x", RawContent: "graph", Line: 10,
	})
	child.Relations = append(child.Relations, &ir.Relation{
		SourceObjectKey: "obj-c", TargetText: "SEC-001", Selector: "@",
		SourceAttribute: ir.RelationSourceBody, Line: 9,
	})
	child.Views = append(child.Views, &ir.View{
		ParentObjectKey: "obj-c", ViewTypeRef: "objects", RawParam: "type=requirement", Line: 12,
	})

	spec.Objects = append(spec.Objects, parent)
	return spec
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	s := openTestStore(t)
	spec := specFixture()

	if err := s.SaveSpecification(spec); err != nil {
		t.Fatalf("SaveSpecification: %v", err)
	}
	if spec.ID == 0 {
		t.Fatal("specification row id not written back")
	}
	if spec.Objects[0].ID == 0 || spec.Objects[0].Children[0].ID == 0 {
		t.Fatal("object row ids not written back")
	}

	snap, err := s.LoadSnapshot(spec.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if snap.Spec.PID != "DOC-001" || snap.Spec.Path != "a.md" {
		t.Errorf("specification round trip: %+v", snap.Spec)
	}
	if len(snap.Objects) != 2 {
		t.Fatalf("objects = %d, want 2", len(snap.Objects))
	}
	// Tree rebuilt from parent keys.
	if len(snap.Spec.Objects) != 1 || len(snap.Spec.Objects[0].Children) != 1 {
		t.Error("object tree not rebuilt from parent keys")
	}
	child := snap.ObjectByKey("obj-c")
	if child == nil {
		t.Fatal("child missing from snapshot")
	}
	if len(child.Floats) != 1 || len(child.Relations) != 1 || len(child.Views) != 1 || len(child.Attributes) != 1 {
		t.Errorf("child decorations: floats=%d relations=%d views=%d attrs=%d",
			len(child.Floats), len(child.Relations), len(child.Views), len(child.Attributes))
	}
	if len(snap.Spec.Attributes) != 1 || snap.Spec.Attributes[0].Name != "revision" {
		t.Errorf("specification attributes: %+v", snap.Spec.Attributes)
	}
}

func TestSaveReplacesPriorRows(t *testing.T) {
	s := openTestStore(t)
	spec := specFixture()
	if err := s.SaveSpecification(spec); err != nil {
		t.Fatalf("first save: %v", err)
	}

	again := specFixture()
	if err := s.SaveSpecification(again); err != nil {
		t.Fatalf("second save: %v", err)
	}

	ids, err := s.SpecIDs()
	if err != nil {
		t.Fatalf("SpecIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("specifications for one path = %d, want 1", len(ids))
	}
}

func TestUpdateRelationsPersists(t *testing.T) {
	s := openTestStore(t)
	spec := specFixture()
	if err := s.SaveSpecification(spec); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := s.LoadSnapshot(spec.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	target, typeRef := "obj-p", "trace"
	rel := snap.Relations[0]
	rel.TargetRef = &target
	rel.TypeRef = &typeRef
	rel.IsAmbiguous = true
	if err := s.UpdateRelations(snap.Relations); err != nil {
		t.Fatalf("UpdateRelations: %v", err)
	}

	reloaded, err := s.LoadSnapshot(spec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Relations[0]
	if !got.Resolved() || *got.TargetRef != "obj-p" {
		t.Errorf("TargetRef = %v", got.TargetRef)
	}
	if !got.Typed() || *got.TypeRef != "trace" {
		t.Errorf("TypeRef = %v", got.TypeRef)
	}
	if !got.IsAmbiguous {
		t.Error("ambiguity flag lost")
	}
}

func TestUpdateFloatsAndViews(t *testing.T) {
	s := openTestStore(t)
	spec := specFixture()
	if err := s.SaveSpecification(spec); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := s.LoadSnapshot(spec.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	content := "<svg/>"
	snap.Floats[0].Number = 1
	snap.Floats[0].ResolvedContent = &content
	snap.Views[0].ResolvedContent = &content
	if err := s.UpdateFloats(snap.Floats); err != nil {
		t.Fatalf("UpdateFloats: %v", err)
	}
	if err := s.UpdateViews(snap.Views); err != nil {
		t.Fatalf("UpdateViews: %v", err)
	}

	reloaded, err := s.LoadSnapshot(spec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Floats[0].Number != 1 || reloaded.Floats[0].ResolvedContent == nil {
		t.Errorf("float round trip: %+v", reloaded.Floats[0])
	}
	if reloaded.Views[0].ResolvedContent == nil || *reloaded.Views[0].ResolvedContent != "<svg/>" {
		t.Errorf("view round trip: %+v", reloaded.Views[0])
	}
}

func TestRebuildPivotViews(t *testing.T) {
	s := openTestStore(t)
	spec := specFixture()
	if err := s.SaveSpecification(spec); err != nil {
		t.Fatalf("save: %v", err)
	}

	reg := pivotRegistry(t)
	if err := s.RebuildPivotViews(reg, "main"); err != nil {
		t.Fatalf("RebuildPivotViews: %v", err)
	}
	// Rebuilding is idempotent.
	if err := s.RebuildPivotViews(reg, "main"); err != nil {
		t.Fatalf("second RebuildPivotViews: %v", err)
	}

	rows, err := s.DB().Query(`SELECT pid, status FROM pivot_requirement`)
	if err != nil {
		t.Fatalf("query pivot view: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var pid string
		var status *string
		if err := rows.Scan(&pid, &status); err != nil {
			t.Fatalf("scan: %v", err)
		}
		count++
		if pid != "REQ-001" {
			t.Errorf("pivot pid = %q", pid)
		}
		if status == nil || *status != "Draft" {
			t.Errorf("pivot status = %v, want Draft", status)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if count != 1 {
		t.Errorf("pivot rows = %d, want 1", count)
	}
}

// pivotRegistry loads a registry declaring the requirement type with a
// status attribute.
func pivotRegistry(t *testing.T) *model.Registry {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "main")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	objects := `types:
  - id: requirement
    attributes:
      - name: status
        datatype: ENUM
        values: [Draft, Approved]
`
	if err := os.WriteFile(filepath.Join(dir, "objects.yaml"), []byte(objects), 0644); err != nil {
		t.Fatalf("write objects.yaml: %v", err)
	}
	reg, err := model.Load(model.LoadConfig{ProjectDir: base, Models: []string{"main"}})
	if err != nil {
		t.Fatalf("model.Load: %v", err)
	}
	return reg
}

func TestCacheTables(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.FileHash("a.md"); err != nil || ok {
		t.Fatalf("FileHash on empty table: ok=%v err=%v", ok, err)
	}
	if err := s.SetFileHash("a.md", "h1"); err != nil {
		t.Fatalf("SetFileHash: %v", err)
	}
	if err := s.SetFileHash("a.md", "h2"); err != nil {
		t.Fatalf("SetFileHash upsert: %v", err)
	}
	if h, ok, err := s.FileHash("a.md"); err != nil || !ok || h != "h2" {
		t.Errorf("FileHash = %q ok=%v err=%v, want h2", h, ok, err)
	}

	if err := s.SetIncludes("a.md", []string{"inc/b.md", "inc/a.md"}); err != nil {
		t.Fatalf("SetIncludes: %v", err)
	}
	incs, err := s.Includes("a.md")
	if err != nil {
		t.Fatalf("Includes: %v", err)
	}
	if len(incs) != 2 || incs[0] != "inc/a.md" {
		t.Errorf("Includes = %v, want sorted pair", incs)
	}
	// Replacement semantics.
	if err := s.SetIncludes("a.md", []string{"inc/c.md"}); err != nil {
		t.Fatalf("SetIncludes replace: %v", err)
	}
	if incs, _ := s.Includes("a.md"); len(incs) != 1 || incs[0] != "inc/c.md" {
		t.Errorf("Includes after replace = %v", incs)
	}

	if err := s.SetOutputHash("DOC-001", "out/a.json", "p1"); err != nil {
		t.Fatalf("SetOutputHash: %v", err)
	}
	if h, ok, err := s.OutputHash("DOC-001", "out/a.json"); err != nil || !ok || h != "p1" {
		t.Errorf("OutputHash = %q ok=%v err=%v", h, ok, err)
	}
}

func TestRenderCacheTable(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.RenderContent("flt-1", "h1"); err != nil || ok {
		t.Fatalf("uncached render: ok=%v err=%v", ok, err)
	}
	if err := s.SetRenderContent("flt-1", "h1", "<svg/>"); err != nil {
		t.Fatalf("SetRenderContent: %v", err)
	}
	if c, ok, err := s.RenderContent("flt-1", "h1"); err != nil || !ok || c != "<svg/>" {
		t.Errorf("RenderContent = %q ok=%v err=%v", c, ok, err)
	}
	// A changed input hash invalidates the cached output.
	if _, ok, _ := s.RenderContent("flt-1", "h2"); ok {
		t.Error("stale input hash returned cached content")
	}
	// Upsert replaces both hash and content.
	if err := s.SetRenderContent("flt-1", "h2", "<svg v2/>"); err != nil {
		t.Fatalf("SetRenderContent upsert: %v", err)
	}
	if c, ok, _ := s.RenderContent("flt-1", "h2"); !ok || c != "<svg v2/>" {
		t.Errorf("RenderContent after upsert = %q ok=%v", c, ok)
	}
}

// TestOpenMemorySingleConnection pins the in-memory store to one pooled
// connection: a second connection to ":memory:" would open a separate
// empty database and lose the schema.
func TestOpenMemorySingleConnection(t *testing.T) {
	s := openTestStore(t)
	if got := s.DB().Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			_, _, err := s.FileHash("a.md")
			done <- err
		}(i)
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent read: %v", err)
		}
	}
}
