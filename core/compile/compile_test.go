package compile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/specweave/specweave/core/assemble"
	"github.com/specweave/specweave/core/document"
	"github.com/specweave/specweave/core/model"
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/core/proof"
	"github.com/specweave/specweave/core/store"
)

// testModel writes a model directory and loads it with the objects view
// handler registered.
func testModel(t *testing.T) *model.Registry {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "main")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"specifications.yaml": "types:\n  - id: document\n",
		"objects.yaml": `types:
  - id: section
  - id: requirement
    attributes:
      - name: status
        datatype: ENUM
        values: [Draft, Approved]
        min_occurs: 1
        max_occurs: 1
`,
		"floats.yaml": `types:
  - id: figure
  - id: diagram
    render_command: [sh, -c, "echo ran >> render.count; printf rendered"]
`,
		"relations.yaml": `types:
  - id: trace
rules:
  - selector: "@"
    relation_type: trace
`,
		"views.yaml": "types:\n  - id: objects\n    handler: view.objects\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	reg, err := model.Load(model.LoadConfig{ProjectDir: base, Models: []string{"main"}})
	if err != nil {
		t.Fatalf("model.Load: %v", err)
	}
	if err := reg.RegisterHandler(ObjectsView{}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	return reg
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func heading(line, level int, title string, attrs map[string]string) *document.Node {
	return &document.Node{
		Kind: document.KindHeading, Level: level,
		Pos:      document.Position{Line: line, Column: 1},
		Attrs:    attrs,
		Children: []*document.Node{{Kind: document.KindText, Text: title}},
	}
}

// testDocument builds the standard fixture: one specification, a section
// with a typed requirement under it, a body link, a float, and a view.
func testDocument(status string) *document.Document {
	return &document.Document{
		Root: &document.Node{
			Kind: document.KindDocument,
			Children: []*document.Node{
				heading(1, 1, "System", map[string]string{"pid": "DOC-001"}),
				heading(3, 2, "Requirements", map[string]string{"pid": "SEC-001"}),
				heading(5, 3, "Shall trace", map[string]string{
					"pid": "REQ-001", "type": "requirement", "status": status,
				}),
				{
					Kind: document.KindParagraph,
					Pos:  document.Position{Line: 7, Column: 1},
					Children: []*document.Node{
						{Kind: document.KindText, Text: "Traces to "},
						{Kind: document.KindLink, Target: "@SEC-001", Text: "the section",
							Pos: document.Position{Line: 7, Column: 11}},
					},
				},
				{
					Kind: document.KindFence, Info: "figure:fig:arch Overview",
					Text: "graph", Pos: document.Position{Line: 9, Column: 1},
				},
				{
					Kind: document.KindFence, Info: "view:objects(type=requirement)",
					Pos: document.Position{Line: 14, Column: 1},
				},
			},
		},
	}
}

// writeDoc serializes a document tree to disk so content hashing works.
func writeDoc(t *testing.T, dir, name string, doc *document.Document) *document.Document {
	t.Helper()
	doc.Path = filepath.Join(dir, name)
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	if err := os.WriteFile(doc.Path, data, 0644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return doc
}

func TestRunEndToEnd(t *testing.T) {
	reg := testModel(t)
	s := testStore(t)
	dir := t.TempDir()
	doc := writeDoc(t, dir, "system.doc.json", testDocument("Draft"))

	treePath := filepath.Join(dir, "system.json")
	reqifPath := filepath.Join(dir, "system.reqif")
	pc := pipeline.NewContext("", doc, "main")
	pc.BuildDir = dir
	pc.Outputs = []pipeline.OutputTarget{
		{Format: FormatTree, Path: treePath},
		{Format: FormatReqIF, Path: reqifPath},
	}

	c := New(Options{Store: s, Registry: reg})
	diags, err := c.Run(context.Background(), []*pipeline.Context{pc})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("diagnostics: %v", diags)
	}

	snap := pc.Snapshot
	if len(snap.Objects) != 2 {
		t.Fatalf("objects = %d, want 2", len(snap.Objects))
	}
	if snap.Spec.PID != "DOC-001" || snap.Spec.TypeRef != DefaultSpecificationType {
		t.Errorf("specification: %+v", snap.Spec)
	}
	section := snap.ObjectByPID("SEC-001")
	if section == nil || section.TypeRef != DefaultObjectType {
		t.Fatalf("section: %+v", section)
	}
	req := snap.ObjectByPID("REQ-001")
	if req == nil || req.ParentKey != section.Key {
		t.Fatalf("requirement not parented on section: %+v", req)
	}

	if len(snap.Relations) != 1 {
		t.Fatalf("relations = %d, want 1", len(snap.Relations))
	}
	rel := snap.Relations[0]
	if !rel.Resolved() || *rel.TargetRef != section.Key {
		t.Errorf("relation resolution: %+v", rel)
	}
	if !rel.Typed() || *rel.TypeRef != "trace" {
		t.Errorf("relation inference: %+v", rel)
	}

	if len(snap.Floats) != 1 || snap.Floats[0].Number != 1 || snap.Floats[0].Caption != "Overview" {
		t.Errorf("floats: %+v", snap.Floats)
	}
	if len(snap.Views) != 1 || snap.Views[0].ResolvedContent == nil {
		t.Fatalf("views: %+v", snap.Views)
	}

	tree, err := assemble.ReadJSON(treePath)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if tree.PID != "DOC-001" || len(tree.Nodes) != 1 || len(tree.Nodes[0].Children) != 1 {
		t.Errorf("tree artifact: %+v", tree)
	}
	if _, err := os.Stat(reqifPath); err != nil {
		t.Errorf("reqif artifact: %v", err)
	}
}

// TestRunErrorBlocksEmit feeds an enum value outside the declared set: the
// invalid-cast error must suppress every artifact, and downgrading the
// policy to ignore must let them through.
func TestRunErrorBlocksEmit(t *testing.T) {
	run := func(t *testing.T, policy proof.Policy) ([]proof.Diagnostic, string) {
		reg := testModel(t)
		s := testStore(t)
		dir := t.TempDir()
		doc := writeDoc(t, dir, "system.doc.json", testDocument("Pending"))

		treePath := filepath.Join(dir, "system.json")
		pc := pipeline.NewContext("", doc, "main")
		pc.BuildDir = dir
		pc.Outputs = []pipeline.OutputTarget{{Format: FormatTree, Path: treePath}}

		c := New(Options{Store: s, Registry: reg, Policy: policy})
		diags, err := c.Run(context.Background(), []*pipeline.Context{pc})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return diags, treePath
	}

	t.Run("error severity suppresses artifacts", func(t *testing.T) {
		diags, treePath := run(t, nil)
		if !proof.HasErrors(diags) {
			t.Fatalf("diagnostics: %v", diags)
		}
		if _, err := os.Stat(treePath); !os.IsNotExist(err) {
			t.Error("artifact written despite error diagnostics")
		}
	})

	t.Run("ignore policy lets artifacts through", func(t *testing.T) {
		diags, treePath := run(t, proof.Policy{"invalid-cast": proof.SeverityIgnore})
		if proof.HasErrors(diags) {
			t.Fatalf("diagnostics: %v", diags)
		}
		if _, err := os.Stat(treePath); err != nil {
			t.Errorf("artifact missing: %v", err)
		}
	})
}

// TestRunSecondPassIsClean reruns an unchanged document against the same
// store: the context must come back clean and current outputs must not be
// regenerated.
func TestRunSecondPassIsClean(t *testing.T) {
	reg := testModel(t)
	s := testStore(t)
	dir := t.TempDir()
	doc := writeDoc(t, dir, "system.doc.json", testDocument("Draft"))
	treePath := filepath.Join(dir, "system.json")

	runOnce := func() *pipeline.Context {
		pc := pipeline.NewContext("", doc, "main")
		pc.BuildDir = dir
		pc.Outputs = []pipeline.OutputTarget{{Format: FormatTree, Path: treePath}}
		diags, err := New(Options{Store: s, Registry: reg}).Run(context.Background(), []*pipeline.Context{pc})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(diags) != 0 {
			t.Fatalf("diagnostics: %v", diags)
		}
		return pc
	}

	first := runOnce()
	if !first.Dirty {
		t.Error("first pass over an uncached document must be dirty")
	}
	if _, err := os.Stat(treePath); err != nil {
		t.Fatalf("artifact missing after first pass: %v", err)
	}

	// Removing the artifact distinguishes a regeneration from a skip.
	if err := os.Remove(treePath); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}

	second := runOnce()
	if second.Dirty {
		t.Error("unchanged document reported dirty on the second pass")
	}
	if _, err := os.Stat(treePath); !os.IsNotExist(err) {
		t.Error("current output regenerated on the second pass")
	}
}

// TestRunRenderCacheSkipsUnchanged reruns a document with an external
// render task against the same store: the second pass must serve the
// resolved content from the render cache without spawning the tool again.
func TestRunRenderCacheSkipsUnchanged(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("render command uses sh")
	}
	reg := testModel(t)
	s := testStore(t)
	dir := t.TempDir()

	withDiagram := &document.Document{
		Root: &document.Node{
			Kind: document.KindDocument,
			Children: []*document.Node{
				heading(1, 1, "System", map[string]string{"pid": "DOC-001"}),
				heading(3, 2, "Flows", map[string]string{"pid": "SEC-001"}),
				{
					Kind: document.KindFence, Info: "diagram:fig:flow Flow",
					Text: "graph TD", Pos: document.Position{Line: 5, Column: 1},
				},
			},
		},
	}
	doc := writeDoc(t, dir, "system.doc.json", withDiagram)
	countPath := filepath.Join(dir, "render.count")

	runOnce := func() *pipeline.Context {
		pc := pipeline.NewContext("", doc, "main")
		pc.BuildDir = dir
		diags, err := New(Options{Store: s, Registry: reg}).Run(context.Background(), []*pipeline.Context{pc})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(diags) != 0 {
			t.Fatalf("diagnostics: %v", diags)
		}
		if len(pc.Snapshot.Floats) != 1 {
			t.Fatalf("floats: %+v", pc.Snapshot.Floats)
		}
		f := pc.Snapshot.Floats[0]
		if f.ResolvedContent == nil || *f.ResolvedContent != "rendered" {
			t.Fatalf("resolved content: %+v", f.ResolvedContent)
		}
		return pc
	}

	invocations := func() int {
		data, err := os.ReadFile(countPath)
		if err != nil {
			t.Fatalf("read invocation count: %v", err)
		}
		return strings.Count(string(data), "ran")
	}

	runOnce()
	if n := invocations(); n != 1 {
		t.Fatalf("first pass spawned the tool %d times, want 1", n)
	}

	runOnce()
	if n := invocations(); n != 1 {
		t.Errorf("second pass spawned the tool again (%d total invocations)", n)
	}
}

func TestRunGeneratesUniquePIDs(t *testing.T) {
	reg := testModel(t)
	s := testStore(t)
	dir := t.TempDir()

	// No pid attributes anywhere: every identifier is generated.
	bare := &document.Document{
		Root: &document.Node{
			Kind: document.KindDocument,
			Children: []*document.Node{
				heading(1, 1, "Doc", nil),
				heading(3, 2, "First", nil),
				heading(5, 2, "Second", nil),
			},
		},
	}
	doc := writeDoc(t, dir, "bare.doc.json", bare)
	pc := pipeline.NewContext("", doc, "main")
	pc.BuildDir = dir

	diags, err := New(Options{Store: s, Registry: reg}).Run(context.Background(), []*pipeline.Context{pc})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, d := range diags {
		if d.PolicyKey == "duplicate-pid" {
			t.Fatalf("generated PIDs collided: %v", diags)
		}
	}

	seen := map[string]bool{pc.Snapshot.Spec.PID: true}
	for _, o := range pc.Snapshot.Objects {
		if o.PID == "" || seen[o.PID] {
			t.Errorf("object PID %q empty or duplicated", o.PID)
		}
		seen[o.PID] = true
	}
}

func TestParseViewParam(t *testing.T) {
	cases := []struct {
		param   string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"type=requirement", "requirement", false},
		{" type=requirement ", "requirement", false},
		{"type=", "", true},
		{"order=pid", "", true},
	}
	for _, tc := range cases {
		got, err := parseViewParam(tc.param)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("parseViewParam(%q) = %q, %v", tc.param, got, err)
		}
	}
}
