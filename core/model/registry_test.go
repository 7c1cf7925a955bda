package model

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specweave/specweave/core/errors"
)

// writeModel lays out one model directory under base.
func writeModel(t *testing.T, base, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}
}

const objectsYAML = `types:
  - id: base
    attributes:
      - name: status
        datatype: ENUM
        values: [Draft, Approved]
        min_occurs: 1
        max_occurs: 1
      - name: owner
        datatype: STRING
  - id: requirement
    long_name: Requirement
    extends: base
    attributes:
      - name: priority
        datatype: INTEGER
        min_value: 1
        max_value: 5
      - name: owner
        datatype: STRING
        min_occurs: 1
  - id: dupattr
    attributes:
      - name: twice
        datatype: STRING
      - name: twice
        datatype: INTEGER
aliases:
  req: requirement
`

const floatsYAML = `types:
  - id: figure
    handler: render.fig
  - id: listing
    counter_group: code
`

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	base := t.TempDir()
	writeModel(t, base, "main", map[string]string{
		"objects.yaml": objectsYAML,
		"floats.yaml":  floatsYAML,
	})
	writeModel(t, base, "extra", map[string]string{
		"objects.yaml": "types:\n  - id: note\n",
	})

	reg, err := Load(LoadConfig{
		ProjectDir:   base,
		Models:       []string{"main", "extra"},
		DefaultModel: "main",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return reg
}

func TestResolveAliasesAndFallback(t *testing.T) {
	reg := loadTestRegistry(t)

	if td := reg.Resolve("main", CategoryObject, "req"); td == nil || td.ID != "requirement" {
		t.Errorf("alias req did not resolve to requirement: %+v", td)
	}
	// A miss in "extra" falls back to the default model.
	if td := reg.Resolve("extra", CategoryObject, "requirement"); td == nil || td.ID != "requirement" {
		t.Error("type lookup did not fall back to the default model")
	}
	if td := reg.Resolve("main", CategoryObject, "missing"); td != nil {
		t.Errorf("unexpected resolution for unknown type: %+v", td)
	}
}

func TestAttributeMerge(t *testing.T) {
	reg := loadTestRegistry(t)

	attrs := reg.ResolveAttributes("main", CategoryObject, "requirement")
	var names []string
	byName := map[string]*AttributeDefinition{}
	for _, a := range attrs {
		names = append(names, a.Name)
		byName[a.Name] = a
	}

	// Inherited attributes come first, in the parent's order; the
	// re-declared owner keeps its inherited position but the derived
	// definition wins.
	want := []string{"status", "owner", "priority"}
	if len(names) != len(want) {
		t.Fatalf("merged attributes = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("merged attributes = %v, want %v", names, want)
		}
	}
	if byName["owner"].MinOccurs != 1 || byName["owner"].OwnerTypeRef != "requirement" {
		t.Errorf("derived owner did not shadow inherited: %+v", byName["owner"])
	}
	if byName["status"].OwnerTypeRef != "base" {
		t.Errorf("inherited status lost its owner: %+v", byName["status"])
	}
}

func TestDuplicateAttributeSurvivesLoad(t *testing.T) {
	reg := loadTestRegistry(t)

	// The merged schema keeps the first declaration; the raw declared
	// list keeps both for the proofs.
	merged := reg.ResolveAttributes("main", CategoryObject, "dupattr")
	if len(merged) != 1 || merged[0].Datatype != "STRING" {
		t.Errorf("merged schema = %+v, want single STRING twice", merged)
	}
	declared := reg.DeclaredAttributes("main", CategoryObject, "dupattr")
	if len(declared) != 2 {
		t.Errorf("declared attributes = %d, want 2 (duplicates kept)", len(declared))
	}
}

func TestCategoryDefaults(t *testing.T) {
	reg := loadTestRegistry(t)

	fig := reg.Resolve("main", CategoryFloat, "figure")
	if fig == nil || fig.CounterGroup != "figure" {
		t.Errorf("figure counter group = %+v, want default to id", fig)
	}
	if fig.LongName != "figure" {
		t.Errorf("figure long name = %q, want default to id", fig.LongName)
	}
	listing := reg.Resolve("main", CategoryFloat, "listing")
	if listing == nil || listing.CounterGroup != "code" {
		t.Errorf("explicit counter group not kept: %+v", listing)
	}
}

func TestMissingModelIsFatal(t *testing.T) {
	base := t.TempDir()
	_, err := Load(LoadConfig{
		ProjectDir: base,
		Models:     []string{"nowhere"},
	})
	var modelErr *errors.ModelError
	if !stderrors.As(err, &modelErr) {
		t.Fatalf("expected ModelError, got %v", err)
	}
	if modelErr.Model != "nowhere" || len(modelErr.Searched) == 0 {
		t.Errorf("ModelError = %+v", modelErr)
	}
}

func TestHomeDirSearchedFirst(t *testing.T) {
	home := t.TempDir()
	proj := t.TempDir()
	writeModel(t, home, "shared", map[string]string{
		"objects.yaml": "types:\n  - id: fromhome\n",
	})
	writeModel(t, proj, "shared", map[string]string{
		"objects.yaml": "types:\n  - id: fromproject\n",
	})

	reg, err := Load(LoadConfig{
		HomeDir:    home,
		ProjectDir: proj,
		Models:     []string{"shared"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Resolve("shared", CategoryObject, "fromhome") == nil {
		t.Error("home directory model not preferred")
	}
	if reg.Resolve("shared", CategoryObject, "fromproject") != nil {
		t.Error("project model loaded despite home override")
	}
}

// TestSelectorsLongestFirst checks the selector ordering contract:
// multi-character selectors precede their single-character prefixes,
// equal lengths tie-break lexicographically.
func TestSelectorsLongestFirst(t *testing.T) {
	base := t.TempDir()
	writeModel(t, base, "main", map[string]string{
		"relations.yaml": `types:
  - id: trace
    selector: "->"
  - id: derive
    selector: ">"
  - id: satisfy
    selector: "=>"
`,
	})
	reg, err := Load(LoadConfig{ProjectDir: base, Models: []string{"main"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := reg.Selectors()
	want := []string{"->", "=>", ">"}
	if len(got) != len(want) {
		t.Fatalf("Selectors() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Selectors() = %v, want %v", got, want)
		}
	}
}

// TestLoadIdempotence loads the same sources twice and compares the
// registry fingerprints.
func TestLoadIdempotence(t *testing.T) {
	base := t.TempDir()
	writeModel(t, base, "main", map[string]string{
		"objects.yaml": objectsYAML,
		"floats.yaml":  floatsYAML,
	})
	cfg := LoadConfig{ProjectDir: base, Models: []string{"main"}}

	first, err := Load(cfg)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	second, err := Load(cfg)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Error("loading the same sources twice produced different registries")
	}
}

type namedHandler string

func (h namedHandler) Name() string { return string(h) }

func TestHandlerLookup(t *testing.T) {
	reg := loadTestRegistry(t)
	if err := reg.RegisterHandler(namedHandler("render.fig")); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if h := reg.HandlerFor("main", "figure"); h == nil || h.Name() != "render.fig" {
		t.Fatalf("HandlerFor(figure) = %v", h)
	}
	// Second lookup hits the cache; same result expected.
	if h := reg.HandlerFor("main", "figure"); h == nil || h.Name() != "render.fig" {
		t.Error("cached handler lookup diverged")
	}
	// Negative lookups are cached too.
	if h := reg.HandlerFor("main", "listing"); h != nil {
		t.Errorf("HandlerFor(listing) = %v, want nil", h)
	}
	if h := reg.HandlerFor("main", "listing"); h != nil {
		t.Errorf("cached negative lookup returned %v", h)
	}
}

func TestRegisterHandlerErrors(t *testing.T) {
	reg := loadTestRegistry(t)
	if err := reg.RegisterHandler(namedHandler("")); err == nil {
		t.Error("expected error for unnamed handler")
	}
	if err := reg.RegisterHandler(namedHandler("x")); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := reg.RegisterHandler(namedHandler("x")); err == nil {
		t.Error("expected error for duplicate handler name")
	}
}

func TestTypeWithoutIDIsSkipped(t *testing.T) {
	base := t.TempDir()
	writeModel(t, base, "main", map[string]string{
		"objects.yaml": "types:\n  - long_name: No Identifier\n  - id: ok\n",
	})
	reg, err := Load(LoadConfig{ProjectDir: base, Models: []string{"main"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Resolve("main", CategoryObject, "ok") == nil {
		t.Error("valid type not loaded")
	}
	if got := len(reg.TypesIn("main", CategoryObject)); got != 1 {
		t.Errorf("loaded types = %d, want 1 (unidentified type skipped)", got)
	}
}
