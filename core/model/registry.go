package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/specweave/specweave/core/errors"
)

// Handler is a named behavior bound to a type through the registry's
// handler table. Concrete handlers (view materializers, float decorators)
// are registered at startup from an explicit manifest; there is no
// dynamic code loading.
type Handler interface {
	// Name returns the handler's registration key.
	Name() string
}

// LoadConfig configures registry construction.
type LoadConfig struct {
	// HomeDir is the environment-designated model directory, checked
	// before the project directory. May be empty.
	HomeDir string

	// ProjectDir is the working project's local model directory.
	ProjectDir string

	// Models are the model names to load. Each must exist in HomeDir or
	// ProjectDir; a model found in neither fails loading fatally.
	Models []string

	// DefaultModel is the fallback for individual type lookups that miss
	// in their own model. It must be one of Models.
	DefaultModel string
}

// mtKey identifies a type within a model for merged-attribute lookup.
type mtKey struct {
	model    string
	category Category
	typeRef  string
}

// hKey identifies a handler lookup for caching.
type hKey struct {
	model   string
	typeRef string
}

// Registry holds all loaded type definitions, merged attribute schemas,
// inference rules, and handler bindings. It is populated once by Load and
// read-only afterwards; cache state is scoped to the instance, so repeated
// or concurrent invocations within one process are safe.
type Registry struct {
	defaultModel string
	models       map[string]*modelTables
	merged       map[mtKey][]*AttributeDefinition

	handlers map[string]Handler

	mu           sync.Mutex
	handlerCache map[hKey]Handler
	handlerMiss  map[hKey]bool
}

// Load builds a Registry from the configured model sources. One category
// pass runs for each of: specification, object, float, relation, view
// types. Attribute schemas are merged along each type's extends chain at
// build time, not re-walked per lookup.
func Load(cfg LoadConfig) (*Registry, error) {
	if len(cfg.Models) == 0 {
		return nil, errors.NewRegistration("", "no models configured")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = cfg.Models[0]
	}

	r := &Registry{
		defaultModel: cfg.DefaultModel,
		models:       make(map[string]*modelTables),
		merged:       make(map[mtKey][]*AttributeDefinition),
		handlers:     make(map[string]Handler),
		handlerCache: make(map[hKey]Handler),
		handlerMiss:  make(map[hKey]bool),
	}

	searchDirs := []string{cfg.HomeDir, cfg.ProjectDir}
	for _, name := range cfg.Models {
		dir, err := findModelDir(name, searchDirs)
		if err != nil {
			return nil, err
		}
		mt, err := loadModel(name, dir)
		if err != nil {
			return nil, err
		}
		r.models[name] = mt
	}

	if _, ok := r.models[r.defaultModel]; !ok {
		return nil, errors.NewRegistration(r.defaultModel, "default model not among loaded models")
	}

	// Build merged attribute schemas for every declared type.
	for modelName, mt := range r.models {
		for _, cat := range Categories {
			for id := range mt.types[cat] {
				key := mtKey{model: modelName, category: cat, typeRef: id}
				r.merged[key] = r.mergeChain(modelName, cat, id)
			}
		}
	}

	return r, nil
}

// RegisterHandler adds a handler to the registration table. Registration
// fails if the handler has no name or duplicates an existing name.
func (r *Registry) RegisterHandler(h Handler) error {
	if h == nil || h.Name() == "" {
		return errors.NewRegistration("", "handler has no name")
	}
	if _, exists := r.handlers[h.Name()]; exists {
		return errors.NewRegistration(h.Name(), "duplicate handler name")
	}
	r.handlers[h.Name()] = h
	return nil
}

// DefaultModel returns the configured fallback model name.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Resolve looks up a type by reference within a model, following aliases.
// A miss in the named model falls back to the default model. Returns nil
// when the type is defined in neither.
func (r *Registry) Resolve(model string, cat Category, typeRef string) *TypeDefinition {
	if td := r.lookup(model, cat, typeRef); td != nil {
		return td
	}
	if model != r.defaultModel {
		return r.lookup(r.defaultModel, cat, typeRef)
	}
	return nil
}

// lookup resolves a type strictly within one model, following aliases.
func (r *Registry) lookup(model string, cat Category, typeRef string) *TypeDefinition {
	mt, ok := r.models[model]
	if !ok {
		return nil
	}
	if canonical, ok := mt.aliases[cat][typeRef]; ok {
		typeRef = canonical
	}
	return mt.types[cat][typeRef]
}

// ResolveAttributes returns the merged attribute schema for a type:
// inherited attributes first (root ancestor downward), then the type's
// own, name-deduplicated with the most-derived declaration winning.
// Built at load time; this is a map read.
func (r *Registry) ResolveAttributes(model string, cat Category, typeRef string) []*AttributeDefinition {
	if defs, ok := r.merged[mtKey{model: model, category: cat, typeRef: typeRef}]; ok {
		return defs
	}
	if model != r.defaultModel {
		return r.merged[mtKey{model: r.defaultModel, category: cat, typeRef: typeRef}]
	}
	return nil
}

// DeclaredAttributes returns the attributes declared directly on a type,
// duplicates included, for the duplicate-attribute-def proof view.
func (r *Registry) DeclaredAttributes(model string, cat Category, typeRef string) []*AttributeDefinition {
	td := r.Resolve(model, cat, typeRef)
	if td == nil {
		return nil
	}
	return td.Attributes
}

// mergeChain walks the extends chain from the root ancestor down to the
// named type, accumulating attribute definitions into an ordered,
// name-deduplicated list. Child declarations shadow same-named inherited
// ones; duplicates within a single type survive for the proofs to find.
func (r *Registry) mergeChain(model string, cat Category, typeRef string) []*AttributeDefinition {
	// Collect the chain child-first, guarding against extends cycles.
	var chain []*TypeDefinition
	seen := map[string]bool{}
	for ref := typeRef; ref != "" && !seen[ref]; {
		seen[ref] = true
		td := r.Resolve(model, cat, ref)
		if td == nil {
			break
		}
		chain = append(chain, td)
		ref = td.Extends
	}

	// Emit root-first so inherited attributes come before own ones.
	var out []*AttributeDefinition
	byName := map[string]int{} // name -> index in out
	for i := len(chain) - 1; i >= 0; i-- {
		for _, ad := range chain[i].Attributes {
			if idx, ok := byName[ad.Name]; ok {
				if ad.OwnerTypeRef != out[idx].OwnerTypeRef {
					// Re-declared further down the chain: the more
					// derived definition replaces the inherited one
					// in place, keeping the original position.
					out[idx] = ad
				}
				// Duplicate on the same type is an authoring error
				// surfaced by proof views; the merged schema keeps
				// the first declaration.
				continue
			}
			byName[ad.Name] = len(out)
			out = append(out, ad)
		}
	}
	return out
}

// InferenceRules returns all inference rules of a model plus, when the
// model is not the default, the default model's rules.
func (r *Registry) InferenceRules(model string) []*InferenceRule {
	mt, ok := r.models[model]
	if !ok {
		return nil
	}
	rules := append([]*InferenceRule(nil), mt.rules...)
	if model != r.defaultModel {
		if def, ok := r.models[r.defaultModel]; ok {
			rules = append(rules, def.rules...)
		}
	}
	return rules
}

// Selectors returns every distinct selector declared by relation types
// across all loaded models, longest first so multi-character selectors
// match before single-character ones.
func (r *Registry) Selectors() []string {
	set := map[string]bool{}
	for _, mt := range r.models {
		for _, td := range mt.types[CategoryRelation] {
			if td.Selector != "" {
				set[td.Selector] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	// Longest-first, then lexicographic for determinism.
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// TypesIn returns all type definitions of a category in a model, in
// declaration order, duplicates collapsed.
func (r *Registry) TypesIn(model string, cat Category) []*TypeDefinition {
	mt, ok := r.models[model]
	if !ok {
		return nil
	}
	var out []*TypeDefinition
	emitted := map[string]bool{}
	for _, td := range mt.declared[cat] {
		if emitted[td.ID] {
			continue
		}
		emitted[td.ID] = true
		out = append(out, td)
	}
	return out
}

// HandlerFor resolves the handler bound to a type, consulting the model
// first and the default model second. Lookups are cached per
// (model, type_ref), including negative results.
func (r *Registry) HandlerFor(model, typeRef string) Handler {
	key := hKey{model: model, typeRef: typeRef}

	r.mu.Lock()
	if h, ok := r.handlerCache[key]; ok {
		r.mu.Unlock()
		return h
	}
	if r.handlerMiss[key] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	h := r.resolveHandler(model, typeRef)

	r.mu.Lock()
	if h != nil {
		r.handlerCache[key] = h
	} else {
		r.handlerMiss[key] = true
	}
	r.mu.Unlock()
	return h
}

// resolveHandler finds the handler binding for a type in any category.
func (r *Registry) resolveHandler(model, typeRef string) Handler {
	for _, cat := range Categories {
		td := r.Resolve(model, cat, typeRef)
		if td == nil || td.Handler == "" {
			continue
		}
		if h, ok := r.handlers[td.Handler]; ok {
			return h
		}
	}
	return nil
}

// Fingerprint returns a deterministic summary of the registry contents,
// used by tests to check load idempotence.
func (r *Registry) Fingerprint() string {
	out := ""
	for _, name := range sortedKeys(r.models) {
		mt := r.models[name]
		out += "model " + name + "\n"
		for _, cat := range Categories {
			for _, id := range sortedKeys(mt.types[cat]) {
				td := mt.types[cat][id]
				out += fmt.Sprintf("  %s/%s extends=%q counter=%q selector=%q\n",
					cat, id, td.Extends, td.CounterGroup, td.Selector)
				for _, ad := range r.ResolveAttributes(name, cat, id) {
					out += fmt.Sprintf("    attr %s %s min=%d max=%d\n",
						ad.Name, ad.Datatype, ad.MinOccurs, ad.MaxOccurs)
				}
			}
		}
	}
	return out
}

// sortedKeys returns map keys in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
