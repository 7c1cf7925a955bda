// Package relation resolves link targets and infers relation semantics
// from typed context. The two algorithms are independent and run in
// order: resolution first, because inference needs the resolved target's
// type. Resolution never reads a relation's TypeRef; inference never
// mutates a relation's TargetRef.
package relation

import (
	"sort"
	"strings"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
)

// Env is the read-only context a resolver consults: the snapshot owning
// the relation and every snapshot in the batch for cross-document tiers.
type Env struct {
	Current *ir.Snapshot
	All     []*ir.Snapshot
}

// Result is a resolver's outcome for one relation.
type Result struct {
	// TargetKey is the resolved target's content-addressed key, empty
	// when unresolved.
	TargetKey string

	// IsFloat reports whether TargetKey names a float.
	IsFloat bool

	// Ambiguous is set when more than one candidate matched at the
	// winning scope tier; the first candidate still wins.
	Ambiguous bool
}

// ResolverFunc resolves one relation's target text.
type ResolverFunc func(rel *ir.Relation, env *Env) Result

// Resolver dispatches relations to selector-specific resolver functions.
// Base selectors are registered at type-registry load time; relation
// types may declare additional selectors, which default to label
// semantics unless a custom function is registered.
type Resolver struct {
	funcs map[string]ResolverFunc
}

// Base selectors.
const (
	SelectorPID   = "@"
	SelectorLabel = "#"
)

// NewResolver builds a resolver wired with the base selectors plus every
// selector declared by the registry's relation types.
func NewResolver(reg *model.Registry) *Resolver {
	r := &Resolver{funcs: map[string]ResolverFunc{
		SelectorPID:   ResolvePID,
		SelectorLabel: ResolveLabel,
	}}
	for _, sel := range reg.Selectors() {
		if _, ok := r.funcs[sel]; !ok {
			r.funcs[sel] = ResolveLabel
		}
	}
	return r
}

// Register binds a resolver function to a selector, replacing any
// default binding.
func (r *Resolver) Register(selector string, fn ResolverFunc) error {
	if selector == "" {
		return errors.NewRegistration("", "selector must not be empty")
	}
	if fn == nil {
		return errors.NewRegistration(selector, "resolver function must not be nil")
	}
	r.funcs[selector] = fn
	return nil
}

// Selectors returns the registered selectors, longest first, for
// link-extraction dispatch.
func (r *Resolver) Selectors() []string {
	out := make([]string, 0, len(r.funcs))
	for s := range r.funcs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// Resolve resolves one relation in place: TargetRef, TargetIsFloat, and
// IsAmbiguous are written; TypeRef is never touched. An unresolved target
// leaves TargetRef nil, which is queryable IR state, not an error.
func (r *Resolver) Resolve(rel *ir.Relation, env *Env) {
	fn, ok := r.funcs[rel.Selector]
	if !ok {
		return
	}
	res := fn(rel, env)
	if res.TargetKey != "" {
		k := res.TargetKey
		rel.TargetRef = &k
		rel.TargetIsFloat = res.IsFloat
	}
	if res.Ambiguous {
		rel.IsAmbiguous = true
	}
}

// ResolvePID resolves a PID reference: exact match within the same
// specification, else a global cross-document match. PIDs are unique by
// construction, so PID resolution is never ambiguous.
func ResolvePID(rel *ir.Relation, env *Env) Result {
	pid := rel.TargetText
	if o := env.Current.ObjectByPID(pid); o != nil {
		return Result{TargetKey: o.Key}
	}
	for _, snap := range env.All {
		if snap == env.Current {
			continue
		}
		if o := snap.ObjectByPID(pid); o != nil {
			return Result{TargetKey: o.Key}
		}
	}
	return Result{}
}

// candidate is one labeled entity considered during label resolution.
type candidate struct {
	key     string
	typeRef string
	isFloat bool
	line    int
}

// scope names for explicit label references.
const (
	scopeLocal  = "local"
	scopeSpec   = "spec"
	scopeGlobal = "global"
)

// ResolveLabel resolves a label reference through a three-tier scope
// walk, stopping at the first tier producing one or more matches:
//
//  1. local: a float belonging to the same parent object as the link's
//     source,
//  2. specification: any labeled object or float in the same document,
//  3. global: any labeled object or float in any document.
//
// Exactly one match at a tier resolves cleanly; more than one resolves to
// the first candidate in document order but flags the relation ambiguous.
//
// An explicit scope prefix ("scope:type:label") bypasses the walk and
// resolves strictly within the named scope with no fallback: an
// unresolved explicit scope yields an unresolved relation.
func ResolveLabel(rel *ir.Relation, env *Env) Result {
	label := rel.TargetText
	if scope, typeRef, rest, ok := splitExplicitScope(label); ok {
		return pick(collectTier(scope, rel, env, typeRef, rest))
	}

	for _, scope := range []string{scopeLocal, scopeSpec, scopeGlobal} {
		cands := collectTier(scope, rel, env, "", label)
		if len(cands) > 0 {
			return pick(cands)
		}
	}
	return Result{}
}

// splitExplicitScope recognizes the "scope:type:label" form. The type
// segment may be empty ("spec::fig:arch" matches any type).
func splitExplicitScope(text string) (scope, typeRef, label string, ok bool) {
	parts := strings.SplitN(text, ":", 3)
	if len(parts) < 3 {
		return "", "", "", false
	}
	switch parts[0] {
	case scopeLocal, scopeSpec, scopeGlobal:
		return parts[0], parts[1], parts[2], true
	}
	return "", "", "", false
}

// collectTier gathers candidates for one scope tier in document order.
// typeRef, when non-empty, restricts candidates to that type.
func collectTier(scope string, rel *ir.Relation, env *Env, typeRef, label string) []candidate {
	var cands []candidate
	add := func(key, ctype string, isFloat bool, line int) {
		if typeRef != "" && ctype != typeRef {
			return
		}
		cands = append(cands, candidate{key: key, typeRef: ctype, isFloat: isFloat, line: line})
	}

	collectSnap := func(snap *ir.Snapshot) {
		for _, o := range snap.Objects {
			if o.Label == label {
				add(o.Key, o.TypeRef, false, o.Line)
			}
		}
		for _, f := range snap.Floats {
			if f.Label == label {
				add(f.Key, f.TypeRef, true, f.Line)
			}
		}
	}

	switch scope {
	case scopeLocal:
		for _, f := range env.Current.FloatsOf(rel.SourceObjectKey) {
			if f.Label == label {
				add(f.Key, f.TypeRef, true, f.Line)
			}
		}
	case scopeSpec:
		collectSnap(env.Current)
	case scopeGlobal:
		collectSnap(env.Current)
		for _, snap := range env.All {
			if snap != env.Current {
				collectSnap(snap)
			}
		}
	}

	// Document order within the tier.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].line < cands[j].line })
	return cands
}

// pick applies the first-match-wins-flag-ambiguous policy. Rejecting
// multi-match outright is deliberately not done here: the downstream
// proof-view severity (error/warn/ignore) is the control point.
func pick(cands []candidate) Result {
	switch len(cands) {
	case 0:
		return Result{}
	case 1:
		return Result{TargetKey: cands[0].key, IsFloat: cands[0].isFloat}
	default:
		return Result{TargetKey: cands[0].key, IsFloat: cands[0].isFloat, Ambiguous: true}
	}
}
