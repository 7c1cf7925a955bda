package relation

import (
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
)

// Inferrer assigns relation types by matching registered inference rules
// against four context dimensions: link selector, source attribute name
// (or the body-text sentinel), source object's type, and resolved
// target's type (or the unresolved sentinel). A rule matches only if
// every dimension it constrains equals the relation's value; unconstrained
// dimensions are wildcards.
type Inferrer struct {
	rules []*model.InferenceRule
}

// NewInferrer builds an inferrer over the given rules in declaration
// order. Declaration order breaks first-match ties when maximum
// specificity is shared.
func NewInferrer(rules []*model.InferenceRule) *Inferrer {
	return &Inferrer{rules: rules}
}

// Infer types one relation in place. TargetRef is never mutated. A
// relation already typed in this run is never re-inferred. The winning
// rule is the unique match with maximum specificity; a tie among distinct
// maximum-specificity rules assigns the first match and flags the
// relation ambiguous (not fatal, surfaced by proof views). Zero matches
// leave the relation untyped; whether that is an error is the caller's
// policy, not the engine's.
func (inf *Inferrer) Infer(rel *ir.Relation, env *Env) {
	if rel.Typed() {
		return
	}

	sourceType := sourceTypeOf(rel, env)
	targetType := targetTypeOf(rel, env)

	var best *model.InferenceRule
	bestSpec := -1
	tied := false
	for _, rule := range inf.rules {
		if !rule.Matches(rel.Selector, rel.SourceAttribute, sourceType, targetType) {
			continue
		}
		switch spec := rule.Specificity(); {
		case spec > bestSpec:
			best, bestSpec, tied = rule, spec, false
		case spec == bestSpec && rule != best:
			tied = true
		}
	}

	if best == nil {
		return
	}
	t := best.RelationType
	rel.TypeRef = &t
	if tied {
		rel.IsAmbiguous = true
	}
}

// sourceTypeOf returns the type of the relation's source object.
func sourceTypeOf(rel *ir.Relation, env *Env) string {
	if o := env.Current.ObjectByKey(rel.SourceObjectKey); o != nil {
		return o.TypeRef
	}
	return ""
}

// targetTypeOf returns the resolved target's type, or the unresolved
// sentinel when resolution failed. The target may live in any snapshot
// of the batch.
func targetTypeOf(rel *ir.Relation, env *Env) string {
	if !rel.Resolved() {
		return ir.RelationTargetUnresolved
	}
	key := *rel.TargetRef
	lookup := func(snap *ir.Snapshot) string {
		if rel.TargetIsFloat {
			if f := snap.FloatByKey(key); f != nil {
				return f.TypeRef
			}
			return ""
		}
		if o := snap.ObjectByKey(key); o != nil {
			return o.TypeRef
		}
		return ""
	}
	if t := lookup(env.Current); t != "" {
		return t
	}
	for _, snap := range env.All {
		if snap == env.Current {
			continue
		}
		if t := lookup(snap); t != "" {
			return t
		}
	}
	return ir.RelationTargetUnresolved
}
