package proof

import (
	"fmt"

	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
)

// funcProof adapts a predicate function to the Proof interface.
type funcProof struct {
	name       string
	policyKey  string
	defaultSev Severity
	run        func(snap *ir.Snapshot, env *Env) []Violation
}

func (p *funcProof) Name() string              { return p.name }
func (p *funcProof) PolicyKey() string         { return p.policyKey }
func (p *funcProof) DefaultSeverity() Severity { return p.defaultSev }
func (p *funcProof) Run(snap *ir.Snapshot, env *Env) []Violation {
	return p.run(snap, env)
}

// New builds a proof from a predicate function.
func New(name, policyKey string, def Severity, run func(*ir.Snapshot, *Env) []Violation) Proof {
	return &funcProof{name: name, policyKey: policyKey, defaultSev: def, run: run}
}

// Builtin returns the standard proof set.
func Builtin() []Proof {
	return []Proof{
		New("InvalidTypeRef", "invalid-type-ref", SeverityError, proofInvalidTypeRef),
		New("MissingRequiredAttribute", "missing-required-attribute", SeverityError, proofMissingRequired),
		New("InvalidCast", "invalid-cast", SeverityError, proofInvalidCast),
		New("OutOfRange", "out-of-range", SeverityError, proofOutOfRange),
		New("DuplicatePID", "duplicate-pid", SeverityError, proofDuplicatePID),
		New("InvalidLevel", "invalid-level", SeverityWarn, proofInvalidLevel),
		New("DuplicateLabel", "duplicate-label", SeverityWarn, proofDuplicateLabel),
		New("OrphanedFloat", "orphaned-float", SeverityWarn, proofOrphanedFloat),
		New("UnresolvedRelation", "unresolved-relation", SeverityWarn, proofUnresolvedRelation),
		New("AmbiguousRelation", "ambiguous-relation", SeverityWarn, proofAmbiguousRelation),
		New("UntypedRelation", "untyped-relation", SeverityIgnore, proofUntypedRelation),
		New("RenderFailure", "render-failure", SeverityError, proofRenderFailure),
		New("ViewFailure", "view-failure", SeverityError, proofViewFailure),
		New("DuplicateAttributeDef", "duplicate-attribute-def", SeverityWarn, proofDuplicateAttributeDef),
	}
}

// proofInvalidTypeRef finds entities whose type reference resolves in
// neither their model nor the default model.
func proofInvalidTypeRef(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	path := snap.Spec.Path

	if env.Registry.Resolve(env.Model, model.CategorySpecification, snap.Spec.TypeRef) == nil {
		out = append(out, Violation{Path: path,
			Message: fmt.Sprintf("specification %s has unknown type %q", snap.Spec.PID, snap.Spec.TypeRef)})
	}
	for _, o := range snap.Objects {
		if env.Registry.Resolve(env.Model, model.CategoryObject, o.TypeRef) == nil {
			out = append(out, Violation{Path: path, Line: o.Line,
				Message: fmt.Sprintf("object %s has unknown type %q", o.PID, o.TypeRef)})
		}
	}
	for _, f := range snap.Floats {
		if env.Registry.Resolve(env.Model, model.CategoryFloat, f.TypeRef) == nil {
			out = append(out, Violation{Path: path, Line: f.Line,
				Message: fmt.Sprintf("float %q has unknown type %q", f.Label, f.TypeRef)})
		}
	}
	for _, r := range snap.Relations {
		if r.TypeRef != nil && env.Registry.Resolve(env.Model, model.CategoryRelation, *r.TypeRef) == nil {
			out = append(out, Violation{Path: path, Line: r.Line,
				Message: fmt.Sprintf("relation to %q has unknown type %q", r.TargetText, *r.TypeRef)})
		}
	}
	for _, v := range snap.Views {
		if env.Registry.Resolve(env.Model, model.CategoryView, v.ViewTypeRef) == nil {
			out = append(out, Violation{Path: path, Line: v.Line,
				Message: fmt.Sprintf("view invocation has unknown type %q", v.ViewTypeRef)})
		}
	}
	return out
}

// proofMissingRequired enforces attribute cardinality from the merged
// schema: min_occurs unmet or max_occurs exceeded.
func proofMissingRequired(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	path := snap.Spec.Path

	check := func(kind ir.OwnerKind, cat model.Category, typeRef, ownerKey, ownerName string, line int) {
		for _, ad := range env.Registry.ResolveAttributes(env.Model, cat, typeRef) {
			n := 0
			for _, av := range snap.AttributesOf(kind, ownerKey) {
				if av.Name == ad.Name {
					n++
				}
			}
			if n < ad.MinOccurs {
				out = append(out, Violation{Path: path, Line: line,
					Message: fmt.Sprintf("%s is missing required attribute %q (%d of %d)", ownerName, ad.Name, n, ad.MinOccurs)})
			}
			if ad.MaxOccurs > 0 && n > ad.MaxOccurs {
				out = append(out, Violation{Path: path, Line: line,
					Message: fmt.Sprintf("%s has %d values for attribute %q, at most %d allowed", ownerName, n, ad.Name, ad.MaxOccurs)})
			}
		}
	}

	check(ir.OwnerSpecification, model.CategorySpecification, snap.Spec.TypeRef, snap.Spec.PID,
		"specification "+snap.Spec.PID, 0)
	for _, o := range snap.Objects {
		check(ir.OwnerObject, model.CategoryObject, o.TypeRef, o.Key, "object "+o.PID, o.Line)
	}
	return out
}

// proofInvalidCast finds EAV rows whose raw value could not be typed.
func proofInvalidCast(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, a := range snap.Attributes {
		if !a.CastOK() {
			out = append(out, Violation{Path: snap.Spec.Path, Line: a.Line,
				Message: fmt.Sprintf("attribute %q value %q is not a valid %s", a.Name, a.RawValue, a.Datatype)})
		}
	}
	return out
}

// proofOutOfRange bounds numeric attributes against min_value/max_value.
func proofOutOfRange(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation

	defFor := func(a *ir.AttributeValue) *model.AttributeDefinition {
		var cat model.Category
		var typeRef string
		if a.OwnerKind == ir.OwnerSpecification {
			cat, typeRef = model.CategorySpecification, snap.Spec.TypeRef
		} else {
			o := snap.ObjectByKey(a.OwnerKey)
			if o == nil {
				return nil
			}
			cat, typeRef = model.CategoryObject, o.TypeRef
		}
		for _, ad := range env.Registry.ResolveAttributes(env.Model, cat, typeRef) {
			if ad.Name == a.Name {
				return ad
			}
		}
		return nil
	}

	for _, a := range snap.Attributes {
		var val float64
		switch {
		case a.IntVal != nil:
			val = float64(*a.IntVal)
		case a.RealVal != nil:
			val = *a.RealVal
		default:
			continue
		}
		ad := defFor(a)
		if ad == nil {
			continue
		}
		if ad.MinValue != nil && val < *ad.MinValue {
			out = append(out, Violation{Path: snap.Spec.Path, Line: a.Line,
				Message: fmt.Sprintf("attribute %q value %v is below minimum %v", a.Name, val, *ad.MinValue)})
		}
		if ad.MaxValue != nil && val > *ad.MaxValue {
			out = append(out, Violation{Path: snap.Spec.Path, Line: a.Line,
				Message: fmt.Sprintf("attribute %q value %v is above maximum %v", a.Name, val, *ad.MaxValue)})
		}
	}
	return out
}

// proofDuplicatePID finds PIDs claimed by more than one object anywhere
// in the batch. Only the snapshot owning the later claim reports, so the
// batch yields each collision once per extra claimant.
func proofDuplicatePID(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation

	seen := map[string]bool{}
	for _, other := range env.All {
		if other == snap {
			break
		}
		for _, o := range other.Objects {
			seen[o.PID] = true
		}
		seen[other.Spec.PID] = true
	}

	local := map[string]bool{}
	report := func(pid string, line int) {
		if seen[pid] || local[pid] {
			out = append(out, Violation{Path: snap.Spec.Path, Line: line,
				Message: fmt.Sprintf("duplicate PID %q", pid)})
		}
		local[pid] = true
	}

	report(snap.Spec.PID, 0)
	for _, o := range snap.Objects {
		report(o.PID, o.Line)
	}
	return out
}

// proofInvalidLevel finds objects whose heading level is not exactly one
// deeper than their parent's. Top-level objects sit directly under the
// specification heading and carry no parent level to check against.
func proofInvalidLevel(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, o := range snap.Objects {
		if o.ParentKey == "" {
			continue
		}
		p := snap.ObjectByKey(o.ParentKey)
		if p == nil {
			continue
		}
		if o.Level != p.Level+1 {
			out = append(out, Violation{Path: snap.Spec.Path, Line: o.Line,
				Message: fmt.Sprintf("object %s at level %d skips levels under its level-%d parent %s",
					o.PID, o.Level, p.Level, p.PID)})
		}
	}
	return out
}

// proofDuplicateLabel finds float labels repeated under the same parent
// object.
func proofDuplicateLabel(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	seen := map[string]bool{} // parent key + label
	for _, f := range snap.Floats {
		if f.Label == "" {
			continue
		}
		k := f.ParentObjectKey + "\x00" + f.Label
		if seen[k] {
			out = append(out, Violation{Path: snap.Spec.Path, Line: f.Line,
				Message: fmt.Sprintf("duplicate float label %q under the same parent", f.Label)})
		}
		seen[k] = true
	}
	return out
}

// proofOrphanedFloat finds floats whose parent object no longer exists.
func proofOrphanedFloat(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, f := range snap.Floats {
		if f.ParentObjectKey == "" || snap.ObjectByKey(f.ParentObjectKey) == nil {
			out = append(out, Violation{Path: snap.Spec.Path, Line: f.Line,
				Message: fmt.Sprintf("float %q has no parent object", f.Label)})
		}
	}
	return out
}

// proofUnresolvedRelation finds relations whose target never resolved.
func proofUnresolvedRelation(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, r := range snap.Relations {
		if !r.Resolved() {
			out = append(out, Violation{Path: snap.Spec.Path, Line: r.Line,
				Message: fmt.Sprintf("unresolved relation target %s%s", r.Selector, r.TargetText)})
		}
	}
	return out
}

// proofAmbiguousRelation finds relations flagged ambiguous by resolution
// or inference.
func proofAmbiguousRelation(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, r := range snap.Relations {
		if r.IsAmbiguous {
			out = append(out, Violation{Path: snap.Spec.Path, Line: r.Line,
				Message: fmt.Sprintf("ambiguous relation target %s%s", r.Selector, r.TargetText)})
		}
	}
	return out
}

// proofUntypedRelation finds relations no inference rule matched. Whether
// that matters is a policy decision; the default severity is ignore.
func proofUntypedRelation(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, r := range snap.Relations {
		if !r.Typed() {
			out = append(out, Violation{Path: snap.Spec.Path, Line: r.Line,
				Message: fmt.Sprintf("no inference rule matched relation %s%s", r.Selector, r.TargetText)})
		}
	}
	return out
}

// proofRenderFailure finds floats whose type requires external rendering
// but whose resolved content is still null after TRANSFORM.
func proofRenderFailure(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, f := range snap.Floats {
		td := env.Registry.Resolve(env.Model, model.CategoryFloat, f.TypeRef)
		if td == nil || !td.RequiresRender() {
			continue
		}
		if f.ResolvedContent == nil {
			out = append(out, Violation{Path: snap.Spec.Path, Line: f.Line,
				Message: fmt.Sprintf("external render failed for float %q (%s)", f.Label, f.TypeRef)})
		}
	}
	return out
}

// proofViewFailure finds views that never materialized.
func proofViewFailure(snap *ir.Snapshot, env *Env) []Violation {
	var out []Violation
	for _, v := range snap.Views {
		if v.ResolvedContent == nil {
			out = append(out, Violation{Path: snap.Spec.Path, Line: v.Line,
				Message: fmt.Sprintf("view %q failed to materialize", v.ViewTypeRef)})
		}
	}
	return out
}

// proofDuplicateAttributeDef finds attribute names declared twice on the
// same type. Model loading keeps duplicates; this proof surfaces them.
// Model-level, so it reports once, against the first snapshot.
func proofDuplicateAttributeDef(snap *ir.Snapshot, env *Env) []Violation {
	if len(env.All) > 0 && env.All[0] != snap {
		return nil
	}
	var out []Violation
	for _, cat := range model.Categories {
		for _, td := range env.Registry.TypesIn(env.Model, cat) {
			seen := map[string]bool{}
			for _, ad := range td.Attributes {
				if seen[ad.Name] {
					out = append(out, Violation{
						Message: fmt.Sprintf("type %q declares attribute %q more than once", td.ID, ad.Name)})
				}
				seen[ad.Name] = true
			}
		}
	}
	return out
}
