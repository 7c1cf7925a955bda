package ir

import "sort"

// Snapshot is a flat, stably-ordered image of one specification's IR,
// loaded from the store after a phase completes. Proof views, the
// relation resolver, the assembler, and the processed-IR digest all
// operate on snapshots rather than on live store rows.
type Snapshot struct {
	// Spec is the owning specification.
	Spec *Specification

	// Objects are all objects of the specification in document order.
	Objects []*Object

	// Floats are all floats in document order.
	Floats []*Float

	// Relations are all relations in document order.
	Relations []*Relation

	// Views are all views in document order.
	Views []*View

	// Attributes are all EAV rows in document order.
	Attributes []*AttributeValue
}

// NewSnapshot flattens a populated specification into a snapshot.
// Row order is document order throughout, so repeated flattening of the
// same specification is deterministic.
func NewSnapshot(spec *Specification) *Snapshot {
	s := &Snapshot{Spec: spec}
	s.Attributes = append(s.Attributes, spec.Attributes...)
	WalkSpec(spec, func(o *Object) {
		s.Objects = append(s.Objects, o)
		s.Attributes = append(s.Attributes, o.Attributes...)
		s.Floats = append(s.Floats, o.Floats...)
		s.Relations = append(s.Relations, o.Relations...)
		s.Views = append(s.Views, o.Views...)
	})
	return s
}

// ObjectByKey returns the object with the given content-addressed key.
func (s *Snapshot) ObjectByKey(key string) *Object {
	for _, o := range s.Objects {
		if o.Key == key {
			return o
		}
	}
	return nil
}

// ObjectByPID returns the object with the given public identifier.
func (s *Snapshot) ObjectByPID(pid string) *Object {
	for _, o := range s.Objects {
		if o.PID == pid {
			return o
		}
	}
	return nil
}

// FloatByKey returns the float with the given content-addressed key.
func (s *Snapshot) FloatByKey(key string) *Float {
	for _, f := range s.Floats {
		if f.Key == key {
			return f
		}
	}
	return nil
}

// FloatsOf returns the floats owned by the object with the given key,
// in document order.
func (s *Snapshot) FloatsOf(objectKey string) []*Float {
	var out []*Float
	for _, f := range s.Floats {
		if f.ParentObjectKey == objectKey {
			out = append(out, f)
		}
	}
	return out
}

// AttributesOf returns the EAV rows owned by the given owner, sorted by
// name then source line for deterministic iteration.
func (s *Snapshot) AttributesOf(kind OwnerKind, ownerKey string) []*AttributeValue {
	var out []*AttributeValue
	for _, a := range s.Attributes {
		if a.OwnerKind == kind && a.OwnerKey == ownerKey {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Line < out[j].Line
	})
	return out
}
