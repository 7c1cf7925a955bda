package ir

// types.go - Consolidated IR entity definitions.
// All pipeline phases and the proof views import these types from core/ir
// rather than defining their own row images.

// Specification is the root container for one source document.
type Specification struct {
	// ID is the store row identifier (0 before the row is inserted).
	ID int64 `json:"id"`

	// TypeRef is the specification type identifier from the model.
	TypeRef string `json:"type_ref"`

	// Title is the document's top-level heading text.
	Title string `json:"title"`

	// PID is the public identifier. Auto-generated from TypeRef when the
	// heading carries no explicit pid attribute.
	PID string `json:"pid"`

	// Path is the source file path this specification was built from.
	Path string `json:"path"`

	// Attributes are the EAV rows owned by the specification itself.
	Attributes []*AttributeValue `json:"attributes,omitempty"`

	// Objects are the top-level objects in document order.
	Objects []*Object `json:"objects,omitempty"`
}

// Object is a typed section of a specification, created from a sub-heading.
type Object struct {
	// ID is the store row identifier.
	ID int64 `json:"id"`

	// SpecID is the owning specification's row identifier.
	SpecID int64 `json:"spec_id"`

	// Key is the content-addressed identity, derived from source path,
	// heading position, and title. Stable across edits that do not touch
	// the heading.
	Key string `json:"key"`

	// ParentKey is the enclosing object's Key, empty for top-level objects.
	ParentKey string `json:"parent_key,omitempty"`

	// TypeRef is the object type identifier from the model.
	TypeRef string `json:"type_ref"`

	// Title is the heading text.
	Title string `json:"title"`

	// PID is the public identifier, auto-generated when absent.
	PID string `json:"pid"`

	// Label is the optional reference label authored on the heading.
	Label string `json:"label,omitempty"`

	// Level is the heading depth. Children are exactly one level deeper
	// than their parent.
	Level int `json:"level"`

	// Line is the heading's source line.
	Line int `json:"line"`

	// Body is the flattened prose under the heading, excluding floats
	// and child headings.
	Body string `json:"body,omitempty"`

	// Attributes are the EAV rows owned by this object.
	Attributes []*AttributeValue `json:"attributes,omitempty"`

	// Floats are the fenced blocks owned by this object, in document order.
	Floats []*Float `json:"floats,omitempty"`

	// Relations are the links extracted from this object's content.
	Relations []*Relation `json:"relations,omitempty"`

	// Views are the view invocations authored in this object.
	Views []*View `json:"views,omitempty"`

	// Children are the nested objects in document order.
	Children []*Object `json:"children,omitempty"`
}

// Float is a numbered block (figure, table, listing...) created from a
// fenced block whose info string matches a registered float type.
type Float struct {
	// ID is the store row identifier.
	ID int64 `json:"id"`

	// SpecID is the owning specification's row identifier.
	SpecID int64 `json:"spec_id"`

	// Key is the content-addressed identity of this float.
	Key string `json:"key"`

	// ParentObjectKey is the Key of the object the float belongs to.
	ParentObjectKey string `json:"parent_object_key"`

	// TypeRef is the float type identifier from the model.
	TypeRef string `json:"type_ref"`

	// Label is the reference label (e.g. "fig:arch"), may be empty.
	Label string `json:"label,omitempty"`

	// Number is assigned during TRANSFORM: unique within the type's
	// counter group, monotonic by document order. Zero until assigned.
	Number int `json:"number"`

	// Caption is the display caption from the fence info string.
	Caption string `json:"caption,omitempty"`

	// RawContent is the fenced body as authored.
	RawContent string `json:"raw_content"`

	// ResolvedContent is the externally rendered output. Nil until
	// rendering completes; stays nil on render failure, which the
	// render-failure proof view detects.
	ResolvedContent *string `json:"resolved_content,omitempty"`

	// Line is the fence's source line.
	Line int `json:"line"`
}

// RelationSourceBody is the SourceAttribute sentinel for relations
// extracted from an object's body text rather than an attribute value.
const RelationSourceBody = "<body>"

// RelationTargetUnresolved is the inference-context sentinel used for the
// target-type dimension when a relation's target did not resolve.
const RelationTargetUnresolved = "<unresolved>"

// Relation is a typed link between IR entities. It moves through three
// states: extracted (TargetRef and TypeRef nil), resolved (TargetRef
// populated, or left nil when resolution fails), and typed (TypeRef
// populated by inference, independent of resolution success).
type Relation struct {
	// ID is the store row identifier.
	ID int64 `json:"id"`

	// SpecID is the owning specification's row identifier.
	SpecID int64 `json:"spec_id"`

	// SourceObjectKey is the Key of the object the link was authored in.
	SourceObjectKey string `json:"source_object_key"`

	// TargetText is the link target with the selector stripped.
	TargetText string `json:"target_text"`

	// Selector is the registered dispatch key the link target began with
	// (e.g. "@" or "#").
	Selector string `json:"selector"`

	// SourceAttribute is the attribute the link was authored in, or
	// RelationSourceBody for body text.
	SourceAttribute string `json:"source_attribute"`

	// TargetRef is the resolved target's Key. Nil while unresolved.
	TargetRef *string `json:"target_ref,omitempty"`

	// TargetIsFloat reports whether TargetRef names a Float rather than
	// an Object.
	TargetIsFloat bool `json:"target_is_float,omitempty"`

	// TypeRef is the inferred relation type. Once set it is never
	// re-inferred within the same run. Nil when no rule matched.
	TypeRef *string `json:"type_ref,omitempty"`

	// IsAmbiguous is set when label resolution found more than one
	// candidate at the winning scope tier, or when inference tied
	// between distinct rules at maximum specificity.
	IsAmbiguous bool `json:"is_ambiguous"`

	// Line is the link's source line.
	Line int `json:"line"`
}

// Resolved reports whether the relation's target has been resolved.
func (r *Relation) Resolved() bool {
	return r.TargetRef != nil
}

// Typed reports whether inference has assigned a relation type.
func (r *Relation) Typed() bool {
	return r.TypeRef != nil
}

// View is a materializable query authored inline or as a fenced block.
type View struct {
	// ID is the store row identifier.
	ID int64 `json:"id"`

	// SpecID is the owning specification's row identifier.
	SpecID int64 `json:"spec_id"`

	// ParentObjectKey is the Key of the object the view was authored in.
	ParentObjectKey string `json:"parent_object_key"`

	// ViewTypeRef is the view type identifier from the model.
	ViewTypeRef string `json:"view_type_ref"`

	// RawParam is the unparsed parameter text of the invocation.
	RawParam string `json:"raw_param,omitempty"`

	// ResolvedContent is the materialized output. Nil before TRANSFORM;
	// stays nil on materialization failure.
	ResolvedContent *string `json:"resolved_content,omitempty"`

	// Line is the invocation's source line.
	Line int `json:"line"`
}

// OwnerKind distinguishes which entity kind owns an attribute row.
type OwnerKind string

// Owner kind constants.
const (
	OwnerSpecification OwnerKind = "specification"
	OwnerObject        OwnerKind = "object"
)

// AttributeValue is one Entity-Attribute-Value row. Exactly one typed slot
// is populated after a successful cast; all slots are nil on cast failure,
// which is itself a detectable, queryable condition.
type AttributeValue struct {
	// ID is the store row identifier.
	ID int64 `json:"id"`

	// SpecID is the owning specification's row identifier.
	SpecID int64 `json:"spec_id"`

	// OwnerKind says whether OwnerKey names a specification or an object.
	OwnerKind OwnerKind `json:"owner_kind"`

	// OwnerKey is the owning object's Key, or the specification PID for
	// specification-owned rows.
	OwnerKey string `json:"owner_key"`

	// Name is the attribute name.
	Name string `json:"name"`

	// RawValue is the authored value, always retained.
	RawValue string `json:"raw_value"`

	// Datatype is the declared datatype the raw value was cast against.
	Datatype Datatype `json:"datatype"`

	// Typed slots. At most one is non-nil.
	StringVal *string  `json:"string_val,omitempty"`
	IntVal    *int64   `json:"int_val,omitempty"`
	RealVal   *float64 `json:"real_val,omitempty"`
	BoolVal   *bool    `json:"bool_val,omitempty"`
	DateVal   *string  `json:"date_val,omitempty"` // ISO 8601 date
	EnumRef   *string  `json:"enum_ref,omitempty"`

	// AST is an optional parsed form of the raw value for datatypes that
	// carry structure (serialized by the front end, opaque to the core).
	AST []byte `json:"ast,omitempty"`

	// Line is the attribute's source line.
	Line int `json:"line"`
}

// CastOK reports whether the raw value was successfully cast: exactly one
// typed slot is populated.
func (a *AttributeValue) CastOK() bool {
	n := 0
	if a.StringVal != nil {
		n++
	}
	if a.IntVal != nil {
		n++
	}
	if a.RealVal != nil {
		n++
	}
	if a.BoolVal != nil {
		n++
	}
	if a.DateVal != nil {
		n++
	}
	if a.EnumRef != nil {
		n++
	}
	return n == 1
}

// Walk visits obj and all descendant objects in document order.
func Walk(obj *Object, fn func(*Object)) {
	if obj == nil {
		return
	}
	fn(obj)
	for _, c := range obj.Children {
		Walk(c, fn)
	}
}

// WalkSpec visits every object of the specification in document order.
func WalkSpec(s *Specification, fn func(*Object)) {
	for _, o := range s.Objects {
		Walk(o, fn)
	}
}
