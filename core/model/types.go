// Package model holds the process-wide type system: type definitions per
// category, single-parent inheritance with attribute-schema merge, aliases,
// relation inference rules, and handler bindings. A Registry is built once
// per run from external model configuration and is read-only afterwards.
package model

import (
	"github.com/specweave/specweave/core/ir"
)

// Category identifies which kind of entity a type definition governs.
type Category string

// Category constants.
const (
	CategorySpecification Category = "specification"
	CategoryObject        Category = "object"
	CategoryFloat         Category = "float"
	CategoryRelation      Category = "relation"
	CategoryView          Category = "view"
)

// Categories lists all categories in load order. One load pass runs per
// category.
var Categories = []Category{
	CategorySpecification,
	CategoryObject,
	CategoryFloat,
	CategoryRelation,
	CategoryView,
}

// validCategories is the set of valid type categories.
var validCategories = map[Category]bool{
	CategorySpecification: true,
	CategoryObject:        true,
	CategoryFloat:         true,
	CategoryRelation:      true,
	CategoryView:          true,
}

// IsValid returns true if the category is valid.
func (c Category) IsValid() bool {
	return validCategories[c]
}

// AttributeDefinition governs cardinality and value-range validation for a
// named attribute on its owning type.
type AttributeDefinition struct {
	// OwnerTypeRef is the type this attribute was declared on.
	OwnerTypeRef string `yaml:"-"`

	// Name is the attribute name.
	Name string `yaml:"name"`

	// Datatype is the declared datatype.
	Datatype ir.Datatype `yaml:"datatype"`

	// EnumValues lists permitted members for ENUM attributes.
	EnumValues []string `yaml:"values,omitempty"`

	// MinOccurs is the minimum number of rows required (0 = optional).
	MinOccurs int `yaml:"min_occurs"`

	// MaxOccurs is the maximum number of rows allowed (0 = unbounded).
	MaxOccurs int `yaml:"max_occurs"`

	// MinValue and MaxValue bound numeric attributes when non-nil.
	MinValue *float64 `yaml:"min_value,omitempty"`
	MaxValue *float64 `yaml:"max_value,omitempty"`
}

// TypeDefinition is one type declaration in a category. Types form an
// inheritance forest via Extends; attribute schemas are inherited and
// merged along the chain.
type TypeDefinition struct {
	// ID is the type identifier, unique within its category and model.
	ID string `yaml:"id"`

	// LongName is the display name. Defaults to ID when omitted.
	LongName string `yaml:"long_name,omitempty"`

	// Extends names the single parent type, empty for roots.
	Extends string `yaml:"extends,omitempty"`

	// Category is the category the type was registered under.
	Category Category `yaml:"-"`

	// Attributes are the attribute schemas declared directly on this type.
	Attributes []*AttributeDefinition `yaml:"attributes,omitempty"`

	// CounterGroup names the numbering sequence for float types.
	// Defaults to ID when omitted. Float category only.
	CounterGroup string `yaml:"counter_group,omitempty"`

	// RenderCommand is the external render binding for float or view
	// types that require a subprocess (e.g. a diagram tool). The first
	// element is the command, the rest are arguments.
	RenderCommand []string `yaml:"render_command,omitempty"`

	// Selector is the link selector relation types match on.
	// Relation category only.
	Selector string `yaml:"selector,omitempty"`

	// Handler names the handler binding for this type, resolved through
	// the registry's handler table.
	Handler string `yaml:"handler,omitempty"`
}

// RequiresRender reports whether the type binds an external render tool.
func (t *TypeDefinition) RequiresRender() bool {
	return len(t.RenderCommand) > 0
}

// InferenceRule assigns a relation type when its constrained dimensions
// all equal the relation's context. Empty dimensions are wildcards.
// Specificity is the count of constrained dimensions.
type InferenceRule struct {
	// Selector constrains the link selector (e.g. "@", "#").
	Selector string `yaml:"selector,omitempty"`

	// SourceAttribute constrains the source attribute name, or the
	// ir.RelationSourceBody sentinel for body-text links.
	SourceAttribute string `yaml:"source_attribute,omitempty"`

	// SourceType constrains the source object's type.
	SourceType string `yaml:"source_type,omitempty"`

	// TargetType constrains the resolved target's type, or the
	// ir.RelationTargetUnresolved sentinel.
	TargetType string `yaml:"target_type,omitempty"`

	// RelationType is the relation type assigned when the rule wins.
	RelationType string `yaml:"relation_type"`
}

// Specificity returns the count of constrained dimensions.
func (r *InferenceRule) Specificity() int {
	n := 0
	if r.Selector != "" {
		n++
	}
	if r.SourceAttribute != "" {
		n++
	}
	if r.SourceType != "" {
		n++
	}
	if r.TargetType != "" {
		n++
	}
	return n
}

// Matches reports whether every constrained dimension equals the
// corresponding context value.
func (r *InferenceRule) Matches(selector, sourceAttr, sourceType, targetType string) bool {
	if r.Selector != "" && r.Selector != selector {
		return false
	}
	if r.SourceAttribute != "" && r.SourceAttribute != sourceAttr {
		return false
	}
	if r.SourceType != "" && r.SourceType != sourceType {
		return false
	}
	if r.TargetType != "" && r.TargetType != targetType {
		return false
	}
	return true
}
