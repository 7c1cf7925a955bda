// Package ir defines the relational intermediate representation populated
// from source documents.
//
// Six entity kinds make up the IR: Specification, Object, Float, Relation,
// View, and AttributeValue. All entities are owned by exactly one
// Specification (the root document). Rows are persisted in the relational
// store during INITIALIZE and mutated in place by later phases; a Snapshot
// loaded back from the store in stable row order feeds the proof views,
// the assembler, and the processed-IR digest.
//
// Per-row data problems (cast failures, unresolved relations, invalid
// type references) are never errors here. They are left as detectable IR
// state: null typed columns, null target refs, ambiguity flags. They
// become diagnostics only when a proof view queries for them.
package ir
