package pipeline

import (
	"github.com/google/uuid"

	"github.com/specweave/specweave/core/document"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/proof"
)

// OutputTarget names one artifact a document should produce during EMIT.
type OutputTarget struct {
	// Format is the output format key (e.g. "tree", "tree.xz", "reqif").
	Format string

	// Path is the artifact path to write.
	Path string
}

// Context carries one document's state across all five phases. Handlers
// mutate it in place: INITIALIZE attaches the specification, ANALYZE and
// TRANSFORM update IR state through the store, VERIFY attaches
// diagnostics, and EMIT reads everything to assemble outputs.
type Context struct {
	// RunID identifies the pipeline run this context belongs to.
	RunID string

	// Doc is the parsed document tree handle.
	Doc *document.Document

	// Model is the resolved model name for this document.
	Model string

	// Spec is the populated specification, set by INITIALIZE.
	Spec *ir.Specification

	// Snapshot is the latest IR image loaded from the store; refreshed
	// by phases that need a consistent read.
	Snapshot *ir.Snapshot

	// Dirty reports whether the document needed reprocessing; clean
	// documents still flow through phases so cross-document resolution
	// sees them, but EMIT may skip regenerating their outputs.
	Dirty bool

	// Outputs are the artifacts to produce during EMIT.
	Outputs []OutputTarget

	// BuildDir is the working directory for render tasks and artifacts.
	BuildDir string

	// Diagnostics accumulate from VERIFY onward.
	Diagnostics []proof.Diagnostic
}

// NewContext builds a context for one document. All contexts of a batch
// share a RunID.
func NewContext(runID string, doc *document.Document, modelName string) *Context {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Context{
		RunID: runID,
		Doc:   doc,
		Model: modelName,
	}
}

// NewRunID returns a fresh pipeline run identifier.
func NewRunID() string {
	return uuid.NewString()
}
