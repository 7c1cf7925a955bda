package compile

import (
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/core/proof"
)

// verifyHandler runs the proof views over the whole batch and routes each
// diagnostic to the context owning the violating path. Cross-document
// proofs (duplicate PIDs) need the full batch, so validation runs once,
// not per document.
type verifyHandler struct {
	c *Compiler
}

func (h *verifyHandler) Name() string            { return "proofs" }
func (h *verifyHandler) Prerequisites() []string { return []string{} }

func (h *verifyHandler) Verify(ctxs []*pipeline.Context) error {
	all := snapshots(ctxs)
	if len(all) == 0 {
		return nil
	}

	byPath := map[string]*pipeline.Context{}
	var first *pipeline.Context
	for _, pc := range ctxs {
		if pc.Snapshot == nil {
			continue
		}
		if first == nil {
			first = pc
		}
		byPath[pc.Snapshot.Spec.Path] = pc
	}

	validator := proof.NewValidator(h.c.proofs, h.c.policy)
	for _, d := range validator.Run(all, h.c.registry, first.Model) {
		owner := byPath[d.Path]
		if owner == nil {
			owner = first
		}
		owner.Diagnostics = append(owner.Diagnostics, d)
	}
	return nil
}
