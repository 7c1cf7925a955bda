package compile

import (
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/core/relation"
)

// analyzeHandler resolves and types every relation in the batch.
// Resolution runs before inference because inference needs the resolved
// target's type; the two never touch each other's output columns.
type analyzeHandler struct {
	c *Compiler
}

func (h *analyzeHandler) Name() string            { return "relations" }
func (h *analyzeHandler) Prerequisites() []string { return []string{} }

func (h *analyzeHandler) Analyze(ctxs []*pipeline.Context) error {
	all := snapshots(ctxs)

	for _, pc := range ctxs {
		if pc.Snapshot == nil {
			continue
		}
		env := &relation.Env{Current: pc.Snapshot, All: all}
		inf := relation.NewInferrer(h.c.registry.InferenceRules(pc.Model))

		for _, rel := range pc.Snapshot.Relations {
			h.c.resolver.Resolve(rel, env)
			inf.Infer(rel, env)
		}
		if err := h.c.store.UpdateRelations(pc.Snapshot.Relations); err != nil {
			return err
		}
	}
	return nil
}
