package compile

import (
	"github.com/specweave/specweave/core/assemble"
	"github.com/specweave/specweave/core/buildcache"
	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/internal/logging"
)

// Output format keys.
const (
	FormatTree   = "tree"
	FormatTreeXZ = "tree.xz"
	FormatReqIF  = "reqif"
)

// emitHandler assembles the output tree per document and writes the
// requested artifacts, skipping any whose cached processed-IR hash is
// current. After a successful emit it refreshes the file-hash cache and
// rebuilds the pivot views.
type emitHandler struct {
	c *Compiler
}

func (h *emitHandler) Name() string            { return "emit" }
func (h *emitHandler) Prerequisites() []string { return []string{} }

func (h *emitHandler) Emit(ctxs []*pipeline.Context) error {
	var modelName string
	for _, pc := range ctxs {
		if pc.Snapshot == nil {
			continue
		}
		modelName = pc.Model
		if err := h.emitOne(pc); err != nil {
			return err
		}
	}
	if modelName != "" {
		if err := h.c.store.RebuildPivotViews(h.c.registry, modelName); err != nil {
			return err
		}
	}
	return nil
}

// emitOne writes one document's artifacts and refreshes its cache rows.
func (h *emitHandler) emitOne(pc *pipeline.Context) error {
	pirHash := buildcache.PIRHash(pc.Snapshot)
	tree := assemble.Assemble(pc.Snapshot, h.c.registry, pc.Model)

	for _, out := range pc.Outputs {
		current, err := h.c.cache.IsOutputCurrent(pc.Snapshot.Spec.PID, out.Path, pirHash)
		if err != nil {
			return err
		}
		if current {
			logging.CacheDecision(out.Path, false, "output current")
			continue
		}

		switch out.Format {
		case FormatTree, FormatTreeXZ:
			err = assemble.WriteJSON(tree, out.Path)
		case FormatReqIF:
			err = assemble.ExportReqIF(pc.Snapshot, h.c.registry, pc.Model, out.Path)
		default:
			err = errors.NewRegistration(out.Format, "unknown output format")
		}
		if err != nil {
			return err
		}
		if err := h.c.cache.RefreshOutput(pc.Snapshot.Spec.PID, out.Path, pirHash); err != nil {
			return err
		}
		logging.Info("artifact_written", "path", out.Path, "format", out.Format)
	}

	if hashes, ok := h.c.hashes[pc.Doc.Path]; ok {
		if err := h.c.cache.Refresh(pc.Doc.Path, hashes.root, hashes.includes); err != nil {
			return err
		}
	}
	return nil
}
