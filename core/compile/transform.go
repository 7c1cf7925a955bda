package compile

import (
	"context"

	"github.com/specweave/specweave/core/buildcache"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/core/proof"
	"github.com/specweave/specweave/core/render"
	"github.com/specweave/specweave/internal/logging"
)

// transformHandler assigns float numbers, materializes views through
// their bound handlers, and dispatches external render tasks as one
// bounded subprocess pool across the whole batch. A failed view or render
// leaves resolved content null; the view-failure and render-failure
// proofs surface it.
type transformHandler struct {
	c   *Compiler
	ctx context.Context
}

func (h *transformHandler) Name() string            { return "materialize" }
func (h *transformHandler) Prerequisites() []string { return []string{} }

func (h *transformHandler) Transform(ctxs []*pipeline.Context) error {
	all := snapshots(ctxs)

	// Render tasks are collected batch-wide, filtered against the
	// persisted render cache, and dispatched once, so the pool bound
	// applies across documents and unchanged inputs skip the subprocess
	// entirely.
	var tasks []render.Task
	floatByKey := map[string]*ir.Float{}
	hashByKey := map[string]string{}

	for _, pc := range ctxs {
		if pc.Snapshot == nil {
			continue
		}
		h.numberFloats(pc)
		h.materializeViews(pc, all)

		for _, f := range pc.Snapshot.Floats {
			if f.ResolvedContent != nil {
				continue
			}
			td := h.c.registry.Resolve(pc.Model, model.CategoryFloat, f.TypeRef)
			if td == nil || !td.RequiresRender() {
				continue
			}

			inputHash := buildcache.RenderInputHash(f.RawContent, td.RenderCommand)
			content, ok, err := h.c.cache.CachedRender(f.Key, inputHash)
			if err != nil {
				return err
			}
			if ok {
				f.ResolvedContent = &content
				continue
			}

			tasks = append(tasks, render.Task{
				ID:      f.Key,
				Command: td.RenderCommand[0],
				Args:    td.RenderCommand[1:],
				Stdin:   []byte(f.RawContent),
				Dir:     pc.BuildDir,
			})
			floatByKey[f.Key] = f
			hashByKey[f.Key] = inputHash
		}
	}

	if len(tasks) > 0 {
		for _, out := range h.c.pool.Run(h.ctx, tasks) {
			f := floatByKey[out.ID]
			if f == nil {
				continue
			}
			if out.Success {
				content := string(out.Stdout)
				f.ResolvedContent = &content
				if err := h.c.cache.RefreshRender(out.ID, hashByKey[out.ID], content); err != nil {
					return err
				}
			} else {
				logging.Warn("render_failed", "float", out.ID, "stderr", string(out.Stderr))
			}
		}
	}

	for _, pc := range ctxs {
		if pc.Snapshot == nil {
			continue
		}
		if err := h.c.store.UpdateFloats(pc.Snapshot.Floats); err != nil {
			return err
		}
		if err := h.c.store.UpdateViews(pc.Snapshot.Views); err != nil {
			return err
		}
	}
	return nil
}

// numberFloats assigns per-counter-group numbers in document order.
// Counters are scoped to the specification; the counter group defaults to
// the float type's own identifier at registry load.
func (h *transformHandler) numberFloats(pc *pipeline.Context) {
	counters := map[string]int{}
	for _, f := range pc.Snapshot.Floats {
		group := f.TypeRef
		if td := h.c.registry.Resolve(pc.Model, model.CategoryFloat, f.TypeRef); td != nil && td.CounterGroup != "" {
			group = td.CounterGroup
		}
		counters[group]++
		f.Number = counters[group]
	}
}

// materializeViews runs each view through its bound handler. A view whose
// type binds no materializer, or whose materializer fails, keeps null
// resolved content.
func (h *transformHandler) materializeViews(pc *pipeline.Context, all []*ir.Snapshot) {
	if len(pc.Snapshot.Views) == 0 {
		return
	}
	env := &proof.Env{Registry: h.c.registry, Model: pc.Model, All: all}
	for _, v := range pc.Snapshot.Views {
		bound := h.c.registry.HandlerFor(pc.Model, v.ViewTypeRef)
		m, ok := bound.(ViewMaterializer)
		if !ok {
			continue
		}
		content, err := m.Materialize(v, pc.Snapshot, env)
		if err != nil {
			logging.Warn("view_failed", "view", v.ViewTypeRef, "param", v.RawParam, "error", err)
			continue
		}
		v.ResolvedContent = &content
	}
}
