// Package compile wires the built-in phase handlers: document trees are
// lowered into IR rows during INITIALIZE, relations are resolved and
// typed during ANALYZE, floats are numbered and views and renders
// materialized during TRANSFORM, proof views run during VERIFY, and
// artifacts are assembled during EMIT. Each built-in handler iterates the
// full batch itself, so cross-document resolution and transactional
// batching happen inside the hooks, not in the orchestrator.
package compile

import (
	"context"

	"github.com/specweave/specweave/core/buildcache"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/core/proof"
	"github.com/specweave/specweave/core/relation"
	"github.com/specweave/specweave/core/render"
	"github.com/specweave/specweave/core/store"
)

// Default type references applied when a heading carries no type
// attribute.
const (
	DefaultSpecificationType = "document"
	DefaultObjectType        = "section"
)

// Reserved heading attribute keys consumed by INITIALIZE itself; every
// other key becomes an EAV attribute row.
const (
	attrPID   = "pid"
	attrType  = "type"
	attrLabel = "label"
)

// ViewMaterializer is the handler capability for view types: given a view
// row and its owning snapshot, produce the materialized content. A
// returned error leaves the view's resolved content null, which the
// view-failure proof surfaces.
type ViewMaterializer interface {
	model.Handler
	Materialize(view *ir.View, snap *ir.Snapshot, env *proof.Env) (string, error)
}

// Options configures a Compiler.
type Options struct {
	// Store is the relational store; the compiler owns it exclusively
	// for the run.
	Store *store.Store

	// Registry is the loaded type registry.
	Registry *model.Registry

	// Policy maps proof policy keys to severities.
	Policy proof.Policy

	// Proofs overrides the builtin proof set; nil means builtin.
	Proofs []proof.Proof

	// RenderWorkers bounds the external render subprocess pool.
	RenderWorkers int
}

// Compiler owns one pipeline run over a document batch. Create one per
// run; cache and counter state is scoped to the instance.
type Compiler struct {
	store    *store.Store
	registry *model.Registry
	cache    *buildcache.Cache
	resolver *relation.Resolver
	pool     *render.Pool
	policy   proof.Policy
	proofs   []proof.Proof

	// hashes carries the per-document content hashes computed during
	// INITIALIZE forward to EMIT's cache refresh.
	hashes map[string]docHashes

	// pidSeq tracks per-type PID sequence numbers across the batch so
	// auto-generated PIDs are globally unique within the run.
	pidSeq map[string]int
}

// docHashes is the hash state of one root document.
type docHashes struct {
	root     string
	includes map[string]string
}

// New builds a compiler over the given options.
func New(opts Options) *Compiler {
	return &Compiler{
		store:    opts.Store,
		registry: opts.Registry,
		cache:    buildcache.New(opts.Store),
		resolver: relation.NewResolver(opts.Registry),
		pool:     render.NewPool(opts.RenderWorkers),
		policy:   opts.Policy,
		proofs:   opts.Proofs,
		hashes:   make(map[string]docHashes),
		pidSeq:   make(map[string]int),
	}
}

// Resolver exposes the run's relation resolver for custom selector
// registration before Run.
func (c *Compiler) Resolver() *relation.Resolver {
	return c.resolver
}

// Run executes all five phases over the batch and returns the
// accumulated diagnostics. ctx bounds external render subprocesses.
func (c *Compiler) Run(ctx context.Context, ctxs []*pipeline.Context) ([]proof.Diagnostic, error) {
	orch := pipeline.NewOrchestrator()
	handlers := []pipeline.Handler{
		&initHandler{c: c},
		&analyzeHandler{c: c},
		&transformHandler{c: c, ctx: ctx},
		&verifyHandler{c: c},
		&emitHandler{c: c},
	}
	for _, h := range handlers {
		if err := orch.Register(h); err != nil {
			return nil, err
		}
	}
	return orch.Execute(ctxs)
}

// snapshots gathers the batch's snapshots in context order, skipping
// contexts INITIALIZE could not populate.
func snapshots(ctxs []*pipeline.Context) []*ir.Snapshot {
	var out []*ir.Snapshot
	for _, pc := range ctxs {
		if pc.Snapshot != nil {
			out = append(out, pc.Snapshot)
		}
	}
	return out
}
