// Package pipeline implements the five-phase orchestrator. Phases run
// strictly in order: INITIALIZE, ANALYZE, TRANSFORM, VERIFY, EMIT. Within
// a phase, the participating handlers run in topological order of their
// declared prerequisites, ties broken alphabetically, and each handler's
// phase hook is invoked exactly once with the entire batch of per-document
// contexts. Batch dispatch lets a handler exploit parallelism internally
// (transactional batching, render worker pools) without the orchestrator
// knowing about it.
package pipeline

import (
	"sort"
	"time"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/proof"
	"github.com/specweave/specweave/internal/logging"
)

// Phase names one pipeline phase.
type Phase string

// Phase constants, in execution order.
const (
	PhaseInitialize Phase = "INITIALIZE"
	PhaseAnalyze    Phase = "ANALYZE"
	PhaseTransform  Phase = "TRANSFORM"
	PhaseVerify     Phase = "VERIFY"
	PhaseEmit       Phase = "EMIT"
)

// Phases lists all phases in execution order.
var Phases = []Phase{PhaseInitialize, PhaseAnalyze, PhaseTransform, PhaseVerify, PhaseEmit}

// Handler is the registration surface every handler must provide. A
// handler additionally implements one or more of the per-phase hook
// interfaces below; it participates only in phases whose hook it exposes.
type Handler interface {
	// Name is the handler's unique registration key.
	Name() string

	// Prerequisites lists handler names that must run earlier within any
	// shared phase. The list must be non-nil (empty is fine) and is
	// restricted to participating handlers when ordering each phase.
	Prerequisites() []string
}

// Initializer is the INITIALIZE hook: populate the IR from document trees.
type Initializer interface {
	Initialize(ctxs []*Context) error
}

// Analyzer is the ANALYZE hook: resolve and infer relations.
type Analyzer interface {
	Analyze(ctxs []*Context) error
}

// Transformer is the TRANSFORM hook: materialize views, dispatch external
// renders, assign float numbers.
type Transformer interface {
	Transform(ctxs []*Context) error
}

// Verifier is the VERIFY hook: run proof views and attach diagnostics.
type Verifier interface {
	Verify(ctxs []*Context) error
}

// Emitter is the EMIT hook: assemble outputs and refresh caches.
type Emitter interface {
	Emit(ctxs []*Context) error
}

// Orchestrator sequences the phases over a registered handler set. All
// cache and registration state is scoped to the instance; create one per
// run.
type Orchestrator struct {
	handlers map[string]Handler
	order    []string // registration order, for stable iteration
}

// NewOrchestrator returns an empty orchestrator.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registration fails if the handler lacks a
// name, lacks a prerequisites list, or duplicates an already-registered
// name.
func (o *Orchestrator) Register(h Handler) error {
	if h == nil || h.Name() == "" {
		return errors.NewRegistration("", "handler lacks a name")
	}
	if h.Prerequisites() == nil {
		return errors.NewRegistration(h.Name(), "handler lacks a prerequisites list")
	}
	if _, exists := o.handlers[h.Name()]; exists {
		return errors.NewRegistration(h.Name(), "duplicate handler name")
	}
	o.handlers[h.Name()] = h
	o.order = append(o.order, h.Name())
	return nil
}

// participates reports whether a handler exposes the hook for a phase.
func participates(h Handler, phase Phase) bool {
	switch phase {
	case PhaseInitialize:
		_, ok := h.(Initializer)
		return ok
	case PhaseAnalyze:
		_, ok := h.(Analyzer)
		return ok
	case PhaseTransform:
		_, ok := h.(Transformer)
		return ok
	case PhaseVerify:
		_, ok := h.(Verifier)
		return ok
	case PhaseEmit:
		_, ok := h.(Emitter)
		return ok
	}
	return false
}

// invoke dispatches one handler's hook for a phase.
func invoke(h Handler, phase Phase, ctxs []*Context) error {
	switch phase {
	case PhaseInitialize:
		return h.(Initializer).Initialize(ctxs)
	case PhaseAnalyze:
		return h.(Analyzer).Analyze(ctxs)
	case PhaseTransform:
		return h.(Transformer).Transform(ctxs)
	case PhaseVerify:
		return h.(Verifier).Verify(ctxs)
	case PhaseEmit:
		return h.(Emitter).Emit(ctxs)
	}
	return nil
}

// PhaseOrder computes the execution order for one phase: the subset of
// registered handlers participating in the phase, topologically sorted by
// prerequisites (restricted to participants) using Kahn's algorithm, ties
// broken alphabetically by handler name. Re-running on the same handler
// set is deterministic. A cycle fails with an error enumerating the
// unresolved handler names.
func (o *Orchestrator) PhaseOrder(phase Phase) ([]Handler, error) {
	var names []string
	for _, name := range o.order {
		if participates(o.handlers[name], phase) {
			names = append(names, name)
		}
	}
	participant := map[string]bool{}
	for _, n := range names {
		participant[n] = true
	}

	// In-degree over prerequisites restricted to participants.
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for _, n := range names {
		indegree[n] = 0
	}
	for _, n := range names {
		for _, pre := range o.handlers[n].Prerequisites() {
			if !participant[pre] {
				continue
			}
			indegree[n]++
			dependents[pre] = append(dependents[pre], n)
		}
	}

	// Kahn's algorithm with an alphabetically ordered frontier.
	var frontier []string
	for _, n := range names {
		if indegree[n] == 0 {
			frontier = append(frontier, n)
		}
	}
	sort.Strings(frontier)

	var ordered []Handler
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		ordered = append(ordered, o.handlers[n])
		for _, dep := range dependents[n] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
		sort.Strings(frontier)
	}

	if len(ordered) != len(names) {
		var unresolved []string
		done := map[string]bool{}
		for _, h := range ordered {
			done[h.Name()] = true
		}
		for _, n := range names {
			if !done[n] {
				unresolved = append(unresolved, n)
			}
		}
		sort.Strings(unresolved)
		return nil, &errors.CycleError{Phase: string(phase), Unordered: unresolved}
	}
	return ordered, nil
}

// Execute runs all five phases over the batch. After VERIFY, the
// accumulated diagnostics are checked: any error-severity diagnostic
// skips EMIT entirely. TRANSFORM's side effects remain, but no output is
// written; this is a deliberate all-or-nothing publication gate for the
// whole batch.
func (o *Orchestrator) Execute(ctxs []*Context) ([]proof.Diagnostic, error) {
	for _, phase := range Phases {
		ordered, err := o.PhaseOrder(phase)
		if err != nil {
			return o.collectDiagnostics(ctxs), err
		}

		if phase == PhaseEmit {
			diags := o.collectDiagnostics(ctxs)
			if proof.HasErrors(diags) {
				logging.Warn("emit_skipped", "reason", "error diagnostics after VERIFY",
					"diagnostics", len(diags))
				return diags, nil
			}
		}

		start := time.Now()
		logging.PhaseStart(string(phase), len(ordered), len(ctxs))
		for _, h := range ordered {
			logging.HandlerDispatch(string(phase), h.Name())
			if err := invoke(h, phase, ctxs); err != nil {
				return o.collectDiagnostics(ctxs), errors.Wrapf(err, "phase %s handler %s", phase, h.Name())
			}
		}
		logging.PhaseDone(string(phase), time.Since(start))
	}
	return o.collectDiagnostics(ctxs), nil
}

// collectDiagnostics flattens per-context diagnostics in batch order.
func (o *Orchestrator) collectDiagnostics(ctxs []*Context) []proof.Diagnostic {
	var out []proof.Diagnostic
	for _, ctx := range ctxs {
		out = append(out, ctx.Diagnostics...)
	}
	return out
}
