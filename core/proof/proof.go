// Package proof implements the proof-view validator: named, declarative
// predicates over an IR snapshot, each producing zero or more violating
// rows convertible to human-readable diagnostics.
//
// Every proof carries a policy key; the active policy maps each key to
// error, warn, or ignore, letting adopters ratchet strictness
// incrementally. Running proofs never mutates the IR. Adding a proof
// never requires touching pipeline control flow: the orchestrator only
// consults the resulting diagnostics.
package proof

import (
	"fmt"
	"sort"

	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
)

// Severity is the policy-assigned weight of a proof's violations.
type Severity string

// Severity constants.
const (
	SeverityError  Severity = "error"
	SeverityWarn   Severity = "warn"
	SeverityIgnore Severity = "ignore"
)

// validSeverities is the set of valid severities.
var validSeverities = map[Severity]bool{
	SeverityError:  true,
	SeverityWarn:   true,
	SeverityIgnore: true,
}

// IsValid returns true if the severity is valid.
func (s Severity) IsValid() bool {
	return validSeverities[s]
}

// Policy maps proof policy keys to severities. Keys absent from the
// policy get the proof's default severity.
type Policy map[string]Severity

// SeverityOf returns the effective severity for a policy key.
func (p Policy) SeverityOf(key string, def Severity) Severity {
	if s, ok := p[key]; ok && s.IsValid() {
		return s
	}
	return def
}

// Violation is one violating row found by a proof.
type Violation struct {
	// Path is the source file the violation belongs to.
	Path string

	// Line is the source line, 0 when unknown.
	Line int

	// Message is the human-readable description.
	Message string
}

// Diagnostic is a violation stamped with its proof and severity, the
// shape the orchestrator consults to gate EMIT.
type Diagnostic struct {
	// Proof is the reporting proof's name.
	Proof string

	// PolicyKey is the proof's policy key.
	PolicyKey string

	// Severity is the policy-resolved severity.
	Severity Severity

	// Violation is the underlying row.
	Violation
}

// String renders the diagnostic as file:line: severity: message.
func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s [%s]", d.Path, d.Line, d.Severity, d.Message, d.PolicyKey)
	}
	if d.Path != "" {
		return fmt.Sprintf("%s: %s: %s [%s]", d.Path, d.Severity, d.Message, d.PolicyKey)
	}
	return fmt.Sprintf("%s: %s [%s]", d.Severity, d.Message, d.PolicyKey)
}

// Env is the read-only context proofs evaluate against: the type
// registry, the active model, and every snapshot in the batch (for
// cross-document proofs like duplicate PIDs).
type Env struct {
	Registry *model.Registry
	Model    string
	All      []*ir.Snapshot
}

// Proof is one declarative predicate over the IR.
type Proof interface {
	// Name identifies the proof in diagnostics.
	Name() string

	// PolicyKey selects the policy entry controlling this proof.
	PolicyKey() string

	// DefaultSeverity applies when the policy does not mention the key.
	DefaultSeverity() Severity

	// Run evaluates the predicate against one snapshot. It must not
	// mutate the snapshot.
	Run(snap *ir.Snapshot, env *Env) []Violation
}

// Validator runs a fixed set of proofs under a policy.
type Validator struct {
	proofs []Proof
	policy Policy
}

// NewValidator builds a validator over the given proofs. A nil proofs
// slice means the builtin set.
func NewValidator(proofs []Proof, policy Policy) *Validator {
	if proofs == nil {
		proofs = Builtin()
	}
	return &Validator{proofs: proofs, policy: policy}
}

// Run evaluates every non-ignored proof against every snapshot and
// returns the accumulated diagnostics, ordered by proof name then
// snapshot order for determinism.
func (v *Validator) Run(snaps []*ir.Snapshot, reg *model.Registry, modelName string) []Diagnostic {
	env := &Env{Registry: reg, Model: modelName, All: snaps}

	ordered := append([]Proof(nil), v.proofs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name() < ordered[j].Name() })

	var out []Diagnostic
	for _, p := range ordered {
		sev := v.policy.SeverityOf(p.PolicyKey(), p.DefaultSeverity())
		if sev == SeverityIgnore {
			continue
		}
		for _, snap := range snaps {
			for _, viol := range p.Run(snap, env) {
				out = append(out, Diagnostic{
					Proof:     p.Name(),
					PolicyKey: p.PolicyKey(),
					Severity:  sev,
					Violation: viol,
				})
			}
		}
	}
	return out
}

// HasErrors reports whether any diagnostic carries error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
