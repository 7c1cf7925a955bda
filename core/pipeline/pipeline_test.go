package pipeline

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/proof"
)

// fakeHandler participates in the phases whose hook flags are set and
// records invocations into trace.
type fakeHandler struct {
	name    string
	prereqs []string
	trace   *[]string
}

func (f *fakeHandler) Name() string            { return f.name }
func (f *fakeHandler) Prerequisites() []string { return f.prereqs }

func (f *fakeHandler) record(phase string) {
	if f.trace != nil {
		*f.trace = append(*f.trace, string(phase)+":"+f.name)
	}
}

// initOnly participates only in INITIALIZE.
type initOnly struct{ fakeHandler }

func (h *initOnly) Initialize(ctxs []*Context) error { h.record("INITIALIZE"); return nil }

// emitOnly participates only in EMIT.
type emitOnly struct{ fakeHandler }

func (h *emitOnly) Emit(ctxs []*Context) error { h.record("EMIT"); return nil }

// diagVerifier attaches a fixed diagnostic during VERIFY.
type diagVerifier struct {
	fakeHandler
	severity proof.Severity
}

func (h *diagVerifier) Verify(ctxs []*Context) error {
	h.record("VERIFY")
	for _, pc := range ctxs {
		pc.Diagnostics = append(pc.Diagnostics, proof.Diagnostic{
			Proof:     "fake",
			PolicyKey: "fake",
			Severity:  h.severity,
			Violation: proof.Violation{Message: "fake violation"},
		})
	}
	return nil
}

func TestRegisterErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
	}{
		{name: "nil handler", handler: nil},
		{name: "empty name", handler: &initOnly{fakeHandler{name: "", prereqs: []string{}}}},
		{name: "nil prerequisites", handler: &initOnly{fakeHandler{name: "a", prereqs: nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator()
			if err := o.Register(tt.handler); err == nil {
				t.Error("expected registration error")
			}
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		o := NewOrchestrator()
		if err := o.Register(&initOnly{fakeHandler{name: "a", prereqs: []string{}}}); err != nil {
			t.Fatalf("first registration failed: %v", err)
		}
		if err := o.Register(&initOnly{fakeHandler{name: "a", prereqs: []string{}}}); err == nil {
			t.Error("expected duplicate-name error")
		}
	})
}

func TestPhaseOrderDeterministic(t *testing.T) {
	// c depends on a and b; a and b are tied and must order
	// alphabetically. d is independent.
	o := NewOrchestrator()
	for _, h := range []Handler{
		&initOnly{fakeHandler{name: "d", prereqs: []string{}}},
		&initOnly{fakeHandler{name: "c", prereqs: []string{"a", "b"}}},
		&initOnly{fakeHandler{name: "b", prereqs: []string{}}},
		&initOnly{fakeHandler{name: "a", prereqs: []string{}}},
	} {
		if err := o.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	var first []string
	for run := 0; run < 10; run++ {
		ordered, err := o.PhaseOrder(PhaseInitialize)
		if err != nil {
			t.Fatalf("PhaseOrder: %v", err)
		}
		var names []string
		for _, h := range ordered {
			names = append(names, h.Name())
		}

		pos := map[string]int{}
		for i, n := range names {
			pos[n] = i
		}
		if pos["c"] < pos["a"] || pos["c"] < pos["b"] {
			t.Fatalf("c ran before a prerequisite: %v", names)
		}
		if pos["a"] > pos["b"] {
			t.Fatalf("alphabetical tie-break violated: %v", names)
		}

		if run == 0 {
			first = names
		} else if !reflect.DeepEqual(names, first) {
			t.Fatalf("order changed between runs: %v vs %v", first, names)
		}
	}
}

func TestPhaseOrderIgnoresNonParticipants(t *testing.T) {
	// b's prerequisite only participates in EMIT, so it must not
	// constrain INITIALIZE ordering.
	o := NewOrchestrator()
	if err := o.Register(&emitOnly{fakeHandler{name: "a", prereqs: []string{}}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Register(&initOnly{fakeHandler{name: "b", prereqs: []string{"a"}}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ordered, err := o.PhaseOrder(PhaseInitialize)
	if err != nil {
		t.Fatalf("PhaseOrder: %v", err)
	}
	if len(ordered) != 1 || ordered[0].Name() != "b" {
		t.Errorf("unexpected INITIALIZE order: %v", ordered)
	}
}

func TestPhaseOrderCycle(t *testing.T) {
	o := NewOrchestrator()
	if err := o.Register(&initOnly{fakeHandler{name: "x", prereqs: []string{"y"}}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Register(&initOnly{fakeHandler{name: "y", prereqs: []string{"x"}}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := o.PhaseOrder(PhaseInitialize)
	var cycleErr *errors.CycleError
	if !stderrors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if !reflect.DeepEqual(cycleErr.Unordered, []string{"x", "y"}) {
		t.Errorf("unresolved names = %v, want [x y]", cycleErr.Unordered)
	}
}

func TestExecuteGatesEmitOnErrors(t *testing.T) {
	tests := []struct {
		name     string
		severity proof.Severity
		wantEmit bool
	}{
		{name: "error severity skips EMIT", severity: proof.SeverityError, wantEmit: false},
		{name: "warn severity proceeds to EMIT", severity: proof.SeverityWarn, wantEmit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var trace []string
			o := NewOrchestrator()
			if err := o.Register(&diagVerifier{
				fakeHandler: fakeHandler{name: "verify", prereqs: []string{}, trace: &trace},
				severity:    tt.severity,
			}); err != nil {
				t.Fatalf("register: %v", err)
			}
			if err := o.Register(&emitOnly{fakeHandler{name: "emit", prereqs: []string{}, trace: &trace}}); err != nil {
				t.Fatalf("register: %v", err)
			}

			ctxs := []*Context{NewContext("", nil, "default")}
			diags, err := o.Execute(ctxs)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if len(diags) != 1 {
				t.Fatalf("diagnostics = %d, want 1", len(diags))
			}

			emitted := false
			for _, ev := range trace {
				if ev == "EMIT:emit" {
					emitted = true
				}
			}
			if emitted != tt.wantEmit {
				t.Errorf("emit ran = %v, want %v (trace %v)", emitted, tt.wantEmit, trace)
			}
		})
	}
}

func TestNewContextRunID(t *testing.T) {
	pc := NewContext("", nil, "default")
	if pc.RunID == "" {
		t.Error("expected a generated run ID")
	}
	pc2 := NewContext("fixed", nil, "default")
	if pc2.RunID != "fixed" {
		t.Errorf("RunID = %q, want fixed", pc2.RunID)
	}
}
