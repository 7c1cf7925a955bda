package compile

import (
	"strings"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/proof"
)

// ObjectsView is the built-in "objects" view materializer: it renders a
// Markdown table of the batch's objects, optionally filtered by type
// through a "type=..." parameter. Bind it to a view type via the model's
// handler field and register it on the registry before Run.
type ObjectsView struct{}

// Name returns the handler registration key.
func (ObjectsView) Name() string { return "view.objects" }

// Materialize renders the object table.
func (ObjectsView) Materialize(view *ir.View, snap *ir.Snapshot, env *proof.Env) (string, error) {
	typeFilter, err := parseViewParam(view.RawParam)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("| PID | Type | Title |\n|---|---|---|\n")
	for _, s := range env.All {
		for _, o := range s.Objects {
			if typeFilter != "" && o.TypeRef != typeFilter {
				continue
			}
			b.WriteString("| " + o.PID + " | " + o.TypeRef + " | " + o.Title + " |\n")
		}
	}
	return b.String(), nil
}

// parseViewParam understands the "type=<ref>" parameter form. An empty
// param means no filter; anything else is a materialization failure.
func parseViewParam(param string) (string, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		return "", nil
	}
	if v, ok := strings.CutPrefix(param, "type="); ok && v != "" {
		return v, nil
	}
	return "", errors.NewParse("view", "", "unsupported view parameter: "+param)
}
