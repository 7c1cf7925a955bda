package document

import (
	"encoding/json"
	"os"

	"github.com/specweave/specweave/core/errors"
)

// LoadFile reads a serialized document tree. The JSON shape is the input
// contract an external front end produces; the core never parses raw
// Markdown itself.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}

	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.NewParse("document", path, err.Error())
	}
	if d.Root == nil || d.Root.Kind != KindDocument {
		return nil, errors.NewParse("document", path, "root node must be a document")
	}
	if d.Path == "" {
		d.Path = path
	}
	return &d, nil
}
