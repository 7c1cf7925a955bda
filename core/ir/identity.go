package ir

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// ObjectKey derives the content-addressed identity for an object from its
// source path, heading line, and title. The key is stable across edits
// that do not touch the heading itself.
func ObjectKey(path string, line int, title string) string {
	h := blake3.Sum256([]byte(path + "\x00" + fmt.Sprintf("%d", line) + "\x00" + title))
	return "obj-" + hex.EncodeToString(h[:16])
}

// FloatKey derives the content-addressed identity for a float from its
// source path, fence line, and label.
func FloatKey(path string, line int, label string) string {
	h := blake3.Sum256([]byte(path + "\x00" + fmt.Sprintf("%d", line) + "\x00" + label))
	return "flt-" + hex.EncodeToString(h[:16])
}

// GeneratePID builds a public identifier from a type identifier and a
// per-type sequence number, used when a heading carries no explicit pid.
func GeneratePID(typeRef string, seq int) string {
	return fmt.Sprintf("%s-%03d", strings.ToUpper(typeRef), seq)
}
