// Package buildcache gates reprocessing with content hashing and a
// persisted build-dependency graph. Document dirtiness is a hash-mismatch
// test against a prior run's cached hash; output currency compares a
// digest over the full processed-IR state of a specification ("P-IR
// hash") against the hash cached at the last successful generation, which
// detects IR-level changes a source-file hash alone would miss.
package buildcache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/store"
	"github.com/specweave/specweave/internal/logging"
)

// Cache wraps the store's persisted cache tables with the dirtiness
// rules. The tables are the sole cross-run state.
type Cache struct {
	store *store.Store
}

// New builds a cache over a store.
func New(s *store.Store) *Cache {
	return &Cache{store: s}
}

// HashBytes computes the BLAKE3 hash of data as a hex string.
func HashBytes(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashFile computes the BLAKE3 hash of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewIO("open", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.NewIO("read", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsDirty reports whether a document needs reprocessing: its current
// hash differs from the cached one. A missing cache entry is always
// dirty.
func (c *Cache) IsDirty(path, currentHash string) (bool, error) {
	cached, ok, err := c.store.FileHash(path)
	if err != nil {
		return true, err
	}
	if !ok {
		logging.CacheDecision(path, true, "no cached hash")
		return true, nil
	}
	dirty := cached != currentHash
	if dirty {
		logging.CacheDecision(path, true, "hash mismatch")
	} else {
		logging.CacheDecision(path, false, "hash match")
	}
	return dirty, nil
}

// IsDirtyWithIncludes additionally walks the persisted dependency graph
// for the root. A previously-tracked include with no current hash in
// includeHashes is treated as dirty (fail safe, not fail silent), never
// as "no longer included".
func (c *Cache) IsDirtyWithIncludes(root, rootHash string, includeHashes map[string]string) (bool, error) {
	if dirty, err := c.IsDirty(root, rootHash); err != nil || dirty {
		return true, err
	}

	tracked, err := c.store.Includes(root)
	if err != nil {
		return true, err
	}
	for _, inc := range tracked {
		current, ok := includeHashes[inc]
		if !ok {
			logging.CacheDecision(inc, true, "tracked include has no current hash")
			return true, nil
		}
		cached, found, err := c.store.FileHash(inc)
		if err != nil {
			return true, err
		}
		if !found || cached != current {
			logging.CacheDecision(inc, true, "include hash mismatch")
			return true, nil
		}
	}
	return false, nil
}

// Refresh caches the current hashes for a root document and its
// includes after a successful build, replacing the dependency graph.
func (c *Cache) Refresh(root, rootHash string, includeHashes map[string]string) error {
	if err := c.store.SetFileHash(root, rootHash); err != nil {
		return err
	}
	includes := make([]string, 0, len(includeHashes))
	for inc, h := range includeHashes {
		if err := c.store.SetFileHash(inc, h); err != nil {
			return err
		}
		includes = append(includes, inc)
	}
	return c.store.SetIncludes(root, includes)
}

// IsOutputCurrent reports whether an output artifact is up to date with
// the specification's processed IR.
func (c *Cache) IsOutputCurrent(specPID, outputPath, pirHash string) (bool, error) {
	cached, ok, err := c.store.OutputHash(specPID, outputPath)
	if err != nil {
		return false, err
	}
	return ok && cached == pirHash, nil
}

// RefreshOutput caches the processed-IR hash for an output artifact
// after a successful generation.
func (c *Cache) RefreshOutput(specPID, outputPath, pirHash string) error {
	return c.store.SetOutputHash(specPID, outputPath, pirHash)
}

// RenderInputHash digests the inputs of one external render task: the
// float's raw content and the command line that transforms it. A matching
// hash means re-running the tool would reproduce the cached output.
func RenderInputHash(rawContent string, command []string) string {
	h := blake3.New()
	h.Write([]byte(rawContent))
	h.Write([]byte{0})
	for _, arg := range command {
		h.Write([]byte(arg))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CachedRender returns the render output cached for a float, valid only
// while the render input hash is unchanged.
func (c *Cache) CachedRender(floatKey, inputHash string) (string, bool, error) {
	content, ok, err := c.store.RenderContent(floatKey, inputHash)
	if err != nil {
		return "", false, err
	}
	if ok {
		logging.CacheDecision(floatKey, false, "render input unchanged")
	}
	return content, ok, nil
}

// RefreshRender caches a render output after the tool succeeded.
func (c *Cache) RefreshRender(floatKey, inputHash, content string) error {
	return c.store.SetRenderContent(floatKey, inputHash, content)
}

// PIRHash computes the processed-IR digest for one specification: a
// deterministic BLAKE3 digest over every object, relation, attribute,
// float, and view row belonging to it, in stable row order.
func PIRHash(snap *ir.Snapshot) string {
	h := blake3.New()

	write := func(format string, args ...interface{}) {
		fmt.Fprintf(h, format, args...)
		h.Write([]byte{0})
	}

	s := snap.Spec
	write("spec|%s|%s|%s|%s", s.TypeRef, s.Title, s.PID, s.Path)
	for _, o := range snap.Objects {
		write("object|%s|%s|%s|%s|%s|%s|%d|%s", o.Key, o.ParentKey, o.TypeRef, o.Title, o.PID, o.Label, o.Level, o.Body)
	}
	for _, f := range snap.Floats {
		write("float|%s|%s|%s|%s|%d|%s|%s|%s", f.Key, f.ParentObjectKey, f.TypeRef, f.Label, f.Number, f.Caption, f.RawContent, deref(f.ResolvedContent))
	}
	for _, r := range snap.Relations {
		write("relation|%s|%s|%s|%s|%s|%t|%s|%t", r.SourceObjectKey, r.TargetText, r.Selector, r.SourceAttribute, deref(r.TargetRef), r.TargetIsFloat, deref(r.TypeRef), r.IsAmbiguous)
	}
	for _, v := range snap.Views {
		write("view|%s|%s|%s|%s", v.ParentObjectKey, v.ViewTypeRef, v.RawParam, deref(v.ResolvedContent))
	}
	for _, a := range snap.Attributes {
		write("attr|%s|%s|%s|%s|%s|%t", a.OwnerKind, a.OwnerKey, a.Name, a.RawValue, a.Datatype, a.CastOK())
	}

	return hex.EncodeToString(h.Sum(nil))
}

// deref renders a nullable string for hashing, distinguishing nil from
// empty.
func deref(s *string) string {
	if s == nil {
		return "\x00nil"
	}
	return *s
}
