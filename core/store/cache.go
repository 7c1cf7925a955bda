package store

import (
	"database/sql"

	"github.com/specweave/specweave/core/errors"
)

// cache.go - accessors for the persisted build-cache tables. These tables
// survive across runs and are the sole mechanism for incremental-build
// decisions; see core/buildcache for the dirtiness logic itself.

// FileHash returns the cached content hash for a source path. ok is
// false when the path has never been cached.
func (s *Store) FileHash(path string) (hash string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT hash FROM file_hashes WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read file hash")
	}
	return hash, true, nil
}

// SetFileHash refreshes the cached content hash for a source path.
func (s *Store) SetFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO file_hashes (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash`, path, hash)
	return errors.Wrap(err, "write file hash")
}

// Includes returns the persisted include dependency list for a root
// document, in stable order.
func (s *Store) Includes(root string) ([]string, error) {
	var out []string
	err := queryRows(s.db,
		`SELECT include FROM include_deps WHERE root = ? ORDER BY include`, root,
		func(rows *sql.Rows) error {
			var inc string
			if err := rows.Scan(&inc); err != nil {
				return err
			}
			out = append(out, inc)
			return nil
		})
	return out, errors.Wrap(err, "read include deps")
}

// SetIncludes replaces the include dependency list for a root document.
func (s *Store) SetIncludes(root string, includes []string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM include_deps WHERE root = ?`, root); err != nil {
			return errors.Wrap(err, "clear include deps")
		}
		for _, inc := range includes {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO include_deps (root, include) VALUES (?, ?)`, root, inc); err != nil {
				return errors.Wrap(err, "write include dep")
			}
		}
		return nil
	})
}

// OutputHash returns the processed-IR hash cached at the last successful
// generation of an output artifact.
func (s *Store) OutputHash(specPID, outputPath string) (hash string, ok bool, err error) {
	err = s.db.QueryRow(
		`SELECT pir_hash FROM output_hashes WHERE spec_pid = ? AND output_path = ?`,
		specPID, outputPath).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read output hash")
	}
	return hash, true, nil
}

// RenderContent returns the render output cached for a float. ok is false
// when the float has never been rendered or when the cached input hash no
// longer matches.
func (s *Store) RenderContent(floatKey, inputHash string) (content string, ok bool, err error) {
	var cachedHash string
	err = s.db.QueryRow(
		`SELECT input_hash, content FROM render_cache WHERE float_key = ?`,
		floatKey).Scan(&cachedHash, &content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read render cache")
	}
	if cachedHash != inputHash {
		return "", false, nil
	}
	return content, true, nil
}

// SetRenderContent caches a successful render's output keyed by the
// float's input hash.
func (s *Store) SetRenderContent(floatKey, inputHash, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO render_cache (float_key, input_hash, content) VALUES (?, ?, ?)
		 ON CONFLICT(float_key) DO UPDATE SET input_hash = excluded.input_hash, content = excluded.content`,
		floatKey, inputHash, content)
	return errors.Wrap(err, "write render cache")
}

// SetOutputHash refreshes the cached processed-IR hash for an output
// artifact after a successful generation.
func (s *Store) SetOutputHash(specPID, outputPath, pirHash string) error {
	_, err := s.db.Exec(
		`INSERT INTO output_hashes (spec_pid, output_path, pir_hash) VALUES (?, ?, ?)
		 ON CONFLICT(spec_pid, output_path) DO UPDATE SET pir_hash = excluded.pir_hash`,
		specPID, outputPath, pirHash)
	return errors.Wrap(err, "write output hash")
}
