// Package project loads the project-level configuration file
// (specweave.toml) and expands its document globs. The configuration is
// read once per invocation and is read-only afterwards.
package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/proof"
)

// ConfigFile is the project configuration file name.
const ConfigFile = "specweave.toml"

// HomeEnv is the environment variable designating the user model
// directory, searched before the project's local models directory.
const HomeEnv = "SPECWEAVE_HOME"

// Config is the parsed project configuration.
type Config struct {
	// Models are the type-model names to load.
	Models []string `toml:"models"`

	// DefaultModel is the fallback model for type lookups. Defaults to
	// the first entry of Models.
	DefaultModel string `toml:"default_model,omitempty"`

	// Documents are doublestar glob patterns selecting document-tree
	// files (the parsed input contract), relative to the project root.
	Documents []string `toml:"documents"`

	// BuildDir is the working directory for render tasks and artifacts.
	// Defaults to "build".
	BuildDir string `toml:"build_dir,omitempty"`

	// Database is the store path. Defaults to ".specweave.db" under
	// BuildDir.
	Database string `toml:"database,omitempty"`

	// Outputs maps output format keys (tree, tree.xz, reqif) to artifact
	// path templates relative to BuildDir; "{name}" expands to the
	// document's base name.
	Outputs map[string]string `toml:"outputs,omitempty"`

	// Policy maps proof policy keys to error, warn, or ignore.
	Policy map[string]string `toml:"policy,omitempty"`

	// RenderWorkers bounds the external render subprocess pool.
	RenderWorkers int `toml:"render_workers,omitempty"`

	// Root is the directory the configuration was loaded from. Not a
	// file field.
	Root string `toml:"-"`
}

// Load reads and validates the configuration in dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewParse("TOML", path, err.Error())
	}
	cfg.Root = dir
	cfg.applyDefaults()

	if len(cfg.Models) == 0 {
		return nil, errors.NewParse("TOML", path, "at least one model must be configured")
	}
	for key, sev := range cfg.Policy {
		if !proof.Severity(sev).IsValid() {
			return nil, errors.NewParse("TOML", path, "invalid policy severity for "+key+": "+sev)
		}
	}
	return &cfg, nil
}

// applyDefaults fills omitted fields.
func (c *Config) applyDefaults() {
	if c.DefaultModel == "" && len(c.Models) > 0 {
		c.DefaultModel = c.Models[0]
	}
	if c.BuildDir == "" {
		c.BuildDir = "build"
	}
	if c.Database == "" {
		c.Database = filepath.Join(c.BuildDir, ".specweave.db")
	}
	if len(c.Documents) == 0 {
		c.Documents = []string{"**/*.doc.json"}
	}
}

// ProofPolicy converts the raw policy map to the proof package's type.
func (c *Config) ProofPolicy() proof.Policy {
	p := make(proof.Policy, len(c.Policy))
	for key, sev := range c.Policy {
		p[key] = proof.Severity(sev)
	}
	return p
}

// ModelDirs returns the model search directories: the SPECWEAVE_HOME
// directory if set, then the project-local models directory.
func (c *Config) ModelDirs() (home, project string) {
	return os.Getenv(HomeEnv), filepath.Join(c.Root, "models")
}

// OutputsFor expands the output templates for one document: "{name}" in
// each template becomes the document's base name (extension stripped),
// and relative paths are rooted under BuildDir. Keys come back sorted so
// the emit order is deterministic.
func (c *Config) OutputsFor(docPath string) []Output {
	name := filepath.Base(docPath)
	for ext := filepath.Ext(name); ext != ""; ext = filepath.Ext(name) {
		name = name[:len(name)-len(ext)]
	}

	formats := make([]string, 0, len(c.Outputs))
	for f := range c.Outputs {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	var out []Output
	for _, f := range formats {
		path := strings.ReplaceAll(c.Outputs[f], "{name}", name)
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.Root, c.BuildDir, path)
		}
		out = append(out, Output{Format: f, Path: path})
	}
	return out
}

// Output is one expanded artifact target.
type Output struct {
	Format string
	Path   string
}

// DocumentPaths expands the configured document globs against the
// project root, deduplicated and sorted for a deterministic batch order.
func (c *Config) DocumentPaths() ([]string, error) {
	seen := map[string]bool{}
	var out []string
	root := os.DirFS(c.Root)
	for _, pattern := range c.Documents {
		matches, err := doublestar.Glob(root, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "glob %s", pattern)
		}
		for _, m := range matches {
			full := filepath.Join(c.Root, m)
			if !seen[full] {
				seen[full] = true
				out = append(out, full)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
