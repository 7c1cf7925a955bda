// Command specweave compiles structured document trees into a typed
// relational IR, validates it against proof views, and emits assembled
// artifacts for downstream renderers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"

	"github.com/specweave/specweave/core/compile"
	"github.com/specweave/specweave/core/document"
	"github.com/specweave/specweave/core/model"
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/core/proof"
	"github.com/specweave/specweave/core/sqlite"
	"github.com/specweave/specweave/core/store"
	"github.com/specweave/specweave/internal/logging"
	"github.com/specweave/specweave/internal/project"
)

const version = "0.2.0"

// CLI defines the command-line interface for specweave.
var CLI struct {
	// Global flags
	Dir       string `name:"dir" short:"C" default:"." help:"Project directory" type:"path"`
	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log format"`

	Build   BuildCmd   `cmd:"" help:"Compile documents and write artifacts"`
	Check   CheckCmd   `cmd:"" help:"Compile and validate without writing artifacts"`
	Models  ModelsCmd  `cmd:"" help:"List loaded type models"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild on document or model changes"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// BuildCmd compiles the project's documents and writes artifacts.
type BuildCmd struct{}

func (c *BuildCmd) Run() error {
	env, err := openProject(CLI.Dir)
	if err != nil {
		return err
	}
	defer env.Close()
	return env.build(context.Background(), true)
}

// CheckCmd compiles and validates without writing artifacts.
type CheckCmd struct{}

func (c *CheckCmd) Run() error {
	env, err := openProject(CLI.Dir)
	if err != nil {
		return err
	}
	defer env.Close()
	return env.build(context.Background(), false)
}

// ModelsCmd lists loaded type models and their types.
type ModelsCmd struct{}

func (c *ModelsCmd) Run() error {
	env, err := openProject(CLI.Dir)
	if err != nil {
		return err
	}
	defer env.Close()

	for _, name := range env.cfg.Models {
		fmt.Printf("model %s\n", name)
		for _, cat := range model.Categories {
			for _, td := range env.registry.TypesIn(name, cat) {
				fmt.Printf("  %s/%s", cat, td.ID)
				if td.LongName != "" && td.LongName != td.ID {
					fmt.Printf(" (%s)", td.LongName)
				}
				if td.Extends != "" {
					fmt.Printf(" extends %s", td.Extends)
				}
				fmt.Println()
			}
		}
	}
	return nil
}

// WatchCmd rebuilds whenever a document or model file changes.
type WatchCmd struct {
	Debounce time.Duration `name:"debounce" default:"300ms" help:"Quiet period before a rebuild"`
}

func (c *WatchCmd) Run() error {
	env, err := openProject(CLI.Dir)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := env.build(ctx, true); err != nil {
		logging.Error("build_failed", "error", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := []string{env.cfg.Root, filepath.Join(env.cfg.Root, "models")}
	if home, _ := env.cfg.ModelDirs(); home != "" {
		dirs = append(dirs, home)
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err == nil {
			if err := watcher.Add(d); err != nil {
				return err
			}
		}
	}

	var timer *time.Timer
	rebuild := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(c.Debounce, func() {
				select {
				case rebuild <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch_error", "error", err)
		case <-rebuild:
			if err := env.build(ctx, true); err != nil {
				logging.Error("build_failed", "error", err)
			}
		}
	}
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("specweave %s (%s driver)\n", version, sqlite.DriverType())
	return nil
}

// projectEnv is the opened project state shared by the commands.
type projectEnv struct {
	cfg      *project.Config
	store    *store.Store
	registry *model.Registry
}

// openProject loads configuration, opens the store, and loads the type
// registry.
func openProject(dir string) (*projectEnv, error) {
	initLogging()

	cfg, err := project.Load(dir)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Database
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cfg.Root, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(); err != nil {
		st.Close()
		return nil, err
	}

	home, projDir := cfg.ModelDirs()
	registry, err := model.Load(model.LoadConfig{
		HomeDir:      home,
		ProjectDir:   projDir,
		Models:       cfg.Models,
		DefaultModel: cfg.DefaultModel,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := registry.RegisterHandler(compile.ObjectsView{}); err != nil {
		st.Close()
		return nil, err
	}

	return &projectEnv{cfg: cfg, store: st, registry: registry}, nil
}

// Close releases the project's store.
func (e *projectEnv) Close() {
	e.store.Close()
}

// build runs the full pipeline over the project's documents. With emit
// false no output targets are attached, so the run validates without
// writing artifacts.
func (e *projectEnv) build(ctx context.Context, emit bool) error {
	paths, err := e.cfg.DocumentPaths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		logging.Warn("no_documents", "dir", e.cfg.Root)
		return nil
	}

	runID := pipeline.NewRunID()
	var ctxs []*pipeline.Context
	for _, path := range paths {
		doc, err := document.LoadFile(path)
		if err != nil {
			return err
		}
		pc := pipeline.NewContext(runID, doc, e.cfg.DefaultModel)
		pc.BuildDir = filepath.Join(e.cfg.Root, e.cfg.BuildDir)
		if emit {
			for _, out := range e.cfg.OutputsFor(path) {
				if err := os.MkdirAll(filepath.Dir(out.Path), 0755); err != nil {
					return err
				}
				pc.Outputs = append(pc.Outputs, pipeline.OutputTarget{Format: out.Format, Path: out.Path})
			}
		}
		ctxs = append(ctxs, pc)
	}

	compiler := compile.New(compile.Options{
		Store:         e.store,
		Registry:      e.registry,
		Policy:        e.cfg.ProofPolicy(),
		RenderWorkers: e.cfg.RenderWorkers,
	})
	diags, err := compiler.Run(ctx, ctxs)
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if err != nil {
		return err
	}
	if proof.HasErrors(diags) {
		return fmt.Errorf("%d diagnostics, outputs not written", len(diags))
	}
	return nil
}

// initLogging applies the global logging flags.
func initLogging() {
	level := logging.LevelInfo
	switch CLI.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(level, format)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("specweave"),
		kong.Description("specweave - typed relational IR compiler for structured documents"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
