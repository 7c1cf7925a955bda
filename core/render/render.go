// Package render dispatches external render tasks (diagram and chart
// tools bound to float or view types) as a bounded pool of subprocesses.
// The core emits a task descriptor per unit of work and expects back a
// success flag with captured output; it is agnostic to which tool a given
// type binds to. A task failure is isolated to that task: the originating
// float or view keeps null resolved content and surfaces later as a
// proof-view diagnostic, never as a pipeline-fatal error.
package render

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/specweave/specweave/internal/logging"
)

// DefaultWorkers is the default subprocess pool size.
const DefaultWorkers = 4

// Task describes one unit of external render work.
type Task struct {
	// ID correlates the outcome back to its originating row (a float or
	// view key).
	ID string

	// Command is the external tool to run.
	Command string

	// Args are the tool's arguments.
	Args []string

	// Stdin is fed to the tool's standard input (typically the float's
	// raw content).
	Stdin []byte

	// Dir is the working directory, empty for the process default.
	Dir string
}

// Outcome is the result of one render task.
type Outcome struct {
	// ID is the originating task's ID.
	ID string

	// Success reports whether the tool exited zero.
	Success bool

	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// Err is the spawn or wait error, nil on a clean exit.
	Err error
}

// Pool runs render tasks with bounded concurrency.
type Pool struct {
	workers int
}

// NewPool builds a pool. A non-positive worker count falls back to
// DefaultWorkers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{workers: workers}
}

// Run dispatches every task and blocks until all return. Outcomes are
// positionally aligned with tasks. Cancellation of ctx kills in-flight
// subprocesses; their outcomes report the context error.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = runTask(ctx, tasks[i])
		}(i)
	}
	wg.Wait()
	return outcomes
}

// runTask executes one subprocess and captures its output.
func runTask(ctx context.Context, t Task) Outcome {
	start := time.Now()

	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	cmd.Dir = t.Dir
	if len(t.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(t.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Outcome{
		ID:      t.ID,
		Success: err == nil,
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Err:     err,
	}
	logging.RenderTask(t.Command, out.Success, time.Since(start), "task", t.ID)
	return out
}
