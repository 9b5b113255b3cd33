// Package process executes the pipeline's external tools: synchronous
// invocations with captured stdout/stderr and exit status. Tools run from an
// allow-list registry; nothing outside the registry can be launched. The
// working directory is part of each invocation, never process-global state.
package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// Invocation describes one external tool call.
type Invocation struct {
	// Tool is the registry name, not the raw command.
	Tool string
	Args []string

	// Dir is the working directory for the call. Tools that resolve output
	// paths relative to their cwd (the clone definer chain) get the run's
	// output directory here.
	Dir string

	// Env entries are appended to the inherited environment.
	Env map[string]string
}

// Execution captures the outcome of a completed invocation.
type Execution struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes registered tools.
type Runner struct {
	registry map[string]Tool
}

// Option configures the runner.
type Option func(*Runner)

// WithRegistry merges a loaded tool configuration over the defaults.
func WithRegistry(tools map[string]Tool) Option {
	return func(r *Runner) {
		for name, t := range tools {
			r.registry[name] = t
		}
	}
}

// NewRunner creates a runner seeded with the default tool registry.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{registry: DefaultRegistry()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a tool in the allow-list.
func (r *Runner) Register(name string, tool Tool) {
	r.registry[name] = tool
}

// Tools lists the registered tool names, sorted.
func (r *Runner) Tools() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one invocation and blocks until the process exits. A non-zero
// exit returns the captured Execution alongside the error, so callers can
// log tool output and decide fatality themselves.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Execution, error) {
	tool, ok := r.registry[inv.Tool]
	if !ok {
		return Execution{ExitCode: -1}, fmt.Errorf("tool not registered: %s", inv.Tool)
	}

	args := append(append([]string{}, tool.Args...), inv.Args...)
	cmd := exec.CommandContext(ctx, tool.Command, args...)
	cmd.Dir = inv.Dir

	cmd.Env = os.Environ()
	for k, v := range tool.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range inv.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return res, fmt.Errorf("%s failed: %w", inv.Tool, err)
	}
	return res, nil
}
