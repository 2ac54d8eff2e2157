// Package tool launches the external analysis tool through the build system.
package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mpataki/apsweep/internal/models"
)

// Invocation describes one run of the tool.
type Invocation struct {
	Target string
	Spec   models.RunSpec
	// Expected is where the tool should leave its output. The runner only
	// reports it back; checking it is the caller's job.
	Expected string
	// Output receives both stdout and stderr.
	Output io.Writer
	// OnStart, if set, is called with the child's PID once it is running.
	OnStart func(pid int)
}

// Result is what is known about a finished invocation.
type Result struct {
	Spec        models.RunSpec
	CommandLine string
	ExitCode    int
	PID         int
	StartedAt   time.Time
	CompletedAt time.Time
	Expected    string
}

func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Runner runs one invocation to completion.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// Tool invokes `<Build> <BuildTarget> ARGS=...` in Dir with RootEnv=Root
// added to the child's environment only.
type Tool struct {
	Build       string
	BuildTarget string
	Dir         string
	RootEnv     string
	Root        string
	Debug       bool
}

// ToolArgs is the single ARGS string handed to the tool.
func (t *Tool) ToolArgs(target string, spec models.RunSpec) string {
	s := fmt.Sprintf("%s -j%d -e%d", target, spec.Concurrency, spec.Mode)
	if t.Debug {
		s += " -d"
	}
	return s
}

// Args is the argv passed to the build program.
func (t *Tool) Args(target string, spec models.RunSpec) []string {
	return []string{t.BuildTarget, "ARGS=" + t.ToolArgs(target, spec)}
}

func (t *Tool) CommandLine(target string, spec models.RunSpec) string {
	return strings.Join(append([]string{t.Build}, t.Args(target, spec)...), " ")
}

// Env returns base with RootEnv set to Root, replacing any existing value.
func (t *Tool) Env(base []string) []string {
	prefix := t.RootEnv + "="
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		env = append(env, kv)
	}
	return append(env, prefix+t.Root)
}

// Run blocks until the child exits. No timeout is applied; ctx cancellation
// only exists so an interrupted orchestrator takes its child down with it.
// A non-zero exit is reported in the Result, not as an error.
func (t *Tool) Run(ctx context.Context, inv Invocation) (*Result, error) {
	cmd := exec.CommandContext(ctx, t.Build, t.Args(inv.Target, inv.Spec)...)
	cmd.Dir = t.Dir
	cmd.Env = t.Env(os.Environ())
	cmd.Stdout = inv.Output
	cmd.Stderr = inv.Output

	res := &Result{
		Spec:        inv.Spec,
		CommandLine: t.CommandLine(inv.Target, inv.Spec),
		Expected:    inv.Expected,
		StartedAt:   time.Now(),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", t.Build, err)
	}

	if cmd.Process != nil {
		res.PID = cmd.Process.Pid
		if inv.OnStart != nil {
			inv.OnStart(res.PID)
		}
	}

	err := cmd.Wait()
	res.CompletedAt = time.Now()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed waiting for %s: %w", t.Build, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	return res, nil
}
