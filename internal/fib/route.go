package fib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its trimmed stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("command not found: %s (is Cefore installed and in PATH?)", name)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s failed with exit code %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("run %s: %w", name, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Router manages the running forwarder's FIB through cefroute.
type Router struct {
	Runner Runner
	// Command defaults to "cefroute".
	Command string
	// Sudo prefixes add and del with sudo; show never uses it.
	Sudo bool
}

func (r Router) command() string {
	if r.Command == "" {
		return "cefroute"
	}
	return r.Command
}

func (r Router) run(ctx context.Context, sudo bool, args ...string) (string, error) {
	runner := r.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	name := r.command()
	if sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	return runner.Run(ctx, name, args...)
}

// Add installs e in the running FIB.
func (r Router) Add(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.run(ctx, r.Sudo, append([]string{"add", e.Name, e.Protocol}, e.NextHops...)...)
	return err
}

// Del removes e from the running FIB.
func (r Router) Del(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.run(ctx, r.Sudo, append([]string{"del", e.Name, e.Protocol}, e.NextHops...)...)
	return err
}

// Show returns the forwarder's current FIB listing.
func (r Router) Show(ctx context.Context) (string, error) {
	return r.run(ctx, false, "show")
}
