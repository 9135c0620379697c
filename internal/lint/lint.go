// Package lint runs the external appstream validation tool on checked
// out metadata files and captures its verdict.
package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Validator describes the external validation command. The file under
// test is appended as the final argument.
type Validator struct {
	Cmd     string
	Args    []string
	Timeout int // Timeout in seconds (0 = no timeout)
}

// DefaultValidator runs appstream-util out of the org.flatpak.Builder
// flatpak, the same tool the builders have available.
func DefaultValidator() *Validator {
	return &Validator{
		Cmd: "flatpak",
		Args: []string{
			"run",
			"--env=G_DEBUG=fatal-criticals",
			"--command=appstream-util",
			"org.flatpak.Builder",
			"validate",
		},
	}
}

// Result is one validation run. A non-zero ExitCode means the file
// failed validation; Stdout and Stderr carry the tool's output
// verbatim.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Passed reports whether the tool accepted the file.
func (r *Result) Passed() bool {
	return r.ExitCode == 0
}

// Validate writes content to a scratch file named like path and runs
// the validator on it. Only a failure to run the tool at all is an
// error; a failed validation is a Result.
func (v *Validator) Validate(ctx context.Context, path string, content []byte) (*Result, error) {
	dir, err := os.MkdirTemp("", "buildhooks-lint-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// The tool reports the path it was given, so keep the original
	// file name.
	checkout := filepath.Join(dir, filepath.Base(path))
	if err := os.WriteFile(checkout, content, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", checkout, err)
	}

	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(v.Timeout)*time.Second)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, v.Cmd, append(v.Args, checkout)...)
	cmd.Env = os.Environ()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("validator timed out after %ds: %s", v.Timeout, v.Cmd)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running validator %s: %w", v.Cmd, err)
		}
		return &Result{
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}, nil
	}

	return &Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
