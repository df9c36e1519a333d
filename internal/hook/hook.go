// Package hook turns shell snippets from configuration into packager hooks.
// Scripts are interpreted in-process by mvdan.cc/sh, so they behave the same
// on every platform the provider runs on.
package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/packager"
)

// ExitError is returned when a hook script exits with a non-zero status.
type ExitError struct {
	Status int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("hook: exit status %d", e.Status)
	}
	return fmt.Sprintf("hook: exit status %d: %s", e.Status, e.Stderr)
}

// Validate reports whether script parses as a shell program.
func Validate(script string) error {
	_, err := parse(script)
	return err
}

// Command parses script and returns a hook that runs it in dir with the
// process environment overlaid by env. An empty dir runs in the current
// working directory.
func Command(script string, env map[string]string, dir string) (packager.Hook, error) {
	prog, err := parse(script)
	if err != nil {
		return nil, err
	}
	environ := mergeEnv(os.Environ(), env)

	return func(ctx context.Context) error {
		var stdout, stderr bytes.Buffer

		opts := []interp.RunnerOption{
			interp.Env(expand.ListEnviron(environ...)),
			interp.StdIO(nil, &stdout, &stderr),
		}
		if dir != "" {
			opts = append(opts, interp.Dir(dir))
		}

		runner, err := interp.New(opts...)
		if err != nil {
			return fmt.Errorf("hook: create interpreter: %w", err)
		}

		runErr := runner.Run(ctx, prog)

		tflog.Debug(ctx, "Hook output", map[string]interface{}{
			"dir":    dir,
			"stdout": stdout.String(),
			"stderr": stderr.String(),
		})

		if runErr != nil {
			var status interp.ExitStatus
			if errors.As(runErr, &status) {
				return &ExitError{Status: int(status), Stderr: strings.TrimSpace(stderr.String())}
			}
			return fmt.Errorf("hook: run: %w", runErr)
		}
		return nil
	}, nil
}

func parse(script string) (*syntax.File, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "hook")
	if err != nil {
		return nil, fmt.Errorf("hook: parse script: %w", err)
	}
	return prog, nil
}

// mergeEnv appends overrides to base in key order. Later entries win when
// the list is read by expand.ListEnviron.
func mergeEnv(base []string, overrides map[string]string) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(base)+len(keys))
	out = append(out, base...)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
