// Package stats runs the external statistics generator over the history
// database.
package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ErrToolNotFound is returned when the generator is not installed.
var ErrToolNotFound = errors.New("stats generator not found")

// exitNotFound is the shell convention for "command not found".
const exitNotFound = 127

// Generate runs script with the database path as its last argument and the
// template file on stdin. The generator's output goes to stdout, its
// diagnostics to stderr. script may carry extra arguments ("sqltd -v").
func Generate(ctx context.Context, script, dbPath, templatePath string, stdout, stderr io.Writer) error {
	argv := strings.Fields(script)
	if len(argv) == 0 {
		return fmt.Errorf("%w: no script configured", ErrToolNotFound)
	}

	tmpl, err := os.Open(templatePath)
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer tmpl.Close()

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], dbPath)...)
	cmd.Stdin = tmpl
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrToolNotFound, argv[0])
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == exitNotFound {
			return fmt.Errorf("%w: %s exited with status %d", ErrToolNotFound, argv[0], exitNotFound)
		}
		return fmt.Errorf("%s exited with status %d", argv[0], exitErr.ExitCode())
	}
	return fmt.Errorf("run %s: %w", argv[0], err)
}
