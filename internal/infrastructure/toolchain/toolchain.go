// Package toolchain runs the external collaborator tools: the pharmacophore
// model builder and the screening scorer.  Both are opaque executables
// configured as argv templates; the pipeline interprets only their exit codes,
// their stdout contract, and context deadlines.
//
// Exit-code contract shared by both tools:
//
//	0   success
//	20  input rejected (invalid structure / invalid SMILES)
//	21  upstream fetch failed (builder only)
//
// Any other non-zero exit is a generic tool failure.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

const (
	exitInputRejected = 20
	exitFetchFailed   = 21
)

// expand substitutes {placeholder} occurrences in an argv template.
func expand(argv []string, vars map[string]string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

// runCommand executes one expanded argv under ctx and returns trimmed stdout.
// Context expiry is surfaced as the context error so callers classify it as a
// timeout rather than a tool failure.
func runCommand(ctx context.Context, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", &toolError{argv: argv, err: err, stderr: stderr.String()}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// toolError carries the tool's exit state and captured stderr.
type toolError struct {
	argv   []string
	err    error
	stderr string
}

func (e *toolError) Error() string {
	msg := e.argv[0] + ": " + e.err.Error()
	if s := strings.TrimSpace(e.stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *toolError) Unwrap() error { return e.err }

// exitCode extracts the tool's exit code, or -1 when the tool never ran.
func (e *toolError) exitCode() int {
	var ee *exec.ExitError
	if errors.As(e.err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
