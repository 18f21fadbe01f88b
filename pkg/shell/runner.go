package shell

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// NoExitCode is reported when the command could not be started at all, for
// example when the binary is not installed.
const NoExitCode = -1

// Result is the outcome of running an external command.
type Result struct {
	ExitCode int

	// Combined stdout and stderr of the command.
	Output string
}

// Runner executes the command denoted by args, using the first element as
// the command and the remaining as its arguments.
//
// A command that ran and exited with a non-zero code is not an error: the
// code is reported in Result. An error is returned only when the command
// could not be run.
type Runner interface {
	Run(ctx context.Context, args []string) (Result, error)
}

// ExecRunner runs commands on the local system.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{ExitCode: NoExitCode}, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	res := Result{Output: string(out)}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		res.ExitCode = NoExitCode
		return res, err
	}
	return res, nil
}

// DryRunner logs every command instead of running it and reports success.
type DryRunner struct {
	Log *logrus.Entry
}

// Run implements Runner.
func (r DryRunner) Run(ctx context.Context, args []string) (Result, error) {
	if r.Log != nil {
		r.Log.WithField("cmd", strings.Join(args, " ")).Info("dry-run")
	}
	return Result{}, nil
}
