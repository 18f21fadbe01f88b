package main

import (
	"context"
	"reflect"
	"testing"

	"github.com/skroutz/scrimp/pkg/shell"
)

// fakeRunner records every command instead of running it. exitCode, if set,
// decides the exit code of each command.
type fakeRunner struct {
	calls    [][]string
	exitCode func(args []string) int
}

func (r *fakeRunner) Run(ctx context.Context, args []string) (shell.Result, error) {
	r.calls = append(r.calls, args)
	if r.exitCode == nil {
		return shell.Result{}, nil
	}
	return shell.Result{ExitCode: r.exitCode(args)}, nil
}

// named returns the recorded calls of the command name.
func (r *fakeRunner) named(name string) [][]string {
	calls := [][]string{}
	for _, c := range r.calls {
		if c[0] == name {
			calls = append(calls, c)
		}
	}
	return calls
}

// failOn returns an exit code func failing the exact command args with 1.
func failOn(args ...string) func([]string) int {
	return func(got []string) int {
		if reflect.DeepEqual(got, args) {
			return 1
		}
		return 0
	}
}

// testConfig returns a validated configuration with three sources and no
// scratch filesystem.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SrcDir = "/src"
	cfg.WrkDir = "/wrk"
	cfg.DstDir = "/dst"
	cfg.Reference = "ref.raw"
	cfg.Sources = []string{"a.raw", "b.raw", "c.raw"}
	failIfError(cfg.Validate(), t)
	return cfg
}

// setupWorker returns a Worker running every command through r, with the
// scratch mount point reported as mounted if mounted is true.
func setupWorker(t *testing.T, cfg *Config, r *fakeRunner, mounted bool) (*Worker, *Job) {
	t.Helper()
	sh := shell.New(cfg.Templates, r, nil)
	sh.Mounted = func(string) (bool, error) { return mounted, nil }

	d, err := NewDiffer("cli", cfg, sh, nil)
	failIfError(err, t)

	w, err := NewWorker(cfg, sh, d, nil, nil)
	failIfError(err, t)

	j, err := NewJob(cfg)
	failIfError(err, t)
	return w, j
}

func diffCmd(src, dst string) []string {
	return []string{"docker", "run", "--rm", "-v", "/wrk:/data", "memscrimper", "c",
		"/data/ref.raw", "/data/" + src, "/data/" + dst, "4096", "gzip", "0", "1"}
}

func assertEq(a, b interface{}, t *testing.T) {
	t.Helper()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Expected %#v and %#v to be equal", a, b)
	}
}

func assertNotEq(a, b interface{}, t *testing.T) {
	t.Helper()
	if reflect.DeepEqual(a, b) {
		t.Fatalf("Expected %#v and %#v to not be equal", a, b)
	}
}

func failIfError(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
