package types

import (
	"fmt"
	"time"
)

// ContainerFailureExitCode is the exit code that signifies a failure
// before even running the diff container
const ContainerFailureExitCode = -999

// SourceResult is the outcome of processing a single source dump.
type SourceResult struct {
	// Source is the source file name, as given in the job.
	Source string `json:"source"`

	// Output is the path of the diff in the destination directory.
	Output string `json:"output"`

	// The exit code of the diff command.
	ExitCode int `json:"exit_code"`

	// FailedSteps lists the steps that did not succeed, in the order they
	// ran. Only populated in fail-soft mode, or with the step that aborted
	// the job in fail-fast mode.
	FailedSteps []string `json:"failed_steps,omitempty"`

	Err string `json:"error,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Contains the stdout and stderr of the diff command
	Log string `json:"log,omitempty"`
}

// NewSourceResult returns a SourceResult for source, started now.
func NewSourceResult(source string) *SourceResult {
	r := new(SourceResult)
	r.Source = source
	r.StartedAt = time.Now()
	r.ExitCode = ContainerFailureExitCode
	return r
}

// OK reports whether every step of the source succeeded.
func (r *SourceResult) OK() bool {
	return r.ExitCode == 0 && len(r.FailedSteps) == 0 && r.Err == ""
}

// Report is the outcome of a whole job.
type Report struct {
	Reference string          `json:"reference"`
	Success   bool            `json:"success"`
	Results   []*SourceResult `json:"results"`

	// FailedSteps lists the job-level steps (scratch setup, reference
	// staging, teardown) that did not succeed.
	FailedSteps []string `json:"failed_steps,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"error,omitempty"`
}

// OK reports whether the job-level steps and every source succeeded.
func (r *Report) OK() bool {
	return r.Err == "" && len(r.FailedSteps) == 0 && len(r.Failed()) == 0
}

// Failed returns the sources that did not complete cleanly.
func (r *Report) Failed() []string {
	failed := []string{}
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res.Source)
		}
	}
	return failed
}

func (r *Report) String() string {
	failed := r.Failed()
	s := fmt.Sprintf("%d processed, %d failed", len(r.Results), len(failed))
	if len(failed) > 0 {
		s += fmt.Sprintf(" %v", failed)
	}
	return s
}
