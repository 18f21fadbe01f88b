package shell

import "fmt"

// CommandError is returned by a strict operation whose command did not exit
// with the expected code.
type CommandError struct {
	Op       string
	Args     []string
	ExitCode int
	Expected int
	Output   string

	// Msg is the optional caller-supplied message.
	Msg string

	// Err is set when the command could not be run.
	Err error
}

func (e *CommandError) Error() string {
	s := fmt.Sprintf("%s: failed: (%s)", e.Op, String(e.Args))
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		return s + "; " + e.Err.Error()
	}
	return fmt.Sprintf("%s; exit code %d, expected %d", s, e.ExitCode, e.Expected)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
