// Package shell presents the OS-level side effects scrimp needs (directories,
// permissions, mounts, copies, removals, archive extraction) as single
// operations. Every operation runs one external command built from a
// template and reports whether it exited with the expected code.
package shell

import (
	"context"
	"io/ioutil"
	"os"

	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
)

// Shell runs the facade operations. The zero value is not usable; use New.
type Shell struct {
	Templates Templates
	Runner    Runner
	Log       *logrus.Entry

	// Mounted reports whether path is a mount point.
	Mounted func(path string) (bool, error)
}

// New returns a Shell running tmpl through r. If log is nil, logging is
// disabled.
func New(tmpl Templates, r Runner, log *logrus.Entry) *Shell {
	if log == nil {
		l := logrus.New()
		l.Out = ioutil.Discard
		log = logrus.NewEntry(l)
	}
	return &Shell{
		Templates: tmpl.Merge(DefaultTemplates()),
		Runner:    r,
		Log:       log,
		Mounted:   mountinfo.Mounted,
	}
}

type options struct {
	fail     bool
	expected int
	msg      string
}

// Option tweaks how a single operation judges its command.
type Option func(*options)

// Fail makes a failing operation return a *CommandError instead of just
// false.
func Fail(fail bool) Option {
	return func(o *options) { o.fail = fail }
}

// ExpectExitCode sets the exit code that counts as success. Default 0.
func ExpectExitCode(code int) Option {
	return func(o *options) { o.expected = code }
}

// Message attaches msg to the error of a failing strict operation.
func Message(msg string) Option {
	return func(o *options) { o.msg = msg }
}

// CreateDir creates location and any missing parents.
func (s *Shell) CreateDir(ctx context.Context, location string, opts ...Option) (bool, error) {
	return s.Run(ctx, "create_dir", s.Templates.CreateDir, Vars{"location": location}, opts...)
}

// UpdatePerms makes location and everything below it readable and writable
// by everyone.
func (s *Shell) UpdatePerms(ctx context.Context, location string, opts ...Option) (bool, error) {
	return s.Run(ctx, "update_perms", s.Templates.UpdatePerms, Vars{"location": location}, opts...)
}

// MountScratchFS mounts a temporary filesystem of the given size at
// mountPoint.
func (s *Shell) MountScratchFS(ctx context.Context, mountPoint, size string, opts ...Option) (bool, error) {
	return s.Run(ctx, "mount_scratch", s.Templates.MountScratch,
		Vars{"mount_point": mountPoint, "size": size}, opts...)
}

// UnmountScratchFS unmounts the filesystem at mountPoint.
func (s *Shell) UnmountScratchFS(ctx context.Context, mountPoint string, opts ...Option) (bool, error) {
	return s.Run(ctx, "unmount_scratch", s.Templates.UnmountScratch,
		Vars{"mount_point": mountPoint}, opts...)
}

// CopyFile copies src to dst.
func (s *Shell) CopyFile(ctx context.Context, src, dst string, opts ...Option) (bool, error) {
	return s.Run(ctx, "copy", s.Templates.Copy, Vars{"source": src, "destination": dst}, opts...)
}

// RemovePath removes location and its children. Removing a path that does
// not exist succeeds with the default template.
func (s *Shell) RemovePath(ctx context.Context, location string, opts ...Option) (bool, error) {
	return s.Run(ctx, "remove", s.Templates.Remove, Vars{"location": location}, opts...)
}

// UnzipFile extracts the archive src into the directory dst. If password is
// not empty it is passed to the extractor.
func (s *Shell) UnzipFile(ctx context.Context, src, dst, password string, opts ...Option) (bool, error) {
	if password == "" {
		return s.Run(ctx, "unzip", s.Templates.Unzip, Vars{"source": src, "destination": dst}, opts...)
	}
	return s.Run(ctx, "unzip", s.Templates.UnzipPassword,
		Vars{"source": src, "destination": dst, "password": password}, opts...)
}

// PathExists reports whether location exists on the local filesystem.
func (s *Shell) PathExists(location string) bool {
	_, err := os.Stat(location)
	return err == nil
}

// IsMounted reports whether path is a mount point. A path that cannot be
// checked is reported as not mounted.
func (s *Shell) IsMounted(path string) bool {
	ok, err := s.Mounted(path)
	if err != nil {
		s.Log.WithError(err).WithField("path", path).Debug("cannot check mount table")
		return false
	}
	return ok
}

// Run expands tmpl with vars, runs the result and compares its exit code
// against the expected one. op names the operation in logs and errors.
//
// On mismatch, Run returns a *CommandError if the Fail option is set;
// otherwise it logs the failure and returns false and a nil error.
func (s *Shell) Run(ctx context.Context, op, tmpl string, vars Vars, opts ...Option) (bool, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	args, err := Expand(tmpl, vars)
	if err != nil {
		cerr := &CommandError{Op: op, ExitCode: NoExitCode, Expected: o.expected, Msg: o.msg, Err: err}
		return s.failed(cerr, o.fail)
	}

	log := s.Log.WithFields(logrus.Fields{"op": op, "cmd": String(args)})
	log.Debug("running")

	res, err := s.Runner.Run(ctx, args)
	if err == nil && res.ExitCode == o.expected {
		return true, nil
	}

	cerr := &CommandError{
		Op:       op,
		Args:     args,
		ExitCode: res.ExitCode,
		Expected: o.expected,
		Output:   res.Output,
		Msg:      o.msg,
		Err:      err,
	}
	return s.failed(cerr, o.fail)
}

// Check applies the facade contract to an operation performed in-process:
// a nil err is success, anything else is a failure judged by opts.
func (s *Shell) Check(op string, err error, opts ...Option) (bool, error) {
	if err == nil {
		return true, nil
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	cerr := &CommandError{Op: op, ExitCode: NoExitCode, Expected: o.expected, Msg: o.msg, Err: err}
	return s.failed(cerr, o.fail)
}

func (s *Shell) failed(cerr *CommandError, fail bool) (bool, error) {
	if fail {
		return false, cerr
	}
	s.Log.WithError(cerr).WithField("output", cerr.Output).Warn("command failed")
	return false, nil
}
