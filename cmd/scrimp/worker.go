package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	units "github.com/docker/go-units"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/skroutz/scrimp/cmd/scrimp/metrics"
	"github.com/skroutz/scrimp/pkg/shell"
	"github.com/skroutz/scrimp/pkg/types"
	"github.com/skroutz/scrimp/pkg/utils"
)

// Worker performs jobs: it prepares the scratch area, diffs every source and
// collects the results. It processes one source at a time.
type Worker struct {
	Log *logrus.Entry

	cfg     *Config
	sh      *shell.Shell
	differ  Differ
	metrics *metrics.Recorder
}

// NewWorker returns a Worker for the validated cfg. If logger is nil,
// logging is disabled.
func NewWorker(cfg *Config, sh *shell.Shell, d Differ, m *metrics.Recorder, logger *logrus.Entry) (*Worker, error) {
	if cfg == nil || cfg.FileSystem == nil {
		return nil, errors.New("config must be validated")
	}
	if logger == nil {
		logger = discardLogger()
	}
	if m == nil {
		m = metrics.NewRecorder(logger)
	}

	w := new(Worker)
	w.Log = logger
	w.cfg = cfg
	w.sh = sh
	w.differ = d
	w.metrics = m
	return w, nil
}

// Work performs j and returns its Report. Report.Success tells whether the
// whole job succeeded.
//
// Without fail-soft, the first failing step aborts the job and its error is
// returned along with the partial Report. Nothing done until then is undone.
// With fail-soft, failing steps are recorded in the Report and the job
// carries on.
func (w *Worker) Work(ctx context.Context, j *Job) (report *types.Report, err error) {
	log := w.Log.WithField("job", j.String())
	start := time.Now()
	fail := shell.Fail(!w.cfg.FailSoft)

	report = new(types.Report)
	report.Reference = j.Reference.Name
	report.StartedAt = start

	defer func() {
		if err != nil {
			report.Err = err.Error()
		}
		report.Success = report.OK()
		report.Duration = time.Now().Sub(start).Truncate(time.Millisecond)
		w.metrics.RecordJob(report)
		log.WithField("duration", report.Duration).Infof("Finished: %s", report)
	}()

	// step records the outcome of a job-level step. It returns a non-nil
	// error only if the job must be aborted.
	step := func(name string, ok bool, err error) error {
		if err != nil {
			report.FailedSteps = append(report.FailedSteps, name)
			return workErr("could not "+name, err)
		}
		if !ok {
			report.FailedSteps = append(report.FailedSteps, name)
			log.WithField("step", name).Warn("step failed, continuing")
		}
		return nil
	}

	mp := w.cfg.ScratchMountPoint
	if mp != "" {
		if w.cfg.CreateScratch && !w.sh.PathExists(mp) {
			log.WithField("path", mp).Info("creating scratch mount point")
			ok, err := w.sh.CreateDir(ctx, mp, fail)
			if err = step("create scratch mount point", ok, err); err != nil {
				return report, err
			}
			ok, err = w.sh.UpdatePerms(ctx, mp, fail)
			if err = step("update scratch permissions", ok, err); err != nil {
				return report, err
			}
		}

		if w.sh.IsMounted(mp) {
			log.WithField("path", mp).Info("scratch filesystem already mounted")
		} else {
			size, _ := w.cfg.ScratchBytes()
			log.WithFields(logrus.Fields{
				"path": mp,
				"fs":   w.cfg.ScratchFS,
				"size": units.BytesSize(float64(size)),
			}).Info("mounting scratch filesystem")
			ok, err := w.cfg.FileSystem.Mount(ctx, w.sh, mp, w.cfg.scratchSizeArg(), fail)
			if err = step("mount scratch filesystem", ok, err); err != nil {
				return report, err
			}
		}
	}

	ok, err := w.stage(ctx, j.Reference, fail)
	if err = step("stage reference", ok, err); err != nil {
		return report, err
	}

	for i, src := range j.Sources {
		slog := log.WithFields(logrus.Fields{"source": src.Name, "n": fmt.Sprintf("%d/%d", i+1, len(j.Sources))})
		res, err := w.process(ctx, j, src, fail, slog)
		report.Results = append(report.Results, res)
		if err != nil {
			return report, err
		}
	}

	if w.cfg.RemoveSource && !isOriginal(j.Reference) {
		ok, err := w.sh.RemovePath(ctx, j.Reference.WrkInput, fail)
		if err = step("remove reference", ok, err); err != nil {
			return report, err
		}
	}

	if mp != "" && w.cfg.Unmount {
		log.WithField("path", mp).Info("unmounting scratch filesystem")
		ok, err := w.cfg.FileSystem.Unmount(ctx, w.sh, mp, fail)
		if err = step("unmount scratch filesystem", ok, err); err != nil {
			return report, err
		}
	}

	return report, nil
}

// process stages src, diffs it against the reference and collects the
// result. The returned error is non-nil only if the job must be aborted.
func (w *Worker) process(ctx context.Context, j *Job, src Paths, fail shell.Option, log *logrus.Entry) (res *types.SourceResult, err error) {
	res = types.NewSourceResult(src.Name)
	res.Output = src.DstOutput
	size := int64(-1)

	var soft error
	defer func() {
		if err != nil {
			res.Err = err.Error()
		} else if soft != nil {
			res.Err = soft.Error()
		}
		res.Duration = time.Now().Sub(res.StartedAt).Truncate(time.Millisecond)
		w.metrics.RecordSource(res, size)
		log.WithFields(logrus.Fields{
			"exit_code": res.ExitCode,
			"duration":  res.Duration,
		}).Info("processed")
	}()

	step := func(name string, ok bool, err error) error {
		if err != nil {
			res.FailedSteps = append(res.FailedSteps, name)
			return workErr(fmt.Sprintf("could not %s %s", name, src.Name), err)
		}
		if !ok {
			res.FailedSteps = append(res.FailedSteps, name)
			soft = multierror.Append(soft, fmt.Errorf("%s failed", name))
			log.WithField("step", name).Warn("step failed, continuing")
		}
		return nil
	}

	ok, err := w.stage(ctx, src, fail)
	if err = step("stage", ok, err); err != nil {
		return
	}

	log.Debug("diffing")
	exitCode, out, derr := w.differ.Diff(ctx, j, src)
	res.ExitCode = exitCode
	res.Log = out
	if derr == nil && exitCode != 0 {
		derr = fmt.Errorf("memscrimper exited with code %d", exitCode)
	}
	if derr != nil && out != "" {
		log.WithField("output", out).Debug("memscrimper output")
	}
	ok, err = w.sh.Check("diff", derr, fail)
	if err = step("diff", ok, err); err != nil {
		return
	}

	if w.cfg.RemoveSource && !isOriginal(src) {
		ok, err = w.sh.RemovePath(ctx, src.WrkInput, fail)
		if err = step("remove source", ok, err); err != nil {
			return
		}
	}

	if utils.SamePath(src.WrkOutput, src.DstOutput) {
		log.Debug("destination is the working directory, leaving diff in place")
	} else {
		ok, err = w.sh.CopyFile(ctx, src.WrkOutput, src.DstOutput, fail)
		if err = step("collect", ok, err); err != nil {
			return
		}
		ok, err = w.sh.RemovePath(ctx, src.WrkOutput, fail)
		if err = step("remove diff", ok, err); err != nil {
			return
		}
	}

	if fi, serr := os.Stat(src.DstOutput); serr == nil {
		size = fi.Size()
	}
	return res, nil
}

// stage places the dump denoted by p in the working directory, either by
// copying it or by extracting it.
func (w *Worker) stage(ctx context.Context, p Paths, fail shell.Option) (bool, error) {
	if w.cfg.Unzip {
		return w.sh.UnzipFile(ctx, p.SrcInput, w.cfg.WrkDir, w.cfg.UnzipPassword, fail)
	}
	if isOriginal(p) {
		w.Log.WithField("source", p.Name).Debug("source is the working directory, reading in place")
		return true, nil
	}
	return w.sh.CopyFile(ctx, p.SrcInput, p.WrkInput, fail)
}

// isOriginal reports whether the working input of p is the dump the job was
// given, which must never be removed.
func isOriginal(p Paths) bool {
	return utils.SamePath(p.SrcInput, p.WrkInput)
}

func workErr(s string, e error) error {
	s = "work: " + s
	if e != nil {
		s += "; " + e.Error()
	}
	return errors.New(s)
}

// persistReport persists the JSON-serialized version of report to path.
func persistReport(path string, report *types.Report) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	return ioutil.WriteFile(path, out, 0666)
}
