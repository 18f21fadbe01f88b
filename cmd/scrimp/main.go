// Copyright 2018-present Skroutz S.A.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"text/tabwriter"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/skroutz/scrimp/cmd/scrimp/metrics"
	"github.com/skroutz/scrimp/pkg/filesystem"
	_ "github.com/skroutz/scrimp/pkg/filesystem/plainfs"
	_ "github.com/skroutz/scrimp/pkg/filesystem/tmpfs"
	"github.com/skroutz/scrimp/pkg/shell"
	"github.com/urfave/cli"
)

// Version contains the release version of scrimp, adhering to SemVer.
const Version = "0.1.0"

// VersionSuffix is populated at build-time with -ldflags and typically
// contains the Git SHA1 of the tip that the binary is build from. It is then
// appended to Version.
var VersionSuffix string

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	fs := "[" + strings.Join(filesystem.Names(), ", ") + "]"
	engines := "[" + strings.Join(engineNames(), ", ") + "]"

	cli.AppHelpTemplate = fmt.Sprintf(`%s
EXAMPLES:
	1. Diff two dumps against a reference on an 8g tmpfs that is created,
		mounted and unmounted by scrimp. Sources are removed from the
		scratch area as soon as they are diffed.

		$ {{.HelpName}} --reference base.raw --wrk-dir /mnt/scrimp \
			--scratch-mount-point /mnt/scrimp --create-scratch --unmount \
			--rm-src vm1.raw vm2.raw

	2. Print the commands a job would run without running them.

		$ {{.HelpName}} --dry-run --reference base.raw vm1.raw
`, cli.AppHelpTemplate)

	app := cli.NewApp()
	app.Name = "scrimp"
	app.Usage = "Diff memory dumps against a reference with memscrimper"
	app.ArgsUsage = "[SOURCE...]"
	app.Version = Version
	if VersionSuffix != "" {
		app.Version = Version + "-" + VersionSuffix[:7]
	}
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Load the job from `FILE` (JSON). Flags given explicitly override it",
		},
		cli.IntFlag{
			Name:  "page-size",
			Value: DefaultPageSize,
			Usage: "page size for memscrimper",
		},
		cli.StringFlag{
			Name:  "scratch-mount-point",
			Usage: "mount a scratch filesystem at `PATH`",
		},
		cli.StringFlag{
			Name:  "scratch-size",
			Value: DefaultScratchSize,
			Usage: "size of the scratch filesystem",
		},
		cli.StringFlag{
			Name:  "scratch-fs",
			Value: "tmpfs",
			Usage: "Which scratch filesystem adapter to use. Options: " + fs,
		},
		cli.BoolFlag{
			Name:  "create-scratch",
			Usage: "create the scratch mount point if it does not exist",
		},
		cli.BoolFlag{
			Name:  "unmount",
			Usage: "unmount the scratch filesystem when done",
		},
		cli.StringFlag{
			Name:  "src-dir",
			Value: BaseDir,
			Usage: "directory to read the dumps from",
		},
		cli.StringFlag{
			Name:  "wrk-dir",
			Value: "./",
			Usage: "directory memscrimper reads from and writes to",
		},
		cli.StringFlag{
			Name:  "dst-dir",
			Value: BaseDir,
			Usage: "directory to write the diffs to",
		},
		cli.StringFlag{
			Name:  "output-extension",
			Value: DefaultOutputExtension,
			Usage: "extension of the diff files",
		},
		cli.StringFlag{
			Name:  "reference, r",
			Usage: "reference dump name",
		},
		cli.StringSliceFlag{
			Name:  "source, s",
			Usage: "source dump name to diff with the reference. Multiple sources can be specified, also as arguments",
		},
		cli.BoolFlag{
			Name:  "unzip",
			Usage: "dumps are zip archives; extract them instead of copying",
		},
		cli.StringFlag{
			Name:   "unzip-password",
			Usage:  "password of the zip archives",
			EnvVar: "SCRIMP_UNZIP_PASSWORD",
		},
		cli.BoolFlag{
			Name:  "rm-src",
			Usage: "remove the working copies of the dumps once diffed",
		},
		cli.BoolFlag{
			Name:  "fail-soft",
			Usage: "log failing steps and carry on instead of aborting the job",
		},
		cli.StringFlag{
			Name:  "engine",
			Value: "cli",
			Usage: "How to run memscrimper. Options: " + engines,
		},
		cli.StringFlag{
			Name:  "image",
			Value: "memscrimper",
			Usage: "memscrimper docker image",
		},
		cli.StringFlag{
			Name:  "compression",
			Value: "gzip",
			Usage: "compression method memscrimper applies to the diffs",
		},
		cli.BoolFlag{
			Name:  "pull",
			Usage: "pull the image before the first diff (docker engine only)",
		},
		cli.BoolFlag{
			Name:  "dry-run",
			Usage: "log the commands instead of running them",
		},
		cli.StringFlag{
			Name:  "report",
			Usage: "write the job report to `FILE` (JSON)",
		},
		cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write prometheus metrics to `FILE` in textfile collector format",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log every command",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format. Options: [text, json]",
		},
	}
	app.Action = func(c *cli.Context) error {
		log, err := newLogger(c, c.App.ErrWriter)
		if err != nil {
			return err
		}
		cfg, err := parseConfigFromCli(c, c.Args())
		if err != nil {
			return err
		}
		return run(context.Background(), c, cfg, log)
	}
	app.Commands = []cli.Command{
		{
			Name:      "paths",
			Usage:     "Print the paths derived for every dump without running anything.",
			ArgsUsage: "[SOURCE...]",
			Action: func(c *cli.Context) error {
				cfg, err := parseConfigFromCli(c.Parent(), c.Args())
				if err != nil {
					return err
				}
				j, err := NewJob(cfg)
				if err != nil {
					return err
				}
				return printPaths(c.App.Writer, j)
			},
		},
	}

	return app
}

func run(ctx context.Context, c *cli.Context, cfg *Config, log *logrus.Entry) (err error) {
	var runner shell.Runner = shell.ExecRunner{}
	engine := cfg.Engine
	if c.Bool("dry-run") {
		runner = shell.DryRunner{Log: log}
		if engine != "cli" {
			log.WithField("engine", engine).Warn("dry-run uses the cli engine")
			engine = "cli"
		}
	}

	sh := shell.New(cfg.Templates, runner, log)
	d, err := NewDiffer(engine, cfg, sh, log)
	if err != nil {
		return err
	}
	defer func() {
		derr := d.Close()
		if derr != nil && err == nil {
			err = fmt.Errorf("could not close %s engine; %s", engine, derr)
		}
	}()

	recorder := metrics.NewRecorder(log)
	w, err := NewWorker(cfg, sh, d, recorder, log)
	if err != nil {
		return err
	}
	j, err := NewJob(cfg)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"reference": cfg.Reference,
		"sources":   len(cfg.Sources),
		"engine":    engine,
		"fail_soft": cfg.FailSoft,
	}).Info("starting job")
	report, err := w.Work(ctx, j)

	var outErr error
	if path := c.String("report"); path != "" {
		perr := persistReport(path, report)
		if perr != nil {
			log.WithError(perr).Error("could not persist report")
			outErr = multierror.Append(outErr, fmt.Errorf("could not persist report; %s", perr))
		}
	}
	if path := c.String("metrics-file"); path != "" {
		merr := recorder.WriteTextfile(path)
		if merr != nil {
			outErr = multierror.Append(outErr, fmt.Errorf("could not write metrics; %s", merr))
		}
	}

	if err != nil {
		return err
	}
	if !report.Success {
		return fmt.Errorf("job failed: %s", report)
	}
	if outErr != nil {
		return outErr
	}
	fmt.Fprintf(c.App.Writer, "Finished. %s\n", report)
	return nil
}

func newLogger(c *cli.Context, out io.Writer) (*logrus.Entry, error) {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.Out = out
	if c.Bool("verbose") {
		l.SetLevel(logrus.DebugLevel)
	}
	switch c.String("log-format") {
	case "text":
		l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		l.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("invalid log format '%s'", c.String("log-format"))
	}
	return logrus.NewEntry(l), nil
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.Out = ioutil.Discard
	return logrus.NewEntry(l)
}

// parseConfigFromCli builds the job configuration from the config file, if
// any, and the flags explicitly set. args are additional sources.
func parseConfigFromCli(c *cli.Context, args []string) (*Config, error) {
	cfg := DefaultConfig()
	if path := c.String("config"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("cannot parse configuration; %s", err)
		}
		defer f.Close()
		cfg, err = ParseConfig(f)
		if err != nil {
			return nil, err
		}
	}

	str := func(name string, v *string) {
		if c.IsSet(name) {
			*v = c.String(name)
		}
	}
	boolean := func(name string, v *bool) {
		if c.IsSet(name) {
			*v = c.Bool(name)
		}
	}

	if c.IsSet("page-size") {
		cfg.PageSize = c.Int("page-size")
	}
	str("scratch-mount-point", &cfg.ScratchMountPoint)
	str("scratch-size", &cfg.ScratchSize)
	str("scratch-fs", &cfg.ScratchFS)
	boolean("create-scratch", &cfg.CreateScratch)
	boolean("unmount", &cfg.Unmount)
	str("src-dir", &cfg.SrcDir)
	str("wrk-dir", &cfg.WrkDir)
	str("dst-dir", &cfg.DstDir)
	str("output-extension", &cfg.OutputExtension)
	str("reference", &cfg.Reference)
	boolean("unzip", &cfg.Unzip)
	str("unzip-password", &cfg.UnzipPassword)
	boolean("rm-src", &cfg.RemoveSource)
	boolean("fail-soft", &cfg.FailSoft)
	str("engine", &cfg.Engine)
	str("image", &cfg.Image)
	str("compression", &cfg.Compression)
	boolean("pull", &cfg.Pull)

	if c.IsSet("source") || len(args) > 0 {
		cfg.Sources = append(c.StringSlice("source"), args...)
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func printPaths(out io.Writer, j *Job) error {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tWORKING INPUT\tWORKING OUTPUT\tDESTINATION")
	fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\n", j.Reference.Name, j.Reference.SrcInput, j.Reference.WrkInput)
	for _, p := range j.Sources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.SrcInput, p.WrkInput, p.WrkOutput, p.DstOutput)
	}
	return tw.Flush()
}
