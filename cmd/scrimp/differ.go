package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"
	"github.com/skroutz/scrimp/pkg/shell"
	"github.com/skroutz/scrimp/pkg/types"
)

const (
	// DataDir is where the working directory is mounted inside the
	// memscrimper container.
	DataDir = "/data"

	// CntPrefix is the common prefix added to the names of all
	// Docker containers created by scrimp.
	CntPrefix = "scrimp-"

	// createMode is the memscrimper mode that creates a diff.
	createMode = "c"
)

// Differ runs memscrimper for one source against the job's reference.
//
// Diff returns the exit code of memscrimper and its combined output. An
// error means memscrimper could not be run at all, in which case the exit
// code is irrelevant.
type Differ interface {
	Diff(ctx context.Context, j *Job, src Paths) (int, string, error)
	Close() error
}

type differFactory func(cfg *Config, sh *shell.Shell, log *logrus.Entry) (Differ, error)

var differs = map[string]differFactory{
	"cli":    newCLIDiffer,
	"docker": newDockerDiffer,
}

// NewDiffer returns the Differ registered as engine.
func NewDiffer(engine string, cfg *Config, sh *shell.Shell, log *logrus.Entry) (Differ, error) {
	f, ok := differs[engine]
	if !ok {
		return nil, fmt.Errorf("unknown engine '%s' (%v)", engine, engineNames())
	}
	return f(cfg, sh, log)
}

func engineNames() []string {
	names := []string{}
	for name := range differs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// diffVars are the values available to the diff template.
func diffVars(cfg *Config, j *Job, src Paths) shell.Vars {
	return shell.Vars{
		"working_dir": j.WorkDir,
		"image":       cfg.Image,
		"reference":   j.Reference.Dump,
		"source":      src.Dump,
		"destination": src.DstName,
		"page_size":   strconv.Itoa(cfg.PageSize),
		"compression": cfg.Compression,
	}
}

// CLIDiffer runs the diff template through the shell runner. The template
// decides which container runtime is used.
type CLIDiffer struct {
	tmpl   string
	cfg    *Config
	runner shell.Runner
}

func newCLIDiffer(cfg *Config, sh *shell.Shell, log *logrus.Entry) (Differ, error) {
	return &CLIDiffer{tmpl: sh.Templates.Diff, cfg: cfg, runner: sh.Runner}, nil
}

// Diff implements Differ.
func (d *CLIDiffer) Diff(ctx context.Context, j *Job, src Paths) (int, string, error) {
	args, err := shell.Expand(d.tmpl, diffVars(d.cfg, j, src))
	if err != nil {
		return types.ContainerFailureExitCode, "", err
	}
	res, err := d.runner.Run(ctx, args)
	if err != nil {
		return types.ContainerFailureExitCode, res.Output, err
	}
	return res.ExitCode, res.Output, nil
}

// Close implements Differ.
func (d *CLIDiffer) Close() error {
	return nil
}

// DockerDiffer runs memscrimper through the Docker Engine API.
type DockerDiffer struct {
	cfg    *Config
	client *docker.Client
	log    *logrus.Entry
	pulled bool
}

func newDockerDiffer(cfg *Config, sh *shell.Shell, log *logrus.Entry) (Differ, error) {
	c, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not create docker client; %s", err)
	}
	if log == nil {
		log = discardLogger()
	}
	return &DockerDiffer{cfg: cfg, client: c, log: log}, nil
}

// containerCmd returns the memscrimper arguments for src, with every path
// relative to the container mount.
func containerCmd(cfg *Config, j *Job, src Paths) []string {
	return []string{
		createMode,
		path.Join(DataDir, j.Reference.Dump),
		path.Join(DataDir, src.Dump),
		path.Join(DataDir, src.DstName),
		strconv.Itoa(cfg.PageSize),
		cfg.Compression,
		"0",
		"1",
	}
}

// Diff implements Differ. It creates and runs the container and blocks until
// it exits. The container is removed afterwards.
func (d *DockerDiffer) Diff(ctx context.Context, j *Job, src Paths) (int, string, error) {
	if d.cfg.Pull && !d.pulled {
		w := d.log.WriterLevel(logrus.DebugLevel)
		err := d.PullImage(ctx, w)
		w.Close()
		if err != nil {
			return types.ContainerFailureExitCode, "", err
		}
		d.pulled = true
	}

	config := container.Config{Image: d.cfg.Image, Cmd: containerCmd(d.cfg, j, src)}
	mnts := []mount.Mount{{Type: mount.TypeBind, Source: j.WorkDir, Target: DataDir}}
	hostConfig := container.HostConfig{Mounts: mnts, AutoRemove: false}

	name := CntPrefix + j.ID[:12] + "-" + randomHexString()
	res, err := d.client.ContainerCreate(ctx, &config, &hostConfig, nil, nil, name)
	if err != nil {
		return types.ContainerFailureExitCode, "", err
	}

	defer func(id string) {
		err := d.client.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
		if err != nil {
			d.log.WithError(err).WithField("container", name).Warn("cannot remove container")
		}
	}(res.ID)

	err = d.client.ContainerStart(ctx, res.ID, container.StartOptions{})
	if err != nil {
		return types.ContainerFailureExitCode, "", err
	}

	logs, err := d.client.ContainerLogs(ctx, res.ID,
		container.LogsOptions{Follow: true, ShowStdout: true, ShowStderr: true})
	if err != nil {
		return types.ContainerFailureExitCode, "", err
	}
	defer logs.Close()

	var out bytes.Buffer
	_, err = stdcopy.StdCopy(&out, &out, logs)
	if err != nil {
		return types.ContainerFailureExitCode, out.String(), err
	}

	statusC, errC := d.client.ContainerWait(ctx, res.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errC:
		return types.ContainerFailureExitCode, out.String(), err
	case status := <-statusC:
		if status.Error != nil {
			return types.ContainerFailureExitCode, out.String(), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), out.String(), nil
	}
}

// PullImage pulls the memscrimper image, rendering progress to out. If
// there is an error, it will be of type types.ErrImagePull.
func (d *DockerDiffer) PullImage(ctx context.Context, out io.Writer) error {
	resp, err := d.client.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
	if err != nil {
		return types.ErrImagePull{Image: d.cfg.Image, Err: err}
	}
	defer resp.Close()

	err = jsonmessage.DisplayJSONMessagesStream(resp, out, 0, false, nil)
	if err != nil {
		return types.ErrImagePull{Image: d.cfg.Image, Err: err}
	}
	return nil
}

// Close implements Differ.
func (d *DockerDiffer) Close() error {
	return d.client.Close()
}

func randomHexString() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
