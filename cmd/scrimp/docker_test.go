package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/mount"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/skroutz/scrimp/pkg/types"
)

const fakeContainerID = "c0ffee"

var apiVersionPrefix = regexp.MustCompile(`^/v[0-9.]+`)

// fakeDaemon serves the subset of the Docker Engine API used by
// DockerDiffer and records every call but the version negotiation.
type fakeDaemon struct {
	pullStream string
	logs       string
	wait       string

	mu         sync.Mutex
	calls      []string
	pullQuery  string
	createName string
	createBody []byte
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := apiVersionPrefix.ReplaceAllString(r.URL.Path, "")
	if p == "/_ping" {
		w.Header().Set("Api-Version", "1.47")
		w.Header().Set("Ostype", "linux")
		io.WriteString(w, "OK")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, r.Method+" "+p)

	switch p {
	case "/images/create":
		d.pullQuery = r.URL.Query().Get("fromImage")
		io.WriteString(w, d.pullStream)
	case "/containers/create":
		d.createName = r.URL.Query().Get("name")
		d.createBody, _ = ioutil.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Id":"`+fakeContainerID+`","Warnings":[]}`)
	case "/containers/" + fakeContainerID + "/start":
		w.WriteHeader(http.StatusNoContent)
	case "/containers/" + fakeContainerID + "/logs":
		stdcopy.NewStdWriter(w, stdcopy.Stdout).Write([]byte(d.logs))
	case "/containers/" + fakeContainerID + "/wait":
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, d.wait)
	case "/containers/" + fakeContainerID:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"no such endpoint"}`)
	}
}

func (d *fakeDaemon) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.calls...)
}

func setupDockerDiffer(t *testing.T, cfg *Config, d *fakeDaemon) (*DockerDiffer, func()) {
	t.Helper()
	srv := httptest.NewServer(d)
	c, err := docker.NewClientWithOpts(
		docker.WithHost("tcp://"+srv.Listener.Addr().String()),
		docker.WithAPIVersionNegotiation())
	if err != nil {
		srv.Close()
		t.Fatal(err)
	}
	differ := &DockerDiffer{cfg: cfg, client: c, log: discardLogger()}
	return differ, func() {
		differ.Close()
		srv.Close()
	}
}

var containerRun = []string{
	"POST /containers/create",
	"POST /containers/" + fakeContainerID + "/start",
	"GET /containers/" + fakeContainerID + "/logs",
	"POST /containers/" + fakeContainerID + "/wait",
	"DELETE /containers/" + fakeContainerID,
}

func TestDockerDiffer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pull = true
	j, err := NewJob(cfg)
	failIfError(err, t)

	daemon := &fakeDaemon{
		pullStream: `{"status":"Pulling from library/memscrimper","id":"latest"}` + "\n" +
			`{"status":"Status: Downloaded newer image for memscrimper:latest"}` + "\n",
		logs: "diffing\n",
		wait: `{"StatusCode":3}`,
	}
	d, teardown := setupDockerDiffer(t, cfg, daemon)
	defer teardown()

	code, out, err := d.Diff(context.Background(), j, j.Sources[0])
	failIfError(err, t)
	assertEq(code, 3, t)
	assertEq(out, "diffing\n", t)
	assertEq(daemon.pullQuery, "docker.io/library/memscrimper", t)
	assertEq(daemon.recorded(), append([]string{"POST /images/create"}, containerRun...), t)

	if !strings.HasPrefix(daemon.createName, CntPrefix+j.ID[:12]+"-") {
		t.Fatalf("unexpected container name %s", daemon.createName)
	}

	var body struct {
		Image      string
		Cmd        []string
		HostConfig struct {
			Mounts []mount.Mount
		}
	}
	failIfError(json.Unmarshal(daemon.createBody, &body), t)
	assertEq(body.Image, "memscrimper", t)
	assertEq(body.Cmd, containerCmd(cfg, j, j.Sources[0]), t)
	assertEq(len(body.HostConfig.Mounts), 1, t)
	assertEq(body.HostConfig.Mounts[0].Type, mount.TypeBind, t)
	assertEq(body.HostConfig.Mounts[0].Source, "/wrk", t)
	assertEq(body.HostConfig.Mounts[0].Target, DataDir, t)

	// the image is pulled once per job
	daemon.wait = `{"StatusCode":0}`
	code, _, err = d.Diff(context.Background(), j, j.Sources[1])
	failIfError(err, t)
	assertEq(code, 0, t)

	expected := append([]string{"POST /images/create"}, containerRun...)
	expected = append(expected, containerRun...)
	assertEq(daemon.recorded(), expected, t)
}

func TestDockerDifferWaitError(t *testing.T) {
	cfg := testConfig(t)
	j, err := NewJob(cfg)
	failIfError(err, t)

	daemon := &fakeDaemon{
		logs: "diffing\n",
		wait: `{"StatusCode":0,"Error":{"Message":"container vanished"}}`,
	}
	d, teardown := setupDockerDiffer(t, cfg, daemon)
	defer teardown()

	code, _, err := d.Diff(context.Background(), j, j.Sources[0])
	if err == nil || !strings.Contains(err.Error(), "container vanished") {
		t.Fatalf("expected wait error, got %v", err)
	}
	assertEq(code, types.ContainerFailureExitCode, t)

	// the container is removed regardless
	assertEq(daemon.recorded(), containerRun, t)
}

func TestDockerDifferPullError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pull = true
	j, err := NewJob(cfg)
	failIfError(err, t)

	daemon := &fakeDaemon{
		pullStream: `{"errorDetail":{"message":"manifest unknown"},"error":"manifest unknown"}` + "\n",
	}
	d, teardown := setupDockerDiffer(t, cfg, daemon)
	defer teardown()

	code, _, err := d.Diff(context.Background(), j, j.Sources[0])
	var perr types.ErrImagePull
	if !errors.As(err, &perr) {
		t.Fatalf("expected ErrImagePull, got %v", err)
	}
	assertEq(perr.Image, "memscrimper", t)
	assertEq(code, types.ContainerFailureExitCode, t)

	// nothing was created, and the next diff pulls again
	_, _, err = d.Diff(context.Background(), j, j.Sources[1])
	if err == nil {
		t.Fatal("expected error")
	}
	assertEq(daemon.recorded(), []string{"POST /images/create", "POST /images/create"}, t)
}
