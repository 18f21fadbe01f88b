package utils

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestStem(t *testing.T) {
	cases := map[string]string{
		"vm1.raw":            "vm1",
		"/dumps/vm1.raw":     "vm1",
		"vm1.raw.zip":        "vm1.raw",
		"vm1":                "vm1",
		"snapshots/a.b.vmem": "a.b",
	}
	for in, expected := range cases {
		if actual := Stem(in); actual != expected {
			t.Errorf("Stem(%q): expected %q, got %q", in, expected, actual)
		}
	}
}

func TestSamePath(t *testing.T) {
	if !SamePath("./", ".") {
		t.Error("expected ./ and . to be the same path")
	}
	if !SamePath("/data/dumps/", "/data/dumps") {
		t.Error("expected trailing slash to be ignored")
	}
	if SamePath("/data/a", "/data/b") {
		t.Error("expected different paths")
	}
}

func TestEnsureDirExists(t *testing.T) {
	dir, err := ioutil.TempDir("", "scrimp-utils")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	nested := filepath.Join(dir, "a", "b")
	if err := EnsureDirExists(nested); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirExists(nested); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(dir, "file")
	if err := ioutil.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirExists(file); err == nil {
		t.Fatal("expected error for a regular file")
	}
}
