package main

import (
	"testing"
)

func TestNewJob(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources = []string{"vm1.raw", "vm2.mem"}
	cfg.OutputExtension = ".msdiff"

	j, err := NewJob(cfg)
	failIfError(err, t)

	assertEq(j.WorkDir, "/wrk", t)
	assertEq(j.Reference, Paths{
		Name:      "ref.raw",
		Dump:      "ref.raw",
		Stem:      "ref",
		DstName:   "ref.msdiff",
		SrcInput:  "/src/ref.raw",
		WrkInput:  "/wrk/ref.raw",
		WrkOutput: "/wrk/ref.msdiff",
		DstOutput: "/dst/ref.msdiff",
	}, t)
	assertEq(len(j.Sources), 2, t)
	assertEq(j.Sources[1], Paths{
		Name:      "vm2.mem",
		Dump:      "vm2.mem",
		Stem:      "vm2",
		DstName:   "vm2.msdiff",
		SrcInput:  "/src/vm2.mem",
		WrkInput:  "/wrk/vm2.mem",
		WrkOutput: "/wrk/vm2.msdiff",
		DstOutput: "/dst/vm2.msdiff",
	}, t)
}

func TestNewJobUnzip(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources = []string{"vm1.raw.ZIP", "vm2.raw"}
	cfg.Unzip = true

	j, err := NewJob(cfg)
	failIfError(err, t)

	assertEq(j.Sources[0].SrcInput, "/src/vm1.raw.ZIP", t)
	assertEq(j.Sources[0].Dump, "vm1.raw", t)
	assertEq(j.Sources[0].WrkInput, "/wrk/vm1.raw", t)
	assertEq(j.Sources[0].DstOutput, "/dst/vm1.diff", t)

	// not an archive, kept as is
	assertEq(j.Sources[1].Dump, "vm2.raw", t)

	cfg.Unzip = false
	j, err = NewJob(cfg)
	failIfError(err, t)
	assertEq(j.Sources[0].Dump, "vm1.raw.ZIP", t)
	assertEq(j.Sources[0].DstName, "vm1.raw.diff", t)
}

func TestJobID(t *testing.T) {
	cfg := testConfig(t)

	j1, err := NewJob(cfg)
	failIfError(err, t)
	j2, err := NewJob(cfg)
	failIfError(err, t)
	assertEq(j1.ID, j2.ID, t)
	assertEq(len(j1.ID), 64, t)

	cfg.Sources = []string{"c.raw", "b.raw", "a.raw"}
	j3, err := NewJob(cfg)
	failIfError(err, t)
	assertNotEq(j1.ID, j3.ID, t)

	cfg.Sources = []string{"a.raw", "b.raw", "c.raw"}
	cfg.PageSize = 8192
	j4, err := NewJob(cfg)
	failIfError(err, t)
	assertNotEq(j1.ID, j4.ID, t)

	cfg.PageSize = 4096
	cfg.Reference = "ref1"
	j5, err := NewJob(cfg)
	failIfError(err, t)
	cfg.Reference = "ref"
	cfg.PageSize = 14096
	j6, err := NewJob(cfg)
	failIfError(err, t)
	assertNotEq(j5.ID, j6.ID, t)
}

func TestJobString(t *testing.T) {
	j, err := NewJob(testConfig(t))
	failIfError(err, t)
	assertEq(j.String(), "{reference=ref.raw sources=3 id="+j.ID[:7]+"}", t)
}

func TestNewJobInvalid(t *testing.T) {
	_, err := NewJob(nil)
	if err == nil {
		t.Fatal("expected error")
	}

	cfg := testConfig(t)
	cfg.Sources = nil
	_, err = NewJob(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
}
