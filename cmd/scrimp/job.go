package main

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/skroutz/scrimp/pkg/utils"
)

// ZipExt is the extension of archived dumps.
const ZipExt = ".zip"

// Paths are the locations derived for one input dump. They are computed once
// when the job is created.
type Paths struct {
	// Name is the file name as given in the job.
	Name string

	// Dump is the name of the dump inside the working directory. It
	// differs from Name only when archives are extracted.
	Dump string

	Stem    string
	DstName string

	SrcInput  string
	WrkInput  string
	WrkOutput string
	DstOutput string
}

// Job is a single batch: every source diffed against the reference.
type Job struct {
	ID string

	// WorkDir is the absolute path of the working directory.
	WorkDir string

	Reference Paths
	Sources   []Paths

	StartedAt time.Time
}

// NewJob returns a new Job with every path derived from cfg. cfg must be
// validated.
func NewJob(cfg *Config) (*Job, error) {
	if cfg == nil {
		return nil, errors.New("invalid configuration")
	}
	if cfg.Reference == "" || len(cfg.Sources) == 0 {
		return nil, errors.New("no reference or sources given")
	}

	wrk, err := filepath.Abs(cfg.WrkDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve working directory; %s", err)
	}

	j := new(Job)
	j.WorkDir = wrk
	j.Reference = derivePaths(cfg, cfg.Reference)
	for _, src := range cfg.Sources {
		j.Sources = append(j.Sources, derivePaths(cfg, src))
	}

	seed := strings.Join([]string{cfg.Reference, strconv.Itoa(cfg.PageSize), cfg.Compression}, "\x00")
	for _, src := range cfg.Sources {
		seed += "\x00" + src
	}
	j.ID = fmt.Sprintf("%x", sha256.Sum256([]byte(seed)))
	j.StartedAt = time.Now()

	return j, nil
}

func derivePaths(cfg *Config, name string) Paths {
	p := Paths{Name: name}
	p.Dump = dumpName(name, cfg.Unzip)
	p.Stem = utils.Stem(p.Dump)
	p.DstName = destinationName(p.Dump, cfg.OutputExtension)

	p.SrcInput = filepath.Join(cfg.SrcDir, name)
	p.WrkInput = filepath.Join(cfg.WrkDir, p.Dump)
	p.WrkOutput = filepath.Join(cfg.WrkDir, p.DstName)
	p.DstOutput = filepath.Join(cfg.DstDir, p.DstName)
	return p
}

// dumpName returns the name under which name is diffed. Archives are
// extracted under their own name without the zip extension.
func dumpName(name string, unzip bool) string {
	base := filepath.Base(name)
	if unzip && strings.HasSuffix(strings.ToLower(base), ZipExt) {
		return base[:len(base)-len(ZipExt)]
	}
	return base
}

func destinationName(dump, ext string) string {
	return utils.Stem(dump) + ext
}

func (j *Job) String() string {
	return fmt.Sprintf("{reference=%s sources=%d id=%s}", j.Reference.Name, len(j.Sources), j.ID[:7])
}
