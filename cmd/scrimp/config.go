package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	units "github.com/docker/go-units"
	"github.com/skroutz/scrimp/pkg/filesystem"
	"github.com/skroutz/scrimp/pkg/shell"
)

const (
	// DefaultPageSize is the page size memscrimper splits dumps into.
	DefaultPageSize = 4096

	// DefaultScratchSize is the size of a mounted scratch filesystem.
	DefaultScratchSize = "8g"

	// BaseDir is where memory dumps are read from and diffs written to
	// unless told otherwise.
	BaseDir = "/data/memory_dumps/"

	// DefaultOutputExtension is appended to the stem of every source to
	// name its diff.
	DefaultOutputExtension = ".diff"
)

// Config holds the configuration of a single job. It is fixed once the job
// starts.
type Config struct {
	PageSize int `json:"page_size"`

	// Scratch filesystem. No scratch filesystem is used if
	// ScratchMountPoint is empty.
	ScratchMountPoint string                `json:"scratch_mount_point"`
	ScratchSize       string                `json:"scratch_size"`
	ScratchFS         string                `json:"scratch_fs"`
	CreateScratch     bool                  `json:"create_scratch"`
	Unmount           bool                  `json:"unmount"`
	FileSystem        filesystem.FileSystem `json:"-"`

	SrcDir string `json:"src_dir"`
	WrkDir string `json:"wrk_dir"`
	DstDir string `json:"dst_dir"`

	OutputExtension string   `json:"output_extension"`
	Reference       string   `json:"reference"`
	Sources         []string `json:"sources"`

	Unzip         bool   `json:"unzip"`
	UnzipPassword string `json:"unzip_password"`
	RemoveSource  bool   `json:"rm_src"`

	// FailSoft makes failing steps get logged and skipped instead of
	// aborting the job.
	FailSoft bool `json:"fail_soft"`

	Engine      string `json:"engine"`
	Image       string `json:"image"`
	Compression string `json:"compression"`
	Pull        bool   `json:"pull"`

	Templates shell.Templates `json:"templates"`
}

// DefaultConfig returns a Config populated with the defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:        DefaultPageSize,
		ScratchSize:     DefaultScratchSize,
		ScratchFS:       "tmpfs",
		SrcDir:          BaseDir,
		WrkDir:          "./",
		DstDir:          BaseDir,
		OutputExtension: DefaultOutputExtension,
		Engine:          "cli",
		Image:           "memscrimper",
		Compression:     "gzip",
	}
}

// ParseConfig reads a JSON job file from r on top of the defaults and
// returns the resulting Config. The Config is not validated; call Validate
// once every override is applied.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	err := dec.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot parse configuration; %s", err)
	}

	return cfg, nil
}

// Validate checks cfg for errors and resolves the scratch filesystem.
func (cfg *Config) Validate() error {
	if cfg.Reference == "" {
		return errors.New("reference must be provided")
	}
	if len(cfg.Sources) == 0 {
		return errors.New("at least one source must be provided")
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("invalid page size %d", cfg.PageSize)
	}
	if cfg.WrkDir == "" {
		return errors.New("working directory must be provided")
	}
	if _, err := cfg.ScratchBytes(); err != nil {
		return err
	}

	fs, err := filesystem.Get(cfg.ScratchFS)
	if err != nil {
		return err
	}
	cfg.FileSystem = fs

	// diffs share the working directory with the staged dumps
	inputs := map[string]string{dumpName(cfg.Reference, cfg.Unzip): cfg.Reference}
	for _, src := range cfg.Sources {
		inputs[dumpName(src, cfg.Unzip)] = src
	}

	seen := make(map[string]string)
	for _, src := range cfg.Sources {
		if src == cfg.Reference {
			return fmt.Errorf("reference '%s' cannot also be a source", src)
		}
		dst := destinationName(dumpName(src, cfg.Unzip), cfg.OutputExtension)
		if prev, ok := seen[dst]; ok {
			return fmt.Errorf("sources '%s' and '%s' would both produce '%s'", prev, src, dst)
		}
		if in, ok := inputs[dst]; ok {
			return fmt.Errorf("diff of '%s' would overwrite the dump '%s'", src, in)
		}
		seen[dst] = src
	}

	return nil
}

// ScratchBytes returns the scratch filesystem size in bytes.
func (cfg *Config) ScratchBytes() (int64, error) {
	n, err := units.RAMInBytes(cfg.ScratchSize)
	if err != nil {
		return 0, fmt.Errorf("invalid scratch size '%s'; %s", cfg.ScratchSize, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid scratch size '%s'", cfg.ScratchSize)
	}
	return n, nil
}

// scratchSizeArg renders the scratch size as the mount option expects it.
func (cfg *Config) scratchSizeArg() string {
	n, err := cfg.ScratchBytes()
	if err != nil {
		return cfg.ScratchSize
	}
	return strconv.FormatInt(n, 10)
}
