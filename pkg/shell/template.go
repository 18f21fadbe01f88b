package shell

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Templates holds the command lines the facade runs. Arguments are given as
// {name} placeholders.
type Templates struct {
	CreateDir      string `json:"create_dir"`
	UpdatePerms    string `json:"update_perms"`
	MountScratch   string `json:"mount_scratch"`
	UnmountScratch string `json:"unmount_scratch"`
	Copy           string `json:"copy"`
	Remove         string `json:"remove"`
	Unzip          string `json:"unzip"`
	UnzipPassword  string `json:"unzip_password"`
	Diff           string `json:"diff"`
}

// DefaultTemplates returns the templates used when none are configured.
func DefaultTemplates() Templates {
	return Templates{
		CreateDir:      "sudo mkdir -p {location}",
		UpdatePerms:    "sudo chmod -R a+rw {location}",
		MountScratch:   "sudo mount -t tmpfs -o size={size} tmpfs {mount_point}",
		UnmountScratch: "sudo umount {mount_point}",
		Copy:           "cp {source} {destination}",
		Remove:         "rm -rf {location}",
		Unzip:          "unzip -o {source} -d {destination}",
		UnzipPassword:  "unzip -o -P {password} {source} -d {destination}",
		Diff: "docker run --rm -v {working_dir}:/data {image} c " +
			"/data/{reference} /data/{source} /data/{destination} " +
			"{page_size} {compression} 0 1",
	}
}

// Merge returns t with every empty field filled from d.
func (t Templates) Merge(d Templates) Templates {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.CreateDir, d.CreateDir)
	fill(&t.UpdatePerms, d.UpdatePerms)
	fill(&t.MountScratch, d.MountScratch)
	fill(&t.UnmountScratch, d.UnmountScratch)
	fill(&t.Copy, d.Copy)
	fill(&t.Remove, d.Remove)
	fill(&t.Unzip, d.Unzip)
	fill(&t.UnzipPassword, d.UnzipPassword)
	fill(&t.Diff, d.Diff)
	return t
}

// Vars are the values substituted into a template.
type Vars map[string]string

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// Expand splits tmpl into arguments and substitutes vars into each of them.
// The template is split before substitution, so a value containing spaces
// stays a single argument.
func Expand(tmpl string, vars Vars) ([]string, error) {
	tokens, err := shlex.Split(tmpl)
	if err != nil {
		return nil, fmt.Errorf("cannot parse template %q: %s", tmpl, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty template")
	}

	args := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		var missing string
		arg := placeholder.ReplaceAllStringFunc(tok, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := vars[name]
			if !ok {
				missing = name
				return m
			}
			return v
		})
		if missing != "" {
			return nil, fmt.Errorf("template %q: no value for {%s}", tmpl, missing)
		}
		args = append(args, arg)
	}
	return args, nil
}

// String renders args for logging.
func String(args []string) string {
	return strings.Join(args, " ")
}
