package filesystem

import (
	"context"
	"fmt"
	"sort"

	"github.com/skroutz/scrimp/pkg/shell"
)

// Registry maps the scratch filesystem name to its implementation
var Registry = make(map[string]FileSystem)

// FileSystem provisions and tears down the scratch area.
//
// Both operations follow the shell facade contract: they report success as a
// boolean, and return an error only when shell.Fail(true) is among opts.
type FileSystem interface {
	// Mount makes a scratch filesystem of the given size available at
	// mountPoint.
	Mount(ctx context.Context, sh *shell.Shell, mountPoint, size string, opts ...shell.Option) (bool, error)

	// Unmount releases the scratch filesystem at mountPoint.
	Unmount(ctx context.Context, sh *shell.Shell, mountPoint string, opts ...shell.Option) (bool, error)
}

// Get returns the registered filesystem denoted by s. If it doesn't exist,
// an error is returned.
func Get(s string) (FileSystem, error) {
	fs, ok := Registry[s]
	if !ok {
		return nil, fmt.Errorf("unknown filesystem '%s' (%v)", s, Names())
	}
	return fs, nil
}

// Names returns the names of the registered filesystems, sorted.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
