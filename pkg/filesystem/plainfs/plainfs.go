package plainfs

import (
	"context"

	"github.com/skroutz/scrimp/pkg/filesystem"
	"github.com/skroutz/scrimp/pkg/shell"
	"github.com/skroutz/scrimp/pkg/utils"
)

// PlainFS implements the FileSystem interface. The scratch area is an
// ordinary directory, so nothing is ever mounted.
type PlainFS struct{}

func init() {
	filesystem.Registry["plain"] = PlainFS{}
}

// Mount ensures mountPoint exists as a directory. size is ignored.
func (fs PlainFS) Mount(ctx context.Context, sh *shell.Shell, mountPoint, size string, opts ...shell.Option) (bool, error) {
	return sh.Check("mount_scratch", utils.EnsureDirExists(mountPoint), opts...)
}

// Unmount is a no-op.
func (fs PlainFS) Unmount(ctx context.Context, sh *shell.Shell, mountPoint string, opts ...shell.Option) (bool, error) {
	return true, nil
}
