package tmpfs

import (
	"context"

	"github.com/skroutz/scrimp/pkg/filesystem"
	"github.com/skroutz/scrimp/pkg/shell"
)

// Tmpfs implements the FileSystem interface with a memory-backed tmpfs
// mount. It is the recommended choice: memscrimper reads the reference and
// every dump once per diff.
type Tmpfs struct{}

func init() {
	filesystem.Registry["tmpfs"] = Tmpfs{}
}

func (fs Tmpfs) Mount(ctx context.Context, sh *shell.Shell, mountPoint, size string, opts ...shell.Option) (bool, error) {
	return sh.MountScratchFS(ctx, mountPoint, size, opts...)
}

func (fs Tmpfs) Unmount(ctx context.Context, sh *shell.Shell, mountPoint string, opts ...shell.Option) (bool, error) {
	return sh.UnmountScratchFS(ctx, mountPoint, opts...)
}
