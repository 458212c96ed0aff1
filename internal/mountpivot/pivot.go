// Package mountpivot implements the Mount Pivot (spec §4.C): run
// inside Init after the mount namespace has been entered, it turns a
// host directory into Init's private view of "/" with no path back to
// the host root.
package mountpivot

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/isoctr/isoctr/internal/errorsx"
	"github.com/isoctr/isoctr/internal/logging"
)

const holdingPenName = ".old-root"

// Pivot runs the seven-step algorithm from spec §4.C against
// mountSource, using scratchRoot as the parent of the temporary
// bind-mount directory. prefix names the scratch directory pattern
// ("<prefix>.<random>"), matching spec §6's filesystem contract.
//
// On success, from the calling process's perspective "/" is a private
// view of mountSource and no path traversal can reach the host root.
// Any failure is fatal to Init; a partially-created-but-not-pivoted
// scratch directory is left for host administrative cleanup, since
// Init has no privileged recourse at that point (spec §4.C).
func Pivot(mountSource, scratchRoot, prefix string, log logging.Sink) error {
	// Step 1: remount the existing root as private and recursive so
	// later mount operations never propagate to the host.
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return errorsx.New(errorsx.Syscall, "mount(private,/)", err)
	}

	// Step 2: create a fresh scratch directory.
	scratch := filepath.Join(scratchRoot, prefix+"."+uuid.NewString()[:8])
	if err := os.Mkdir(scratch, 0o700); err != nil {
		return errorsx.New(errorsx.HostState, "mkdir(scratch)", err)
	}
	log.Debugf("pivot: scratch dir %s", scratch)

	// Step 3: bind-mount mountSource onto the scratch dir, private.
	if err := unix.Mount(mountSource, scratch, "", unix.MS_BIND, ""); err != nil {
		return errorsx.New(errorsx.Syscall, "mount(bind)", err)
	}
	if err := unix.Mount("", scratch, "", unix.MS_PRIVATE, ""); err != nil {
		return errorsx.New(errorsx.Syscall, "mount(private,scratch)", err)
	}

	// Step 4: create the holding pen for the old root, inside scratch.
	holdingPen := filepath.Join(scratch, holdingPenName)
	if err := os.Mkdir(holdingPen, 0o700); err != nil {
		return errorsx.New(errorsx.HostState, "mkdir(holding-pen)", err)
	}

	// Step 5: pivot_root — scratch becomes "/", the previous root is
	// relocated under the holding pen.
	if err := unix.PivotRoot(scratch, holdingPen); err != nil {
		return errorsx.New(errorsx.Syscall, "pivot_root", err)
	}

	// Step 6: chdir to the new "/".
	if err := unix.Chdir("/"); err != nil {
		return errorsx.New(errorsx.Syscall, "chdir(/)", err)
	}

	// Step 7: lazily detach the old root and remove the now-empty
	// holding directory. The holding pen is visible at "/" + its base
	// name after the pivot, since scratch itself became "/".
	oldRoot := "/" + holdingPenName
	if err := unix.Unmount(oldRoot, unix.MNT_DETACH); err != nil {
		return errorsx.New(errorsx.Syscall, "umount2(old-root)", err)
	}
	if err := os.RemoveAll(oldRoot); err != nil {
		return errorsx.New(errorsx.HostState, "rmdir(old-root)", err)
	}
	log.Debugf("pivot: complete, root is now a private view of %s", mountSource)

	return nil
}
