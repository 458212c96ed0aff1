package mountpivot

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/isoctr/isoctr/internal/errorsx"
)

// MountProc mounts a fresh procfs at /proc inside the new pid
// namespace. spec.md's seven pivot steps don't name this explicitly,
// but a pid namespace without its own /proc leaves `ps`, `top` and
// friends reading the host's process tree — the same gap the teacher
// and santranti-minictr both close with this exact mount, done after
// the pivot and before exec.
func MountProc() error {
	if err := os.MkdirAll("/proc", 0o555); err != nil {
		return errorsx.New(errorsx.HostState, "mkdir(/proc)", err)
	}
	if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
		return errorsx.New(errorsx.Syscall, "mount(/proc)", err)
	}
	return nil
}

// UnmountProc detaches /proc. Used when Init's final exec fails; once
// exec succeeds the mount lives for the command's lifetime.
func UnmountProc() error {
	if err := unix.Unmount("/proc", 0); err != nil {
		return errorsx.New(errorsx.Syscall, "umount(/proc)", err)
	}
	return nil
}
