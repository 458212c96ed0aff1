// Package seccomp implements the Capability & Syscall Filter (spec
// §4.E): dropping ambient capabilities and installing a syscall
// deny-list, the last privileged action Init takes before exec.
package seccomp

import (
	"golang.org/x/sys/unix"

	libseccomp "github.com/seccomp/libseccomp-golang"

	"github.com/isoctr/isoctr/internal/errorsx"
)

// InstallFilter builds a default-allow filter with an EPERM rule for
// every syscall in DenyList and loads it into the kernel. Once
// loaded, the filter is inherited across exec and applies to all of
// Init's descendants, exactly as spec §4.E requires.
func InstallFilter() error {
	filter, err := libseccomp.NewFilter(libseccomp.ActAllow)
	if err != nil {
		return errorsx.New(errorsx.Syscall, "seccomp.NewFilter", err)
	}
	defer filter.Release()

	denyAction := libseccomp.ActErrno.SetReturnCode(int16(unix.EPERM))

	for _, name := range DenyList {
		call, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			// Not every kernel/arch exposes every deny-listed name
			// (e.g. some obsolete SysV IPC calls are folded into
			// ipc(2) on certain architectures); an unknown name is
			// skipped. ipc(2) itself is not in DenyList, so on such
			// architectures those operations are not filtered.
			continue
		}
		if err := filter.AddRule(call, denyAction); err != nil {
			return errorsx.New(errorsx.Syscall, "seccomp.AddRule:"+name, err)
		}
	}

	if err := filter.Load(); err != nil {
		return errorsx.New(errorsx.Syscall, "seccomp.Load", err)
	}
	return nil
}

// DropBoundingSet clears the bounding set one capability at a time via
// PR_CAPBSET_DROP (spec §4.E). It must run before the uid/gid drop
// (userns.ChildDropPrivileges): PR_CAPBSET_DROP itself requires
// CAP_SETPCAP in the effective set, and changing the effective uid
// away from 0 clears the effective set, taking CAP_SETPCAP with it.
func DropBoundingSet() error {
	for cap := 0; cap <= unix.CAP_LAST_CAP; cap++ {
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(cap), 0, 0, 0); err != nil {
			// EINVAL means the running kernel doesn't know this
			// capability number; later kernels only add bits, so
			// skipping is safe and keeps this forward-compatible.
			if err == unix.EINVAL {
				continue
			}
			return errorsx.New(errorsx.Syscall, "prctl(PR_CAPBSET_DROP)", err)
		}
	}
	return nil
}

// ClearActiveSets zeroes the permitted, effective and inheritable sets
// via a direct capset(2) call, leaving the default policy's minimal
// subset: none (spec §4.E). It runs after the uid/gid drop: the kernel
// already clears the effective (and, without KEEPCAPS, permitted) set
// on a UID change away from 0, but the inheritable set survives that
// change and needs this explicit clear. Shrinking a thread's own sets
// never requires any capability, so this call is safe to make after
// privileges have already been dropped.
func ClearActiveSets() error {
	hdr := capUserHeader{version: capsV3, pid: 0}
	var data [2]capUserData // permitted/effective/inheritable for caps 0-31 and 32-63
	if err := capset(&hdr, &data[0]); err != nil {
		return errorsx.New(errorsx.Syscall, "capset", err)
	}
	return nil
}
