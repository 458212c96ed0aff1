package seccomp

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// capsV3 is _LINUX_CAPABILITY_VERSION_3, the header version the
// kernel expects for a 64-bit capability set split across two
// 32-bit capUserData words (low 32 capabilities, then the next 32).
// The numeric value matches what the capability bit documentation in
// the pack's caps_linux.go reference traces back to
// (_LINUX_CAPABILITY_VERSION_3 in linux/capability.h).
const capsV3 = 0x20080522

// capUserHeader mirrors struct cap_user_header_t from
// linux/capability.h.
type capUserHeader struct {
	version uint32
	pid     int32
}

// capUserData mirrors struct cap_user_data_t from
// linux/capability.h.
type capUserData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// capset issues the raw capset(2) syscall. Passing an all-zero data
// array clears every bit in the effective, permitted and inheritable
// sets, which combined with DropBoundingSet's PR_CAPBSET_DROP loop
// leaves the calling thread with no capabilities at all, per the
// default policy spec §4.E fixes.
func capset(hdr *capUserHeader, data *capUserData) error {
	_, _, errno := unix.Syscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(data)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
