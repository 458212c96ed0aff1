// Package userns implements the User Remapper (spec §4.D): the
// cross-process protocol that establishes a uid/gid mapping between
// host and container user namespaces. The kernel requires the
// uid_map/gid_map write to come from outside the new namespace, so
// this is necessarily a two-sided handshake over an ipc.Channel.
package userns

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/isoctr/isoctr/internal/errorsx"
	"github.com/isoctr/isoctr/internal/ipc"
	"github.com/isoctr/isoctr/internal/launch"
	"github.com/isoctr/isoctr/internal/logging"
)

// State is the RemappingState machine from spec §3/§4.D.
type State int

const (
	AwaitingChildUnshare State = iota
	AwaitingParentMap
	Ready
	Failed
)

// ChildUnshare is step D.1: Init detaches into a new user namespace
// and reports the outcome to the Supervisor: 0 is sent over ch on
// success and -1 on failure. The returned State is AwaitingParentMap
// on success and Failed otherwise.
func ChildUnshare(ch *ipc.Channel) (State, error) {
	err := unix.Unshare(unix.CLONE_NEWUSER)
	if err != nil {
		_ = ch.SendInt(-1)
		return Failed, errorsx.New(errorsx.Handshake, "unshare(CLONE_NEWUSER)", err)
	}
	if sendErr := ch.SendInt(0); sendErr != nil {
		return Failed, sendErr
	}
	return AwaitingParentMap, nil
}

// ParentWriteMap is steps D.2-D.4: the Supervisor receives the
// child's unshare outcome, and on success writes a single uid_map and
// gid_map line into /proc/<pid>/{uid,gid}_map, then confirms with 0.
// On the child's failure, or on a write failure, it sends a negative
// response and the handshake ends in Failed.
func ParentWriteMap(ch *ipc.Channel, pid int, policy launch.UIDMapPolicy, log logging.Sink) (State, error) {
	outcome, err := ch.RecvInt()
	if err != nil {
		return Failed, err
	}
	if outcome != 0 {
		_ = ch.SendInt(-1)
		return Failed, errorsx.New(errorsx.Handshake, "unshare(child)", fmt.Errorf("child reported failure %d", outcome))
	}

	line := MapLine(policy)
	if err := writeMap(pid, "uid_map", line); err != nil {
		_ = ch.SendInt(-1)
		return Failed, err
	}
	if err := writeMap(pid, "gid_map", line); err != nil {
		_ = ch.SendInt(-1)
		return Failed, err
	}
	log.Debugf("userns: wrote uid/gid map %q for pid %d", line, pid)

	if err := ch.SendInt(0); err != nil {
		return Failed, err
	}
	return Ready, nil
}

// ChildDropPrivileges is step D.5: Init receives the parent's
// confirmation, then sets the supplementary groups to the single entry
// uid before dropping euid — the ordering is mandatory, since once
// euid is non-zero the setgroups call is forbidden.
func ChildDropPrivileges(ch *ipc.Channel, uid int) (State, error) {
	confirmation, err := ch.RecvInt()
	if err != nil {
		return Failed, err
	}
	if confirmation != 0 {
		return Failed, errorsx.New(errorsx.Handshake, "map(parent)", fmt.Errorf("parent reported failure %d", confirmation))
	}

	if err := unix.Setgroups([]int{uid}); err != nil {
		return Failed, errorsx.New(errorsx.Syscall, "setgroups", err)
	}
	if err := unix.Setresgid(uid, uid, uid); err != nil {
		return Failed, errorsx.New(errorsx.Syscall, "setresgid", err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return Failed, errorsx.New(errorsx.Syscall, "setresuid", err)
	}
	return Ready, nil
}

// MapLine renders the bit-exact uid_map/gid_map line format the
// kernel requires: "<id-inside-ns> <id-outside-ns> <length>\n" (see
// user_namespaces(7)) — the in-container id range comes first, the
// host id range it maps to comes second.
func MapLine(policy launch.UIDMapPolicy) string {
	return fmt.Sprintf("%d %d %d\n", policy.ContainerStart, policy.HostStart, policy.RangeSize)
}

func writeMap(pid int, file, line string) error {
	path := fmt.Sprintf("/proc/%d/%s", pid, file)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errorsx.New(errorsx.HostState, "open("+file+")", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return errorsx.New(errorsx.Syscall, "write("+file+")", err)
	}
	return nil
}
