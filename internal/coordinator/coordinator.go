// Package coordinator implements the Isolation Coordinator (spec
// §4.F): it orchestrates the clone-with-namespaces spawn, sequences
// components A-E, waits for Init, and cleans up in reverse order of
// acquisition.
package coordinator

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/isoctr/isoctr/internal/cgroup"
	"github.com/isoctr/isoctr/internal/errorsx"
	"github.com/isoctr/isoctr/internal/ipc"
	"github.com/isoctr/isoctr/internal/launch"
	"github.com/isoctr/isoctr/internal/logging"
	"github.com/isoctr/isoctr/internal/mountpivot"
	"github.com/isoctr/isoctr/internal/seccomp"
	"github.com/isoctr/isoctr/internal/userns"
)

// childMarker tells a re-exec'd process it is Init, not a fresh
// Supervisor invocation — the same re-exec-self pattern the teacher
// and santranti-minictr both converge on to get a clean func main()
// inside the freshly cloned namespaces.
const childMarker = "ISOCTR_IS_INIT=1"

// ipcFDEnv carries the inherited IPC endpoint's file-descriptor
// number across exec, since ExtraFiles always lands at fd 3 onward in
// order but Init needs to know which one is its channel.
const ipcFDEnv = "ISOCTR_IPC_FD"

// hostnameEnv carries the Supervisor's resolved (possibly
// uuid-suffixed) hostname to Init, since Init re-parses the same CLI
// flags the Supervisor did and would otherwise generate a different
// random suffix than the one the Supervisor already used to name the
// cgroup directory.
const hostnameEnv = "ISOCTR_HOSTNAME"

// HostnameFromEnv returns the hostname the Supervisor resolved, for
// Init's config assembly. ok is false when unset (i.e. this process
// is not a re-exec'd Init).
func HostnameFromEnv() (string, bool) {
	v := os.Getenv(hostnameEnv)
	return v, v != ""
}

// Run is the Supervisor's entry point: validate, spawn, hand off to
// the cgroup and user-remap parent-side steps, wait, unwind. It
// returns the exit code the process should use (spec §6): 0 on clean
// container exit with status 0, 1 on launcher failure or non-zero
// container exit.
func Run(cfg launch.Config, log logging.Sink) int {
	if err := cfg.Request.Validate(); err != nil {
		log.Errorf("launch rejected: %v", err)
		return 1
	}

	parentEnd, childEnd, err := ipc.NewPair()
	if err != nil {
		log.Errorf("ipc setup failed: %v", err)
		return 1
	}
	defer parentEnd.Close()

	cmd, err := spawnInit(cfg, childEnd)
	// The parent no longer needs its copy of the child's endpoint
	// once ExtraFiles has duplicated it into the child; closing here
	// keeps the Supervisor's fd table from growing per launch.
	childEnd.Close()
	if err != nil {
		log.Errorf("spawn failed: %v", err)
		return 1
	}

	pid := cmd.Process.Pid
	log.Infof("init pid %d spawned for hostname %q", pid, cfg.Request.Hostname)

	var cg *cgroup.Handle
	failed := false

	cg, err = cgroup.Apply(cfg.CGroupRoot, cfg.Request.Hostname, cfg.CGroupLimits, pid, log)
	if err != nil {
		log.Errorf("cgroup apply failed: %v", err)
		failed = true
	}

	if !failed {
		if _, err := userns.ParentWriteMap(parentEnd, pid, cfg.UIDMapPolicy, log); err != nil {
			log.Errorf("uid/gid remap failed: %v", err)
			failed = true
		}
	}

	if failed {
		// Best-effort termination before cleanup, per spec §4.F step 7.
		_ = cmd.Process.Kill()
	}

	waitErr := cmd.Wait()

	if cg != nil {
		if relErr := cg.Release(); relErr != nil {
			log.Warnf("cgroup release failed: %v", relErr)
		}
	}

	if failed {
		return 1
	}

	return exitCodeFor(waitErr, log)
}

// spawnInit performs spec §4.F step 4: clone with new mount, pid,
// uts, ipc and cgroup namespaces. CLONE_NEWUSER is deliberately not
// requested here; Init creates its own user namespace later so the
// unshare-then-map handshake can be sequenced with the Supervisor
// (spec §4.F).
func spawnInit(cfg launch.Config, childEnd *ipc.Channel) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errorsx.New(errorsx.Resource, "os.Executable", err)
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.ExtraFiles = []*os.File{childEnd.File()}
	cmd.Env = append(os.Environ(),
		childMarker,
		ipcFDEnv+"="+strconv.Itoa(3),
		hostnameEnv+"="+cfg.Request.Hostname,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS |
			syscall.CLONE_NEWPID |
			syscall.CLONE_NEWUTS |
			syscall.CLONE_NEWIPC |
			syscall.CLONE_NEWCGROUP,
	}

	if err := cmd.Start(); err != nil {
		return nil, errorsx.New(errorsx.Resource, "clone", err)
	}
	return cmd, nil
}

func exitCodeFor(waitErr error, log logging.Sink) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		if code == 0 {
			return 0
		}
		return 1
	}
	log.Errorf("init wait failed: %v", waitErr)
	return 1
}

// IsInit reports whether this process invocation is the re-exec'd
// Init side, per the ISOCTR_IS_INIT marker spawnInit sets.
func IsInit() bool { return os.Getenv("ISOCTR_IS_INIT") == "1" }

// InitIPCEndpoint opens the inherited IPC file descriptor as Init's
// end of the channel.
func InitIPCEndpoint() (*ipc.Channel, error) {
	fdStr := os.Getenv(ipcFDEnv)
	if fdStr == "" {
		return nil, errorsx.New(errorsx.Configuration, "init-ipc-fd", fmt.Errorf("%s not set", ipcFDEnv))
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return nil, errorsx.New(errorsx.Configuration, "init-ipc-fd", err)
	}
	return ipc.FromFD(uintptr(fd)), nil
}



// userCommandEnv strips isoctr's own internal bookkeeping variables
// out of the environment before the final exec, so the container's
// command never observes ISOCTR_IS_INIT and re-enters Init's sequence
// if it happens to be another copy of this same binary (e.g. a
// re-exec-self pattern of its own, or this package's own tests).
func userCommandEnv() []string {
	drop := map[string]bool{
		"ISOCTR_IS_INIT": true,
		ipcFDEnv:         true,
		hostnameEnv:      true,
	}
	env := os.Environ()
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, found := strings.Cut(kv, "=")
		if found && drop[key] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// RunInit is Init's sequence after spawn (spec §4.F): set UTS
// hostname, pivot the root, run the user-remap child side, drop
// capabilities and install the syscall filter, then replace itself
// with the user's command.
func RunInit(cfg launch.Config, log logging.Sink) int {
	ch, err := InitIPCEndpoint()
	if err != nil {
		log.Errorf("init ipc setup failed: %v", err)
		return 1
	}

	if err := syscall.Sethostname([]byte(cfg.Request.Hostname)); err != nil {
		log.Errorf("sethostname failed: %v", err)
		return 1
	}

	if err := mountpivot.Pivot(cfg.Request.MountSource, cfg.ScratchRoot, "isoctr", log); err != nil {
		log.Errorf("mount pivot failed: %v", err)
		return 1
	}

	if err := mountpivot.MountProc(); err != nil {
		log.Errorf("mount /proc failed: %v", err)
		return 1
	}

	if _, err := userns.ChildUnshare(ch); err != nil {
		log.Errorf("user namespace unshare failed: %v", err)
		return 1
	}

	// The bounding-set drop must happen before the uid/gid drop below:
	// PR_CAPBSET_DROP needs CAP_SETPCAP in the effective set, and
	// changing the effective uid away from 0 clears the effective set.
	if err := seccomp.DropBoundingSet(); err != nil {
		log.Errorf("capability bounding-set drop failed: %v", err)
		return 1
	}

	if _, err := userns.ChildDropPrivileges(ch, cfg.Request.UID); err != nil {
		log.Errorf("privilege drop failed: %v", err)
		return 1
	}

	// The handshake is done; close the channel explicitly (not via
	// defer, since syscall.Exec below never returns to run deferred
	// calls) so it cannot leak as an open fd into the user's command.
	if err := ch.Close(); err != nil {
		log.Warnf("closing ipc endpoint failed: %v", err)
	}

	if err := seccomp.ClearActiveSets(); err != nil {
		log.Errorf("capability clear failed: %v", err)
		return 1
	}
	if err := seccomp.InstallFilter(); err != nil {
		log.Errorf("seccomp filter install failed: %v", err)
		return 1
	}

	argv := cfg.Request.Argv()
	log.Debugf("init: exec %v", argv)
	if err := syscall.Exec(argv[0], argv, userCommandEnv()); err != nil {
		log.Errorf("exec failed: %v", err)
		// exec never took over this process image; unmount /proc
		// explicitly since this process is about to exit on its own
		// terms.
		if unmountErr := mountpivot.UnmountProc(); unmountErr != nil {
			log.Warnf("unmount /proc on exec failure: %v", unmountErr)
		}
		return 1
	}
	return 0 // unreachable on success: exec replaces this process
}
