// Package cgroup implements the CGroup Controller (spec §4.B): it
// creates a per-container cgroup v2 directory, writes the fixed
// resource policy, binds the Init pid, and tears the directory down
// once Init has been reaped.
package cgroup

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/isoctr/isoctr/internal/errorsx"
	"github.com/isoctr/isoctr/internal/launch"
	"github.com/isoctr/isoctr/internal/logging"
)

// Handle identifies a single live cgroup directory, owned exclusively
// by the Supervisor that created it (spec §3, CGroupHandle).
type Handle struct {
	path string
	log  logging.Sink
}

// Path returns the cgroup directory's absolute path.
func (h *Handle) Path() string { return h.path }

// Apply creates <cgroupRoot>/<hostname> with owner-only permissions,
// writes the fixed resource limits, then appends pid to the group's
// process list. Limits are written strictly before pid attachment
// (spec §4.B) so Init cannot exceed a limit in the window between
// attachment and limit installation.
//
// A pre-existing directory is a hostname collision and is reported as
// a Host-state error naming mkdir, matching scenario S2.
func Apply(cgroupRoot, hostname string, limits launch.CGroupLimits, pid int, log logging.Sink) (*Handle, error) {
	path := filepath.Join(cgroupRoot, hostname)

	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, errorsx.New(errorsx.HostState, "mkdir", err)
	}
	h := &Handle{path: path, log: log}
	log.Debugf("cgroup: created %s", path)

	writes := []struct {
		file  string
		value string
	}{
		{"memory.max", limits.MemoryMax},
		{"cpu.weight", limits.CPUWeight},
		{"pids.max", limits.PidsMax},
	}
	for _, w := range writes {
		if err := writeAttr(path, w.file, w.value); err != nil {
			// The cgroup directory now exists but is only partially
			// configured; the caller must still Release it to avoid
			// leaking the directory (spec §4.B).
			return h, err
		}
	}

	if err := writeAttr(path, "cgroup.procs", strconv.Itoa(pid)); err != nil {
		return h, err
	}
	log.Debugf("cgroup: attached pid %d to %s", pid, path)

	return h, nil
}

// Release removes the cgroup directory. It must only be called after
// Init and all descendants have exited, since cgroupfs refuses to
// remove a populated directory.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	if err := os.Remove(h.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errorsx.New(errorsx.HostState, "rmdir", err)
	}
	h.log.Debugf("cgroup: removed %s", h.path)
	return nil
}

func writeAttr(cgroupPath, file, value string) error {
	full := filepath.Join(cgroupPath, file)
	if err := os.WriteFile(full, []byte(value), 0o644); err != nil {
		return errorsx.New(errorsx.HostState, "write:"+file, err)
	}
	return nil
}
