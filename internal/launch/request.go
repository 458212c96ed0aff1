// Package launch defines the isolation pipeline's immutable data
// model: the ContainerRequest a Supervisor builds before spawning
// Init, and the Config assembled once from CLI flags.
package launch

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/isoctr/isoctr/internal/errorsx"
)

// hostnameRE bounds the hostname to what is both filesystem-safe (it
// doubles as the cgroup directory name) and a legal UTS hostname.
var hostnameRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,62}$`)

// UIDMapPolicy is the fixed uid/gid remapping policy from spec §4.D:
// container-root appears as a low-privileged host user.
type UIDMapPolicy struct {
	ContainerStart int
	HostStart      int
	RangeSize      int
}

// DefaultUIDMapPolicy is the policy spec.md §9 fixes as the default:
// container range starts at 0, host range starts at 10000, covering
// 2000 ids.
var DefaultUIDMapPolicy = UIDMapPolicy{ContainerStart: 0, HostStart: 10000, RangeSize: 2000}

// CGroupLimits is the fixed resource policy from spec §4.B, exposed
// as configuration rather than compiled-in constants per the Design
// Note in spec §9.
type CGroupLimits struct {
	MemoryMax string // e.g. "1073741824" (1 GiB) for memory.max
	CPUWeight string // e.g. "256" for cpu.weight
	PidsMax   string // e.g. "64" for pids.max
}

// DefaultCGroupLimits is the fixed policy spec.md §4.B names: a 1 GiB
// memory ceiling, CPU weight 256 (above cgroup v2's default weight of
// 100), and a 64-process ceiling.
var DefaultCGroupLimits = CGroupLimits{
	MemoryMax: "1073741824",
	CPUWeight: "256",
	PidsMax:   "64",
}

// ContainerRequest is immutable once built: no field mutates after
// Init is spawned (spec §3 invariant).
type ContainerRequest struct {
	UID         int
	Hostname    string
	MountSource string
	Command     string
	Argument    string // optional; empty means no argument
	HasArgument bool
}

// Argv returns the exec vector for the command inside the container:
// the command plus, if present, a single positional argument. This is
// the resolution of the argv-shape Open Question in spec.md §9 — a
// single optional argument, not a full argv array.
func (r ContainerRequest) Argv() []string {
	if r.HasArgument {
		return []string{r.Command, r.Argument}
	}
	return []string{r.Command}
}

// Validate checks the invariants spec §4.F step 1 requires before a
// launch may proceed: non-empty command, existing mount source,
// hostname within length/character constraints. It requires no root
// privilege and no namespace, so it is safe to call from unprivileged
// tests.
func (r ContainerRequest) Validate() error {
	if r.Command == "" {
		return errorsx.New(errorsx.Configuration, "validate", errNonEmpty("command"))
	}
	if !filepath.IsAbs(r.Command) {
		return errorsx.New(errorsx.Configuration, "validate", errAbs("command"))
	}
	if r.MountSource == "" {
		return errorsx.New(errorsx.Configuration, "validate", errNonEmpty("mount_source"))
	}
	info, err := os.Stat(r.MountSource)
	if err != nil {
		return errorsx.New(errorsx.HostState, "stat", err)
	}
	if !info.IsDir() {
		return errorsx.New(errorsx.Configuration, "validate", errNotDir(r.MountSource))
	}
	if !hostnameRE.MatchString(r.Hostname) {
		return errorsx.New(errorsx.Configuration, "validate", errHostname(r.Hostname))
	}
	return nil
}

// Config is the immutable, fully-parsed launcher configuration built
// once by cmd/isoctr and passed by value into the coordinator. It is
// never a package-level global, per the Design Note in spec §9 about
// the source's global argument structures.
type Config struct {
	Request      ContainerRequest
	UIDMapPolicy UIDMapPolicy
	CGroupLimits CGroupLimits
	CGroupRoot   string // e.g. "/sys/fs/cgroup"
	ScratchRoot  string // e.g. "/var/tmp" for mount-pivot scratch dirs
	Verbose      bool
}
