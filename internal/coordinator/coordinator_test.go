package coordinator

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isoctr/isoctr/internal/launch"
	"github.com/isoctr/isoctr/internal/logging"
)

// helperExitEnv carries the exit code a re-exec'd helper process
// (playing the role of the user's command) should return, so
// TestRunHappyPath/TestRunPropagatesNonZeroExit can drive Run's full
// spawn/cgroup/remap/wait sequence without a real container payload.
const helperExitEnv = "ISOCTR_TEST_HELPER_EXIT"

// TestMain lets this test binary double as both Init (when re-exec'd
// by spawnInit, the same /proc/self/exe trick mountpivot's tests use)
// and as the "user command" Init finally execs into, since there is no
// CLI-flag parser in this package to rebuild a Config from argv the
// way cmd/isoctr's initConfigFromEnv does.
//
// IsInit must be checked before helperExitEnv: both the Init process
// and the top-level test process inherit helperExitEnv once a test has
// set it, but only Init also carries the ISOCTR_IS_INIT marker. The
// final user-command exec strips that marker (userCommandEnv), so by
// the time a process sees helperExitEnv without IsInit() being true, it
// is genuinely standing in for the container's command.
func TestMain(m *testing.M) {
	if IsInit() {
		os.Exit(RunInit(testHelperConfig(), logging.Noop()))
	}
	if raw := os.Getenv(helperExitEnv); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			os.Exit(1)
		}
		os.Exit(code)
	}
	os.Exit(m.Run())
}

// testHelperConfig rebuilds Init's Config from test-only env vars,
// since the real CLI flags cmd/isoctr re-parses after re-exec don't
// exist in this test binary.
func testHelperConfig() launch.Config {
	uid, _ := strconv.Atoi(os.Getenv("ISOCTR_TEST_UID"))
	hostname, _ := HostnameFromEnv()
	return launch.Config{
		Request: launch.ContainerRequest{
			UID:         uid,
			Hostname:    hostname,
			MountSource: os.Getenv("ISOCTR_TEST_MOUNTSRC"),
			Command:     os.Getenv("ISOCTR_TEST_CMD"),
		},
		ScratchRoot: os.Getenv("ISOCTR_TEST_SCRATCH"),
	}
}

// buildHelperRootfs assembles a minimal container root whose /bin
// holds a copy of this test binary, so Init's final exec has a real
// executable to replace itself with post-pivot.
func buildHelperRootfs(t *testing.T) string {
	t.Helper()
	rootfs := t.TempDir()
	for _, dir := range []string{"bin", "etc", "proc"} {
		require.NoError(t, os.MkdirAll(filepath.Join(rootfs, dir), 0o755))
	}
	self, err := os.ReadFile("/proc/self/exe")
	require.NoError(t, err)
	dst := filepath.Join(rootfs, "bin", "isoctr-helper")
	require.NoError(t, os.WriteFile(dst, self, 0o755))
	return rootfs
}

func TestRunRejectsInvalidRequestWithoutSpawning(t *testing.T) {
	cfg := launch.Config{
		Request: launch.ContainerRequest{
			UID:         0,
			Hostname:    "t1",
			MountSource: "/does/not/exist",
			Command:     "/bin/true",
		},
		UIDMapPolicy: launch.DefaultUIDMapPolicy,
		CGroupLimits: launch.DefaultCGroupLimits,
		CGroupRoot:   t.TempDir(),
		ScratchRoot:  t.TempDir(),
	}

	code := Run(cfg, logging.Noop())
	require.Equal(t, 1, code)
}

// runHelperConfig builds a Config that spawns the isoctr-helper copy
// of this test binary as the container's command, wiring the
// test-only env vars testHelperConfig reads back on the Init side.
func runHelperConfig(t *testing.T, hostname string) launch.Config {
	t.Helper()

	if _, err := os.Stat("/sys/fs/cgroup/cgroup.controllers"); err != nil {
		t.Skip("requires a real cgroup v2 hierarchy at /sys/fs/cgroup")
	}

	rootfs := buildHelperRootfs(t)
	scratch := t.TempDir()

	t.Setenv("ISOCTR_TEST_UID", "0")
	t.Setenv("ISOCTR_TEST_MOUNTSRC", rootfs)
	t.Setenv("ISOCTR_TEST_CMD", "/bin/isoctr-helper")
	t.Setenv("ISOCTR_TEST_SCRATCH", scratch)

	return launch.Config{
		Request: launch.ContainerRequest{
			UID:         0,
			Hostname:    hostname,
			MountSource: rootfs,
			Command:     "/bin/isoctr-helper",
		},
		UIDMapPolicy: launch.DefaultUIDMapPolicy,
		CGroupLimits: launch.DefaultCGroupLimits,
		CGroupRoot:   "/sys/fs/cgroup",
		ScratchRoot:  scratch,
	}
}

// TestRunHappyPath exercises scenario S1 end to end: spawn, cgroup
// attach, uid/gid remap, the helper command exiting 0, and a clean
// Supervisor exit code of 0.
func TestRunHappyPath(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root privileges to clone namespaces, pivot root, and attach cgroups")
	}

	cfg := runHelperConfig(t, "coord-happy")
	t.Setenv(helperExitEnv, "0")

	code := Run(cfg, logging.Noop())
	require.Equal(t, 0, code)
}

// TestRunPropagatesNonZeroExit exercises scenario S5: the container
// command's non-zero exit status propagates to the Supervisor's own
// exit code (spec §6: non-zero container exit means Supervisor exit 1).
func TestRunPropagatesNonZeroExit(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root privileges to clone namespaces, pivot root, and attach cgroups")
	}

	cfg := runHelperConfig(t, "coord-nonzero")
	t.Setenv(helperExitEnv, "7")

	code := Run(cfg, logging.Noop())
	require.Equal(t, 1, code)
}

func TestIsInitReflectsMarkerEnv(t *testing.T) {
	t.Setenv("ISOCTR_IS_INIT", "")
	require.False(t, IsInit())

	t.Setenv("ISOCTR_IS_INIT", "1")
	require.True(t, IsInit())
}
