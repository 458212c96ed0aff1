package mountpivot

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isoctr/isoctr/internal/logging"
)

// helperSysProcAttr gives the pivot-test helper its own mount
// namespace, exactly like Init gets before the coordinator calls
// Pivot for real.
func helperSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Cloneflags: syscall.CLONE_NEWNS}
}

// TestPivotIsolatesRoot exercises the full seven-step pivot inside a
// real mount namespace. It requires root (to unshare/mount/pivot_root)
// and is skipped otherwise, matching the teacher's
// TestFilesystemIsolation / TestContainerRootFileSystem convention of
// gating namespace-touching tests on os.Geteuid() == 0.
func TestPivotIsolatesRoot(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root privileges to unshare and pivot_root")
	}

	rootfs := t.TempDir()
	for _, dir := range []string{"bin", "etc", "proc"} {
		require.NoError(t, os.MkdirAll(filepath.Join(rootfs, dir), 0o755))
	}
	marker := filepath.Join(rootfs, "marker")
	require.NoError(t, os.WriteFile(marker, []byte("inside"), 0o644))

	scratch := t.TempDir()

	cmd := exec.Command("/proc/self/exe", "-test.run=TestHelperPivotChild")
	cmd.Env = append(os.Environ(),
		"ISOCTR_PIVOT_HELPER=1",
		"ISOCTR_PIVOT_ROOTFS="+rootfs,
		"ISOCTR_PIVOT_SCRATCH="+scratch,
	)
	cmd.SysProcAttr = helperSysProcAttr()
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "helper output: %s", out)
	require.Contains(t, string(out), "inside")
}

// TestHelperPivotChild is invoked as a subprocess by
// TestPivotIsolatesRoot; it is not a real test when run directly
// because ISOCTR_PIVOT_HELPER gates the body.
func TestHelperPivotChild(t *testing.T) {
	if os.Getenv("ISOCTR_PIVOT_HELPER") != "1" {
		t.Skip("only runs as a pivot-test helper subprocess")
	}

	rootfs := os.Getenv("ISOCTR_PIVOT_ROOTFS")
	scratch := os.Getenv("ISOCTR_PIVOT_SCRATCH")

	require.NoError(t, Pivot(rootfs, scratch, "isoctr", logging.Noop()))

	content, err := os.ReadFile("/marker")
	require.NoError(t, err)
	os.Stdout.Write(content)

	_, err = os.Stat("/etc/passwd")
	require.True(t, os.IsNotExist(err) || err != nil)
}
