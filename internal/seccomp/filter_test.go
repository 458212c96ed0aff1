package seccomp

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// probeDeniedMount attempts a harmless tmpfs mount purely to probe
// whether the installed filter denies the mount(2) syscall.
func probeDeniedMount() error {
	dir := os.TempDir()
	return unix.Mount("tmpfs", dir, "tmpfs", 0, "")
}

func TestDenyListCoversRequiredCategories(t *testing.T) {
	want := []string{
		"mount", "init_module", "settimeofday", "unshare",
		"ptrace", "reboot", "keyctl", "msgget",
	}
	have := map[string]bool{}
	for _, c := range DenyList {
		have[c] = true
	}
	for _, w := range want {
		require.True(t, have[w], "deny-list missing %q", w)
	}
}

// TestDeniedSyscallReturnsEPERM exercises scenario S6: once the
// filter is installed, invoking a denied syscall returns
// operation-not-permitted rather than crashing the process.
func TestDeniedSyscallReturnsEPERM(t *testing.T) {
	if os.Getenv("ISOCTR_SECCOMP_HELPER") == "1" {
		if err := InstallFilter(); err != nil {
			os.Exit(3)
		}
		if err := probeDeniedMount(); err != unix.EPERM {
			os.Exit(4) // mount should have been denied with EPERM
		}
		os.Exit(0)
	}

	if os.Geteuid() != 0 {
		t.Skip("requires root to load a seccomp filter against a real mount attempt")
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestDeniedSyscallReturnsEPERM")
	cmd.Env = append(os.Environ(), "ISOCTR_SECCOMP_HELPER=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "helper output: %s", out)
}
