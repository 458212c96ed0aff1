package userns

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isoctr/isoctr/internal/ipc"
	"github.com/isoctr/isoctr/internal/launch"
	"github.com/isoctr/isoctr/internal/logging"
)

func TestMapLineFormatIsBitExact(t *testing.T) {
	line := MapLine(launch.UIDMapPolicy{ContainerStart: 0, HostStart: 10000, RangeSize: 2000})
	require.Equal(t, "0 10000 2000\n", line)
}

func TestParentWriteMapFailsOnChildFailure(t *testing.T) {
	parent, child, err := ipc.NewPair()
	require.NoError(t, err)
	defer parent.Close()
	defer child.Close()

	require.NoError(t, child.SendInt(-1))

	state, err := ParentWriteMap(parent, os.Getpid(), launch.DefaultUIDMapPolicy, logging.Noop())
	require.Error(t, err)
	require.Equal(t, Failed, state)
}

func TestChildDropPrivilegesFailsOnParentFailure(t *testing.T) {
	// The parent's negative confirmation short-circuits before any
	// setresuid/setresgid syscall, so this assertion needs no
	// privilege or real user namespace.
	parent, child, err := ipc.NewPair()
	require.NoError(t, err)
	defer parent.Close()
	defer child.Close()

	require.NoError(t, parent.SendInt(-1))

	state, err := ChildDropPrivileges(child, 0)
	require.Error(t, err)
	require.Equal(t, Failed, state)
}
