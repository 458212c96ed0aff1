package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isoctr/isoctr/internal/errorsx"
)

func TestSendRecvRoundTrip(t *testing.T) {
	parent, child, err := NewPair()
	require.NoError(t, err)
	defer parent.Close()
	defer child.Close()

	require.NoError(t, parent.SendInt(-7))
	got, err := child.RecvInt()
	require.NoError(t, err)
	require.EqualValues(t, -7, got)

	require.NoError(t, child.SendInt(0))
	got, err = parent.RecvInt()
	require.NoError(t, err)
	require.EqualValues(t, 0, got)
}

func TestRecvAfterPeerCloseIsHandshakeError(t *testing.T) {
	parent, child, err := NewPair()
	require.NoError(t, err)
	defer parent.Close()

	require.NoError(t, child.Close())

	_, err = parent.RecvInt()
	require.Error(t, err)
	require.True(t, errorsx.Is(err, errorsx.Handshake))
}

func TestEachSendIsOneMessage(t *testing.T) {
	parent, child, err := NewPair()
	require.NoError(t, err)
	defer parent.Close()
	defer child.Close()

	require.NoError(t, parent.SendInt(1))
	require.NoError(t, parent.SendInt(2))

	first, err := child.RecvInt()
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	second, err := child.RecvInt()
	require.NoError(t, err)
	require.EqualValues(t, 2, second)
}
