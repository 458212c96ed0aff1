// Package ipc implements the Supervisor/Init handshake channel:
// an ordered, boundary-preserving pair of endpoints that carries the
// small signed integers the user-remapping handshake exchanges.
package ipc

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"

	"github.com/isoctr/isoctr/internal/errorsx"
)

// Channel is one endpoint of a SOCK_SEQPACKET socketpair. SEQPACKET
// preserves message boundaries, which a stream pipe cannot guarantee
// without an added framing discipline (spec §9) — each Send delivers
// exactly one message and each Recv consumes exactly one.
type Channel struct {
	f *os.File
}

// NewPair creates a connected pair of endpoints. Both are marked
// close-on-exec immediately so neither leaks into the eventual exec
// of the user's command; the caller is responsible for closing the
// endpoint it does not own after fork.
func NewPair() (parent, child *Channel, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, errorsx.New(errorsx.Resource, "socketpair", err)
	}
	for _, fd := range fds {
		if err := unix.CloseOnExec(fd); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, errorsx.New(errorsx.Resource, "fcntl(FD_CLOEXEC)", err)
		}
	}
	parent = &Channel{f: os.NewFile(uintptr(fds[0]), "ipc-parent")}
	child = &Channel{f: os.NewFile(uintptr(fds[1]), "ipc-child")}
	return parent, child, nil
}

// FromFD wraps an already-open file descriptor (inherited across
// exec, e.g. via ExtraFiles) as a Channel endpoint.
func FromFD(fd uintptr) *Channel {
	return &Channel{f: os.NewFile(fd, "ipc-inherited")}
}

// File exposes the underlying *os.File so the coordinator can hand
// the child endpoint to exec.Cmd.ExtraFiles across the re-exec.
func (c *Channel) File() *os.File { return c.f }

// Fd returns the endpoint's raw file descriptor.
func (c *Channel) Fd() uintptr { return c.f.Fd() }

// Close releases the endpoint. Closure is observable as end-of-stream
// by the peer, per spec §3's IpcChannel contract.
func (c *Channel) Close() error { return c.f.Close() }

// SendInt writes a single 4-byte big-endian signed integer as one
// message. A short write is an error, never silently retried, since
// the handshake's atomicity depends on exactly-once delivery.
func (c *Channel) SendInt(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	n, err := c.f.Write(buf[:])
	if err != nil {
		return errorsx.New(errorsx.Handshake, "send", err)
	}
	if n != len(buf) {
		return errorsx.New(errorsx.Handshake, "send", errShort(n, len(buf)))
	}
	return nil
}

// RecvInt reads a single message and decodes it as a 4-byte
// big-endian signed integer. A zero-length read means the peer closed
// its endpoint (end-of-stream), reported as a Handshake error so
// callers can tell it apart from a transport failure.
func (c *Channel) RecvInt() (int32, error) {
	var buf [4]byte
	n, err := c.f.Read(buf[:])
	if err != nil {
		return 0, errorsx.New(errorsx.Handshake, "recv", err)
	}
	if n == 0 {
		return 0, errorsx.New(errorsx.Handshake, "recv", errClosed())
	}
	if n != len(buf) {
		return 0, errorsx.New(errorsx.Handshake, "recv", errShort(n, len(buf)))
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}
