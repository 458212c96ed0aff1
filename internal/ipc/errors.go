package ipc

import "fmt"

func errShort(got, want int) error {
	return fmt.Errorf("short transfer: got %d bytes, want %d", got, want)
}

func errClosed() error { return fmt.Errorf("peer closed the channel") }
