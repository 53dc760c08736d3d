package ipc

import (
	"fmt"
	"os"
	"syscall"
)

// CreateFIFO creates a named pipe at path with the given permissions,
// matching the POSIX mkfifo(2) contract the supervisor and orchestrator
// rely on for request.pipe/response.pipe. It is an error for path to
// already exist.
func CreateFIFO(path string, perm os.FileMode) error {
	if err := syscall.Mkfifo(path, uint32(perm)); err != nil {
		return fmt.Errorf("ipc: mkfifo %s: %w", path, err)
	}
	return nil
}

// OpenWriteBlocking opens a FIFO for writing. Per FIFO semantics this
// blocks until a reader has opened the other end, which is exactly the
// synchronization point the supervisor relies on to know its child has
// reached the point of opening its request pipe.
func OpenWriteBlocking(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc: open %s for write: %w", path, err)
	}
	return f, nil
}

// OpenReadBlocking opens a FIFO for reading, blocking until a writer has
// opened the other end.
func OpenReadBlocking(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc: open %s for read: %w", path, err)
	}
	return f, nil
}
