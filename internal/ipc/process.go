package ipc

import "syscall"

// IsAlive reports whether pid refers to a live process, using the
// kill(pid, 0) probe: no signal is delivered, only existence and
// permission are checked.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// Kill sends SIGKILL to pid. Used once a process has failed to exit
// within its graceful-shutdown window.
func Kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// ReapIfChild collects a child's exit status without blocking, so
// zombies left by a process this one spawned do not accumulate. It is
// a no-op (returns false, nil) if the child has not exited yet or pid
// is not a child of this process.
func ReapIfChild(pid int) (reaped bool, err error) {
	var status syscall.WaitStatus
	got, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil)
	if err != nil {
		return false, err
	}
	return got == pid, nil
}
