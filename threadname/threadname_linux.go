//go:build linux

package threadname

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetCurrentThreadName sets the calling OS thread's name via prctl(2)
// PR_SET_NAME. The caller must invoke this from the goroutine whose
// underlying thread should be renamed, locked to it with
// runtime.LockOSThread if it isn't already (worker goroutines spawned by
// SingleThreadExecution and PoolExecution are).
func SetCurrentThreadName(name string) error {
	if len(name) > MaxLen {
		return ErrTooLong
	}
	b := append([]byte(name), 0)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}

// CurrentThreadName reads back the calling OS thread's name via prctl(2)
// PR_GET_NAME. The kernel writes at most MaxLen+1 bytes including the
// trailing NUL, which this trims before returning.
func CurrentThreadName() (string, error) {
	var b [MaxLen + 1]byte
	if err := unix.Prctl(unix.PR_GET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0); err != nil {
		return "", err
	}
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n]), nil
}
