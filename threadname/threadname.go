// Package threadname sets the OS-visible name of the calling goroutine's
// underlying thread, for diagnostics (top, htop, pprof's thread list). It's
// best-effort: an execution that can't rename its worker still runs
// correctly, it's just harder to spot in a process list.
package threadname

import "errors"

// MaxLen is the longest name SetCurrentThreadName will accept. Linux's
// pthread_setname_np caps names at 16 bytes including the trailing NUL;
// the limit is kept uniform across platforms so callers don't need to
// special-case it.
const MaxLen = 15

// ErrTooLong is returned when name exceeds MaxLen.
var ErrTooLong = errors.New("threadname: name exceeds MaxLen")

// ErrUnsupported is returned on platforms with no known way to name the
// calling thread.
var ErrUnsupported = errors.New("threadname: not supported on this platform")
