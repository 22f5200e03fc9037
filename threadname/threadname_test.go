package threadname

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetCurrentThreadNameTooLong exercises the length check every
// platform's implementation enforces before attempting anything OS-level.
func TestSetCurrentThreadNameTooLong(t *testing.T) {
	name := strings.Repeat("x", MaxLen+1)
	err := SetCurrentThreadName(name)
	assert.ErrorIs(t, err, ErrTooLong)
}

// TestSetCurrentThreadNameAtMaxLen checks that a name at the boundary is
// never rejected for length, whatever the platform decides to do with it
// from there (succeed, or report ErrUnsupported).
func TestSetCurrentThreadNameAtMaxLen(t *testing.T) {
	name := strings.Repeat("x", MaxLen)
	err := SetCurrentThreadName(name)
	assert.NotErrorIs(t, err, ErrTooLong)
}

// TestCurrentThreadNameRoundTrips sets a name and reads it back on the
// same OS thread, pinned with LockOSThread for the duration.
func TestCurrentThreadNameRoundTrips(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	const name = "xec-test-th"
	if err := SetCurrentThreadName(name); err != nil {
		t.Skipf("SetCurrentThreadName unsupported on this platform: %v", err)
	}

	got, err := CurrentThreadName()
	if err != nil {
		t.Skipf("CurrentThreadName unsupported on this platform: %v", err)
	}
	assert.Equal(t, name, got)
}
