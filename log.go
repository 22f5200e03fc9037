package xec

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// pkgLogger holds the *zap.Logger used for xec's own diagnostic logging
// (worker thread-naming failures, recovered task panics). It defaults to a no-op
// logger so importing xec never produces unsolicited output; call
// SetLogger to wire it to the host application's logger.
var pkgLogger atomic.Pointer[zap.Logger]

func init() {
	pkgLogger.Store(zap.NewNop())
}

// SetLogger replaces the logger xec uses for its own diagnostics. Passing
// nil restores the no-op logger. Safe to call concurrently with running
// executions; takes effect for subsequent log statements only.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	pkgLogger.Store(l)
}

func logger() *zap.Logger {
	return pkgLogger.Load()
}
