package uistream

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/uistream/internal/logging"
)

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logging.Nop())
}

// SetLogger configures the default logger of passes created afterwards
// without WithLogger. By default, uistream produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging
// (restore default silent behavior).
//
// Log levels used by uistream:
//   - [slog.LevelDebug]: per-frame diagnostics (atlas growth, ring wraps, commit batches)
//   - [slog.LevelInfo]: lifecycle events (device init/destroy, swapchain)
//   - [slog.LevelWarn]: capacity rejections, placeholder glyphs, leaked images
//
// Example:
//
//	uistream.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	loggerPtr.Store(logging.OrNop(l))
}

// Logger returns the current default logger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
