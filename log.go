package gasops

import (
	"log/slog"

	"github.com/jiujiugas/gasops/internal/core"
)

// SetLogger replaces the package-level logger. A nil logger resets to
// slog.Default() with a "component" attribute, picked up again on next use.
//
// SetLogger is safe to call concurrently with other gasops operations; for
// a strict happens-before guarantee call it before NewSupervisor.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
