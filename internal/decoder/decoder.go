// Package decoder is the seam between the extraction engine and the external
// GRIB2 decoder. The decoder is modeled as an opaque byte producer with a Kill
// escape hatch; nothing richer leaks into the core.
package decoder

import (
	"context"
	"io"

	"github.com/sells-group/mrms-extract/internal/model"
)

// Handle is a live producer stream. Kill must be unconditional and idempotent:
// the producer can run for tens of seconds holding native memory even after
// the consumer has stopped reading, so leaked handles are the highest-risk
// resource bug in this system.
type Handle interface {
	io.Reader
	Kill() error
}

// Factory starts a fresh decoder run for one source. Streams are not seekable
// and not restartable; every probe or scan needs its own handle.
type Factory interface {
	Open(ctx context.Context) (Handle, error)
}

// WindowedFactory is implemented by factories whose decoder accepts a spatial
// predicate natively. Output must still be filtered defensively downstream;
// native constraints have been observed to silently no-op.
type WindowedFactory interface {
	Factory
	OpenWindow(ctx context.Context, win model.Window) (Handle, error)
}
