//go:build go1.24

package zipstream

import "log/slog"

// slogDiscardHandler discards all log output.
var slogDiscardHandler slog.Handler = slog.DiscardHandler
