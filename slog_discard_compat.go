//go:build !go1.24

package zipstream

import (
	"context"
	"log/slog"
)

// slogDiscardHandler discards all log output. It mirrors slog.DiscardHandler,
// which is only available from Go 1.24.
var slogDiscardHandler slog.Handler = discardHandler{}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
