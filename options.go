// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"time"
)

// AddOption is a functional option for configuring entries as they are added.
type AddOption func(e *Entry)

// WithCompression sets the compression method and level for a regular file.
// Level 0 with Deflate still produces deflate framing. Ignored for directories.
func WithCompression(method CompressionMethod, level int) AddOption {
	return func(e *Entry) {
		if !e.isDir {
			e.method = method
			e.level = level
		}
	}
}

// WithoutCompression stores the entry's bytes as-is.
func WithoutCompression() AddOption {
	return WithCompression(Store, 0)
}

// WithZip64 forces the zip64 record layout for the entry regardless of its size.
func WithZip64(force bool) AddOption {
	return func(e *Entry) {
		e.forceZip64 = force
	}
}

// WithModTime sets the modification time. It takes precedence over the time
// reported by the file system for AddFile and AddOSFile.
func WithModTime(t time.Time) AddOption {
	return func(e *Entry) {
		e.dosDate, e.dosTime = timeToMsDos(t)
		e.timeSet = true
	}
}

// WithDOSTime sets the already packed DOS date and time words verbatim.
func WithDOSTime(dosDate, dosTime uint16) AddOption {
	return func(e *Entry) {
		e.dosDate, e.dosTime = dosDate, dosTime
		e.timeSet = true
	}
}

// WithMode sets the file mode written to the external attributes.
// It takes precedence over the mode reported by the file system.
func WithMode(mode fs.FileMode) AddOption {
	return func(e *Entry) {
		e.mode = fileModeToUnix(mode)
		e.modeSet = true
	}
}

// WithUnixMode sets a raw POSIX st_mode. When mode carries no file type bits,
// the regular file or directory type is filled in. Values that do not fit in
// 16 bits are rejected.
func WithUnixMode(mode uint32) AddOption {
	return func(e *Entry) {
		if mode > math.MaxUint16 {
			e.optErr = fmt.Errorf("%w: %#o", ErrInvalidMode, mode)
			return
		}
		e.mode = mode
		e.modeSet = true
	}
}

// WithComment sets the entry comment. Non-ASCII text is encoded as CP437.
func WithComment(comment string) AddOption {
	return func(e *Entry) {
		e.commentText = comment
	}
}

// WithPath prepends a directory path to the entry name.
func WithPath(prefix string) AddOption {
	return func(e *Entry) {
		if prefix != "" && prefix != "." {
			e.name = strings.TrimSuffix(prefix, "/") + "/" + e.name
		}
	}
}

// Option configures a ZipFile.
type Option func(z *ZipFile)

// WithLogger sets the logger used for entry lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(z *ZipFile) {
		z.logger = logger
	}
}

// WithCloseOutput closes the destination once the archive has been written,
// if it implements io.Closer.
func WithCloseOutput() Option {
	return func(z *ZipFile) {
		z.closeOutput = true
	}
}

// WithMaxConcurrentStats limits how many file system stats and buffer
// compressions run at the same time. Values below 1 are ignored.
func WithMaxConcurrentStats(n int) Option {
	return func(z *ZipFile) {
		if n > 0 {
			z.maxResolvers = int64(n)
		}
	}
}

// WithOnEntryWritten registers a callback invoked after an entry's bytes,
// including its data descriptor, have reached the destination.
// The callback runs on the archive's scheduling goroutine and must not call
// methods of the ZipFile.
func WithOnEntryWritten(fn func(*Entry)) Option {
	return func(z *ZipFile) {
		z.onEntryWritten = fn
	}
}
