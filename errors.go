// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import "errors"

var (
	// ErrFileEntry is returned when an invalid argument is passed to entry creation.
	ErrFileEntry = errors.New("zip: not a valid file entry")

	// ErrInsecurePath is returned when an entry name is absolute or escapes
	// the archive root with a ".." segment.
	ErrInsecurePath = errors.New("zip: insecure file path")

	// ErrFilenameTooLong is returned when an encoded filename exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zip: filename too long")

	// ErrCommentTooLong is returned when an encoded comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zip: comment too long")

	// ErrCommentSignature is returned when an archive comment contains the
	// end of central directory signature, which would make the archive unparseable.
	ErrCommentSignature = errors.New("zip: comment contains end of central directory signature")

	// ErrInvalidMode is returned when a file mode does not fit in 16 bits.
	ErrInvalidMode = errors.New("zip: invalid file mode")

	// ErrInvalidLevel is returned when a compression level is outside 0-9.
	ErrInvalidLevel = errors.New("zip: invalid compression level")

	// ErrAlgorithm is returned when a compression algorithm is not supported.
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")

	// ErrArchiveEnded is returned when an entry is added after End was called.
	ErrArchiveEnded = errors.New("zip: archive already ended")

	// ErrNotRegularFile is returned when a path added with AddFile does not
	// name a regular file.
	ErrNotRegularFile = errors.New("zip: not a regular file")

	// ErrSizeMismatch is returned when a stream yields a different number of
	// bytes than its declared size.
	ErrSizeMismatch = errors.New("zip: uncompressed size mismatch")

	// ErrBufferTooLarge is returned when an in-memory buffer exceeds the
	// largest size accepted by AddBytes.
	ErrBufferTooLarge = errors.New("zip: buffer too large")

	// errInvalidTransition signals an attempt to move an entry or archive
	// backwards through its lifecycle. It always indicates a bug.
	errInvalidTransition = errors.New("zip: invalid state transition")
)
