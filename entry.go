// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"time"

	"github.com/lemon4ksan/zipstream/internal"
	"github.com/lemon4ksan/zipstream/internal/charset"
	"github.com/lemon4ksan/zipstream/internal/sys"
)

// SizeUnknown is a sentinel value used when the uncompressed size of an entry
// cannot be determined before its data is written (e.g. streaming from io.Reader).
const SizeUnknown int64 = -1

// Header field values shared by every record this package writes.
const (
	// versionUTF8 is the minimum version for the UTF-8 name flag.
	versionUTF8 uint16 = 20

	// versionZip64 is the minimum version for zip64 extensions.
	versionZip64 uint16 = 45

	// versionMadeBy reports a UNIX host and APPNOTE 6.3.
	versionMadeBy = uint16(sys.HostSystemUNIX)<<8 | 63

	flagDataDescriptor uint16 = 0x0008
	flagUTF8           uint16 = 0x0800

	// zip64Threshold is the first size or offset that no longer fits the
	// 32-bit fields of an entry.
	zip64Threshold int64 = 0xFFFFFFFE

	defaultFileMode uint32 = sys.S_IFREG | 0o664
	defaultDirMode  uint32 = sys.S_IFDIR | 0o775
)

// entryState tracks an entry through the archive. It only ever moves forward
// one step at a time.
type entryState uint8

const (
	stateAwaitingMetadata entryState = iota
	stateReadyToPump
	statePumping
	stateDone
)

func (s entryState) String() string {
	switch s {
	case stateAwaitingMetadata:
		return "awaiting-metadata"
	case stateReadyToPump:
		return "ready-to-pump"
	case statePumping:
		return "pumping"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("entryState(%d)", uint8(s))
}

// Entry is one member of a streamed archive. Entries are created by the Add
// methods of [ZipFile] and are owned by it; the accessors are safe to call
// from callbacks such as [WithOnEntryWritten].
type Entry struct {
	name  string // Normalized name, directories end with '/'
	isDir bool

	mode    uint32 // POSIX st_mode, written to the upper half of external attributes
	modeSet bool

	dosDate uint16
	dosTime uint16
	timeSet bool

	commentText string
	comment     []byte

	method     CompressionMethod
	level      int
	forceZip64 bool

	// dataKnown is set when CRC and sizes are known before the local header
	// is written. Such entries never get a data descriptor.
	dataKnown        bool
	crc32            uint32
	uncompressedSize int64
	compressedSize   int64
	declaredSize     int64 // Size hint checked against the stream once it ends

	localHeaderOffset int64
	state             entryState

	source  func(ctx context.Context) (io.ReadCloser, error) // Streams uncompressed content
	payload []byte                                           // Final bytes for entries with known data

	optErr error
}

// newEntry applies options to a fresh entry and validates the result.
func newEntry(name string, isDir bool, options []AddOption) (*Entry, error) {
	e := &Entry{
		name:             name,
		isDir:            isDir,
		method:           Deflate,
		level:            DeflateNormal,
		uncompressedSize: SizeUnknown,
		compressedSize:   SizeUnknown,
		declaredSize:     SizeUnknown,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.optErr != nil {
		return nil, e.optErr
	}

	normalized, err := normalizePath(e.name, isDir)
	if err != nil {
		return nil, err
	}
	e.name = normalized

	if !e.modeSet {
		e.mode = defaultFileMode
		if isDir {
			e.mode = defaultDirMode
		}
	} else if e.mode&sys.S_IFMT == 0 {
		if isDir {
			e.mode |= sys.S_IFDIR
		} else {
			e.mode |= sys.S_IFREG
		}
	}

	if !e.timeSet {
		e.dosDate, e.dosTime = timeToMsDos(time.Now())
	}

	if e.commentText != "" {
		e.comment, err = charset.Encode(e.commentText)
		if err != nil {
			return nil, fmt.Errorf("%w: file comment: %w", ErrFileEntry, err)
		}
		if len(e.comment) > math.MaxUint16 {
			return nil, fmt.Errorf("%w (%d bytes)", ErrCommentTooLong, len(e.comment))
		}
	}

	switch e.method {
	case Store:
	case Deflate:
		if e.level < 0 || e.level > 9 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, e.level)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, e.method)
	}

	if isDir {
		e.method = Store
		e.setDataKnown(0, 0, 0)
	}

	return e, nil
}

// Name returns the entry's path within the archive.
func (e *Entry) Name() string { return e.name }

// IsDir returns true if the entry represents a directory.
func (e *Entry) IsDir() bool { return e.isDir }

// Mode returns the entry's file mode.
func (e *Entry) Mode() fs.FileMode { return unixModeToFileMode(e.mode) }

// ModTime returns the modification time at DOS resolution.
func (e *Entry) ModTime() time.Time { return msDosToTime(e.dosDate, e.dosTime) }

// Method returns the compression method the entry is written with.
func (e *Entry) Method() CompressionMethod { return e.method }

// CRC32 returns the checksum of the uncompressed data, valid once written.
func (e *Entry) CRC32() uint32 { return e.crc32 }

// UncompressedSize returns the size of the original content, or SizeUnknown.
func (e *Entry) UncompressedSize() int64 { return e.uncompressedSize }

// CompressedSize returns the size of the stored data, or SizeUnknown.
func (e *Entry) CompressedSize() int64 { return e.compressedSize }

// Offset returns the position of the local file header in the archive.
func (e *Entry) Offset() int64 { return e.localHeaderOffset }

// Zip64 reports whether the entry uses the zip64 record layout.
func (e *Entry) Zip64() bool { return e.useZip64() }

// compressed reports whether the entry's bytes pass through deflate.
func (e *Entry) compressed() bool { return e.method != Store }

// setDataKnown records CRC and sizes known ahead of time. The entry will be
// written without a data descriptor.
func (e *Entry) setDataKnown(crc uint32, compressedSize, uncompressedSize int64) {
	e.dataKnown = true
	e.crc32 = crc
	e.compressedSize = compressedSize
	e.uncompressedSize = uncompressedSize
}

// setModTime applies a resolved modification time unless an option pinned one.
func (e *Entry) setModTime(t time.Time) {
	if !e.timeSet {
		e.dosDate, e.dosTime = timeToMsDos(t)
	}
}

// setMode applies a resolved file mode unless an option pinned one.
func (e *Entry) setMode(m fs.FileMode) {
	if !e.modeSet {
		e.mode = fileModeToUnix(m)
	}
}

func (e *Entry) useZip64() bool {
	return e.useZip64At(e.localHeaderOffset)
}

// useZip64At evaluates the zip64 decision as if the local header were placed
// at offset. It does not modify the entry.
func (e *Entry) useZip64At(offset int64) bool {
	return e.forceZip64 ||
		e.uncompressedSize >= zip64Threshold ||
		e.compressedSize >= zip64Threshold ||
		offset >= zip64Threshold
}

func (e *Entry) flags() uint16 {
	flags := flagUTF8
	if !e.dataKnown {
		flags |= flagDataDescriptor
	}
	return flags
}

// localHeader renders the local file header. Zip64 values never appear here,
// they are carried by the data descriptor and the central directory.
func (e *Entry) localHeader() []byte {
	h := internal.LocalFileHeader{
		VersionNeededToExtract: versionUTF8,
		GeneralPurposeBitFlag:  e.flags(),
		CompressionMethod:      uint16(e.method),
		LastModFileTime:        e.dosTime,
		LastModFileDate:        e.dosDate,
		Filename:               []byte(e.name),
	}
	if e.dataKnown {
		h.CRC32 = e.crc32
		h.CompressedSize = uint32(e.compressedSize)
		h.UncompressedSize = uint32(e.uncompressedSize)
	}
	return h.Encode()
}

// dataDescriptor renders the trailer for entries whose data was not known
// upfront. It returns nil otherwise, since some readers reject a descriptor
// that the flags do not announce.
func (e *Entry) dataDescriptor() []byte {
	if e.dataKnown {
		return nil
	}
	return internal.DataDescriptor{
		CRC32:            e.crc32,
		CompressedSize:   uint64(e.compressedSize),
		UncompressedSize: uint64(e.uncompressedSize),
		Zip64:            e.useZip64(),
	}.Encode()
}

func (e *Entry) dataDescriptorLen(zip64 bool) int64 {
	switch {
	case e.dataKnown:
		return 0
	case zip64:
		return internal.Zip64DataDescriptorLen
	default:
		return internal.DataDescriptorLen
	}
}

func (e *Entry) centralDirEntry() internal.CentralDirectory {
	cd := internal.CentralDirectory{
		VersionMadeBy:          versionMadeBy,
		VersionNeededToExtract: versionUTF8,
		GeneralPurposeBitFlag:  e.flags(),
		CompressionMethod:      uint16(e.method),
		LastModFileTime:        e.dosTime,
		LastModFileDate:        e.dosDate,
		CRC32:                  e.crc32,
		CompressedSize:         uint32(e.compressedSize),
		UncompressedSize:       uint32(e.uncompressedSize),
		ExternalFileAttributes: e.mode << 16,
		LocalHeaderOffset:      uint32(e.localHeaderOffset),
		Filename:               []byte(e.name),
		Comment:                e.comment,
	}

	if e.useZip64() {
		cd.VersionNeededToExtract = versionZip64
		cd.CompressedSize = internal.Uint32Sentinel
		cd.UncompressedSize = internal.Uint32Sentinel
		cd.LocalHeaderOffset = internal.Uint32Sentinel
		cd.ExtraField = internal.EncodeZip64ExtraField(
			uint64(e.uncompressedSize),
			uint64(e.compressedSize),
			uint64(e.localHeaderOffset),
		)
	}

	return cd
}

func (e *Entry) centralDirLen(zip64 bool) int64 {
	n := int64(internal.CentralDirectoryLen + len(e.name) + len(e.comment))
	if zip64 {
		n += internal.Zip64ExtraFieldLen
	}
	return n
}

func (e *Entry) advance(to entryState) error {
	if to != e.state+1 {
		return fmt.Errorf("%w: entry %q %s -> %s", errInvalidTransition, e.name, e.state, to)
	}
	e.state = to
	return nil
}

func (e *Entry) markReady() error   { return e.advance(stateReadyToPump) }
func (e *Entry) markPumping() error { return e.advance(statePumping) }
func (e *Entry) markDone() error    { return e.advance(stateDone) }

// fileModeToUnix converts Go file mode bits to a POSIX st_mode.
func fileModeToUnix(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())

	switch m.Type() {
	case fs.ModeDir:
		mode |= sys.S_IFDIR
	case fs.ModeSymlink:
		mode |= sys.S_IFLNK
	case fs.ModeNamedPipe:
		mode |= sys.S_IFIFO
	case fs.ModeSocket:
		mode |= sys.S_IFSOCK
	case fs.ModeDevice:
		mode |= sys.S_IFBLK
	case fs.ModeDevice | fs.ModeCharDevice:
		mode |= sys.S_IFCHR
	case 0:
		mode |= sys.S_IFREG
	}

	if m&fs.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 0o1000
	}
	return mode
}

func unixModeToFileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0o777)

	switch mode & sys.S_IFMT {
	case sys.S_IFDIR:
		m |= fs.ModeDir
	case sys.S_IFLNK:
		m |= fs.ModeSymlink
	case sys.S_IFIFO:
		m |= fs.ModeNamedPipe
	case sys.S_IFSOCK:
		m |= fs.ModeSocket
	case sys.S_IFBLK:
		m |= fs.ModeDevice
	case sys.S_IFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	}

	if mode&0o4000 != 0 {
		m |= fs.ModeSetuid
	}
	if mode&0o2000 != 0 {
		m |= fs.ModeSetgid
	}
	if mode&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	return m
}
