// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipstream writes ZIP archives as a stream.
//
// Entries are declared in order and may become ready in any order: a file
// still being stat-ed does not block the declaration of the next one, and a
// buffer being compressed in the background does not block a directory added
// after it. The archive bytes are nevertheless appended to the destination
// strictly in declared order, without seeking and without buffering entry
// data.
//
// # Basic Usage
//
//	out, _ := os.Create("output.zip")
//	z := zipstream.NewZipFile(out)
//	z.AddFile("docs/readme.md", "readme.md")
//	z.AddBytes(data, "data.bin", zipstream.WithoutCompression())
//	z.Mkdir("empty")
//	z.End(zipstream.EndConfig{
//		Comment: "built by zipstream",
//		OnFinalSize: func(size int64) {
//			// size is SizeUnknowable when any entry is compressed
//		},
//	})
//	if err := z.Wait(ctx); err != nil {
//		// the output is unusable
//	}
//
// # Errors
//
// Invalid arguments are reported by the call that received them. Failures
// that happen while resolving or writing an entry (a missing file, a read
// error, a stream shorter than its declared size) are fatal for the whole
// archive and are reported once through [ZipFile.Err] and [ZipFile.Wait].
//
// # Zip64
//
// The zip64 layout is used per entry when its sizes or offset reach
// 0xFFFFFFFE, and for the end of central directory when the entry count,
// central directory size or offset no longer fit. Both can be forced with
// [WithZip64] and [EndConfig.ForceZip64].
package zipstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// maxBufferSize is the largest buffer AddBytes accepts.
const maxBufferSize = 0x3FFFFFFF

const defaultMaxResolvers = 16

var discardLogger = slog.New(slogDiscardHandler)

// OpenFunc opens the content of a lazily added entry. It is called once,
// when the entry's turn to be written comes.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// EndConfig configures archive finalization.
type EndConfig struct {
	// Comment is the archive comment. Text other than printable ASCII is
	// encoded as CP437.
	Comment string

	// RawComment, when not nil, is written verbatim instead of Comment.
	RawComment []byte

	// ForceZip64 writes the zip64 end of central directory record and
	// locator even when the archive does not need them.
	ForceZip64 bool

	// OnFinalSize receives the predicted size of the whole archive, as soon
	// as it can be determined, or SizeUnknowable. It is invoked at most once,
	// on the archive's scheduling goroutine, and must not call methods of
	// the ZipFile.
	OnFinalSize func(size int64)
}

// ZipFile is a streaming ZIP archive writer. All methods are safe for
// concurrent use.
type ZipFile struct {
	dest           io.Writer
	logger         *slog.Logger
	closeOutput    bool
	maxResolvers   int64
	onEntryWritten func(*Entry)
	compressors    *compressorRegistry

	group   *errgroup.Group
	sem     *semaphore.Weighted
	mailbox chan message
	done    chan struct{}
	err     error // Written once before done is closed

	// Fields below are owned by the scheduling goroutine.
	entries          []*Entry
	next             int // Index of the first entry not yet done
	cursor           *byteCountWriter
	state            archiveState
	centralDirOffset int64
	comment          []byte
	forceZip64End    bool
	onFinalSize      func(int64)
}

// NewZipFile starts a new archive written to dest.
func NewZipFile(dest io.Writer, options ...Option) *ZipFile {
	return NewZipFileWithContext(context.Background(), dest, options...)
}

// NewZipFileWithContext starts a new archive whose scheduling stops, failing
// the archive, when ctx is canceled.
func NewZipFileWithContext(ctx context.Context, dest io.Writer, options ...Option) *ZipFile {
	z := &ZipFile{
		dest:         dest,
		maxResolvers: defaultMaxResolvers,
		compressors:  newCompressorRegistry(),
		mailbox:      make(chan message),
		done:         make(chan struct{}),
		cursor:       &byteCountWriter{dest: dest},
	}
	for _, opt := range options {
		opt(z)
	}
	if z.logger == nil {
		z.logger = discardLogger
	}
	z.sem = semaphore.NewWeighted(z.maxResolvers)

	g, gctx := errgroup.WithContext(ctx)
	z.group = g
	g.Go(func() error { return z.run(gctx) })

	go z.wait()

	return z
}

// Create opens the named file for writing and starts an archive in it.
// The file is closed once the archive completes or fails.
func Create(name string, options ...Option) (*ZipFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return NewZipFile(f, append(options, WithCloseOutput())...), nil
}

// AddFile adds the regular file at filePath under the archive name.
// The file is stat-ed in the background and opened when its turn comes.
// Its size, modification time and mode are taken from the file system
// unless set by options.
func (z *ZipFile) AddFile(filePath, name string, options ...AddOption) error {
	e, err := newEntry(name, false, options)
	if err != nil {
		return err
	}

	return z.addEntry(e, func(ctx context.Context) (func() error, error) {
		info, err := os.Stat(filePath)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, filePath)
		}

		return func() error {
			e.uncompressedSize = info.Size()
			e.declaredSize = info.Size()
			e.setModTime(info.ModTime())
			e.setMode(info.Mode())
			e.source = func(context.Context) (io.ReadCloser, error) {
				return os.Open(filePath)
			}
			return nil
		}, nil
	})
}

// AddOSFile adds an already open file. The whole content is read through an
// io.SectionReader, so f is neither seeked nor closed. An empty name uses
// the base name of f.
func (z *ZipFile) AddOSFile(f *os.File, name string, options ...AddOption) error {
	if f == nil {
		return fmt.Errorf("%w: file cannot be nil", ErrFileEntry)
	}
	if name == "" {
		name = filepath.Base(f.Name())
	}

	e, err := newEntry(name, false, options)
	if err != nil {
		return err
	}

	return z.addEntry(e, func(ctx context.Context) (func() error, error) {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, f.Name())
		}

		return func() error {
			e.uncompressedSize = info.Size()
			e.declaredSize = info.Size()
			e.setModTime(info.ModTime())
			e.setMode(info.Mode())
			e.source = func(context.Context) (io.ReadCloser, error) {
				return io.NopCloser(io.NewSectionReader(f, 0, info.Size())), nil
			}
			return nil
		}, nil
	})
}

// AddReader streams content from r. Use SizeUnknown for size if the length
// is not known ahead of time; otherwise a stream of a different length fails
// the archive with ErrSizeMismatch. r is not closed.
func (z *ZipFile) AddReader(r io.Reader, name string, size int64, options ...AddOption) error {
	if r == nil {
		return fmt.Errorf("%w: reader cannot be nil", ErrFileEntry)
	}
	return z.AddLazy(name, size, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}, options...)
}

// AddLazy adds an entry whose content is opened by open only when the
// entry is written. size follows the same rules as in AddReader.
func (z *ZipFile) AddLazy(name string, size int64, open OpenFunc, options ...AddOption) error {
	if open == nil {
		return fmt.Errorf("%w: open function cannot be nil", ErrFileEntry)
	}
	if size < 0 && size != SizeUnknown {
		return fmt.Errorf("%w: size cannot be negative", ErrFileEntry)
	}

	e, err := newEntry(name, false, options)
	if err != nil {
		return err
	}
	e.uncompressedSize = size
	e.declaredSize = size
	e.source = open

	return z.addEntry(e, nil)
}

// AddBytes adds an entry from an in-memory buffer. Its CRC and sizes are
// known before the local header is written, so no data descriptor follows
// the data. Compression runs in the background. data must not be modified
// until the entry has been written.
func (z *ZipFile) AddBytes(data []byte, name string, options ...AddOption) error {
	if len(data) > maxBufferSize {
		return fmt.Errorf("%w: %d bytes", ErrBufferTooLarge, len(data))
	}

	e, err := newEntry(name, false, options)
	if err != nil {
		return err
	}

	crc := crc32.ChecksumIEEE(data)
	size := int64(len(data))
	e.uncompressedSize = size

	if !e.compressed() {
		e.setDataKnown(crc, size, size)
		e.payload = data
		return z.addEntry(e, nil)
	}

	method, level := e.method, e.level
	return z.addEntry(e, func(ctx context.Context) (func() error, error) {
		comp, err := z.compressors.resolve(method, level)
		if err != nil {
			return nil, err
		}

		buf := new(bytes.Buffer)
		if _, err := comp.Compress(&contextReader{ctx: ctx, r: bytes.NewReader(data)}, buf); err != nil {
			return nil, fmt.Errorf("compress: %w", err)
		}

		return func() error {
			e.setDataKnown(crc, int64(buf.Len()), size)
			e.payload = buf.Bytes()
			return nil
		}, nil
	})
}

// AddString adds an entry from a string. See AddBytes.
func (z *ZipFile) AddString(content string, name string, options ...AddOption) error {
	return z.AddBytes([]byte(content), name, options...)
}

// Mkdir adds an empty directory entry. A trailing slash is appended to name
// if absent.
func (z *ZipFile) Mkdir(name string, options ...AddOption) error {
	e, err := newEntry(name, true, options)
	if err != nil {
		return err
	}
	return z.addEntry(e, nil)
}

// AddDir recursively adds a local directory and its contents, in lexical
// order, with names relative to root. Entries that are neither directories
// nor regular files are skipped. Returns a combined error if any entries fail
// to be added (Best Effort).
func (z *ZipFile) AddDir(root string, options ...AddOption) error {
	var errs []error

	err := filepath.WalkDir(root, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if walkPath == root {
			return nil
		}

		relPath, err := filepath.Rel(root, walkPath)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(relPath)

		switch {
		case d.IsDir():
			err = z.Mkdir(name, options...)
		case d.Type().IsRegular():
			err = z.AddFile(walkPath, name, options...)
		default:
			z.log().Debug("skipping non-regular file", "path", walkPath, "type", d.Type().String())
			return nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("add %s: %w", walkPath, err))
			if errors.Is(err, ErrArchiveEnded) {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// AddFS adds every directory and regular file of fsys (e.g. embed.FS,
// os.DirFS), in lexical order. Modification times and modes come from the
// file system unless set by options. Like AddDir it is best effort: entries
// that fail are skipped and their errors are joined.
func (z *ZipFile) AddFS(fsys fs.FS, options ...AddOption) error {
	var errs []error

	err := fs.WalkDir(fsys, ".", func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if filePath == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			errs = append(errs, err)
			return nil
		}

		fileOpts := append([]AddOption{WithModTime(info.ModTime()), WithMode(info.Mode())}, options...)

		switch {
		case d.IsDir():
			err = z.Mkdir(filePath, fileOpts...)
		case info.Mode().IsRegular():
			err = z.AddLazy(filePath, info.Size(), func(context.Context) (io.ReadCloser, error) {
				return fsys.Open(filePath)
			}, fileOpts...)
		default:
			z.log().Debug("skipping non-regular file", "path", filePath, "type", d.Type().String())
			return nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("add %s: %w", filePath, err))
			if errors.Is(err, ErrArchiveEnded) {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// End declares that no more entries will be added. The central directory is
// written once every entry has been written. Calling End again is a no-op.
// An invalid comment is reported without ending the archive.
func (z *ZipFile) End(cfg EndConfig) error {
	err := z.do(func(context.Context) error {
		if z.state != archiveOpen {
			return nil
		}

		comment, err := encodeArchiveComment(cfg)
		if err != nil {
			return err
		}

		z.comment = comment
		z.forceZip64End = cfg.ForceZip64
		z.onFinalSize = cfg.OnFinalSize
		z.log().Debug("archive ended", "entries", len(z.entries))
		return z.advance(archiveEnded)
	})
	if errors.Is(err, ErrArchiveEnded) {
		return nil
	}
	return err
}

// Close ends the archive without a comment and waits for it to be written.
func (z *ZipFile) Close() error {
	if err := z.End(EndConfig{}); err != nil {
		return err
	}
	<-z.done
	return z.err
}

// Done returns a channel closed when the archive has been completely written
// or has failed.
func (z *ZipFile) Done() <-chan struct{} { return z.done }

// Err returns the fatal error of a failed archive. It is nil while the
// archive is still being written and after it completed successfully.
func (z *ZipFile) Err() error {
	select {
	case <-z.done:
		return z.err
	default:
		return nil
	}
}

// Wait blocks until the archive is written or fails, or ctx is done.
func (z *ZipFile) Wait(ctx context.Context) error {
	select {
	case <-z.done:
		return z.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// log returns the logger, falling back to the shared discard logger if nil.
func (z *ZipFile) log() *slog.Logger {
	if z.logger == nil {
		return discardLogger
	}
	return z.logger
}
