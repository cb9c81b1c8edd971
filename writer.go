// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	"github.com/lemon4ksan/zipstream/internal"
	"github.com/lemon4ksan/zipstream/internal/charset"
)

// archiveState tracks the archive as a whole. Like entryState it only moves
// forward one step at a time.
type archiveState uint8

const (
	archiveOpen       archiveState = iota // Entries may be added
	archiveEnded                          // End was called, entries are draining
	archiveFinalizing                     // Central directory is being written
	archiveClosed                         // Every byte has been written
)

func (s archiveState) String() string {
	switch s {
	case archiveOpen:
		return "open"
	case archiveEnded:
		return "ended"
	case archiveFinalizing:
		return "finalizing"
	case archiveClosed:
		return "closed"
	}
	return fmt.Sprintf("archiveState(%d)", uint8(s))
}

var endOfCentralDirSignature = []byte{'P', 'K', 0x05, 0x06}

// message is a unit of work executed on the scheduling goroutine.
// A returned error fails the archive.
type message func(ctx context.Context) error

// resolveFunc gathers entry metadata off the scheduling goroutine. The
// returned apply function runs on the scheduling goroutine and is the only
// place the entry may be modified.
type resolveFunc func(ctx context.Context) (apply func() error, err error)

// pumpResult carries what a pump learned about the entry's data.
type pumpResult struct {
	crc32            uint32
	uncompressedSize int64
	compressedSize   int64
}

// run is the scheduling loop. It owns the entries and the archive state and
// runs a pump cycle after every message, so completions never recurse into
// the scheduler.
func (z *ZipFile) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-z.mailbox:
			if err := msg(ctx); err != nil {
				return err
			}
			if err := z.pumpEntries(ctx); err != nil {
				return err
			}
			if z.state == archiveClosed {
				return nil
			}
		}
	}
}

// wait publishes the outcome of the archive once every goroutine is done.
func (z *ZipFile) wait() {
	err := z.group.Wait()

	if z.closeOutput {
		if c, ok := z.dest.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}
	}

	if err != nil {
		z.log().Error("archive failed", "err", err, "bytes_written", z.cursor.bytesWritten)
	} else {
		z.log().Info("archive written", "entries", len(z.entries), "bytes_written", z.cursor.bytesWritten)
	}

	z.err = err
	close(z.done)
}

// do runs fn on the scheduling goroutine and returns its result to the caller.
// Errors returned by fn are reported to the caller only.
func (z *ZipFile) do(fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	msg := func(ctx context.Context) error {
		reply <- fn(ctx)
		return nil
	}

	select {
	case z.mailbox <- msg:
	case <-z.done:
		return z.terminalErr()
	}

	// The loop runs a message as soon as it receives it, so once delivered
	// the reply is always filled, even if the archive fails right after.
	return <-reply
}

// post delivers a completion from a worker goroutine.
func (z *ZipFile) post(ctx context.Context, msg message) error {
	select {
	case z.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (z *ZipFile) terminalErr() error {
	if z.err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveEnded, z.err)
	}
	return ErrArchiveEnded
}

func (z *ZipFile) advance(to archiveState) error {
	if to != z.state+1 {
		return fmt.Errorf("%w: archive %s -> %s", errInvalidTransition, z.state, to)
	}
	z.state = to
	return nil
}

// addEntry appends e in declared order. Entries without a resolve function
// are ready immediately.
func (z *ZipFile) addEntry(e *Entry, resolve resolveFunc) error {
	return z.do(func(ctx context.Context) error {
		if z.state != archiveOpen {
			return ErrArchiveEnded
		}

		z.entries = append(z.entries, e)
		z.log().Debug("entry added", "name", e.name, "index", len(z.entries)-1, "method", e.method)

		if resolve == nil {
			return e.markReady()
		}

		z.group.Go(func() error {
			if err := z.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			apply, err := resolve(ctx)
			z.sem.Release(1)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", e.name, err)
			}

			return z.post(ctx, func(context.Context) error {
				if err := apply(); err != nil {
					return err
				}
				z.log().Debug("entry resolved", "name", e.name, "size", e.uncompressedSize)
				return e.markReady()
			})
		})
		return nil
	})
}

// pumpEntries is the pump cycle. It is cheap to run when there is nothing
// to do: waiting on a resolving or pumping entry is the normal case.
func (z *ZipFile) pumpEntries(ctx context.Context) error {
	if z.state >= archiveEnded && z.onFinalSize != nil {
		if size, ok := z.calculateFinalSize(); ok {
			callback := z.onFinalSize
			z.onFinalSize = nil
			callback(size)
		}
	}

	for z.next < len(z.entries) && z.entries[z.next].state == stateDone {
		z.next++
	}

	if z.next == len(z.entries) {
		if z.state == archiveEnded {
			return z.finalize(ctx)
		}
		return nil
	}

	e := z.entries[z.next]
	if e.state == stateReadyToPump {
		return z.startEntry(ctx, e)
	}
	return nil
}

// startEntry assigns the local header offset and hands the entry to an
// output worker. No other output job is in flight at this point, so the
// cursor is stable.
func (z *ZipFile) startEntry(ctx context.Context, e *Entry) error {
	e.localHeaderOffset = z.cursor.bytesWritten
	header := e.localHeader()
	if err := e.markPumping(); err != nil {
		return err
	}

	z.log().Debug("writing entry", "name", e.name, "offset", e.localHeaderOffset)

	z.group.Go(func() error {
		res, err := z.pumpEntry(ctx, e, header)
		if err != nil {
			return fmt.Errorf("write %q: %w", e.name, err)
		}
		return z.post(ctx, func(ctx context.Context) error {
			return z.finishEntry(ctx, e, res)
		})
	})
	return nil
}

// pumpEntry writes the local header and the entry data. It runs on a worker
// goroutine and only reads the entry.
func (z *ZipFile) pumpEntry(ctx context.Context, e *Entry, header []byte) (pumpResult, error) {
	if _, err := z.cursor.Write(header); err != nil {
		return pumpResult{}, fmt.Errorf("local header: %w", err)
	}

	if e.dataKnown {
		if _, err := z.cursor.Write(e.payload); err != nil {
			return pumpResult{}, fmt.Errorf("data: %w", err)
		}
		return pumpResult{
			crc32:            e.crc32,
			uncompressedSize: e.uncompressedSize,
			compressedSize:   e.compressedSize,
		}, nil
	}

	comp, err := z.compressors.resolve(e.method, e.level)
	if err != nil {
		return pumpResult{}, err
	}

	src, err := e.source(ctx)
	if err != nil {
		return pumpResult{}, fmt.Errorf("open: %w", err)
	}
	defer src.Close()

	hasher := newCRCReader(&contextReader{ctx: ctx, r: src})
	sizeCounter := &byteCountWriter{dest: z.cursor}

	uncompressed, err := comp.Compress(hasher, sizeCounter)
	if err != nil {
		return pumpResult{}, fmt.Errorf("compress: %w", err)
	}

	return pumpResult{
		crc32:            hasher.Sum32(),
		uncompressedSize: uncompressed,
		compressedSize:   sizeCounter.bytesWritten,
	}, nil
}

// finishEntry records what the pump learned and writes the data descriptor.
func (z *ZipFile) finishEntry(ctx context.Context, e *Entry, res pumpResult) error {
	if !e.dataKnown {
		if e.declaredSize != SizeUnknown && res.uncompressedSize != e.declaredSize {
			return fmt.Errorf("%w: %q declared %d bytes, read %d",
				ErrSizeMismatch, e.name, e.declaredSize, res.uncompressedSize)
		}
		e.crc32 = res.crc32
		e.uncompressedSize = res.uncompressedSize
		e.compressedSize = res.compressedSize
	}

	descriptor := e.dataDescriptor()
	if descriptor == nil {
		return z.completeEntry(e)
	}

	z.group.Go(func() error {
		if _, err := z.cursor.Write(descriptor); err != nil {
			return fmt.Errorf("write %q: data descriptor: %w", e.name, err)
		}
		return z.post(ctx, func(context.Context) error {
			return z.completeEntry(e)
		})
	})
	return nil
}

func (z *ZipFile) completeEntry(e *Entry) error {
	if err := e.markDone(); err != nil {
		return err
	}

	z.log().Debug("entry written",
		"name", e.name,
		"crc32", e.crc32,
		"uncompressed", e.uncompressedSize,
		"compressed", e.compressedSize,
		"zip64", e.useZip64(),
	)

	if z.onEntryWritten != nil {
		z.onEntryWritten(e)
	}
	return nil
}

// finalize renders the central directory and end records and hands them to
// an output worker.
func (z *ZipFile) finalize(ctx context.Context) error {
	if err := z.advance(archiveFinalizing); err != nil {
		return err
	}
	z.centralDirOffset = z.cursor.bytesWritten

	buf := new(bytes.Buffer)
	for _, e := range z.entries {
		buf.Write(e.centralDirEntry().Encode())
	}
	centralDirSize := int64(buf.Len())
	entriesNum := uint64(len(z.entries))

	zip64 := needZip64End(z.forceZip64End, len(z.entries), centralDirSize, z.centralDirOffset)
	if zip64 {
		zip64EndOffset := z.centralDirOffset + centralDirSize
		buf.Write(internal.EncodeZip64EndOfCentralDirRecord(
			versionMadeBy, entriesNum, uint64(centralDirSize), uint64(z.centralDirOffset)))
		buf.Write(internal.EncodeZip64EndOfCentralDirLocator(uint64(zip64EndOffset)))
	}
	buf.Write(internal.EncodeEndOfCentralDirRecord(
		entriesNum, uint64(centralDirSize), uint64(z.centralDirOffset), z.comment, zip64))

	z.log().Debug("writing central directory",
		"offset", z.centralDirOffset, "size", centralDirSize, "zip64", zip64)

	z.group.Go(func() error {
		if _, err := z.cursor.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write central directory: %w", err)
		}
		return z.post(ctx, func(context.Context) error {
			return z.advance(archiveClosed)
		})
	})
	return nil
}

// needZip64End reports whether the zip64 end of central directory record and
// locator must precede the classic end record.
func needZip64End(force bool, entriesNum int, centralDirSize, centralDirOffset int64) bool {
	return force ||
		entriesNum >= math.MaxUint16 ||
		centralDirSize >= math.MaxUint32 ||
		centralDirOffset >= math.MaxUint32
}

// encodeArchiveComment validates the archive comment and encodes it as CP437.
func encodeArchiveComment(cfg EndConfig) ([]byte, error) {
	encoded := cfg.RawComment
	if encoded == nil {
		var err error
		encoded, err = charset.Encode(cfg.Comment)
		if err != nil {
			return nil, fmt.Errorf("%w: archive comment: %w", ErrFileEntry, err)
		}
	}
	if len(encoded) > math.MaxUint16 {
		return nil, fmt.Errorf("%w (%d bytes)", ErrCommentTooLong, len(encoded))
	}
	if bytes.Contains(encoded, endOfCentralDirSignature) {
		return nil, ErrCommentSignature
	}
	return encoded, nil
}
