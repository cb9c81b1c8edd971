// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/binary"
)

// Each record type must be identified using a header signature that identifies the record type.
// Signature values begin with the two byte constant marker of 0x4b50, representing the characters "PK".
const (
	CentralDirectorySignature            uint32 = 0x02014b50
	LocalFileHeaderSignature             uint32 = 0x04034b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
	DataDescriptorSignature              uint32 = 0x08074b50
)

// Fixed record lengths, excluding variable-size names, extra fields and comments.
const (
	LocalFileHeaderLen             = 30
	DataDescriptorLen              = 16
	Zip64DataDescriptorLen         = 24
	CentralDirectoryLen            = 46
	Zip64ExtraFieldLen             = 28
	EndOfCentralDirLen             = 22
	Zip64EndOfCentralDirLen        = 56
	Zip64EndOfCentralDirLocatorLen = 20
)

// Zip64ExtraFieldTag identifies the extended information extra field.
const Zip64ExtraFieldTag uint16 = 0x0001

// Sentinel values written in 32-bit and 16-bit fields whose real value
// lives in a zip64 record.
const (
	Uint32Sentinel uint32 = 0xFFFFFFFF
	Uint16Sentinel uint16 = 0xFFFF
)

type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	Filename               []byte
}

func (h LocalFileHeader) Encode() []byte {
	buf := make([]byte, LocalFileHeaderLen+len(h.Filename))

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Filename)))
	// Extra field length stays zero, local headers never carry one.

	copy(buf[30:], h.Filename)

	return buf
}

// DataDescriptor trails entry data whose CRC and sizes were not known
// when the local header was written.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Zip64            bool
}

func (d DataDescriptor) Encode() []byte {
	if d.Zip64 {
		buf := make([]byte, Zip64DataDescriptorLen)
		binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
		binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
		binary.LittleEndian.PutUint64(buf[8:16], d.CompressedSize)
		binary.LittleEndian.PutUint64(buf[16:24], d.UncompressedSize)
		return buf
	}

	buf := make([]byte, DataDescriptorLen)
	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(d.CompressedSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(d.UncompressedSize))
	return buf
}

type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               []byte
	ExtraField             []byte
	Comment                []byte
}

// Len returns the encoded size of the record.
func (d CentralDirectory) Len() int {
	return CentralDirectoryLen + len(d.Filename) + len(d.ExtraField) + len(d.Comment)
}

func (d CentralDirectory) Encode() []byte {
	buf := make([]byte, d.Len())

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(d.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(d.ExtraField)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(d.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := CentralDirectoryLen
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], d.ExtraField)
	copy(buf[offset:], d.Comment)

	return buf
}

// EncodeZip64ExtraField builds the extended information extra field that
// carries all three 64-bit values, in the order mandated by APPNOTE 4.5.3.
func EncodeZip64ExtraField(uncompressedSize, compressedSize, localHeaderOffset uint64) []byte {
	buf := make([]byte, Zip64ExtraFieldLen)

	binary.LittleEndian.PutUint16(buf[0:2], Zip64ExtraFieldTag)
	binary.LittleEndian.PutUint16(buf[2:4], Zip64ExtraFieldLen-4)
	binary.LittleEndian.PutUint64(buf[4:12], uncompressedSize)
	binary.LittleEndian.PutUint64(buf[12:20], compressedSize)
	binary.LittleEndian.PutUint64(buf[20:28], localHeaderOffset)

	return buf
}

// EncodeEndOfCentralDirRecord builds the classic end record. When zip64 is set
// the count, size and offset fields are replaced by their sentinels so that
// readers consult the zip64 end record instead.
func EncodeEndOfCentralDirRecord(entriesNum uint64, centralDirSize, centralDirOffset uint64, comment []byte, zip64 bool) []byte {
	buf := make([]byte, EndOfCentralDirLen+len(comment))

	count := uint16(entriesNum)
	size := uint32(centralDirSize)
	offset := uint32(centralDirOffset)
	if zip64 {
		count, size, offset = Uint16Sentinel, Uint32Sentinel, Uint32Sentinel
	}

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], count)
	binary.LittleEndian.PutUint16(buf[10:12], count)
	binary.LittleEndian.PutUint32(buf[12:16], size)
	binary.LittleEndian.PutUint32(buf[16:20], offset)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(comment)))

	copy(buf[22:], comment)

	return buf
}

func EncodeZip64EndOfCentralDirRecord(versionMadeBy uint16, entriesNum uint64, centralDirSize uint64, centralDirOffset uint64) []byte {
	buf := make([]byte, Zip64EndOfCentralDirLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], Zip64EndOfCentralDirLen-12)
	binary.LittleEndian.PutUint16(buf[12:14], versionMadeBy)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entriesNum)
	binary.LittleEndian.PutUint64(buf[32:40], entriesNum)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

func EncodeZip64EndOfCentralDirLocator(endOfCentralDirOffset uint64) []byte {
	buf := make([]byte, Zip64EndOfCentralDirLocatorLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], endOfCentralDirOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}
