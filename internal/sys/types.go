// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sys holds the host-system identifiers and POSIX file type bits
// written into the "version made by" and external attribute fields.
package sys

// HostSystem is the upper byte of the "version made by" field.
type HostSystem uint8

// Host systems this module can report. Only UNIX is ever written, since
// external attributes always carry a POSIX st_mode.
const (
	HostSystemFAT    HostSystem = 0  // MS-DOS and OS/2
	HostSystemUNIX   HostSystem = 3  // UNIX
	HostSystemNTFS   HostSystem = 10 // Windows NTFS
	HostSystemDarwin HostSystem = 19 // OS X (Darwin)
)

func (h HostSystem) String() string {
	switch h {
	case HostSystemFAT:
		return "MS-DOS/OS2 (FAT)"
	case HostSystemUNIX:
		return "UNIX"
	case HostSystemNTFS:
		return "Windows NTFS"
	case HostSystemDarwin:
		return "OS X (Darwin)"
	}
	return "Unknown"
}

// POSIX st_mode file type bits.
const (
	S_IFMT   = 0170000 // File type mask
	S_IFSOCK = 0140000 // Socket
	S_IFLNK  = 0120000 // Symlink
	S_IFREG  = 0100000 // Regular file
	S_IFBLK  = 0060000 // Block device
	S_IFDIR  = 0040000 // Directory
	S_IFCHR  = 0020000 // Character device
	S_IFIFO  = 0010000 // FIFO
)
