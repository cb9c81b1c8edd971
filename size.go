// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import "github.com/lemon4ksan/zipstream/internal"

// SizeUnknowable is reported by EndConfig.OnFinalSize when the size of the
// archive cannot be predicted, because an entry is compressed or a stream
// was added without a size.
const SizeUnknowable int64 = -1

// calculateFinalSize predicts the total archive size without modifying any
// entry. It returns ok == false while an entry still resolving may yet
// supply its size. Entry offsets are assigned provisionally from the running
// total, only to decide which entries need the zip64 layout.
func (z *ZipFile) calculateFinalSize() (size int64, ok bool) {
	for _, e := range z.entries {
		if e.compressed() {
			return SizeUnknowable, true
		}
	}

	var offset, centralDirSize int64
	for _, e := range z.entries {
		if e.uncompressedSize == SizeUnknown {
			if e.state >= stateReadyToPump {
				return SizeUnknowable, true
			}
			return 0, false
		}

		zip64 := e.useZip64At(offset)
		offset += int64(internal.LocalFileHeaderLen+len(e.name)) + e.uncompressedSize + e.dataDescriptorLen(zip64)
		centralDirSize += e.centralDirLen(zip64)
	}

	end := int64(internal.EndOfCentralDirLen + len(z.comment))
	if needZip64End(z.forceZip64End, len(z.entries), centralDirSize, offset) {
		end += internal.Zip64EndOfCentralDirLen + internal.Zip64EndOfCentralDirLocatorLen
	}

	return offset + centralDirSize + end, true
}
