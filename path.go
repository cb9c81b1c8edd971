// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"fmt"
	"math"
	"strings"
)

// normalizePath validates name and converts it to the form stored in the
// archive: forward slashes, relative, and with a trailing slash for directories.
// The name is otherwise kept verbatim; "." segments and duplicate slashes are
// not cleaned.
func normalizePath(name string, isDir bool) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrFileEntry)
	}

	name = strings.ReplaceAll(name, "\\", "/")

	if isAbsolute(name) {
		return "", fmt.Errorf("%w: absolute path %q", ErrInsecurePath, name)
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: invalid relative path %q", ErrInsecurePath, name)
		}
	}

	if isDir {
		if !strings.HasSuffix(name, "/") {
			name += "/"
		}
	} else if strings.HasSuffix(name, "/") {
		return "", fmt.Errorf("%w: file name %q ends with a slash", ErrFileEntry, name)
	}

	if len(name) > math.MaxUint16 {
		return "", fmt.Errorf("%w (%d bytes)", ErrFilenameTooLong, len(name))
	}

	return name, nil
}

// isAbsolute reports a leading slash or a drive letter prefix such as "C:".
func isAbsolute(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	if len(name) >= 2 && name[1] == ':' {
		c := name[0]
		return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
	}
	return false
}
