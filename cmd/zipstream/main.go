// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zipstream writes a ZIP archive from files, directories, standard
// input and S3 objects.
package main

import "github.com/lemon4ksan/zipstream/internal/cli"

// version is set during build
var version = "dev"

func main() {
	cli.Execute(version)
}
