// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lemon4ksan/zipstream"
	digest "github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
)

// Strategies for adding regular files.
const (
	strategyFile   = "file"
	strategyBuffer = "buffer"
	strategyStream = "stream"
)

// run writes every input to a single archive and waits for it to finish.
func run(ctx context.Context, cfg config, inputs []string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var s3c *s3Client
	needS3 := isS3URL(cfg.Output)
	for _, in := range inputs {
		needS3 = needS3 || isS3URL(in)
	}
	if needS3 {
		s3c = newS3Client()
	}

	out, finish, err := openOutput(ctx, cfg.Output, s3c, os.Stdout)
	if err != nil {
		return err
	}

	dest := io.Writer(out)
	var digester digest.Digester
	if cfg.Digest {
		digester = digest.Canonical.Digester()
		dest = io.MultiWriter(out, digester.Hash())
	}

	// Messages go to stderr while the archive itself is on stdout.
	report := stdout
	if cfg.Output == "-" {
		report = os.Stderr
	}

	options := []zipstream.Option{
		zipstream.WithMaxConcurrentStats(cfg.MaxStats),
		zipstream.WithOnEntryWritten(func(e *zipstream.Entry) {
			log.WithFields(log.Fields{
				"name":         e.Name(),
				"method":       e.Method().String(),
				"size":         e.UncompressedSize(),
				"compressed":   e.CompressedSize(),
				"zip64":        e.Zip64(),
				"local_header": e.Offset(),
			}).Debug("entry written")
		}),
	}
	if cfg.Verbose {
		w := log.StandardLogger().WriterLevel(log.DebugLevel)
		defer w.Close()
		options = append(options, zipstream.WithLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	z := zipstream.NewZipFileWithContext(ctx, dest, options...)

	addErr := addInputs(ctx, z, cfg, inputs, s3c)

	endErr := z.End(zipstream.EndConfig{
		Comment:    cfg.Comment,
		ForceZip64: cfg.Zip64,
		OnFinalSize: func(size int64) {
			if size == zipstream.SizeUnknowable {
				fmt.Fprintln(report, "finalSize prediction: unknowable")
				return
			}
			fmt.Fprintf(report, "finalSize prediction: %d\n", size)
		},
	})
	if endErr != nil {
		// Entries already queued are still written so the output is a valid archive.
		if err := z.End(zipstream.EndConfig{ForceZip64: cfg.Zip64}); err != nil {
			log.Warnf("error ending archive without comment, err: %v", err)
		}
	}

	werr := z.Wait(ctx)
	if err := finish(werr); err != nil && werr == nil {
		werr = err
	}

	switch {
	case addErr != nil:
		return addErr
	case endErr != nil:
		return endErr
	case werr != nil:
		return werr
	}

	if digester != nil {
		fmt.Fprintln(report, digester.Digest().String())
	}
	return nil
}

// entryOptions builds the per-entry options shared by every input.
func entryOptions(cfg config) []zipstream.AddOption {
	opts := []zipstream.AddOption{zipstream.WithoutCompression()}
	if cfg.Compress {
		opts[0] = zipstream.WithCompression(zipstream.Deflate, cfg.Level)
	}
	if cfg.Zip64 {
		opts = append(opts, zipstream.WithZip64(true))
	}
	return opts
}

func addInputs(ctx context.Context, z *zipstream.ZipFile, cfg config, inputs []string, s3c *s3Client) error {
	opts := entryOptions(cfg)

	for _, in := range inputs {
		if err := addInput(ctx, z, cfg, in, s3c, opts); err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
	}
	return nil
}

func addInput(ctx context.Context, z *zipstream.ZipFile, cfg config, in string, s3c *s3Client, opts []zipstream.AddOption) error {
	if in == "-" {
		log.Debugf("adding stdin as %s", cfg.StdinName)
		return z.AddReader(os.Stdin, cfg.StdinName, zipstream.SizeUnknown, opts...)
	}

	if isS3URL(in) {
		bucket, key, err := parseS3URL(in)
		if err != nil {
			return err
		}
		log.Debugf("adding s3 object %s/%s", bucket, key)
		return s3c.addObject(ctx, z, bucket, key, opts...)
	}

	info, err := os.Stat(in)
	if err != nil {
		return err
	}
	name := entryName(in)

	switch {
	case info.IsDir() && cfg.Recursive:
		log.Debugf("adding directory tree %s", in)
		if name == "." {
			return z.AddDir(in, opts...)
		}
		if err := z.Mkdir(name, opts...); err != nil {
			return err
		}
		return z.AddDir(in, append(opts, zipstream.WithPath(name))...)

	case info.IsDir():
		log.Debugf("adding empty directory %s", in)
		return z.Mkdir(name, opts...)

	case info.Mode().IsRegular():
		return addRegular(z, cfg.Strategy, in, name, opts)
	}

	return fmt.Errorf("%w: %s", zipstream.ErrNotRegularFile, info.Mode().Type())
}

func addRegular(z *zipstream.ZipFile, strategy, path, name string, opts []zipstream.AddOption) error {
	log.Debugf("adding %s as %s with the %s strategy", path, name, strategy)

	switch strategy {
	case strategyBuffer:
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return z.AddBytes(data, name, opts...)

	case strategyStream:
		return z.AddLazy(name, zipstream.SizeUnknown, func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		}, opts...)
	}

	return z.AddFile(path, name, opts...)
}

// entryName maps a command line path to an archive name. Absolute paths and
// paths leaving the working directory keep only their base name.
func entryName(path string) string {
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return filepath.Base(clean)
	}
	return filepath.ToSlash(clean)
}

// openOutput opens the archive destination. finish must be called with the
// archive's outcome once writing is over.
func openOutput(ctx context.Context, output string, s3c *s3Client, stdout io.Writer) (io.Writer, func(error) error, error) {
	switch {
	case output == "-":
		return stdout, func(error) error { return nil }, nil

	case isS3URL(output):
		bucket, key, err := parseS3URL(output)
		if err != nil {
			return nil, nil, err
		}
		return s3c.upload(ctx, bucket, key)
	}

	f, err := os.Create(output)
	if err != nil {
		return nil, nil, err
	}
	return f, func(error) error { return f.Close() }, nil
}
