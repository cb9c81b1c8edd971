// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/lemon4ksan/zipstream"
	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		raw     string
		bucket  string
		key     string
		wantErr bool
	}{
		{raw: "s3://bucket/key.txt", bucket: "bucket", key: "key.txt"},
		{raw: "s3://bucket/nested/path/archive.zip", bucket: "bucket", key: "nested/path/archive.zip"},
		{raw: "s3://bucket/", wantErr: true},
		{raw: "s3://bucket", wantErr: true},
		{raw: "s3:///key", wantErr: true},
		{raw: "https://bucket/key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			bucket, key, err := parseS3URL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "a.txt", entryName("a.txt"))
	assert.Equal(t, "dir/a.txt", entryName("./dir/../dir/a.txt"))
	assert.Equal(t, "a.txt", entryName(filepath.Join(t.TempDir(), "a.txt")))
	assert.Equal(t, "a.txt", entryName("../a.txt"))
}

// fakeS3 serves objects from memory.
type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
	gets    int
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	body, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(body))),
		LastModified:  aws.Time(time.Date(2022, 3, 4, 5, 6, 8, 0, time.UTC)),
	}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.gets++
	body := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Client_AddObject(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"bucket/logs/app.log": "line one\nline two\n"}}
	client := &s3Client{api: api}

	buf := new(bytes.Buffer)
	z := zipstream.NewZipFile(buf)

	require.NoError(t, client.addObject(context.Background(), z, "bucket", "logs/app.log", zipstream.WithoutCompression()))
	assert.Error(t, client.addObject(context.Background(), z, "bucket", "missing", zipstream.WithoutCompression()))

	sizes := make(chan int64, 1)
	require.NoError(t, z.End(zipstream.EndConfig{OnFinalSize: func(size int64) { sizes <- size }}))
	require.NoError(t, z.Wait(context.Background()))
	assert.Equal(t, int64(buf.Len()), <-sizes)
	assert.Equal(t, 1, api.gets)

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, r.File, 1)
	assert.Equal(t, "app.log", r.File[0].Name)
	assert.Equal(t, time.Date(2022, 3, 4, 5, 6, 8, 0, time.UTC), r.File[0].Modified)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte(strings.Repeat("zipstream ", 100)), 0o644))

	tree := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "sub", "leaf.txt"), []byte("leaf"), 0o644))

	tests := []struct {
		name     string
		cfg      config
		inputs   []string
		wantSize bool
		want     []string
	}{
		{
			name:   "compressed file",
			cfg:    config{Compress: true, Level: 6, Strategy: strategyFile},
			inputs: []string{input},
			want:   []string{"input.txt"},
		},
		{
			name:     "stored buffer",
			cfg:      config{Strategy: strategyBuffer},
			inputs:   []string{input},
			wantSize: true,
			want:     []string{"input.txt"},
		},
		{
			name:   "compressed stream",
			cfg:    config{Compress: true, Level: 9, Strategy: strategyStream, Zip64: true},
			inputs: []string{input},
			want:   []string{"input.txt"},
		},
		{
			name:     "empty directory",
			cfg:      config{Strategy: strategyFile},
			inputs:   []string{tree, input},
			wantSize: true,
			want:     []string{"tree/", "input.txt"},
		},
		{
			name:     "recursive directory",
			cfg:      config{Strategy: strategyFile, Recursive: true, Comment: "backup"},
			inputs:   []string{tree},
			wantSize: true,
			want:     []string{"tree/", "tree/sub/", "tree/sub/leaf.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "out.zip")
			tt.cfg.Output = output
			tt.cfg.Digest = true
			tt.cfg.MaxStats = 4

			report := new(bytes.Buffer)
			require.NoError(t, run(context.Background(), tt.cfg, tt.inputs, report))

			data, err := os.ReadFile(output)
			require.NoError(t, err)

			if tt.wantSize {
				assert.Contains(t, report.String(), fmt.Sprintf("finalSize prediction: %d\n", len(data)))
			} else {
				assert.Contains(t, report.String(), "finalSize prediction: unknowable\n")
			}
			assert.Contains(t, report.String(), digest.FromBytes(data).String())

			r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Comment, r.Comment)

			var names []string
			for _, f := range r.File {
				names = append(names, f.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestRun_MissingInput(t *testing.T) {
	output := filepath.Join(t.TempDir(), "out.zip")
	cfg := config{Output: output, Strategy: strategyFile, MaxStats: 1}

	err := run(context.Background(), cfg, []string{filepath.Join(t.TempDir(), "missing.txt")}, io.Discard)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Entries queued before the failure still produce a readable archive.
	r, err := zip.OpenReader(output)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, r.File)
}

func TestRun_InvalidComment(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("content"), 0o644))

	output := filepath.Join(dir, "out.zip")
	cfg := config{Output: output, Strategy: strategyFile, Comment: "日本", MaxStats: 1}

	err := run(context.Background(), cfg, []string{input}, io.Discard)
	assert.ErrorIs(t, err, zipstream.ErrFileEntry)

	// The archive is still ended, without the comment.
	r, err := zip.OpenReader(output)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)
	assert.Equal(t, "input.txt", r.File[0].Name)
	assert.Empty(t, r.Comment)
}
