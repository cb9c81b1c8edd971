// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/lemon4ksan/zipstream"
	log "github.com/sirupsen/logrus"
)

// s3Client reads archive inputs from S3 and uploads archives to it.
type s3Client struct {
	api      s3iface.S3API
	uploader *s3manager.Uploader
}

// newS3Client creates a client, expecting that the environment variables
// and shared config configure the settings.
func newS3Client() *s3Client {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	api := s3.New(sess)
	return &s3Client{
		api:      api,
		uploader: s3manager.NewUploaderWithClient(api),
	}
}

func isS3URL(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// parseS3URL splits s3://bucket/key into its bucket and key.
func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must name a bucket and a key: %s", raw)
	}
	return bucket, key, nil
}

// addObject adds an S3 object named after the base of its key. Its size is
// looked up now and its body is fetched when the entry is written.
func (c *s3Client) addObject(ctx context.Context, z *zipstream.ZipFile, bucket, key string, opts ...zipstream.AddOption) error {
	head, err := c.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Errorf("error getting S3 head object (bucket: %s)(key: %s), err: %v", bucket, key, err)
		return err
	}

	size := zipstream.SizeUnknown
	if head.ContentLength != nil {
		size = aws.Int64Value(head.ContentLength)
	}
	if head.LastModified != nil {
		opts = append([]zipstream.AddOption{zipstream.WithModTime(aws.TimeValue(head.LastModified))}, opts...)
	}

	return z.AddLazy(path.Base(key), size, func(ctx context.Context) (io.ReadCloser, error) {
		out, err := c.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
		}
		return out.Body, nil
	}, opts...)
}

// upload starts a multipart upload fed by the returned writer. The finish
// function closes the writer with the archive's outcome and waits for the
// upload to complete.
func (c *s3Client) upload(ctx context.Context, bucket, key string) (io.Writer, func(error) error, error) {
	pr, pw := io.Pipe()
	result := make(chan error, 1)

	go func() {
		out, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String("application/zip"),
		})
		if err != nil {
			pr.CloseWithError(err)
			result <- fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
			return
		}
		log.Infof("uploaded %s", out.Location)
		result <- nil
	}()

	finish := func(archiveErr error) error {
		pw.CloseWithError(archiveErr)
		return <-result
	}
	return pw, finish, nil
}
