package ent

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// S3Access reads objects from a single bucket. Object keys are prefixed
// with Directory when it is set.
type S3Access struct {
	log        hclog.Logger
	sc         *s3.Client
	downloader *manager.Downloader
	bucket     string
	dir        string
}

func NewS3Access(log hclog.Logger, host, bucket, dir string, cfg aws.Config) (*S3Access, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket must not be empty")
	}

	sc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if host != "" {
			o.BaseEndpoint = &host
		}
	})

	return &S3Access{
		log:        log,
		sc:         sc,
		downloader: manager.NewDownloader(sc),
		bucket:     bucket,
		dir:        dir,
	}, nil
}

func (s *S3Access) Kind() string {
	return "s3"
}

func (s *S3Access) key(name string) string {
	name = strings.TrimPrefix(name, "/")
	if s.dir == "" {
		return name
	}

	return strings.TrimSuffix(s.dir, "/") + "/" + name
}

func isMissing(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}

	return false
}

func (s *S3Access) ReadAll(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)

	// Keys ending in a slash are directory markers, never object data.
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, &SourceError{Kind: NotAFile, Path: name}
	}

	head, err := s.sc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isMissing(err) {
			return nil, &SourceError{Kind: NotFound, Path: name, Err: err}
		}

		return nil, &SourceError{Kind: ReadFailure, Path: name, Err: err}
	}

	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}

	s.log.Trace("downloading object", "bucket", s.bucket, "key", key, "size", size)

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))

	_, err = s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isMissing(err) {
			return nil, &SourceError{Kind: NotFound, Path: name, Err: err}
		}

		return nil, &SourceError{
			Kind: ReadFailure,
			Path: name,
			Err:  errors.Wrapf(err, "downloading s3://%s/%s", s.bucket, key),
		}
	}

	return buf.Bytes(), nil
}
