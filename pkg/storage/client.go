// Package storage performs bucket and object operations against an S3-compatible backend
// using whichever credentials the credential manager currently holds.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/bacalhau-project/fridge/pkg/logger"
	"github.com/bacalhau-project/fridge/pkg/metrics"
	awsinterfaces "github.com/bacalhau-project/fridge/pkg/models/interfaces/aws"
)

const (
	DefaultContentType = "application/octet-stream"

	msgCreateBucket = "Unable to create bucket"
	msgPutObject    = "Unable to upload object"
	msgGetObject    = "Unable to get object from bucket"
	msgStatObject   = "Unable to check object in bucket"
	msgDeleteObject = "Unable to delete object from bucket"
)

// CredentialProvider hands out the backend client for the current credentials.
// *credentials.Manager implements it.
type CredentialProvider interface {
	EnsureValid(ctx context.Context) error
	Client() awsinterfaces.S3Clienter
}

type Client struct {
	creds   CredentialProvider
	baseURL string
	l       *logger.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.l = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient returns a Client that reports object locations relative to baseURL.
func NewClient(creds CredentialProvider, baseURL string, opts ...Option) *Client {
	c := &Client{
		creds:   creds,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.l == nil {
		c.l = logger.Get()
	}
	c.l = c.l.Named("storage")
	return c
}

// backend refreshes the credentials when needed and returns the client to dispatch to.
func (c *Client) backend(ctx context.Context) (awsinterfaces.S3Clienter, error) {
	if err := c.creds.EnsureValid(ctx); err != nil {
		return nil, err
	}
	return c.creds.Client(), nil
}

func (c *Client) record(op string, status int, err error) {
	if err != nil {
		status, _ = StatusOf(err)
	}
	c.metrics.IncOperation(op, status)
}

// CreateBucket creates name unless it already exists and optionally enables versioning.
// Versioning is never disabled here.
func (c *Client) CreateBucket(ctx context.Context, name string, enableVersioning bool) (res *Result, err error) {
	defer func() { c.record("create_bucket", http.StatusCreated, err) }()

	backend, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}

	exists, err := bucketExists(ctx, backend, name)
	if err != nil {
		return nil, TranslateError(err, msgCreateBucket)
	}
	if !exists {
		if _, err := backend.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
			return nil, TranslateError(err, msgCreateBucket)
		}
		c.l.InfoWithFields("Created bucket", zap.String("bucket", name))
	}

	if enableVersioning {
		_, err := backend.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket: aws.String(name),
			VersioningConfiguration: &s3types.VersioningConfiguration{
				Status: s3types.BucketVersioningStatusEnabled,
			},
		})
		if err != nil {
			return nil, TranslateError(err, msgCreateBucket)
		}
	}

	return &Result{Status: http.StatusCreated, Response: name}, nil
}

// bucketExists maps the not-found answer of HeadBucket to false.
func bucketExists(ctx context.Context, backend awsinterfaces.S3Clienter, name string) (bool, error) {
	_, err := backend.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		return true, nil
	}
	var nf *NotFoundError
	if errors.As(TranslateError(err, ""), &nf) {
		return false, nil
	}
	return false, err
}

// PutObject buffers body and uploads it with a known length.
func (c *Client) PutObject(
	ctx context.Context,
	bucket, key string,
	body io.Reader,
	contentType string,
) (res *Result, err error) {
	defer func() { c.record("put_object", http.StatusCreated, err) }()

	backend, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, &InternalError{Message: msgPutObject, Err: err}
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	out, err := backend.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, TranslateError(err, msgPutObject)
	}

	c.l.DebugWithFields("Uploaded object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(content)))

	return &Result{
		Status:   http.StatusCreated,
		Response: c.location(bucket, key),
		Version:  aws.ToString(out.VersionId),
	}, nil
}

func (c *Client) location(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, bucket, key)
}

// GetObject opens ref for reading. filename names the attachment and defaults to the key.
// The caller owns the returned body.
func (c *Client) GetObject(ctx context.Context, ref ObjectRef, filename string) (obj *Object, err error) {
	defer func() { c.record("get_object", http.StatusOK, err) }()

	backend, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = ref.Key
	}

	out, err := backend.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(ref.Bucket),
		Key:       aws.String(ref.Key),
		VersionId: optional(ref.VersionID),
	})
	if err != nil {
		return nil, TranslateError(err, msgGetObject)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Object{
		Body:               out.Body,
		ContentType:        contentType,
		ContentLength:      aws.ToInt64(out.ContentLength),
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filename),
		VersionID:          aws.ToString(out.VersionId),
	}, nil
}

// ObjectExists probes ref. A coded backend error is translated and returned; any other
// failure of the probe is reported as the object being absent.
func (c *Client) ObjectExists(ctx context.Context, ref ObjectRef) (exists bool, err error) {
	defer func() {
		status := http.StatusOK
		if !exists {
			status = http.StatusNotFound
		}
		c.record("head_object", status, err)
	}()

	backend, err := c.backend(ctx)
	if err != nil {
		return false, err
	}
	return c.objectExists(ctx, backend, ref)
}

func (c *Client) objectExists(ctx context.Context, backend awsinterfaces.S3Clienter, ref ObjectRef) (bool, error) {
	_, err := backend.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:    aws.String(ref.Bucket),
		Key:       aws.String(ref.Key),
		VersionId: optional(ref.VersionID),
	})
	if err == nil {
		return true, nil
	}
	if isBackendError(err) {
		return false, TranslateError(err, msgStatObject)
	}
	c.l.DebugWithFields("Object probe failed, treating object as absent",
		zap.String("bucket", ref.Bucket),
		zap.String("key", ref.Key),
		zap.Error(err))
	return false, nil
}

// DeleteObject removes ref after checking that it exists. The check and the delete are
// separate backend calls.
func (c *Client) DeleteObject(ctx context.Context, ref ObjectRef) (res *Result, err error) {
	defer func() {
		status := http.StatusOK
		if res != nil {
			status = res.Status
		}
		c.record("delete_object", status, err)
	}()

	backend, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}

	exists, err := c.objectExists(ctx, backend, ref)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Result{
			Status:   http.StatusNotFound,
			Response: fmt.Sprintf("%s not found in %s", ref.Key, ref.Bucket),
			Version:  ref.VersionID,
		}, nil
	}

	if _, err := backend.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(ref.Bucket),
		Key:       aws.String(ref.Key),
		VersionId: optional(ref.VersionID),
	}); err != nil {
		return nil, TranslateError(err, msgDeleteObject)
	}

	c.l.InfoWithFields("Deleted object",
		zap.String("bucket", ref.Bucket),
		zap.String("key", ref.Key),
		zap.String("version", ref.VersionID))

	return &Result{Status: http.StatusOK, Response: ref.Key, Version: ref.VersionID}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
