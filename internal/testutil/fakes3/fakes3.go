// Package fakes3 is an in-memory, versioning-aware stand-in for the S3 operations the
// storage client uses. Failures are reported as smithy API errors with the same codes an
// S3-compatible backend returns.
package fakes3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	awsinterfaces "github.com/bacalhau-project/fridge/pkg/models/interfaces/aws"
)

// Operation names accepted by Fail and Calls.
const (
	OpHeadBucket          = "HeadBucket"
	OpCreateBucket        = "CreateBucket"
	OpPutBucketVersioning = "PutBucketVersioning"
	OpPutObject           = "PutObject"
	OpGetObject           = "GetObject"
	OpHeadObject          = "HeadObject"
	OpDeleteObject        = "DeleteObject"
)

type version struct {
	id          string
	data        []byte
	contentType string
}

type bucket struct {
	versioning bool
	objects    map[string][]version
}

type Backend struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	calls    map[string]int
	failures map[string]error
	nextID   int
}

var _ awsinterfaces.S3Clienter = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		buckets:  make(map[string]*bucket),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// APIError builds the error an S3-compatible backend reports for code.
func APIError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message, Fault: smithy.FaultClient}
}

// Fail makes every later call of op return err until Fail is called again with nil.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// Calls reports how many times op was invoked, failed calls included.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Versioning reports whether versioning was enabled on name.
func (b *Backend) Versioning(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bkt, ok := b.buckets[name]
	return ok && bkt.versioning
}

// enter records the call and returns the injected failure for op. Callers hold b.mu.
func (b *Backend) enter(op string) error {
	b.calls[op]++
	return b.failures[op]
}

func noSuchBucket() error {
	return APIError("NoSuchBucket", "The specified bucket does not exist")
}

func noSuchKey() error {
	return APIError("NoSuchKey", "The specified key does not exist.")
}

func (b *Backend) find(name, key, versionID string) (*version, error) {
	bkt, ok := b.buckets[name]
	if !ok {
		return nil, noSuchBucket()
	}
	versions := bkt.objects[key]
	if len(versions) == 0 {
		return nil, noSuchKey()
	}
	if versionID == "" {
		return &versions[len(versions)-1], nil
	}
	for i := range versions {
		if versions[i].id == versionID {
			return &versions[i], nil
		}
	}
	return nil, APIError("NoSuchVersion", "The specified version does not exist.")
}

func (b *Backend) HeadBucket(
	_ context.Context,
	params *s3.HeadBucketInput,
	_ ...func(*s3.Options),
) (*s3.HeadBucketOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpHeadBucket); err != nil {
		return nil, err
	}
	if _, ok := b.buckets[aws.ToString(params.Bucket)]; !ok {
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (b *Backend) CreateBucket(
	_ context.Context,
	params *s3.CreateBucketInput,
	_ ...func(*s3.Options),
) (*s3.CreateBucketOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpCreateBucket); err != nil {
		return nil, err
	}
	name := aws.ToString(params.Bucket)
	if _, ok := b.buckets[name]; ok {
		return nil, &s3types.BucketAlreadyOwnedByYou{Message: aws.String("Your previous request to create the named bucket succeeded and you already own it.")}
	}
	b.buckets[name] = &bucket{objects: make(map[string][]version)}
	return &s3.CreateBucketOutput{Location: aws.String("/" + name)}, nil
}

func (b *Backend) PutBucketVersioning(
	_ context.Context,
	params *s3.PutBucketVersioningInput,
	_ ...func(*s3.Options),
) (*s3.PutBucketVersioningOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpPutBucketVersioning); err != nil {
		return nil, err
	}
	bkt, ok := b.buckets[aws.ToString(params.Bucket)]
	if !ok {
		return nil, noSuchBucket()
	}
	if params.VersioningConfiguration != nil {
		bkt.versioning = params.VersioningConfiguration.Status == s3types.BucketVersioningStatusEnabled
	}
	return &s3.PutBucketVersioningOutput{}, nil
}

func (b *Backend) PutObject(
	_ context.Context,
	params *s3.PutObjectInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	var data []byte
	if params.Body != nil {
		var err error
		if data, err = io.ReadAll(params.Body); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpPutObject); err != nil {
		return nil, err
	}
	name := aws.ToString(params.Bucket)
	bkt, ok := b.buckets[name]
	if !ok {
		return nil, noSuchBucket()
	}
	if params.ContentLength != nil && *params.ContentLength != int64(len(data)) {
		return nil, APIError("IncompleteBody", "You did not provide the number of bytes specified by the Content-Length HTTP header.")
	}

	key := aws.ToString(params.Key)
	v := version{id: "null", data: data, contentType: aws.ToString(params.ContentType)}
	out := &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("\"%x\"", len(data)))}
	if bkt.versioning {
		b.nextID++
		v.id = fmt.Sprintf("v%06d", b.nextID)
		out.VersionId = aws.String(v.id)
		bkt.objects[key] = append(bkt.objects[key], v)
	} else {
		bkt.objects[key] = []version{v}
	}
	return out, nil
}

func (b *Backend) GetObject(
	_ context.Context,
	params *s3.GetObjectInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpGetObject); err != nil {
		return nil, err
	}
	v, err := b.find(aws.ToString(params.Bucket), aws.ToString(params.Key), aws.ToString(params.VersionId))
	if err != nil {
		return nil, err
	}
	out := &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), v.data...))),
		ContentLength: aws.Int64(int64(len(v.data))),
	}
	if v.contentType != "" {
		out.ContentType = aws.String(v.contentType)
	}
	if v.id != "null" {
		out.VersionId = aws.String(v.id)
	}
	return out, nil
}

func (b *Backend) HeadObject(
	_ context.Context,
	params *s3.HeadObjectInput,
	_ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpHeadObject); err != nil {
		return nil, err
	}
	v, err := b.find(aws.ToString(params.Bucket), aws.ToString(params.Key), aws.ToString(params.VersionId))
	if err != nil {
		// HEAD responses carry no body, so the SDK only sees the status.
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	out := &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(v.data)))}
	if v.contentType != "" {
		out.ContentType = aws.String(v.contentType)
	}
	return out, nil
}

func (b *Backend) DeleteObject(
	_ context.Context,
	params *s3.DeleteObjectInput,
	_ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteObject); err != nil {
		return nil, err
	}
	name := aws.ToString(params.Bucket)
	bkt, ok := b.buckets[name]
	if !ok {
		return nil, noSuchBucket()
	}
	key := aws.ToString(params.Key)
	versionID := aws.ToString(params.VersionId)
	if versionID == "" {
		delete(bkt.objects, key)
		return &s3.DeleteObjectOutput{}, nil
	}
	kept := bkt.objects[key][:0]
	for _, v := range bkt.objects[key] {
		if v.id != versionID {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(bkt.objects, key)
	} else {
		bkt.objects[key] = kept
	}
	return &s3.DeleteObjectOutput{VersionId: aws.String(versionID)}, nil
}
