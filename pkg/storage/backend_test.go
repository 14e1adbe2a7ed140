package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bacalhau-project/fridge/pkg/credentials"
	"github.com/bacalhau-project/fridge/pkg/logger"
)

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", EndpointURL("minio:9000", false))
	assert.Equal(t, "https://minio:9000", EndpointURL("minio:9000/", true))
	assert.Equal(t, "http://localhost:9000", EndpointURL("http://localhost:9000/", true))
}

func TestNewS3ClientFactory(t *testing.T) {
	factory, err := NewS3ClientFactory(BackendConfig{Endpoint: "minio.fridge.svc:9000", Secure: true})
	require.NoError(t, err)

	client, err := factory(credentials.Credentials{AccessKeyID: "AK", SecretAccessKey: "SK", SessionToken: "ST"})
	require.NoError(t, err)

	s3Client, ok := client.(*s3.Client)
	require.True(t, ok)
	opts := s3Client.Options()
	assert.Equal(t, "https://minio.fridge.svc:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, DefaultRegion, opts.Region)

	_, err = factory(credentials.Credentials{AccessKeyID: "AK"})
	assert.ErrorIs(t, err, credentials.ErrMissingCredentials)
}

func TestNewS3ClientFactoryValidation(t *testing.T) {
	_, err := NewS3ClientFactory(BackendConfig{})
	assert.Error(t, err)

	badCA := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(badCA, []byte("garbage"), 0600))
	_, err = NewS3ClientFactory(BackendConfig{Endpoint: "minio:9000", Secure: true, CACertFile: badCA})
	assert.ErrorIs(t, err, credentials.ErrNoCACerts)

	// The CA bundle only applies to TLS endpoints.
	_, err = NewS3ClientFactory(BackendConfig{Endpoint: "minio:9000", CACertFile: badCA})
	assert.NoError(t, err)
}

func TestBodilessForbiddenFromBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	factory, err := NewS3ClientFactory(BackendConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	backend, err := factory(credentials.Credentials{AccessKeyID: "AK", SecretAccessKey: "SK"})
	require.NoError(t, err)
	c := NewClient(&fixedProvider{backend: backend}, srv.URL, WithLogger(logger.NewNopLogger()))

	ctx := context.Background()
	_, err = c.CreateBucket(ctx, "artifacts", false)
	status, _ := StatusOf(err)
	assert.Equal(t, http.StatusForbidden, status)

	_, err = c.ObjectExists(ctx, ObjectRef{Bucket: "artifacts", Key: "k"})
	status, _ = StatusOf(err)
	assert.Equal(t, http.StatusForbidden, status)

	_, err = c.DeleteObject(ctx, ObjectRef{Bucket: "artifacts", Key: "k"})
	status, _ = StatusOf(err)
	assert.Equal(t, http.StatusForbidden, status)
}
