package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/bacalhau-project/fridge/internal/testutil/fakes3"
	"github.com/bacalhau-project/fridge/pkg/credentials"
	"github.com/bacalhau-project/fridge/pkg/logger"
	"github.com/bacalhau-project/fridge/pkg/metrics"
	awsinterfaces "github.com/bacalhau-project/fridge/pkg/models/interfaces/aws"
	"github.com/bacalhau-project/fridge/pkg/storage"
)

type testServer struct {
	*httptest.Server
	backend *fakes3.Backend
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	backend := fakes3.New()
	mgr, err := credentials.NewManager(context.Background(), credentials.Options{
		Static: &credentials.Credentials{AccessKeyID: "minioadmin", SecretAccessKey: "minioadmin"},
		Factory: func(credentials.Credentials) (awsinterfaces.S3Clienter, error) {
			return backend, nil
		},
		Logger: logger.NewNopLogger(),
	})
	require.NoError(t, err)

	client := storage.NewClient(mgr, "http://minio:9000", storage.WithLogger(logger.NewNopLogger()))
	opts = append([]Option{WithLogger(logger.NewNopLogger())}, opts...)
	srv := httptest.NewServer(NewHandler(client, opts...))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, backend: backend}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestObjectLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPut, "/buckets/artifacts?versioning=true", nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, storage.Result{Status: http.StatusCreated, Response: "artifacts"}, decode[storage.Result](t, resp))
	assert.True(t, srv.backend.Versioning("artifacts"))

	resp = srv.do(t, http.MethodPut, "/buckets/artifacts/objects/runs/1/out.csv", strings.NewReader("a,b\n1,2\n"), "text/csv")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	put := decode[storage.Result](t, resp)
	assert.Equal(t, "http://minio:9000/artifacts/runs/1/out.csv", put.Response)
	require.NotEmpty(t, put.Version)

	resp = srv.do(t, http.MethodHead, "/buckets/artifacts/objects/runs/1/out.csv", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/buckets/artifacts/objects/runs/1/out.csv?filename=report.csv", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(body))
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report.csv"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, put.Version, resp.Header.Get(VersionHeader))

	resp = srv.do(t, http.MethodDelete, "/buckets/artifacts/objects/runs/1/out.csv?version="+put.Version, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, storage.Result{Status: http.StatusOK, Response: "runs/1/out.csv", Version: put.Version}, decode[storage.Result](t, resp))

	resp = srv.do(t, http.MethodHead, "/buckets/artifacts/objects/runs/1/out.csv", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMultipartUpload(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPut, "/buckets/artifacts", nil, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(uploadField, "weights.bin")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := srv.do(t, http.MethodPost, "/buckets/artifacts/objects", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "http://minio:9000/artifacts/weights.bin", decode[storage.Result](t, resp).Response)

	resp = srv.do(t, http.MethodGet, "/buckets/artifacts/objects/weights.bin", nil, "")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, body)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
}

func TestMultipartUploadWithoutFile(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file"))
	require.NoError(t, mw.Close())

	resp := srv.do(t, http.MethodPost, "/buckets/artifacts/objects", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/buckets/artifacts/objects", strings.NewReader("raw"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorsRelayStatusAndDetail(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/buckets/missing/objects/k", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errorBody{Detail: "The specified bucket does not exist"}, decode[errorBody](t, resp))

	srv.do(t, http.MethodPut, "/buckets/artifacts", nil, "")
	srv.backend.Fail(fakes3.OpPutObject, fakes3.APIError("AccessDenied", "Access Denied."))
	resp = srv.do(t, http.MethodPut, "/buckets/artifacts/objects/k", strings.NewReader("x"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, errorBody{Detail: "Access Denied."}, decode[errorBody](t, resp))

	resp = srv.do(t, http.MethodPut, "/buckets/artifacts?versioning=maybe", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFailedRequestsAreLoggedWithRoute(t *testing.T) {
	l, logs := logger.NewObservedLogger(zapcore.DebugLevel)
	srv := newTestServer(t, WithLogger(l))
	srv.do(t, http.MethodPut, "/buckets/artifacts", nil, "")
	srv.backend.Fail(fakes3.OpPutObject, errors.New("connection reset by peer"))

	resp := srv.do(t, http.MethodPut, "/buckets/artifacts/objects/report.csv", strings.NewReader("x"), "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, errorBody{Detail: "Unable to upload object"}, decode[errorBody](t, resp))

	entries := logs.FilterMessage("Request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, http.MethodPut, fields["method"])
	assert.Equal(t, "/buckets/artifacts/objects/report.csv", fields["path"])
	assert.EqualValues(t, http.StatusInternalServerError, fields["status"])
}

func TestDeleteAbsentObjectDescriptor(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPut, "/buckets/artifacts", nil, "")
	srv.backend.Fail(fakes3.OpHeadObject, errors.New("i/o timeout"))

	resp := srv.do(t, http.MethodDelete, "/buckets/artifacts/objects/k?version=v9", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, storage.Result{
		Status:   http.StatusNotFound,
		Response: "k not found in artifacts",
		Version:  "v9",
	}, decode[storage.Result](t, resp))
	assert.Zero(t, srv.backend.Calls(fakes3.OpDeleteObject))
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).IncRefresh(metrics.RefreshSucceeded)

	var healthy atomic.Bool
	healthy.Store(true)
	srv := newTestServer(t,
		WithHealthCheck(func(context.Context) error {
			if !healthy.Load() {
				return errors.New("credentials refreshing")
			}
			return nil
		}),
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	resp := srv.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp = srv.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fridge_credential_refresh_total{result="succeeded"} 1`)
}
