// Package api relays storage operations over HTTP. Results are returned as JSON
// descriptors and failures as {"detail": ...} with the status the error carries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/bacalhau-project/fridge/pkg/logger"
	"github.com/bacalhau-project/fridge/pkg/storage"
)

const (
	// VersionHeader carries the object version on downloads.
	VersionHeader = "X-Object-Version"

	uploadField = "file"
)

// Storage is the subset of *storage.Client the handler dispatches to.
type Storage interface {
	CreateBucket(ctx context.Context, name string, enableVersioning bool) (*storage.Result, error)
	PutObject(ctx context.Context, bucket, key string, body io.Reader, contentType string) (*storage.Result, error)
	GetObject(ctx context.Context, ref storage.ObjectRef, filename string) (*storage.Object, error)
	ObjectExists(ctx context.Context, ref storage.ObjectRef) (bool, error)
	DeleteObject(ctx context.Context, ref storage.ObjectRef) (*storage.Result, error)
}

type Handler struct {
	store   Storage
	health  func(ctx context.Context) error
	metrics http.Handler
	l       *logger.Logger
	mux     *http.ServeMux
}

type Option func(*Handler)

func WithLogger(l *logger.Logger) Option {
	return func(h *Handler) { h.l = l }
}

// WithHealthCheck sets the probe behind /healthz.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(h *Handler) { h.health = check }
}

// WithMetricsHandler serves metrics at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(store Storage, opts ...Option) *Handler {
	h := &Handler{store: store, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}
	if h.l == nil {
		h.l = logger.Get()
	}
	h.l = h.l.Named("api")

	h.mux.HandleFunc("PUT /buckets/{bucket}", h.createBucket)
	h.mux.HandleFunc("POST /buckets/{bucket}/objects", h.uploadObject)
	h.mux.HandleFunc("PUT /buckets/{bucket}/objects/{key...}", h.putObject)
	h.mux.HandleFunc("GET /buckets/{bucket}/objects/{key...}", h.getObject)
	h.mux.HandleFunc("HEAD /buckets/{bucket}/objects/{key...}", h.headObject)
	h.mux.HandleFunc("DELETE /buckets/{bucket}/objects/{key...}", h.deleteObject)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec)
			h.writeError(w, r, fmt.Errorf("panic: %v", rec))
		}
	}()
	rl := h.l.With(zap.String("method", r.Method), zap.String("path", r.URL.Path))
	h.mux.ServeHTTP(w, r.WithContext(logger.IntoContext(r.Context(), rl)))
}

func objectRef(r *http.Request) storage.ObjectRef {
	return storage.ObjectRef{
		Bucket:    r.PathValue("bucket"),
		Key:       r.PathValue("key"),
		VersionID: r.URL.Query().Get("version"),
	}
}

func (h *Handler) createBucket(w http.ResponseWriter, r *http.Request) {
	versioning := false
	if raw := r.URL.Query().Get("versioning"); raw != "" {
		var err error
		if versioning, err = strconv.ParseBool(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "versioning must be a boolean"})
			return
		}
	}
	res, err := h.store.CreateBucket(r.Context(), r.PathValue("bucket"), versioning)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res.Status, res)
}

func (h *Handler) putObject(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	res, err := h.store.PutObject(r.Context(), r.PathValue("bucket"), r.PathValue("key"), r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res.Status, res)
}

// uploadObject stores the multipart "file" field under its filename.
func (h *Handler) uploadObject(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "expected a multipart/form-data upload"})
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: fmt.Sprintf("missing %q field", uploadField)})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "malformed multipart body"})
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		res, err := h.store.PutObject(r.Context(), r.PathValue("bucket"), part.FileName(), part, partContentType(part.Header.Get("Content-Type")))
		part.Close()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, res.Status, res)
		return
	}
}

func partContentType(header string) string {
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mediaType
}

func (h *Handler) getObject(w http.ResponseWriter, r *http.Request) {
	obj, err := h.store.GetObject(r.Context(), objectRef(r), r.URL.Query().Get("filename"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer obj.Close()

	header := w.Header()
	header.Set("Content-Type", obj.ContentType)
	header.Set("Content-Disposition", obj.ContentDisposition)
	if obj.ContentLength > 0 {
		header.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	if obj.VersionID != "" {
		header.Set(VersionHeader, obj.VersionID)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		// Headers are already sent; the client sees a short body.
		logger.FromContext(r.Context()).WarnWithFields("Failed to stream object",
			zap.String("bucket", r.PathValue("bucket")),
			zap.String("key", r.PathValue("key")),
			zap.Error(err))
	}
}

func (h *Handler) headObject(w http.ResponseWriter, r *http.Request) {
	exists, err := h.store.ObjectExists(r.Context(), objectRef(r))
	if err != nil {
		status, _ := storage.StatusOf(err)
		w.WriteHeader(status)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteObject(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.DeleteObject(r.Context(), objectRef(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res.Status, res)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := storage.StatusOf(err)
	l := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		l.ErrorWithFields("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		l.DebugWithFields("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
