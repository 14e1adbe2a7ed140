package storage

import "io"

// Result is the descriptor returned by mutating operations.
type Result struct {
	Status   int    `json:"status"`
	Response string `json:"response"`
	Version  string `json:"version,omitempty"`
}

type Bucket struct {
	Name              string
	VersioningEnabled bool
}

// ObjectRef addresses an object, optionally at a specific version.
type ObjectRef struct {
	Bucket    string
	Key       string
	VersionID string
}

// Object is an open download. Body is read once and must be closed by the caller.
type Object struct {
	Body               io.ReadCloser
	ContentType        string
	ContentLength      int64
	ContentDisposition string
	VersionID          string
}

func (o *Object) Close() error {
	if o == nil || o.Body == nil {
		return nil
	}
	return o.Body.Close()
}
