package table

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/bacalhau-project/fridge/pkg/storage"
)

func TestResultTable(t *testing.T) {
	var buf bytes.Buffer
	rt := NewResultTable(&buf)

	rt.AddResult("model.pt", &storage.Result{
		Status:   http.StatusCreated,
		Response: "https://minio:9000/artifacts/model.pt",
		Version:  "v000001",
	}, nil)
	rt.AddResult("absent.bin", nil, &storage.NotFoundError{Code: "NoSuchKey", Message: "The specified key does not exist."})
	rt.Render()

	output := buf.String()
	assert.Contains(t, output, "TARGET")
	assert.Contains(t, output, "https://minio:9000/artifacts/model.pt")
	assert.Contains(t, output, "v000001")
	assert.Contains(t, output, "404")
	assert.Contains(t, output, "The specified key does not exist.")
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf)
	kv.Add("state", "READY")
	kv.Render()

	assert.Contains(t, buf.String(), "READY")
	assert.Contains(t, buf.String(), "FIELD")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := strings.Repeat("x", 20)
	assert.Equal(t, "xxxxxxx...", truncate(long, 10))

	got := truncate(strings.Repeat("é", 20), 10)
	assert.Equal(t, strings.Repeat("é", 7)+"...", got)
	assert.True(t, utf8.ValidString(got))
}
