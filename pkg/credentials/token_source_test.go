package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bacalhau-project/fridge/internal/testutil"
)

func TestFileTokenSourceRead(t *testing.T) {
	path := testutil.WriteTokenFile(t, "  eyJhbGciOi.first  ")
	src := NewFileTokenSource(path)

	token, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.first", token)

	testutil.RotateToken(t, path, "eyJhbGciOi.second")
	token, err = src.Read()
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.second", token, "rotated token should be read without caching")
}

func TestFileTokenSourceErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		src := NewFileTokenSource(filepath.Join(t.TempDir(), "absent"))
		_, err := src.Read()
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("whitespace only", func(t *testing.T) {
		path := testutil.WriteTokenFile(t, " \n\t ")
		_, err := NewFileTokenSource(path).Read()
		assert.ErrorIs(t, err, ErrEmptyToken)
	})
}
