package credentials

import (
	"fmt"
	"os"
	"strings"
)

// TokenSource yields the current identity token.
type TokenSource interface {
	Read() (string, error)
}

// FileTokenSource reads a token file mounted by the orchestrator. The file is read on
// every call so a rotated token is picked up immediately.
type FileTokenSource struct {
	Path string
}

func NewFileTokenSource(path string) *FileTokenSource {
	return &FileTokenSource{Path: path}
}

func (f *FileTokenSource) Read() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read identity token from %s: %w", f.Path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyToken, f.Path)
	}
	return token, nil
}
