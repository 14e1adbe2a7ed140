package testutil

import (
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/bacalhau-project/fridge/internal/testdata"
)

// GetTestViper returns a viper instance loaded from the shared test configuration.
func GetTestViper() (*viper.Viper, error) {
	testConfig := viper.New()
	configFile, cleanup, err := WriteStringToTempFileWithExtension(testdata.TestConfig, ".yaml")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	testConfig.SetConfigType("yaml")
	testConfig.SetConfigFile(configFile)
	if err := testConfig.ReadInConfig(); err != nil {
		return nil, err
	}
	return testConfig, nil
}

// WriteStringToTempFileWithExtension writes content to a temp file whose name ends in
// extension and returns the file path and a cleanup function.
func WriteStringToTempFileWithExtension(content string, extension string) (string, func(), error) {
	tempFile, err := os.CreateTemp("", "temp-*"+extension)
	if err != nil {
		return "", nil, err
	}

	if _, err := tempFile.WriteString(content); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", nil, err
	}

	tempFile.Close()

	cleanup := func() {
		os.Remove(tempFile.Name())
	}

	return tempFile.Name(), cleanup, nil
}

// WriteTokenFile writes an identity token file under the test's temp dir.
func WriteTokenFile(t *testing.T, token string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	RotateToken(t, path, token)
	return path
}

// RotateToken replaces the token file content the way a projected volume update does.
func RotateToken(t *testing.T, path, token string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(token+"\n"), 0600))
	require.NoError(t, os.Rename(tmp, path))
}

// WriteServerCA writes the certificate of a TLS httptest server as a PEM bundle so it
// can be used as the only trusted root.
func WriteServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	require.NotNil(t, srv.Certificate(), "server is not serving TLS")
	path := filepath.Join(t.TempDir(), "ca.crt")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}
