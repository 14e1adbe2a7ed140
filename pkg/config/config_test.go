package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bacalhau-project/fridge/internal/testdata"
	"github.com/bacalhau-project/fridge/internal/testutil"
)

func newViper(t *testing.T, content string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	if content != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	}
	return v
}

func TestLoadConfigFile(t *testing.T) {
	v, err := testutil.GetTestViper()
	require.NoError(t, err)
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, StorageConfig{
		Endpoint: "minio.fridge.svc:9000",
		Secure:   true,
		Region:   "eu-west-2",
	}, cfg.Storage)
	want := STSConfig{
		Mode:          ModeMinIO,
		Endpoint:      "https://sts.minio-operator.svc:4223",
		Tenant:        "argo-artifacts",
		TokenPath:     "/var/run/secrets/fridge/token",
		CACertFile:    DefaultCACertFile,
		Timeout:       5 * time.Second,
		RetryInterval: 250 * time.Millisecond,
	}
	if diff := cmp.Diff(want, cfg.STS); diff != "" {
		t.Errorf("unexpected sts config (-want +got):\n%s", diff)
	}
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.EnableConsole)
	assert.False(t, cfg.HasStaticKeys())
}

func TestLoadDefaults(t *testing.T) {
	v := newViper(t, "storage:\n  access_key: a\n  secret_key: b\n  endpoint: minio:9000\n")
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.Equal(t, ModeMinIO, cfg.STS.Mode)
	assert.Equal(t, DefaultTokenPath, cfg.STS.TokenPath)
	assert.Equal(t, DefaultCACertFile, cfg.STS.CACertFile)
	assert.Equal(t, 10*time.Second, cfg.STS.Timeout)
	assert.Zero(t, cfg.STS.RetryInterval)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.EnableConsole)
}

func TestLoadStaticConfig(t *testing.T) {
	cfg, err := Load(newViper(t, testdata.TestStaticConfig))
	require.NoError(t, err)
	assert.True(t, cfg.HasStaticKeys())
	assert.Equal(t, "localhost:9000", cfg.Storage.Endpoint)
}

func TestLegacyEnvironmentNames(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "minio.legacy:9000")
	t.Setenv("MINIO_STS_ENDPOINT", "https://sts.legacy:4223")
	t.Setenv("MINIO_TENANT", "legacy-tenant")
	t.Setenv("MINIO_SA_TOKEN_PATH", "/legacy/token")
	t.Setenv("STS_CA_CERT_FILE", "/legacy/ca.crt")
	t.Setenv("MINIO_SECURE", "true")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "minio.legacy:9000", cfg.Storage.Endpoint)
	assert.True(t, cfg.Storage.Secure)
	assert.Equal(t, "https://sts.legacy:4223", cfg.STS.Endpoint)
	assert.Equal(t, "legacy-tenant", cfg.STS.Tenant)
	assert.Equal(t, "/legacy/token", cfg.STS.TokenPath)
	assert.Equal(t, "/legacy/ca.crt", cfg.STS.CACertFile)
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "minio.legacy:9000")
	t.Setenv("FRIDGE_STORAGE_ENDPOINT", "minio.current:9000")
	t.Setenv("FRIDGE_SERVER_LISTEN", ":9999")
	t.Setenv("FRIDGE_STS_RETRY_INTERVAL", "2s")

	cfg, err := Load(newViper(t, testdata.TestConfig))
	require.NoError(t, err)

	assert.Equal(t, "minio.current:9000", cfg.Storage.Endpoint)
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.Equal(t, 2*time.Second, cfg.STS.RetryInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "nothing configured",
			content: "",
			wantErr: "missing required fields: storage.endpoint, sts.endpoint, sts.tenant",
		},
		{
			name:    "aws mode needs a role",
			content: "storage:\n  endpoint: s3.amazonaws.com\nsts:\n  mode: AWS\n",
			wantErr: "missing required fields: sts.role_arn",
		},
		{
			name:    "unknown mode",
			content: "storage:\n  endpoint: minio:9000\nsts:\n  mode: vault\n",
			wantErr: `invalid sts.mode "vault"`,
		},
		{
			name:    "half a static key pair still needs sts",
			content: "storage:\n  endpoint: minio:9000\n  access_key: a\n",
			wantErr: "missing required fields: sts.endpoint, sts.tenant",
		},
		{
			name:    "negative timeout",
			content: "storage:\n  endpoint: minio:9000\n  access_key: a\n  secret_key: b\nsts:\n  timeout: -1s\n",
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadExpandsHomeDirectory(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	cfg, err := Load(newViper(t, "storage:\n  endpoint: minio:9000\nsts:\n  endpoint: https://sts:4223\n  tenant: t\n  token_path: ~/fridge/token\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "fridge", "token"), cfg.STS.TokenPath)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MINIO_TENANT=from-dotenv\nMINIO_ENDPOINT=minio.dotenv:9000\n"), 0600))

	// t.Setenv registers the restore; the values are then cleared for godotenv to fill.
	t.Setenv("MINIO_TENANT", "")
	t.Setenv("MINIO_ENDPOINT", "already-set:9000")
	require.NoError(t, os.Unsetenv("MINIO_TENANT"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("MINIO_TENANT"))
	assert.Equal(t, "already-set:9000", os.Getenv("MINIO_ENDPOINT"), "existing variables are not overridden")

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, LoadDotEnv(""))
}
