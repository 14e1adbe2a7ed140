// Package config loads fridge settings from a config file, a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/bacalhau-project/fridge/pkg/logger"
)

const (
	EnvPrefix = "FRIDGE"

	ModeMinIO = "minio"
	ModeAWS   = "aws"

	DefaultTokenPath  = "/minio/token"
	DefaultCACertFile = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"
	DefaultListen     = ":8000"
)

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Secure    bool   `mapstructure:"secure"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type STSConfig struct {
	Mode          string        `mapstructure:"mode"`
	Endpoint      string        `mapstructure:"endpoint"`
	Tenant        string        `mapstructure:"tenant"`
	RoleARN       string        `mapstructure:"role_arn"`
	TokenPath     string        `mapstructure:"token_path"`
	CACertFile    string        `mapstructure:"ca_cert_file"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	STS     STSConfig     `mapstructure:"sts"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     logger.Config `mapstructure:"general"`
}

// envBindings keeps the environment names used by existing deployments working next to
// the FRIDGE_ prefixed ones.
var envBindings = map[string]string{
	"sts.token_path":     "MINIO_SA_TOKEN_PATH",
	"sts.ca_cert_file":   "STS_CA_CERT_FILE",
	"sts.endpoint":       "MINIO_STS_ENDPOINT",
	"sts.tenant":         "MINIO_TENANT",
	"storage.endpoint":   "MINIO_ENDPOINT",
	"storage.access_key": "MINIO_ACCESS_KEY",
	"storage.secret_key": "MINIO_SECRET_KEY",
	"storage.secure":     "MINIO_SECURE",
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.secure", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")

	v.SetDefault("sts.mode", ModeMinIO)
	v.SetDefault("sts.endpoint", "")
	v.SetDefault("sts.tenant", "")
	v.SetDefault("sts.role_arn", "")
	v.SetDefault("sts.token_path", DefaultTokenPath)
	v.SetDefault("sts.ca_cert_file", DefaultCACertFile)
	v.SetDefault("sts.timeout", 10*time.Second)
	v.SetDefault("sts.retry_interval", time.Duration(0))

	v.SetDefault("server.listen", DefaultListen)

	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_path", "")
	v.SetDefault("general.log_format", "console")
	v.SetDefault("general.with_trace", false)
	v.SetDefault("general.enable_console_logger", true)
}

// BindEnv enables FRIDGE_SECTION_KEY variables and the legacy names in envBindings.
// A FRIDGE_ variable wins over its legacy name.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range envBindings {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// LoadDotEnv loads path into the process environment without overriding variables that
// are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	if err := godotenv.Load(expanded); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", expanded, err)
	}
	return nil
}

// Load decodes v into a Config, expands ~ in file paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.STS.Mode = strings.ToLower(strings.TrimSpace(cfg.STS.Mode))

	for _, p := range []*string{&cfg.STS.TokenPath, &cfg.STS.CACertFile, &cfg.Log.FilePath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HasStaticKeys reports whether both halves of a static key pair are configured, in
// which case no token exchange takes place.
func (c *Config) HasStaticKeys() bool {
	return c.Storage.AccessKey != "" && c.Storage.SecretKey != ""
}

func (c *Config) Validate() error {
	missingFields := []string{}
	if c.Storage.Endpoint == "" {
		missingFields = append(missingFields, "storage.endpoint")
	}

	if !c.HasStaticKeys() {
		switch c.STS.Mode {
		case ModeMinIO:
			if c.STS.Endpoint == "" {
				missingFields = append(missingFields, "sts.endpoint")
			}
			if c.STS.Tenant == "" {
				missingFields = append(missingFields, "sts.tenant")
			}
		case ModeAWS:
			if c.STS.RoleARN == "" {
				missingFields = append(missingFields, "sts.role_arn")
			}
		default:
			return fmt.Errorf("invalid sts.mode %q: must be %q or %q", c.STS.Mode, ModeMinIO, ModeAWS)
		}
		if c.STS.TokenPath == "" {
			missingFields = append(missingFields, "sts.token_path")
		}
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missingFields, ", "))
	}
	if c.STS.Timeout < 0 || c.STS.RetryInterval < 0 {
		return fmt.Errorf("sts.timeout and sts.retry_interval must not be negative")
	}
	return nil
}
