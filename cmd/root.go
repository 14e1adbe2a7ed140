package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bacalhau-project/fridge/pkg/config"
	"github.com/bacalhau-project/fridge/pkg/credentials"
	"github.com/bacalhau-project/fridge/pkg/logger"
	"github.com/bacalhau-project/fridge/pkg/metrics"
	"github.com/bacalhau-project/fridge/pkg/storage"
)

var VersionNumber = "v0.0.1-alpha"

// app carries what the subcommands share once the configuration is loaded.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	cfg      *config.Config
	l        *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// newFactory builds the backend client factory; replaced in tests.
	newFactory func(storage.BackendConfig) (credentials.ClientFactory, error)
	// exit terminates the process after an unrecoverable bootstrap failure.
	exit func(code int)
}

func newApp() *app {
	return &app{
		v:          viper.New(),
		newFactory: storage.NewS3ClientFactory,
		exit:       os.Exit,
	}
}

// Execute runs the fridge command line.
func Execute() error {
	return newRootCommand(newApp()).Execute()
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fridge",
		Short: "Object storage access with rotating STS credentials",
		Long: `fridge exchanges a mounted identity token for short-lived storage credentials,
refreshes them when the token rotates and performs bucket and object operations
against an S3-compatible backend.`,
		Version:       VersionNumber,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.fridge.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("endpoint", "", "storage endpoint host:port")
	cobra.CheckErr(bindFlags(a.v, flags, map[string]string{
		"log-level": "general.log_level",
		"endpoint":  "storage.endpoint",
	}))

	rootCmd.AddCommand(
		newServeCmd(a),
		newBucketCmd(a),
		newObjectCmd(a),
		newCredentialsCmd(a),
	)
	return rootCmd
}

// bindFlags binds each named flag to a viper key so a set flag overrides file and env.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// initConfig reads in config file and ENV variables if set.
func (a *app) initConfig() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	config.SetDefaults(a.v)
	if err := config.BindEnv(a.v); err != nil {
		return err
	}

	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return err
		}
		a.v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return err
		}
		a.v.AddConfigPath(home)
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".fridge")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || a.cfgFile != "" {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Initialize(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.l = logger.Get()
	if used := a.v.ConfigFileUsed(); used != "" {
		a.l.Debugf("Using config file: %s", used)
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	return nil
}
