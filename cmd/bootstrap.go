package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bacalhau-project/fridge/pkg/config"
	"github.com/bacalhau-project/fridge/pkg/credentials"
	"github.com/bacalhau-project/fridge/pkg/storage"
)

// newExchanger builds the token exchanger for the configured STS mode.
func newExchanger(ctx context.Context, cfg *config.Config) (credentials.Exchanger, error) {
	switch cfg.STS.Mode {
	case config.ModeAWS:
		return credentials.NewSTSExchanger(ctx, cfg.Storage.Region, cfg.STS.Endpoint, cfg.STS.RoleARN)
	case config.ModeMinIO:
		return credentials.NewHTTPExchanger(credentials.HTTPExchangerConfig{
			Endpoint:   cfg.STS.Endpoint,
			Tenant:     cfg.STS.Tenant,
			CACertFile: cfg.STS.CACertFile,
			Timeout:    cfg.STS.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported sts.mode %q", cfg.STS.Mode)
	}
}

// newManager constructs the credential manager. An exhausted bootstrap is fatal: the
// process exits before any storage client exists.
func (a *app) newManager(ctx context.Context) (*credentials.Manager, error) {
	cfg := a.cfg
	backend := storage.BackendConfig{
		Endpoint: cfg.Storage.Endpoint,
		Region:   cfg.Storage.Region,
		Secure:   cfg.Storage.Secure,
	}
	opts := credentials.Options{
		RetryInterval: cfg.STS.RetryInterval,
		Logger:        a.l,
		Metrics:       a.metrics,
	}

	if cfg.HasStaticKeys() {
		opts.Static = &credentials.Credentials{
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
		}
	} else {
		// The backend sits behind the same cluster CA as the STS endpoint.
		backend.CACertFile = cfg.STS.CACertFile
		exchanger, err := newExchanger(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts.Exchanger = exchanger
		opts.Tokens = credentials.NewFileTokenSource(cfg.STS.TokenPath)
	}

	factory, err := a.newFactory(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to configure storage backend: %w", err)
	}
	opts.Factory = factory

	mgr, err := credentials.NewManager(ctx, opts)
	if err != nil {
		var authErr *credentials.AuthError
		if errors.As(err, &authErr) {
			a.l.ErrorWithFields("Failed to initialise storage client", zap.Error(err))
			a.exit(1)
		}
		return nil, err
	}
	return mgr, nil
}

// newStorageClient wires a storage client to a freshly bootstrapped manager.
func (a *app) newStorageClient(ctx context.Context) (*storage.Client, *credentials.Manager, error) {
	mgr, err := a.newManager(ctx)
	if err != nil {
		return nil, nil, err
	}
	client := storage.NewClient(
		mgr,
		storage.EndpointURL(a.cfg.Storage.Endpoint, a.cfg.Storage.Secure),
		storage.WithLogger(a.l),
		storage.WithMetrics(a.metrics),
	)
	return client, mgr, nil
}
