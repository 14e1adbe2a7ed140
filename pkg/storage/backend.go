package storage

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bacalhau-project/fridge/pkg/credentials"
	awsinterfaces "github.com/bacalhau-project/fridge/pkg/models/interfaces/aws"
)

const DefaultRegion = "us-east-1"

// BackendConfig describes the S3-compatible endpoint.
type BackendConfig struct {
	// Endpoint is host[:port], without scheme.
	Endpoint string
	Region   string
	Secure   bool
	// CACertFile, when set, replaces the system roots for TLS to the endpoint.
	CACertFile string
}

// EndpointURL returns the base URL for endpoint. An endpoint that already carries a
// scheme is returned unchanged.
func EndpointURL(endpoint string, secure bool) string {
	if strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/")
	}
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, strings.TrimRight(endpoint, "/"))
}

// NewS3ClientFactory returns a factory that builds path-style S3 clients for cfg. The CA
// bundle is loaded once; every client built by the factory shares it.
func NewS3ClientFactory(cfg BackendConfig) (credentials.ClientFactory, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	httpClient := awshttp.NewBuildableClient()
	if cfg.Secure && cfg.CACertFile != "" {
		pool, err := credentials.LoadCertPool(cfg.CACertFile)
		if err != nil {
			return nil, err
		}
		httpClient = httpClient.WithTransportOptions(func(tr *http.Transport) {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
			tr.TLSClientConfig.RootCAs = pool
		})
	}

	baseEndpoint := EndpointURL(cfg.Endpoint, cfg.Secure)
	return func(creds credentials.Credentials) (awsinterfaces.S3Clienter, error) {
		if !creds.Valid() {
			return nil, credentials.ErrMissingCredentials
		}
		awsCfg := aws.Config{
			Region:      region,
			HTTPClient:  httpClient,
			Credentials: awscreds.StaticCredentialsProvider{Value: creds.AWS()},
		}
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(baseEndpoint)
			o.UsePathStyle = true
		}), nil
	}, nil
}
