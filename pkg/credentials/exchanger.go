package credentials

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	stsAction    = "AssumeRoleWithWebIdentity"
	stsVersion   = "2011-06-15"
	stsNamespace = "https://sts.amazonaws.com/doc/2011-06-15/"

	DefaultExchangeTimeout = 10 * time.Second

	// Bodies larger than this are not STS responses; the cap keeps a misbehaving
	// endpoint from exhausting memory.
	maxResponseBytes = 1 << 20
)

// Exchanger trades an identity token for storage credentials.
type Exchanger interface {
	Exchange(ctx context.Context, token string) (Credentials, error)
}

// HTTPExchangerConfig configures the MinIO-style STS exchanger.
type HTTPExchangerConfig struct {
	// Endpoint is the base URL of the STS service, e.g. https://minio-sts.minio-operator:4223.
	Endpoint string
	// Tenant is appended as /sts/{tenant}.
	Tenant string
	// CACertFile is a PEM bundle used as the only trusted roots. Empty means system roots.
	CACertFile string
	Timeout    time.Duration
}

// HTTPExchanger performs AssumeRoleWithWebIdentity against an STS endpoint that takes the
// web identity token as a query parameter.
type HTTPExchanger struct {
	url    *url.URL
	client *http.Client
}

func NewHTTPExchanger(cfg HTTPExchangerConfig) (*HTTPExchanger, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("STS endpoint is required")
	}
	if cfg.Tenant == "" {
		return nil, fmt.Errorf("STS tenant is required")
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid STS endpoint %q: %w", cfg.Endpoint, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid STS endpoint %q: scheme and host are required", cfg.Endpoint)
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACertFile != "" {
		pool, err := LoadCertPool(cfg.CACertFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &HTTPExchanger{
		url:    base.JoinPath("sts", cfg.Tenant),
		client: &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// LoadCertPool reads a PEM bundle into a pool suitable for tls.Config.RootCAs.
func LoadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: %s", ErrNoCACerts, path)
	}
	return pool, nil
}

// Exchange implements [Exchanger].
func (e *HTTPExchanger) Exchange(ctx context.Context, token string) (Credentials, error) {
	u := *e.url
	q := url.Values{}
	q.Set("Action", stsAction)
	q.Set("Version", stsVersion)
	q.Set("WebIdentityToken", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return Credentials{}, &AuthError{Message: "failed to build STS request", Err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Credentials{}, &AuthError{Message: "STS request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Credentials{}, &AuthError{
			StatusCode: resp.StatusCode,
			Message:    "failed to read STS response",
			Err:        err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, &AuthError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			Message:    "STS request failed",
		}
	}

	creds, err := parseCredentials(body)
	if err != nil {
		return Credentials{}, &AuthError{
			StatusCode: resp.StatusCode,
			Message:    "invalid STS response",
			Err:        err,
		}
	}
	return creds, nil
}

type stsCredentials struct {
	AccessKeyID     string `xml:"https://sts.amazonaws.com/doc/2011-06-15/ AccessKeyId"`
	SecretAccessKey string `xml:"https://sts.amazonaws.com/doc/2011-06-15/ SecretAccessKey"`
	SessionToken    string `xml:"https://sts.amazonaws.com/doc/2011-06-15/ SessionToken"`
	Expiration      string `xml:"https://sts.amazonaws.com/doc/2011-06-15/ Expiration"`
}

// parseCredentials decodes the first sts:Credentials element found at any depth.
func parseCredentials(body []byte) (Credentials, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return Credentials{}, ErrMissingCredentials
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("malformed STS response: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Space != stsNamespace || start.Name.Local != "Credentials" {
			continue
		}

		var raw stsCredentials
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return Credentials{}, fmt.Errorf("malformed STS credentials: %w", err)
		}

		creds := Credentials{
			AccessKeyID:     strings.TrimSpace(raw.AccessKeyID),
			SecretAccessKey: strings.TrimSpace(raw.SecretAccessKey),
			SessionToken:    strings.TrimSpace(raw.SessionToken),
		}

		var missing []string
		if creds.AccessKeyID == "" {
			missing = append(missing, "AccessKeyId")
		}
		if creds.SecretAccessKey == "" {
			missing = append(missing, "SecretAccessKey")
		}
		if creds.SessionToken == "" {
			missing = append(missing, "SessionToken")
		}
		if len(missing) > 0 {
			return Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
		}

		if raw.Expiration != "" {
			if expires, err := time.Parse(time.RFC3339, strings.TrimSpace(raw.Expiration)); err == nil {
				creds.Expires = expires
			}
		}
		return creds, nil
	}
}
