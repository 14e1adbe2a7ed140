package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/bacalhau-project/fridge/pkg/logger"
	"github.com/bacalhau-project/fridge/pkg/metrics"
	awsinterfaces "github.com/bacalhau-project/fridge/pkg/models/interfaces/aws"
)

// MaxBootstrapAttempts bounds the exchanges tried while constructing a Manager.
const MaxBootstrapAttempts = 5

// ClientFactory builds the backend client for a set of credentials.
type ClientFactory func(creds Credentials) (awsinterfaces.S3Clienter, error)

// Options configures a Manager. Static takes precedence over the token exchange.
type Options struct {
	Tokens    TokenSource
	Exchanger Exchanger
	Factory   ClientFactory
	Static    *Credentials

	// RetryInterval is the initial delay of the exponential backoff between bootstrap
	// attempts. Zero retries immediately.
	RetryInterval time.Duration

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// session is the unit swapped on refresh.
type session struct {
	creds       Credentials
	client      awsinterfaces.S3Clienter
	fingerprint string
	issuedAt    time.Time
}

// Manager owns the active credentials, the backend client built from them and the token
// fingerprint that produced them.
type Manager struct {
	tokens    TokenSource
	exchanger Exchanger
	factory   ClientFactory
	static    bool

	current   atomic.Pointer[session]
	state     atomic.Int32
	refreshMu sync.Mutex

	l       *logger.Logger
	metrics *metrics.Metrics
}

// NewManager performs the bootstrap exchange (or adopts static keys) and returns a ready
// Manager. When every bootstrap attempt fails it returns an *AuthError and no Manager.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	l := opts.Logger
	if l == nil {
		l = logger.Get()
	}

	m := &Manager{
		tokens:    opts.Tokens,
		exchanger: opts.Exchanger,
		factory:   opts.Factory,
		l:         l.Named("credentials"),
		metrics:   opts.Metrics,
	}

	if opts.Static != nil && opts.Static.Valid() {
		client, err := m.factory(*opts.Static)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		m.static = true
		m.current.Store(&session{creds: *opts.Static, client: client, issuedAt: time.Now()})
		m.state.Store(int32(StateReady))
		m.l.InfoWithFields("Configured storage client with static credentials",
			zap.String("access_key", logger.MaskString(opts.Static.AccessKeyID)))
		return m, nil
	}

	if m.tokens == nil || m.exchanger == nil {
		return nil, fmt.Errorf("token source and exchanger are required without static credentials")
	}

	if err := m.bootstrap(ctx, opts.RetryInterval); err != nil {
		return nil, err
	}
	return m, nil
}

func bootstrapBackOff(interval time.Duration) backoff.BackOff {
	if interval <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 30 * interval
	// The attempt count is the bound, not the elapsed time.
	b.MaxElapsedTime = 0
	return b
}

func (m *Manager) bootstrap(ctx context.Context, interval time.Duration) error {
	attempt := 0
	operation := func() error {
		attempt++
		m.l.Infof("Attempting storage authentication with STS (attempt %d/%d)", attempt, MaxBootstrapAttempts)
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		token, err := m.tokens.Read()
		if err != nil {
			return err
		}
		s, err := m.issue(ctx, token)
		if err != nil {
			return err
		}
		m.current.Store(s)
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(bootstrapBackOff(interval), MaxBootstrapAttempts-1),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		m.l.WarnWithFields("Failed to get keys for storage client",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		m.l.ErrorWithFields("Failed to initialise storage client",
			zap.Int("attempts", attempt),
			zap.Error(err))
		authErr := &AuthError{
			Message: fmt.Sprintf("failed to obtain storage credentials after %d attempts", attempt),
			Err:     err,
		}
		var inner *AuthError
		if errors.As(err, &inner) {
			authErr.StatusCode = inner.StatusCode
			authErr.Body = inner.Body
		}
		return authErr
	}

	m.state.Store(int32(StateReady))
	m.l.Info("Successfully configured storage client")
	return nil
}

// issue exchanges token and builds the session that would replace the current one.
func (m *Manager) issue(ctx context.Context, token string) (*session, error) {
	start := time.Now()
	creds, err := m.exchanger.Exchange(ctx, token)
	m.metrics.ObserveExchange(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	client, err := m.factory(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &session{
		creds:       creds,
		client:      client,
		fingerprint: token,
		issuedAt:    time.Now(),
	}, nil
}

// EnsureValid refreshes the credentials when the identity token has rotated since they
// were issued. It is cheap when nothing changed and safe to call before every operation.
// Only the caller that performed a failed refresh sees the *RefreshError.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if m.static {
		return nil
	}
	if !m.tokenChanged() {
		return nil
	}
	return m.refresh(ctx)
}

// tokenChanged compares the on-disk token with the fingerprint. An unreadable token
// counts as unchanged so the current credentials keep being used.
func (m *Manager) tokenChanged() bool {
	token, err := m.tokens.Read()
	if err != nil {
		m.l.WarnWithFields("Error reading identity token", zap.Error(err))
		return false
	}
	return token != m.current.Load().fingerprint
}

func (m *Manager) refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while this one waited for the lock.
	token, err := m.tokens.Read()
	if err != nil {
		m.l.WarnWithFields("Error reading identity token", zap.Error(err))
		m.metrics.IncRefresh(metrics.RefreshSkipped)
		return nil
	}
	if token == m.current.Load().fingerprint {
		m.metrics.IncRefresh(metrics.RefreshSkipped)
		return nil
	}

	m.state.Store(int32(StateRefreshing))
	defer m.state.Store(int32(StateReady))

	m.l.Info("Refreshing storage client session token")
	s, err := m.issue(ctx, token)
	if err != nil {
		m.metrics.IncRefresh(metrics.RefreshFailed)
		m.l.ErrorWithFields("Failed to refresh storage client token", zap.Error(err))
		return &RefreshError{Err: err}
	}

	m.current.Store(s)
	m.metrics.IncRefresh(metrics.RefreshSucceeded)
	m.l.InfoWithFields("Storage client token refreshed successfully",
		zap.String("access_key", logger.MaskString(s.creds.AccessKeyID)))
	return nil
}

// Client returns the backend client built from the current credentials.
func (m *Manager) Client() awsinterfaces.S3Clienter {
	return m.current.Load().client
}

func (m *Manager) Credentials() Credentials {
	return m.current.Load().creds
}

// Fingerprint is the identity token the current credentials were issued for. Empty for
// static credentials.
func (m *Manager) Fingerprint() string {
	return m.current.Load().fingerprint
}

func (m *Manager) IssuedAt() time.Time {
	return m.current.Load().issuedAt
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) Static() bool {
	return m.static
}
