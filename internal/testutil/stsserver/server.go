// Package stsserver runs an in-process TLS STS endpoint that speaks the
// AssumeRoleWithWebIdentity query API.
package stsserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bacalhau-project/fridge/internal/testdata"
	"github.com/bacalhau-project/fridge/internal/testutil"
)

type Server struct {
	*httptest.Server
	// CAFile trusts exactly this server's certificate.
	CAFile string
	Tenant string

	mu          sync.Mutex
	calls       int
	tokens      []string
	failures    int
	failStatus  int
	gate        chan struct{}
	lastRequest *http.Request
}

// New starts a server for tenant and registers its shutdown with t.
func New(t *testing.T, tenant string) *Server {
	t.Helper()
	s := &Server{Tenant: tenant}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	s.CAFile = testutil.WriteServerCA(t, s.Server)
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	gate := s.gate
	s.lastRequest = r.Clone(r.Context())
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	status := s.failStatus
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if r.Method != http.MethodPost || r.URL.Path != "/sts/"+s.Tenant {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	if q.Get("Action") != "AssumeRoleWithWebIdentity" || q.Get("Version") != "2011-06-15" {
		http.Error(w, "bad action", http.StatusBadRequest)
		return
	}

	if fail {
		w.WriteHeader(status)
		fmt.Fprint(w, testdata.STSErrorResponse)
		return
	}

	token := q.Get("WebIdentityToken")
	s.mu.Lock()
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, testdata.STSCredentialsResponse(
		"AK-"+token,
		"SK-"+token,
		fmt.Sprintf("ST-%s-%d", token, call),
	))
}

// FailNext makes the next n exchanges answer with status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failStatus = status
}

// Hold makes exchanges block until the returned release func is called.
func (s *Server) Hold() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls is the number of requests received, failed ones included.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Tokens lists the identity tokens of successful exchanges in order.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

func (s *Server) LastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequest
}
