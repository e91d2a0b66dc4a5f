package server_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/ssechat/internal/server"
	"github.com/Tyrowin/ssechat/test/testhelpers"
)

const waitTimeout = 2 * time.Second

// newTestServer starts the full handler stack on an httptest server. The
// default rate limit is raised so tests can publish freely.
func newTestServer(t *testing.T, mutate func(*server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.RateLimit.Burst = 1000
	if mutate != nil {
		mutate(cfg)
	}

	srv := server.New(cfg, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(waitTimeout)
		ts.Close()
	})
	return srv, ts
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func publish(t *testing.T, baseURL, message string) {
	t.Helper()
	resp := testhelpers.MakeRequest(t, http.MethodGet, baseURL+"/chat?message="+url.QueryEscape(message))
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	srv := server.New(nil, zerolog.Nop())
	assert.Equal(t, ":3000", srv.Config().Port)
	assert.Equal(t, 0, srv.Hub().Len())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	cfg := server.NewConfig()
	cfg.Port = "127.0.0.1:0"
	srv := server.New(cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_RunReportsListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := server.NewConfig()
	cfg.Port = l.Addr().String()
	srv := server.New(cfg, zerolog.Nop())

	err = srv.Run(context.Background())
	assert.Error(t, err)
}

func TestServer_ShutdownWithoutRun(t *testing.T) {
	srv := server.New(nil, zerolog.Nop())
	srv.Hub().Open(1)

	require.NoError(t, srv.Shutdown(time.Second))
	assert.Equal(t, 0, srv.Hub().Len())
}

func TestHandler_HealthReportsSubscribers(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sub := srv.Hub().Open(1)
	defer sub.Close()

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/health")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")
	assert.Contains(t, readBody(t, resp), "(1 subscribers)")
}

func TestHandler_RequestIDHeader(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/text")
	assert.NotEmpty(t, strings.TrimSpace(resp.Header.Get("X-Request-Id")))
}
