package server_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/ssechat/internal/server"
	"github.com/Tyrowin/ssechat/test/testhelpers"
)

func TestTextHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/text")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")
	assert.Equal(t, "hi", readBody(t, resp))
}

func TestJSONHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/json")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")

	var got server.SampleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, server.SampleResponse{Text: "hi", Numbers: []int{1, 2, 3}}, got)
}

func TestEchoHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name  string
		query string
		want  server.EchoResponse
	}{
		{
			name:  "ascii",
			query: "?input=hello",
			want:  server.EchoResponse{Normal: "hello", Shouty: "HELLO", CharCount: 5, Backwards: "olleh"},
		},
		{
			name:  "multibyte",
			query: "?input=" + url.QueryEscape("héllo"),
			want:  server.EchoResponse{Normal: "héllo", Shouty: "HÉLLO", CharCount: 5, Backwards: "olléh"},
		},
		{
			name:  "missing input",
			query: "",
			want:  server.EchoResponse{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/echo"+tt.query)
			testhelpers.AssertStatusCode(t, resp, http.StatusOK)

			var got server.EchoResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChatPageHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/html; charset=utf-8")
	assert.Contains(t, readBody(t, resp), "new EventSource('/sse')")
}

func TestNotFound(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for _, path := range []string{"/nope", "/chat/extra", "/public/app.js"} {
		resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+path)
		testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
		testhelpers.AssertContentType(t, resp, "text/plain")
		assert.Equal(t, "Not Found", readBody(t, resp))
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("static hello"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	_, ts := newTestServer(t, func(cfg *server.Config) {
		cfg.StaticDir = dir
	})

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/hello.txt")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, "static hello", readBody(t, resp))

	resp = testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/missing.txt")
	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)

	resp = testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/sub")
	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)

	resp = testhelpers.MakeRequest(t, http.MethodDelete, ts.URL+"/hello.txt")
	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
}

func TestChatHandler_Validation(t *testing.T) {
	srv, ts := newTestServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 8
	})
	sub := srv.Hub().Open(4)
	defer sub.Close()

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/chat")
	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)

	resp = testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/chat?message=way+too+long+for+this")
	testhelpers.AssertStatusCode(t, resp, http.StatusRequestEntityTooLarge)

	assert.Empty(t, sub.Messages(), "rejected messages must not be published")

	resp = testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/chat?message=")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.Len(t, sub.Messages(), 1)
}

func TestChatHandler_Post(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sub := srv.Hub().Open(4)
	defer sub.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/x-www-form-urlencoded", strings.NewReader("message=posted"))
	require.NoError(t, err)
	defer resp.Body.Close()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	msg := <-sub.Messages()
	assert.Equal(t, "posted", msg.Text)
}

func TestChatHandler_RateLimit(t *testing.T) {
	srv, ts := newTestServer(t, func(cfg *server.Config) {
		cfg.RateLimit.Burst = 2
		cfg.RateLimit.RefillInterval = 1 << 40
	})
	sub := srv.Hub().Open(4)
	defer sub.Close()

	publish(t, ts.URL, "one")
	publish(t, ts.URL, "two")

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/chat?message=three")
	testhelpers.AssertStatusCode(t, resp, http.StatusTooManyRequests)
	assert.Len(t, sub.Messages(), 2)
}
