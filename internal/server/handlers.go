// Package server exposes the HTTP handlers: the chat page, the publish
// endpoint, the sample text/JSON/echo responses, health and static files.
package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"unicode/utf8"
)

//go:embed assets/chat.html
var chatPage []byte

// formOverhead allows for field names and separators when bounding a
// publish request body.
const formOverhead = 1024

// ChatPageHandler serves the browser chat client.
func ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(chatPage)
}

// TextHandler responds with a plain text greeting.
func TextHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "hi")
}

// JSONHandler responds with a fixed JSON document.
func JSONHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SampleResponse{Text: "hi", Numbers: []int{1, 2, 3}})
}

// EchoHandler reflects the input query parameter back in several forms.
// A missing input is treated as the empty string.
func EchoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, echo(r.URL.Query().Get("input")))
}

func echo(input string) EchoResponse {
	return EchoResponse{
		Normal:    input,
		Shouty:    strings.ToUpper(input),
		CharCount: utf8.RuneCountInString(input),
		Backwards: reverse(input),
	}
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// NotFoundHandler responds with a plain text 404.
func NotFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = fmt.Fprint(w, "Not Found")
}

// HealthHandler reports liveness and the number of attached subscribers.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ssechat is running (%d subscribers)", s.hub.Len())
}

// ChatHandler publishes the message query or form parameter to every
// subscriber. The response carries no body.
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	key := clientKey(r)
	if !s.limiters.allow(key) {
		s.log.Warn().Str("client", key).
			Int("burst", s.cfg.RateLimit.Burst).
			Dur("interval", s.cfg.RateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding message")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 3*s.cfg.MaxMessageSize+formOverhead)
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	if !r.Form.Has("message") {
		http.Error(w, "missing message parameter", http.StatusBadRequest)
		return
	}

	message := r.Form.Get("message")
	if int64(len(message)) > s.cfg.MaxMessageSize {
		s.log.Warn().Str("client", key).Int("size", len(message)).Int64("max", s.cfg.MaxMessageSize).Msg("message exceeds maximum size")
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}

	s.hub.Publish(message)
	w.WriteHeader(http.StatusOK)
}

// staticHandler serves files from the configured static directory and falls
// back to NotFoundHandler for anything it cannot serve.
func (s *Server) staticHandler() http.Handler {
	if s.cfg.StaticDir == "" {
		return http.HandlerFunc(NotFoundHandler)
	}
	fsys := os.DirFS(s.cfg.StaticDir)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			NotFoundHandler(w, r)
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" || !fs.ValidPath(name) {
			NotFoundHandler(w, r)
			return
		}

		info, err := fs.Stat(fsys, name)
		if err != nil || info.IsDir() {
			NotFoundHandler(w, r)
			return
		}

		http.ServeFileFS(w, r, fsys, name)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
