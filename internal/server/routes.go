// Package server wires HTTP handlers into a ServeMux for the chat service.
package server

import "net/http"

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", ChatPageHandler)
	mux.HandleFunc("GET /text", TextHandler)
	mux.HandleFunc("GET /json", JSONHandler)
	mux.HandleFunc("GET /echo", EchoHandler)
	mux.HandleFunc("GET /chat", s.ChatHandler)
	mux.HandleFunc("POST /chat", s.ChatHandler)
	mux.HandleFunc("GET /sse", s.StreamHandler)
	mux.HandleFunc("GET /ws", s.WebSocketHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.Handle("/", s.staticHandler())
	return mux
}
