// Package server implements the HTTP layer of the chat service.
//
// It maps one inbound request to a hub publish (/chat) and long-lived requests
// to hub subscriptions streamed back as Server-Sent Events (/sse) or WebSocket
// frames (/ws). The remaining endpoints are stateless. The implementation is
// organized into specialized files for configuration, streaming, clients,
// routing, middleware and HTTP handlers.
package server
