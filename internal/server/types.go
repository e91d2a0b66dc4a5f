// Package server defines the wire payloads exchanged with clients and utility
// helpers shared by the stream handlers.
package server

import (
	"strings"
	"time"
)

// Message is the inbound WebSocket payload.
type Message struct {
	Content string `json:"content"`
}

// OutboundMessage is a delivered chat message as sent over WebSocket.
type OutboundMessage struct {
	ID      uint64    `json:"id"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// ConnectedEvent is sent once when a stream subscription is established.
type ConnectedEvent struct {
	SubscriberID string `json:"subscriber_id"`
}

// EchoResponse is the body returned by the echo endpoint.
type EchoResponse struct {
	Normal    string `json:"normal"`
	Shouty    string `json:"shouty"`
	CharCount int    `json:"charCount"`
	Backwards string `json:"backwards"`
}

// SampleResponse is the fixed body returned by the json endpoint.
type SampleResponse struct {
	Text    string `json:"text"`
	Numbers []int  `json:"numbers"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
