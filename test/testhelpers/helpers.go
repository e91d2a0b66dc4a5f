// Package testhelpers provides common utilities and helper functions for testing the chat server.
//
// It provides functions for making HTTP requests, asserting response
// properties, reading Server-Sent-Events streams and driving WebSocket
// connections to reduce code duplication in test files.
package testhelpers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:3000"

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully. The body is closed at test cleanup.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

// SSEEvent is one dispatched Server-Sent-Events frame.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
	Retry string
}

// Type returns the event name, defaulting to "message" as EventSource does.
func (e SSEEvent) Type() string {
	if e.Event == "" {
		return "message"
	}
	return e.Event
}

// SSEStream reads events from an open text/event-stream response.
type SSEStream struct {
	Response *http.Response
	events   chan SSEEvent
	err      error
	ctx      context.Context
	cancel   context.CancelFunc
}

// OpenSSE issues a GET to url and starts parsing its event stream. The
// request is cancelled at test cleanup.
func OpenSSE(t *testing.T, url string) *SSEStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		cancel()
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("Failed to open event stream: %v", err)
	}

	s := &SSEStream{
		Response: resp,
		events:   make(chan SSEEvent, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	go s.read()

	t.Cleanup(s.Close)
	return s
}

// Close cancels the request and releases the response body.
func (s *SSEStream) Close() {
	s.cancel()
	_ = s.Response.Body.Close()
}

func (s *SSEStream) read() {
	scanner := bufio.NewScanner(s.Response.Body)
	var (
		ev      SSEEvent
		data    []string
		pending bool
	)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if pending {
				ev.Data = strings.Join(data, "\n")
				select {
				case s.events <- ev:
				case <-s.ctx.Done():
					s.err = s.ctx.Err()
					close(s.events)
					return
				}
			}
			ev, data, pending = SSEEvent{}, nil, false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		pending = true

		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Event = value
		case "data":
			data = append(data, value)
		case "retry":
			ev.Retry = value
		}
	}

	err := scanner.Err()
	if err == nil {
		err = errors.New("event stream closed")
	}
	s.err = err
	close(s.events)
}

// Next returns the next event or an error if none arrives within timeout or
// the stream ends.
func (s *SSEStream) Next(timeout time.Duration) (SSEEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return SSEEvent{}, s.err
		}
		return ev, nil
	case <-time.After(timeout):
		return SSEEvent{}, fmt.Errorf("no event within %s", timeout)
	}
}

// NextMessage returns the next event of type "message", skipping others.
func (s *SSEStream) NextMessage(timeout time.Duration) (SSEEvent, error) {
	deadline := time.Now().Add(timeout)
	for {
		ev, err := s.Next(time.Until(deadline))
		if err != nil {
			return ev, err
		}
		if ev.Type() == "message" {
			return ev, nil
		}
	}
}

// ExpectConnected reads the stream's first event and fails the test unless it
// is the connected event. It returns the event data.
func (s *SSEStream) ExpectConnected(t *testing.T) string {
	t.Helper()

	ev, err := s.Next(2 * time.Second)
	if err != nil {
		t.Fatalf("Failed to read connected event: %v", err)
	}
	if ev.Event != "connected" {
		t.Fatalf("Expected connected event, got %q", ev.Event)
	}
	return ev.Data
}

// ExpectClosed fails the test unless the stream ends within timeout,
// ignoring any events still in flight.
func (s *SSEStream) ExpectClosed(t *testing.T, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if _, err := s.Next(time.Until(deadline)); err != nil {
			if strings.HasPrefix(err.Error(), "no event within") {
				t.Fatalf("Expected event stream to close: %v", err)
			}
			return
		}
	}
}

// ConnectWebSocket dials url with TestOrigin as the Origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendMessage sends a JSON message with a "content" field over the WebSocket connection.
func SendMessage(conn *websocket.Conn, content string) error {
	message := map[string]string{"content": content}
	return conn.WriteJSON(message)
}

// ReceiveMessage reads a JSON message from the WebSocket connection, waiting
// at most timeout.
func ReceiveMessage(conn *websocket.Conn, timeout time.Duration) (map[string]interface{}, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var message map[string]interface{}
	err := conn.ReadJSON(&message)
	return message, err
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// AssertMessageContent checks if the received message has the expected content.
func AssertMessageContent(t *testing.T, message map[string]interface{}, expectedContent string) {
	t.Helper()

	content, ok := message["content"]
	if !ok {
		t.Error("Message does not contain 'content' field")
		return
	}

	contentStr, ok := content.(string)
	if !ok {
		t.Error("Message content is not a string")
		return
	}

	if contentStr != expectedContent {
		t.Errorf("Expected content %q, got %q", expectedContent, contentStr)
	}
}

// CreateJSONMessage creates a JSON-encoded message with the given content.
func CreateJSONMessage(content string) ([]byte, error) {
	message := map[string]string{"content": content}
	return json.Marshal(message)
}
