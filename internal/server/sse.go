package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"

	"github.com/Tyrowin/ssechat/internal/hub"
)

// EventConnected names the first event of every stream.
const EventConnected = "connected"

// StreamHandler attaches the request to the hub and streams every delivered
// message as an SSE data frame until the client goes away, a write fails,
// the subscriber is evicted or the hub shuts down. The subscription is
// released on every one of those paths.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.log.Error().Str("remote_addr", r.RemoteAddr).Msg("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Streams are long-lived; the server-wide WriteTimeout must not cut them.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("could not disable write deadline")
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	sub := s.hub.Open(s.cfg.Stream.Buffer)
	defer sub.Close()

	log := s.log.With().
		Str("subscriber", sub.Handle().String()).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	w.WriteHeader(http.StatusOK)
	err := sse.Encode(w, sse.Event{
		Event: EventConnected,
		Retry: uint(s.cfg.Stream.Retry / time.Millisecond),
		Data:  ConnectedEvent{SubscriberID: sub.Handle().String()},
	})
	if err != nil {
		log.Debug().Err(err).Msg("failed to write connected event")
		return
	}
	flusher.Flush()
	log.Debug().Msg("stream opened")

	keepAlive := time.NewTicker(s.cfg.Stream.KeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Err(ctx.Err()).Msg("stream client disconnected")
			return

		case msg, ok := <-sub.Messages():
			if !ok {
				log.Debug().Msg("stream subscription ended")
				return
			}
			if err := writeMessage(w, msg); err != nil {
				log.Debug().Err(err).Msg("stream write failed")
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix()); err != nil {
				log.Debug().Err(err).Msg("stream keepalive failed")
				return
			}
			flusher.Flush()
		}
	}
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// writeMessage writes msg as one event with a data line per line of text.
// Every data line carries a single space after the colon, which readers strip,
// so leading whitespace survives. CRLF and lone CR line breaks arrive as LF.
func writeMessage(w io.Writer, msg hub.Message) error {
	var b strings.Builder
	b.WriteString("id: ")
	b.WriteString(strconv.FormatUint(msg.ID, 10))
	b.WriteByte('\n')
	for _, line := range strings.Split(lineBreaks.Replace(msg.Text), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
