package handler

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mmtext/booking-engine/internal/dto"
	"github.com/mmtext/booking-engine/internal/notifier"
)

// sseSubscriber writes notifier events to a client as server-sent events.
// Sends come from the notifier goroutine while Close can come from either
// side, so writes are serialized behind a mutex.
type sseSubscriber struct {
	mu     sync.Mutex
	writer gin.ResponseWriter
	closed chan struct{}
	once   sync.Once
}

var _ notifier.Subscriber = (*sseSubscriber)(nil)

func newSSESubscriber(c *gin.Context) *sseSubscriber {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeaderNow()

	return &sseSubscriber{
		writer: c.Writer,
		closed: make(chan struct{}),
	}
}

// Send writes a single SSE frame. When the payload carries a reconnect hint
// it is also emitted as the protocol-level retry field, so EventSource
// clients back off without any custom handling.
func (s *sseSubscriber) Send(event notifier.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return fmt.Errorf("stream closed")
	default:
	}

	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if update, ok := event.Data.(*dto.StatusUpdate); ok && update.ReconnectMillis > 0 {
		if _, err := fmt.Fprintf(s.writer, "retry: %d\n", update.ReconnectMillis); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.writer, "event: %s\ndata: %s\n\n", event.Name, payload); err != nil {
		return err
	}
	s.writer.Flush()
	return nil
}

// Close marks the stream finished and unblocks the handler goroutine
func (s *sseSubscriber) Close() {
	s.once.Do(func() {
		close(s.closed)
	})
}

// Done is closed when the notifier has finished with this stream
func (s *sseSubscriber) Done() <-chan struct{} {
	return s.closed
}
