package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"promocast/internal/eventbus"
	logx "promocast/pkg/logx"
)

type sseStreamer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func newSSEStreamer(w http.ResponseWriter) (*sseStreamer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	return &sseStreamer{writer: w, flusher: flusher}, nil
}

func (s *sseStreamer) event(e eventbus.StepEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStreamer) heartbeat() error {
	if _, err := fmt.Fprint(s.writer, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// stream replays the session history and follows it live until the client
// disconnects. Subscribing to an unknown session creates it, so a client may
// connect before the batch starts.
func (s *Service) stream(c *gin.Context) {
	id := strings.TrimSpace(c.Param("sessionId"))
	if id == "" || s.d.Sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	st, err := newSSEStreamer(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sub := s.d.Sessions.Session(id).Subscribe()
	defer sub.Unsubscribe()
	s.subscribers.Inc()
	defer s.subscribers.Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	st.flusher.Flush()

	s.log.Debug("stream opened", logx.String("session", id))
	defer s.log.Debug("stream closed", logx.String("session", id))

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := st.event(e); err != nil {
				return
			}
		case <-sub.Heartbeats():
			if err := st.heartbeat(); err != nil {
				return
			}
		}
	}
}
