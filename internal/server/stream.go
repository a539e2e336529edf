package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type streamEventPayload struct {
	Topic     string          `json:"topic"`
	BannerIDs []string        `json:"bannerIds"`
	Change    json.RawMessage `json:"change,omitempty"`
	Timestamp string          `json:"timestamp"`
	Source    string          `json:"source"`
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// handleEventStream pushes banners-changed events so display clients can refetch
// the selection without polling. The optional "topics" query narrows the stream.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "stream_unavailable"})
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "streaming_unsupported"})
		return
	}

	var topics []string
	if raw := c.Query("topics"); raw != "" {
		for _, topic := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				topics = append(topics, trimmed)
			}
		}
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, topics)
	defer cleanup()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	writeStreamEvent(c.Writer, 0, realtimeEventHeartbeat, heartbeatPayload{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    realtimeSourceBackend,
	})
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, open := <-stream:
			if !open {
				return
			}
			writeStreamEvent(c.Writer, message.ID, RealtimeEventBannersChanged, streamEventPayload{
				Topic:     message.Topic,
				BannerIDs: message.BannerIDs,
				Change:    message.Payload,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
				Source:    realtimeSourceBackend,
			})
			flusher.Flush()
		case tick := <-heartbeat.C:
			writeStreamEvent(c.Writer, 0, realtimeEventHeartbeat, heartbeatPayload{
				Timestamp: tick.UTC().Format(time.RFC3339),
				Source:    realtimeSourceBackend,
			})
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w gin.ResponseWriter, id uint64, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
