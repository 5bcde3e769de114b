package stream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"message-service/internal/observability"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func routingKey(transport string) string {
	return "stream_events." + transport
}

// publishLifecycle emits a connect, disconnect or error record for a channel.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	duration := int64(0)
	if !info.ConnectedAt.IsZero() && event != "stream_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	observability.IncStreamEvent(info.Transport, event)
	_ = observability.PublishEvent(ctx, routingKey(info.Transport), observability.EventEnvelope{
		EventType: "stream_events",
		EventName: event,
		Payload: map[string]interface{}{
			"stream": map[string]interface{}{
				"transport":   info.Transport,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id": info.UserID,
				"ip":      info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
