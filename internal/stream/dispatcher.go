package stream

import (
	"context"
	"errors"
	"log"

	"message-service/internal/models"
	"message-service/internal/observability"
)

// DispatchResult describes what happened to one push.
type DispatchResult string

const (
	DispatchDelivered DispatchResult = "delivered"
	DispatchOffline   DispatchResult = "offline"
	DispatchFailed    DispatchResult = "failed"
)

// Dispatcher pushes freshly created messages to their recipient's live channel.
// Delivery is at-most-once; history fetch is the durable path.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher builds a dispatcher over the registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch writes the message, merged with its sender profile, to the
// recipient's channel if one is open. It never returns an error: an offline
// recipient is the normal case and a dead handle is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.Message, sender models.UserProfile) DispatchResult {
	h, ok := d.registry.Lookup(msg.ToUserID)
	if !ok {
		observability.IncDispatch(string(DispatchOffline))
		return DispatchOffline
	}

	if err := h.Send(models.NewPushEvent(msg, sender)); err != nil {
		info := h.Info()
		log.Printf("stream dispatch failed user_id=%s conn_id=%s message_id=%d: %v", msg.ToUserID, info.ConnID, msg.ID, err)
		if errors.Is(err, ErrHandleClosed) && d.registry.Unregister(msg.ToUserID, h) {
			_ = h.Close()
		}
		observability.IncDispatch(string(DispatchFailed))
		publishLifecycle(ctx, info, "stream_error", err.Error())
		return DispatchFailed
	}

	observability.IncDispatch(string(DispatchDelivered))
	return DispatchDelivered
}
