package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/metrics"
)

// Relay publishes to the local hub and, for sessions not attached here,
// forwards over a Bus so the instance holding the session can deliver.
// With a nil bus it behaves exactly like the hub.
type Relay struct {
	hub     *Hub
	bus     Bus
	origin  string
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewRelay(hub *Hub, bus Bus, log *logger.Logger, m *metrics.Metrics) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{
		hub:     hub,
		bus:     bus,
		origin:  uuid.NewString(),
		log:     log.With("component", "EventRelay"),
		metrics: m,
	}
}

// Hub returns the local hub.
func (r *Relay) Hub() *Hub { return r.hub }

// Publish reports local delivery only; a forwarded event returns false.
// Forwarding is bounded by the hub's publish timeout.
func (r *Relay) Publish(sessionID string, typ Type, unitID string, payload any) bool {
	ev := Event{
		SessionID: sessionID,
		UnitID:    unitID,
		Type:      typ,
		Payload:   payload,
		Timestamp: r.hub.now(),
	}
	if r.hub.Deliver(ev) {
		return true
	}
	if r.bus == nil || r.hub.Attached(sessionID) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.hub.cfg.PublishTimeout)
	defer cancel()
	if err := r.bus.Publish(ctx, Envelope{Origin: r.origin, Event: ev}); err != nil {
		r.log.Warn("forward event failed", "session", sessionID, "type", typ, "error", err)
		return false
	}
	r.metrics.BusMessage("out")
	return false
}

// Forward delivers events published by other instances to locally attached
// sessions. It blocks until ctx is done. Without a bus it just waits.
func (r *Relay) Forward(ctx context.Context) error {
	if r.bus == nil {
		<-ctx.Done()
		return nil
	}
	return r.bus.Subscribe(ctx, func(env Envelope) {
		if env.Origin == r.origin {
			return
		}
		r.metrics.BusMessage("in")
		r.hub.Deliver(env.Event)
	})
}
