package events

import "context"

// Envelope is an event crossing the instance bus, tagged with the relay
// that sent it.
type Envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bus carries events between instances.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe delivers envelopes to onMsg until ctx is done. It returns
	// once the subscription can no longer receive.
	Subscribe(ctx context.Context, onMsg func(Envelope)) error
	Close() error
}
