// Package events delivers stream events to attached client sessions.
//
// A Hub owns the set of attached sessions on this process. Publishing to a
// session that is not attached is a silent drop: there is no replay or
// backlog. Transports (SSE, websocket) drain a subscriber's outbox.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Type identifies a stream event.
type Type string

const (
	TypeConnected     Type = "connected"
	TypeBatchStarted  Type = "batch-started"
	TypeProgress      Type = "progress"
	TypeTextChunk     Type = "text-chunk"
	TypeCompleted     Type = "completed"
	TypeError         Type = "error"
	TypeBatchComplete Type = "batch-complete"
	TypeHeartbeat     Type = "heartbeat"
)

// Terminal reports whether t ends a unit's event sequence.
func (t Type) Terminal() bool {
	return t == TypeCompleted || t == TypeError
}

// Event is a single message pushed to a session.
type Event struct {
	SessionID string    `json:"sessionId"`
	UnitID    string    `json:"unitId,omitempty"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher pushes events to sessions. It returns false when the event was
// not delivered to a locally attached session; that is not an error.
type Publisher interface {
	Publish(sessionID string, typ Type, unitID string, payload any) bool
}

// Transport writes events to one client connection.
type Transport interface {
	Write(ev Event) error
}

// ErrDuplicateSession is returned by Attach under the reject policy when
// the session id is already attached.
var ErrDuplicateSession = errors.New("session already attached")

// ErrPublishTimeout marks a session detached because its outbox stayed full
// past the publish timeout.
var ErrPublishTimeout = errors.New("publish timed out")

// TransportError describes a delivery failure that forced a detach. It is
// logged by the hub and never returned from Publish.
type TransportError struct {
	SessionID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for session %s: %v", e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
