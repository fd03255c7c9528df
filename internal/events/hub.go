package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/metrics"
)

// DuplicatePolicy decides what Attach does when the session id is taken.
type DuplicatePolicy string

const (
	// PolicyReplace closes the existing subscriber and attaches the new one.
	PolicyReplace DuplicatePolicy = "replace"
	// PolicyReject refuses the second attach with ErrDuplicateSession.
	PolicyReject DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy maps a config string to a policy. Unknown or empty
// values yield PolicyReplace.
func ParseDuplicatePolicy(s string) DuplicatePolicy {
	if DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) == PolicyReject {
		return PolicyReject
	}
	return PolicyReplace
}

// Config tunes a Hub.
type Config struct {
	// OutboxSize is the buffered capacity of each subscriber's outbox.
	OutboxSize int
	// PublishTimeout bounds how long Publish waits on a full outbox before
	// detaching the session.
	PublishTimeout  time.Duration
	DuplicatePolicy DuplicatePolicy
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		OutboxSize:      64,
		PublishTimeout:  250 * time.Millisecond,
		DuplicatePolicy: PolicyReplace,
	}
}

// Subscriber is one attached session. Its outbox is never closed; Done is
// closed when the session is detached or replaced.
type Subscriber struct {
	ID          string
	ConnectedAt time.Time

	outbound  chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Outbound returns the subscriber's event outbox.
func (s *Subscriber) Outbound() <-chan Event { return s.outbound }

// Done is closed once the subscriber is detached.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub tracks attached sessions and delivers events to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Subscriber

	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewHub creates an empty hub. log and m may be nil.
func NewHub(cfg Config, log *logger.Logger, m *metrics.Metrics) *Hub {
	def := DefaultConfig()
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = def.OutboxSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.DuplicatePolicy == "" {
		cfg.DuplicatePolicy = def.DuplicatePolicy
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		sessions: make(map[string]*Subscriber),
		cfg:      cfg,
		log:      log.With("component", "EventHub"),
		metrics:  m,
		now:      time.Now,
	}
}

// Attach registers sessionID and queues a connected event for it. An empty
// id is replaced by a generated one.
func (h *Hub) Attach(sessionID string) (*Subscriber, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sub := &Subscriber{
		ID:          sessionID,
		ConnectedAt: h.now(),
		outbound:    make(chan Event, h.cfg.OutboxSize),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	old, exists := h.sessions[sessionID]
	if exists && h.cfg.DuplicatePolicy == PolicyReject {
		h.mu.Unlock()
		return nil, ErrDuplicateSession
	}
	h.sessions[sessionID] = sub
	h.mu.Unlock()

	if exists {
		old.close()
		h.log.Info("session replaced", "session", sessionID)
	} else {
		h.metrics.SessionAttached(1)
		h.log.Debug("session attached", "session", sessionID)
	}

	h.Publish(sessionID, TypeConnected, "", map[string]any{
		"sessionId":   sessionID,
		"connectedAt": sub.ConnectedAt,
	})
	return sub, nil
}

// Detach removes sessionID if attached. Calling it again is a no-op.
func (h *Hub) Detach(sessionID string) {
	h.mu.Lock()
	sub, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
		h.metrics.SessionAttached(-1)
		h.log.Debug("session detached", "session", sessionID)
	}
}

// Release detaches sub if it is still the subscriber for its session. It
// is for callers that attached but never started streaming.
func (h *Hub) Release(sub *Subscriber) {
	h.detachSub(sub, nil)
}

// detachSub removes sub only if it is still the attached subscriber for its
// id, so a failing replaced subscriber never evicts its successor.
func (h *Hub) detachSub(sub *Subscriber, cause error) {
	h.mu.Lock()
	cur, ok := h.sessions[sub.ID]
	removed := ok && cur == sub
	if removed {
		delete(h.sessions, sub.ID)
	}
	h.mu.Unlock()

	sub.close()
	if !removed {
		return
	}
	h.metrics.SessionAttached(-1)
	if cause != nil {
		h.metrics.TransportFailed()
		terr := &TransportError{SessionID: sub.ID, Err: cause}
		h.log.Warn("session detached on transport failure", "session", sub.ID, "error", terr)
	}
}

// Attached reports whether sessionID is attached to this hub.
func (h *Hub) Attached(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[sessionID]
	return ok
}

// Sessions returns the number of attached sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish builds an event and delivers it to sessionID.
func (h *Hub) Publish(sessionID string, typ Type, unitID string, payload any) bool {
	return h.Deliver(Event{
		SessionID: sessionID,
		UnitID:    unitID,
		Type:      typ,
		Payload:   payload,
		Timestamp: h.now(),
	})
}

// Deliver pushes a prepared event to its session. It never blocks longer
// than the publish timeout; a session whose outbox stays full is detached.
func (h *Hub) Deliver(ev Event) bool {
	h.mu.RLock()
	sub, ok := h.sessions[ev.SessionID]
	h.mu.RUnlock()
	if !ok {
		h.metrics.EventPublished(string(ev.Type), false)
		return false
	}

	select {
	case <-sub.done:
		h.metrics.EventPublished(string(ev.Type), false)
		return false
	case sub.outbound <- ev:
		h.metrics.EventPublished(string(ev.Type), true)
		return true
	default:
	}

	timer := time.NewTimer(h.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case sub.outbound <- ev:
		h.metrics.EventPublished(string(ev.Type), true)
		return true
	case <-sub.done:
		h.metrics.EventPublished(string(ev.Type), false)
		return false
	case <-timer.C:
		h.metrics.EventDropped("timeout")
		h.detachSub(sub, ErrPublishTimeout)
		return false
	}
}

// Stream drains sub's outbox into t until ctx is done, the subscriber is
// detached, or a write fails. A failed write detaches the session and is
// returned as a *TransportError.
func (h *Hub) Stream(ctx context.Context, sub *Subscriber, t Transport) error {
	for {
		select {
		case <-ctx.Done():
			h.detachSub(sub, nil)
			return nil
		case <-sub.done:
			return nil
		case ev := <-sub.outbound:
			if err := t.Write(ev); err != nil {
				h.detachSub(sub, err)
				return &TransportError{SessionID: sub.ID, Err: err}
			}
		}
	}
}

// RunHeartbeat publishes a heartbeat to every attached session each
// interval until ctx is done.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.mu.RLock()
			ids := make([]string, 0, len(h.sessions))
			for id := range h.sessions {
				ids = append(ids, id)
			}
			h.mu.RUnlock()

			for _, id := range ids {
				h.Publish(id, TypeHeartbeat, "", nil)
			}
		}
	}
}
