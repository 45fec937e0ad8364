package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published by the services
const (
	EventUserAuthenticated = "USER_AUTHENTICATED"
	EventTokenRefreshed    = "TOKEN_REFRESHED"
	EventUserCreated       = "USER_CREATED"
	EventUserLoggedOut     = "USER_LOGGED_OUT"
	EventTokensRevoked     = "TOKENS_REVOKED"

	EventPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	EventPasswordResetCompleted = "PASSWORD_RESET_COMPLETED"
)

// Event is a domain event
type Event interface {
	EventType() string
	OccurredAt() time.Time
}

// UserAuthenticatedEvent is published after a successful login
type UserAuthenticatedEvent struct {
	UserID    uuid.UUID
	Username  string
	IPAddress string
	UserAgent string
	Timestamp time.Time
}

func (UserAuthenticatedEvent) EventType() string       { return EventUserAuthenticated }
func (e UserAuthenticatedEvent) OccurredAt() time.Time { return e.Timestamp }

// TokenRefreshedEvent is published after a refresh token was rotated
type TokenRefreshedEvent struct {
	UserID    uuid.UUID
	Username  string
	TokenID   uuid.UUID
	IPAddress string
	UserAgent string
	Timestamp time.Time
}

func (TokenRefreshedEvent) EventType() string       { return EventTokenRefreshed }
func (e TokenRefreshedEvent) OccurredAt() time.Time { return e.Timestamp }

// UserCreatedEvent is published after registration
type UserCreatedEvent struct {
	UserID    uuid.UUID
	Username  string
	Email     string
	Timestamp time.Time
}

func (UserCreatedEvent) EventType() string       { return EventUserCreated }
func (e UserCreatedEvent) OccurredAt() time.Time { return e.Timestamp }

// UserLoggedOutEvent is published when a refresh token is revoked on logout
type UserLoggedOutEvent struct {
	UserID    uuid.UUID
	TokenID   uuid.UUID
	Timestamp time.Time
}

func (UserLoggedOutEvent) EventType() string       { return EventUserLoggedOut }
func (e UserLoggedOutEvent) OccurredAt() time.Time { return e.Timestamp }

// TokensRevokedEvent is published after a bulk revocation
type TokensRevokedEvent struct {
	UserID    uuid.UUID
	Count     int64
	Timestamp time.Time
}

func (TokensRevokedEvent) EventType() string       { return EventTokensRevoked }
func (e TokensRevokedEvent) OccurredAt() time.Time { return e.Timestamp }

// PasswordResetRequestedEvent carries the reset token to whoever delivers it
// to the user. Subscribers must not log Token.
type PasswordResetRequestedEvent struct {
	UserID    uuid.UUID
	Email     string
	TokenID   uuid.UUID
	Token     string
	ExpiresAt time.Time
	Timestamp time.Time
}

func (PasswordResetRequestedEvent) EventType() string       { return EventPasswordResetRequested }
func (e PasswordResetRequestedEvent) OccurredAt() time.Time { return e.Timestamp }

// PasswordResetCompletedEvent is published after a password was replaced
type PasswordResetCompletedEvent struct {
	UserID    uuid.UUID
	Revoked   int64
	Timestamp time.Time
}

func (PasswordResetCompletedEvent) EventType() string       { return EventPasswordResetCompleted }
func (e PasswordResetCompletedEvent) OccurredAt() time.Time { return e.Timestamp }

// EventSink consumes domain events. Delivery is at most once.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event Event) error

// Publish implements EventSink.
func (f EventSinkFunc) Publish(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopEventSink struct{}

func (noopEventSink) Publish(context.Context, Event) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}

// EventHandler handles events delivered by an EventBus
type EventHandler func(ctx context.Context, event Event) error

// AllEvents subscribes a handler to every event type
const AllEvents = "*"

// EventBus is an in process EventSink dispatching to subscribed handlers.
// A failing or panicking handler does not prevent the others from running.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   Logger
}

var _ EventSink = (*EventBus)(nil)

// NewEventBus creates an empty bus
func NewEventBus(logger Logger) *EventBus {
	return &EventBus{
		handlers: map[string][]EventHandler{},
		logger:   normalizeLogger(logger),
	}
}

// Subscribe registers handler for eventType, or for everything with AllEvents
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers event to its handlers in subscription order and joins their errors
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return nil
	}

	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers[event.EventType()])+len(b.handlers[AllEvents]))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.handlers[AllEvents]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := b.dispatch(ctx, h, event); err != nil {
			b.logger.Warn("event handler failed", "event_type", event.EventType(), "error", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (b *EventBus) dispatch(ctx context.Context, h EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}

// publishAsync hands event to sink on a new goroutine. The result is only
// logged, the caller never waits on it.
func publishAsync(ctx context.Context, sink EventSink, logger Logger, event Event) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("event sink panicked", "event_type", event.EventType(), "panic", r)
			}
		}()
		if err := sink.Publish(ctx, event); err != nil {
			logger.Warn("event publish failed", "event_type", event.EventType(), "error", err)
		}
	}()
}
