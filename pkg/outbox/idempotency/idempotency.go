// Package idempotency dedupes at-least-once event deliveries per consumer.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	stateProcessing = "processing"
	stateDone       = "done"

	// DefaultLease bounds how long a crashed worker can hold an event.
	DefaultLease = 2 * time.Minute
)

// Store is the subset of the Redis client the manager needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Outcome reports what Process did with an event.
type Outcome int

const (
	// Ran: this call executed the handler.
	Ran Outcome = iota
	// Duplicate: an earlier delivery already completed the event.
	Duplicate
	// InProgress: another delivery holds the lease; redeliver later.
	InProgress
)

func (o Outcome) String() string {
	switch o {
	case Ran:
		return "ran"
	case Duplicate:
		return "duplicate"
	case InProgress:
		return "in_progress"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Manager claims an event with a short lease while its handler runs and
// keeps a done mark for ttl once the handler succeeds. Keys follow
// ks:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

// NewManager keeps done marks for ttl; zero keeps them without expiry.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := DefaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Process runs fn at most once to completion per consumer and event. A
// failing fn releases the claim so a redelivery can retry.
func (m *Manager) Process(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (Outcome, error) {
	if consumer == "" {
		return InProgress, errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return InProgress, errors.New("event id is required")
	}
	key := m.store.IdempotencyKey("evt:"+consumer, eventID.String())

	claimed, err := m.store.SetNX(ctx, key, stateProcessing, m.lease)
	if err != nil {
		return InProgress, fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		return m.existing(ctx, key)
	}

	if err := fn(ctx); err != nil {
		if delErr := m.store.Del(context.WithoutCancel(ctx), key); delErr != nil {
			return Ran, errors.Join(err, fmt.Errorf("release claim: %w", delErr))
		}
		return Ran, err
	}
	if err := m.store.Set(context.WithoutCancel(ctx), key, stateDone, m.ttl); err != nil {
		// fn already committed; the lease still shields redeliveries briefly.
		return Ran, fmt.Errorf("mark done %s: %w", key, err)
	}
	return Ran, nil
}

func (m *Manager) existing(ctx context.Context, key string) (Outcome, error) {
	state, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		return InProgress, nil
	case err != nil:
		return InProgress, fmt.Errorf("read %s: %w", key, err)
	case state == stateDone:
		return Duplicate, nil
	default:
		return InProgress, nil
	}
}
