package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides cross-instance pub/sub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan BusMessage, error)
}

// BusMessage is one message received from a SignalBus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}
