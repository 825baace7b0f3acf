package interfaces

import "context"

// EventPublisher ships ledger change events to downstream consumers.
// Key groups events of one owner onto the same partition.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}
