package ports

import "github.com/soochol/chatflow/internal/chatflow"

// EventPublisher receives domain events. Implementations must not block.
type EventPublisher interface {
	Publish(event chatflow.Event)
}
