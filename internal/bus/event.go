package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-separated: "conversation.updated", "conversation.deleted",
// "receipt.acked", "channel.status_changed", "mirror.upserted".
// Subscribers filter by namespace prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
