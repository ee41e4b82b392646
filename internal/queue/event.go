// Package queue defines message payloads exchanged over the message broker.
package queue

// MirrorQueueName is the durable queue carrying mirror drift events.
const MirrorQueueName = "schedule.mirror"

// Mirror operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MirrorFailedEvent is published when a schedule block could not be
// written to the external calendar it mirrors.  Local and remote state may
// differ from this point on; the event carries enough to reconcile by hand
// without querying the primary database.
type MirrorFailedEvent struct {
	BlockID    string `json:"block_id"`
	UserID     string `json:"user_id"`
	Provider   string `json:"provider"`
	Op         string `json:"op"`
	RemoteID   string `json:"remote_id,omitempty"`
	Title      string `json:"title"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
	Reason     string `json:"reason"`
	OccurredAt string `json:"occurred_at"`
}
