package model

import "time"

// Queue row statuses. A row never leaves 'sent' or 'failed'.
const (
	MessagePending = "pending"
	MessageClaimed = "claimed"
	MessageSent    = "sent"
	MessageFailed  = "failed"
)

// Connection states for the singleton status row.
const (
	StateConnected       = "connected"
	StateDisconnected    = "disconnected"
	StateAwaitingPairing = "awaiting_pairing"
)

// QueuedMessage is one outbound message. Producers across the backend
// insert rows; the dispatch loop is the sole consumer.
type QueuedMessage struct {
	ID          int64      `json:"id" db:"id"`
	Destination string     `json:"destination" db:"destination"`
	Body        string     `json:"body" db:"body"`
	MediaRef    string     `json:"media_ref,omitempty" db:"media_ref"`
	Status      string     `json:"status" db:"status"`
	ErrorDetail string     `json:"error_detail,omitempty" db:"error_detail"`
	ClaimedBy   string     `json:"claimed_by,omitempty" db:"claimed_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// DispatchConfig is the singleton operational-parameter row. Mutated by
// the admin surface, polled by the dispatch loop.
type DispatchConfig struct {
	MinDelaySec int       `json:"min_delay_sec" db:"min_delay_sec"`
	MaxDelaySec int       `json:"max_delay_sec" db:"max_delay_sec"`
	WindowStart string    `json:"window_start" db:"window_start"` // "HH:MM"
	WindowEnd   string    `json:"window_end" db:"window_end"`     // "HH:MM"; start > end wraps past midnight
	Enabled     bool      `json:"enabled" db:"enabled"`
	DisplayName string    `json:"display_name" db:"display_name"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ConnectionStatus is the singleton session-state row, written by
// connection-lifecycle events and read by the loop and the status endpoint.
type ConnectionStatus struct {
	State           string    `json:"state" db:"state"`
	PairingArtifact string    `json:"pairing_artifact,omitempty" db:"pairing_artifact"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
