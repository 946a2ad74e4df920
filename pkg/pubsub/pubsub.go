package pubsub

import (
	"context"
	"encoding/json"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "dirty_state", "changes")
	Type    string          `json:"type"`    // Event type (e.g., "snapshot", "marked", "reconciled")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// DirtyStatus summarizes the dirty bookkeeping of one target
type DirtyStatus struct {
	Target     string `json:"target"`
	DirtyFiles int    `json:"dirty_files"`
	RebuildAll bool   `json:"rebuild_all"`
}

// ChangeBatch describes a batch of filesystem changes applied to the state
type ChangeBatch struct {
	Kind    string   `json:"kind"` // "modified" or "deleted"
	Paths   []string `json:"paths"`
	Marked  int      `json:"marked"`
	Removed int      `json:"removed"`
}
