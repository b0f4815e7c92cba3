package domain

import "context"

// EventBus announces workspace changes to other processes: dashboards,
// notifiers, downstream exporters. Go channels (Community) or NATS (Pro).
// All methods require workspaceID.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, workspaceID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, workspaceID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope of every published event.
type Message struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Topic       string `json:"topic"`
	Payload     []byte `json:"payload"`
	Timestamp   int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "none"
	Type string `yaml:"type" json:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channel_buffer_size" json:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"nats_url" json:"natsUrl"`
	NATSToken         string `yaml:"nats_token" json:"-"`
	NATSMaxReconnects int    `yaml:"nats_max_reconnects" json:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"nats_reconnect_wait" json:"natsReconnectWait"` // seconds
}

// Topics published by the service.
const (
	TopicDatasetReplaced   = "dataset.replaced"
	TopicAnalysisCompleted = "analysis.completed"
)

// DatasetEvent is the payload of TopicDatasetReplaced.
type DatasetEvent struct {
	DatasetID string      `json:"datasetId"`
	Kind      DatasetKind `json:"kind"`
	Checksum  string      `json:"checksum"`
	RowCount  int         `json:"rowCount"`
}

// AnalysisEvent is the payload of TopicAnalysisCompleted.
type AnalysisEvent struct {
	RunID            string         `json:"runId"`
	Params           AnalysisParams `json:"params"`
	AlertCount       int            `json:"alertCount"`
	SharedIdentities int            `json:"sharedIdentities"`
	CriticalSuspects int            `json:"criticalSuspects"`
}
