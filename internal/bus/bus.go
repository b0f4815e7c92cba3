// Package bus provides event bus implementations for Rastreador.
package bus

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/rastreador/internal/domain"
)

var (
	// ErrWorkspaceRequired is returned when a call omits the workspace.
	ErrWorkspaceRequired = errors.New("workspaceID is required")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus is closed")
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
// Type "none" returns nil, nil: events are not published.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
