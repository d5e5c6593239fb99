package management

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"enrich/internal/sourcesink"
)

// SwapEvent is published every time a registry build replaces the
// live Registry snapshot, so fleet operators and downstream
// configuration tooling can observe a swap without polling the admin
// API.
type SwapEvent struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Trigger   Trigger           `json:"trigger"`
	BuiltAt   time.Time         `json:"built_at"`
	AssetURIs []string          `json:"asset_uris"`
	Hashes    map[string]string `json:"hashes"`
}

// SwapNotifier publishes SwapEvent notifications over any ByteSink,
// typically a Kafka topic distinct from the good/pii/bad event
// topics. A nil sink makes every Notify call a no-op so wiring a
// notifier is optional wherever a deployment has no consumer for it.
type SwapNotifier struct {
	sink sourcesink.ByteSink
}

func NewSwapNotifier(sink sourcesink.ByteSink) *SwapNotifier {
	return &SwapNotifier{sink: sink}
}

func (n *SwapNotifier) NotifySwap(ctx context.Context, event SwapEvent) error {
	if n == nil || n.sink == nil {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Source = "registry-manager"

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal swap event: %w", err)
	}

	if err := n.sink.Write(ctx, data); err != nil {
		return fmt.Errorf("publish swap event: %w", err)
	}
	return nil
}
