package management

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeByteSink struct {
	writes [][]byte
	err    error
	closed bool
}

func (f *fakeByteSink) Write(ctx context.Context, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeByteSink) Close() error {
	f.closed = true
	return nil
}

func TestSwapNotifierPublishesEvent(t *testing.T) {
	sink := &fakeByteSink{}
	n := NewSwapNotifier(sink)

	err := n.NotifySwap(context.Background(), SwapEvent{
		Trigger:   TriggerRefresh,
		AssetURIs: []string{"https://example.test/geo.mmdb"},
		Hashes:    map[string]string{"https://example.test/geo.mmdb": "abc123"},
	})
	require.NoError(t, err)
	require.Len(t, sink.writes, 1)

	var published SwapEvent
	require.NoError(t, json.Unmarshal(sink.writes[0], &published))
	assert.NotEmpty(t, published.ID)
	assert.Equal(t, "registry-manager", published.Source)
	assert.False(t, published.Timestamp.IsZero())
	assert.Equal(t, TriggerRefresh, published.Trigger)
	assert.Equal(t, []string{"https://example.test/geo.mmdb"}, published.AssetURIs)
}

func TestSwapNotifierNilSinkIsNoop(t *testing.T) {
	n := NewSwapNotifier(nil)
	assert.NoError(t, n.NotifySwap(context.Background(), SwapEvent{}))
}

func TestSwapNotifierNilReceiverIsNoop(t *testing.T) {
	var n *SwapNotifier
	assert.NoError(t, n.NotifySwap(context.Background(), SwapEvent{}))
}

func TestSwapNotifierPropagatesSinkError(t *testing.T) {
	sink := &fakeByteSink{err: assert.AnError}
	n := NewSwapNotifier(sink)

	err := n.NotifySwap(context.Background(), SwapEvent{})
	assert.ErrorIs(t, err, assert.AnError)
}
