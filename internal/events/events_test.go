package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItemSnapshotJSONShape(t *testing.T) {
	total := int64(1000)
	snap := ItemSnapshot{
		ID:               1700000000000,
		URL:              "https://example.com/v",
		Platform:         "youtube",
		Title:            "A video",
		Status:           StatusTag{Type: "Error", Data: "Cancelled"},
		Percent:          42.5,
		SpeedBytesPerSec: 2048,
		DownloadedBytes:  425,
		TotalBytes:       &total,
	}

	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	status := decoded["status"].(map[string]any)
	require.Equal(t, "Error", status["type"])
	require.Equal(t, "Cancelled", status["data"])
	require.Equal(t, 42.5, decoded["percent"])
	require.Equal(t, float64(1000), decoded["total_bytes"])
	// Empty optionals are omitted.
	_, hasPath := decoded["file_path"]
	require.False(t, hasPath)
}

func TestStatusTagOmitsEmptyData(t *testing.T) {
	raw, err := json.Marshal(StatusTag{Type: "Queued"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"Queued"}`, string(raw))
}

func TestChannelEmitterDropsWhenFull(t *testing.T) {
	e := NewChannelEmitter(1)
	// First fits, second drops; neither may block.
	e.ItemProgress(ItemProgress{ID: 1})
	e.ItemProgress(ItemProgress{ID: 2})

	msg := <-e.Ch
	progress := msg.(ItemProgressMsg)
	require.Equal(t, int64(1), progress.Progress.ID)

	select {
	case extra := <-e.Ch:
		t.Fatalf("expected drop, got %v", extra)
	default:
	}
}

func TestEnvelopes(t *testing.T) {
	raw, err := MarshalItemProgress(ItemProgress{ID: 7, Phase: "downloading"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, KindItemProgress, env.Kind)

	var p ItemProgress
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, int64(7), p.ID)
	require.Equal(t, "downloading", p.Phase)
}
