// Package events defines the wire contract between the engine and the UI:
// queue snapshots and per-item progress, serialized as JSON.
package events

import (
	"encoding/json"
)

// Event kind names as they appear on the channel to the UI.
const (
	KindQueueState   = "queue-state-update"
	KindItemProgress = "queue-item-progress"
)

// StatusTag is the tagged status representation: {type, data?}. data carries
// the error message for Error, and "true" semantics for Complete are implied
// by the type alone.
type StatusTag struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// Status tag types as serialized to the UI. Internal queue states map onto
// this closed set; cancellation surfaces as Error with data "Cancelled".
const (
	TagQueued   = "Queued"
	TagActive   = "Active"
	TagPaused   = "Paused"
	TagComplete = "Complete"
	TagError    = "Error"
)

// ItemSnapshot is one row of a queue-state-update event.
type ItemSnapshot struct {
	ID               int64     `json:"id"`
	URL              string    `json:"url"`
	Platform         string    `json:"platform"`
	Title            string    `json:"title"`
	Status           StatusTag `json:"status"`
	Percent          float64   `json:"percent"`
	SpeedBytesPerSec float64   `json:"speed_bytes_per_sec"`
	DownloadedBytes  int64     `json:"downloaded_bytes"`
	TotalBytes       *int64    `json:"total_bytes,omitempty"`
	ETASeconds       *int64    `json:"eta_seconds,omitempty"`
	FilePath         string    `json:"file_path,omitempty"`
	FileSizeBytes    int64     `json:"file_size_bytes,omitempty"`
	FileCount        int       `json:"file_count,omitempty"`
}

// ItemProgress is a queue-item-progress event.
type ItemProgress struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Platform         string  `json:"platform"`
	Percent          float64 `json:"percent"`
	SpeedBytesPerSec float64 `json:"speed_bytes_per_sec"`
	DownloadedBytes  int64   `json:"downloaded_bytes"`
	TotalBytes       *int64  `json:"total_bytes,omitempty"`
	Phase            string  `json:"phase"`
}

// Envelope pairs an event kind with its payload for JSON consumers.
type Envelope struct {
	Kind    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Emitter surfaces queue state and per-item progress to the UI. Emitters must
// not block: a slow consumer loses progress events, never data.
type Emitter interface {
	QueueState(items []ItemSnapshot)
	ItemProgress(p ItemProgress)
}

// ChannelEmitter publishes events onto a bounded channel of any, dropping
// when the consumer lags.
type ChannelEmitter struct {
	Ch chan any
}

// NewChannelEmitter creates an emitter with the given buffer depth.
func NewChannelEmitter(depth int) *ChannelEmitter {
	return &ChannelEmitter{Ch: make(chan any, depth)}
}

// QueueStateMsg wraps a snapshot batch on the channel.
type QueueStateMsg struct {
	Items []ItemSnapshot
}

// ItemProgressMsg wraps a progress event on the channel.
type ItemProgressMsg struct {
	Progress ItemProgress
}

func (e *ChannelEmitter) QueueState(items []ItemSnapshot) {
	select {
	case e.Ch <- QueueStateMsg{Items: items}:
	default:
	}
}

func (e *ChannelEmitter) ItemProgress(p ItemProgress) {
	select {
	case e.Ch <- ItemProgressMsg{Progress: p}:
	default:
	}
}

// NopEmitter discards all events; used headless and in tests.
type NopEmitter struct{}

func (NopEmitter) QueueState([]ItemSnapshot) {}
func (NopEmitter) ItemProgress(ItemProgress) {}

// MarshalQueueState renders a queue-state-update envelope.
func MarshalQueueState(items []ItemSnapshot) ([]byte, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: KindQueueState, Payload: payload})
}

// MarshalItemProgress renders a queue-item-progress envelope.
func MarshalItemProgress(p ItemProgress) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: KindItemProgress, Payload: payload})
}
