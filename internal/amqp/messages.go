package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried in the Type field.
const (
	TypeSeriesSubmit  = "series.submit"
	TypeSeriesDiscard = "series.discard"
)

// SeriesMessage is a lightweight pointer to an outbox series.
// It carries only the group id and version; the worker loads the rows from
// the database and skips the message if the version moved on.
type SeriesMessage struct {
	Type      string    `json:"type"`
	GroupID   string    `json:"group_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSeriesSubmitMessage asks the worker to submit a series to the backend.
func NewSeriesSubmitMessage(groupID string, version int64) *SeriesMessage {
	return &SeriesMessage{
		Type:      TypeSeriesSubmit,
		GroupID:   groupID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// NewSeriesDiscardMessage asks the worker to drop a series that was never synced.
func NewSeriesDiscardMessage(groupID string, version int64) *SeriesMessage {
	return &SeriesMessage{
		Type:      TypeSeriesDiscard,
		GroupID:   groupID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SeriesMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SeriesMessageFromJSON decodes and validates a message.
func SeriesMessageFromJSON(data []byte) (*SeriesMessage, error) {
	var msg SeriesMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.GroupID == "" {
		return nil, fmt.Errorf("message without group id")
	}
	switch msg.Type {
	case TypeSeriesSubmit, TypeSeriesDiscard:
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return &msg, nil
}
