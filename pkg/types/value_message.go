package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ValueMessage is what websocket feed clients receive for every published value.
type ValueMessage struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Value       uint32 `json:"value"`
	Timestamp   string `json:"timestamp"`
}

func NewValueMessage(destination string, value uint32, at time.Time) *ValueMessage {
	return &ValueMessage{
		ID:          uuid.NewString(),
		Destination: destination,
		Value:       value,
		Timestamp:   at.UTC().Format(time.RFC3339Nano),
	}
}

func (m *ValueMessage) ToJsonBytes() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// Only plain fields, cannot fail
		return nil
	}
	return data
}

// Returns nil when data is not a value message.
func ValueMessageFromJsonBytes(data []byte) *ValueMessage {
	var msg ValueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	if msg.ID == "" || msg.Destination == "" {
		return nil
	}
	return &msg
}
