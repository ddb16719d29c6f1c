package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEventMessage announces one audited mutation. It carries only
// identifiers; consumers fetch the current row from storage.
type LedgerEventMessage struct {
	LogID      string    `json:"log_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewLedgerEventMessage creates a message stamped with the current time.
func NewLedgerEventMessage(logID, entityType, entityID, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		LogID:      logID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes a message body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
