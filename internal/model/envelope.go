package model

import "time"

// Envelope is the event published to Kafka once a voicemail was relayed.
type Envelope struct {
	ID           string         `json:"id"`     // delivery ULID
	RunID        string         `json:"run_id"` // pass ULID
	MessageID    string         `json:"message_id"`
	ExtensionID  string         `json:"extension_id"`
	CallerName   string         `json:"caller_name,omitempty"`
	CallerNumber string         `json:"caller_number,omitempty"`
	ReceivedAt   string         `json:"received_at,omitempty"`
	Status       DeliveryStatus `json:"status"`
	RelayedAt    time.Time      `json:"relayed_at"`
}
