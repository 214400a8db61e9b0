package model

import "time"

type DeliveryStatus string

const (
	StatusPosted DeliveryStatus = "posted" // webhook accepted, mark-read failed
	StatusAcked  DeliveryStatus = "acked"  // webhook accepted and marked read
	StatusFailed DeliveryStatus = "failed" // webhook rejected; message left unread
)

func (s DeliveryStatus) String() string {
	return string(s)
}

func (s DeliveryStatus) Valid() bool {
	return s == StatusPosted || s == StatusAcked || s == StatusFailed
}

// Delivery is the journal entity persisted in the deliveries table.
type Delivery struct {
	ID           string         `db:"id"`
	RunID        string         `db:"run_id"`
	MessageID    string         `db:"message_id"`
	ExtensionID  string         `db:"extension_id"`
	CallerName   string         `db:"caller_name"`
	CallerNumber string         `db:"caller_number"`
	ReceivedAt   *time.Time     `db:"received_at"` // nullable
	Status       DeliveryStatus `db:"status"`
	Error        string         `db:"error"`
	CreatedAt    time.Time      `db:"created_at"`
}
