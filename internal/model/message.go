package model

import "time"

type MessageStatus string

const (
	StatusQueued      MessageStatus = "queued"
	StatusSent        MessageStatus = "sent"
	StatusDelivered   MessageStatus = "delivered"
	StatusUndelivered MessageStatus = "undelivered"
	StatusFailed      MessageStatus = "failed"
)

func (s MessageStatus) String() string { return string(s) }

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusSent, StatusDelivered, StatusUndelivered, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status mutation is permitted.
func (s MessageStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusUndelivered || s == StatusFailed
}

// Message is one outbound SMS to one destination. A multi-recipient send
// produces one row per recipient sharing batch_id and, once dispatched, the
// provider tracking id.
type Message struct {
	ID          string        `db:"id"` // ULID
	BatchID     string        `db:"batch_id"`
	TenantID    int64         `db:"tenant_id"`
	SenderID    int64         `db:"sender_id"` // sender_identities.id
	Sender      string        `db:"sender"`    // identifier snapshot
	Provider    string        `db:"provider"`
	DestAddr    string        `db:"dest_addr"`
	Body        string        `db:"body"`
	Encoding    string        `db:"encoding"` // gsm7|ucs2
	Segments    int           `db:"segments"`
	CostCredits int64         `db:"cost_credits"`
	Status      MessageStatus `db:"status"`
	TrackingID  *string       `db:"tracking_id"`
	ErrorCode   *string       `db:"error_code"`
	ErrorMsg    *string       `db:"error_message"`
	CreatedAt   time.Time     `db:"created_at"`
	SentAt      *time.Time    `db:"sent_at"`
	DeliveredAt *time.Time    `db:"delivered_at"`
	FailedAt    *time.Time    `db:"failed_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}
