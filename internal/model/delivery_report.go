package model

import "time"

// DeliveryReport is an append-only record of one upstream delivery
// confirmation. Duplicates may arrive; rows are deduplicated on
// (message_id, status) and applying one never mutates a terminal message.
type DeliveryReport struct {
	ID         int64     `db:"id"`
	MessageID  string    `db:"message_id"`
	TrackingID string    `db:"tracking_id"`
	DestAddr   string    `db:"dest_addr"`
	Status     string    `db:"status"` // DELIVERED|UNDELIVERED|PENDING
	RawPayload []byte    `db:"raw_payload"`
	ReceivedAt time.Time `db:"received_at"`
}
