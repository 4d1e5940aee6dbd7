package model

import "time"

// DeliveryCheckJob is the payload published to Kafka (via the outbox relay)
// that schedules a delivery-status check for one message. The tracker
// reschedules by republishing with attempt+1 and a later not_before.
type DeliveryCheckJob struct {
	MessageID  string    `json:"message_id"`
	TenantID   int64     `json:"tenant_id"`
	Provider   string    `json:"provider"`
	TrackingID string    `json:"tracking_id"`
	DestAddr   string    `json:"dest_addr"`
	Attempt    int       `json:"attempt"`
	NotBefore  time.Time `json:"not_before"`
}
