package model

import "time"

type SenderStatus string

const (
	SenderPending  SenderStatus = "pending"
	SenderActive   SenderStatus = "active"
	SenderInactive SenderStatus = "inactive"
	SenderRejected SenderStatus = "rejected"
)

func (s SenderStatus) String() string { return string(s) }

func (s SenderStatus) Valid() bool {
	switch s {
	case SenderPending, SenderActive, SenderInactive, SenderRejected:
		return true
	}
	return false
}

// SenderIdentity is an approved outbound "from" label owned by one tenant.
// Only identities in status active may be used to send.
type SenderIdentity struct {
	ID            int64        `db:"id"`
	TenantID      int64        `db:"tenant_id"`
	Identifier    string       `db:"identifier"` // <=11 alphanumeric chars
	SampleContent string       `db:"sample_content"`
	Status        SenderStatus `db:"status"`
	ReviewedBy    *string      `db:"reviewed_by"`
	ReviewedAt    *time.Time   `db:"reviewed_at"`
	ReviewReason  *string      `db:"review_reason"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}
