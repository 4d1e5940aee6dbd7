package model

import "time"

// CreditBalance is the per-tenant prepaid balance. Mutated only through the
// ledger's reserve/refund/topup operations; credits must always equal
// total_purchased - total_used.
type CreditBalance struct {
	TenantID       int64     `db:"tenant_id"`
	Credits        int64     `db:"credits"`
	TotalPurchased int64     `db:"total_purchased"`
	TotalUsed      int64     `db:"total_used"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
