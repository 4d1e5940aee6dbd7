package model

import "time"

type Tenant struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Status      string    `db:"status"`       // active|suspended
	CountryCode string    `db:"country_code"` // default calling code for short local numbers
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// APICredential authenticates inbound requests and maps them to exactly one tenant.
type APICredential struct {
	ID       int64  `db:"id"`
	TenantID int64  `db:"tenant_id"`
	APIKey   string `db:"api_key"`
	Status   string `db:"status"` // active|revoked
	CanRead  bool   `db:"can_read"`
	CanWrite bool   `db:"can_write"`

	// Per-credential rate ceilings; nil means the configured default applies.
	LimitPerMinute *int `db:"limit_per_minute"`
	LimitPerHour   *int `db:"limit_per_hour"`
	LimitPerDay    *int `db:"limit_per_day"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
