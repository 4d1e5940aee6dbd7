package cmd

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/tembohq/sms-gateway/internal/config"
	"github.com/tembohq/sms-gateway/internal/db"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo tenants and credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo tenants...")

		if err := seedTenants(sqlDB); err != nil {
			return err
		}
		if err := seedCredentials(sqlDB); err != nil {
			return err
		}
		if err := ensureBalances(sqlDB); err != nil {
			return err
		}
		if err := seedDefaultSenders(sqlDB, cfg.SMS.DefaultSender); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type seedTenant struct {
	name        string
	status      string
	countryCode string
	apiKey      string
	canWrite    bool
	perMinute   *int
}

var demoTenants = []seedTenant{
	{name: "Duka Retail", status: "active", countryCode: "255", apiKey: "11111111111111111111111111111111", canWrite: true, perMinute: intptr(20)},
	{name: "Pesa Wallet", status: "active", countryCode: "255", apiKey: "22222222222222222222222222222222", canWrite: true, perMinute: intptr(200)},
	{name: "Safari Tours", status: "active", countryCode: "254", apiKey: "33333333333333333333333333333333", canWrite: true},
	{name: "Suspended Inc", status: "suspended", countryCode: "255", apiKey: "44444444444444444444444444444444", canWrite: true},
	{name: "Readonly Analytics", status: "active", countryCode: "255", apiKey: "55555555555555555555555555555555", canWrite: false},
}

// seedTenants upserts the deterministic demo tenants (idempotent on name).
func seedTenants(dbx *sqlx.DB) error {
	const q = `
INSERT INTO tenants (name, status, country_code, created_at, updated_at)
VALUES (?, ?, ?, NOW(), NOW())
ON DUPLICATE KEY UPDATE
    status       = VALUES(status),
    country_code = VALUES(country_code),
    updated_at   = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range demoTenants {
		if _, err := tx.Exec(q, t.name, t.status, t.countryCode); err != nil {
			return fmt.Errorf("insert tenant %q: %w", t.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenants: %w", err)
	}
	return nil
}

// seedCredentials upserts one API credential per demo tenant (idempotent on api_key).
func seedCredentials(dbx *sqlx.DB) error {
	const q = `
INSERT INTO api_credentials
    (tenant_id, api_key, status, can_read, can_write, limit_per_minute, created_at, updated_at)
SELECT t.id, ?, 'active', 1, ?, ?, NOW(), NOW()
FROM tenants t
WHERE t.name = ?
ON DUPLICATE KEY UPDATE
    can_write        = VALUES(can_write),
    limit_per_minute = VALUES(limit_per_minute),
    updated_at       = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range demoTenants {
		if _, err := tx.Exec(q, t.apiKey, t.canWrite, t.perMinute, t.name); err != nil {
			return fmt.Errorf("insert credential for %q: %w", t.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

// ensureBalances creates zero credit_balances rows for tenants missing one.
func ensureBalances(dbx *sqlx.DB) error {
	const q = `
INSERT INTO credit_balances (tenant_id, credits, total_purchased, total_used, created_at, updated_at)
SELECT t.id, 0, 0, 0, NOW(), NOW()
FROM tenants t
LEFT JOIN credit_balances b ON b.tenant_id = t.id
WHERE b.tenant_id IS NULL
`
	if _, err := dbx.Exec(q); err != nil {
		return fmt.Errorf("ensure balances: %w", err)
	}
	return nil
}

// seedDefaultSenders provisions the reserved default sender identity for every tenant.
func seedDefaultSenders(dbx *sqlx.DB, identifier string) error {
	const q = `
INSERT INTO sender_identities (tenant_id, identifier, sample_content, status, created_at, updated_at)
SELECT t.id, ?, 'Default sender', 'active', NOW(), NOW()
FROM tenants t
LEFT JOIN sender_identities s ON s.tenant_id = t.id AND s.identifier = ?
WHERE s.id IS NULL
`
	if _, err := dbx.Exec(q, identifier, identifier); err != nil {
		return fmt.Errorf("ensure default senders: %w", err)
	}
	return nil
}

func intptr(i int) *int { return &i }
