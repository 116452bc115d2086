// Package testutil opens throwaway sqlite ledgers for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/db"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
)

// schema mirrors the goose migration with sqlite types. Money stays NUMERIC so
// comparisons and arithmetic run on numbers, not strings.
var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
		score INTEGER NOT NULL DEFAULT 0 CHECK (score >= 0),
		referred_by TEXT,
		membership_tier TEXT NOT NULL DEFAULT 'FREE',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE reserve_accounts (
		id INTEGER PRIMARY KEY,
		operating_cash NUMERIC NOT NULL DEFAULT 0,
		profit_pool NUMERIC NOT NULL DEFAULT 0,
		tax_reserve NUMERIC NOT NULL DEFAULT 0,
		operational_reserve NUMERIC NOT NULL DEFAULT 0,
		owner_profit NUMERIC NOT NULL DEFAULT 0,
		investment_reserve NUMERIC NOT NULL DEFAULT 0,
		credit_guarantee_fund NUMERIC NOT NULL DEFAULT 0,
		total_gateway_costs NUMERIC NOT NULL DEFAULT 0,
		total_manual_costs NUMERIC NOT NULL DEFAULT 0,
		updated_at DATETIME
	)`,
	`CREATE TABLE quotas (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		purchase_price NUMERIC NOT NULL,
		current_value NUMERIC NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE loans (
		id TEXT PRIMARY KEY,
		borrower_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		total_repayment NUMERIC NOT NULL,
		original_amount NUMERIC NOT NULL,
		original_total_repayment NUMERIC NOT NULL,
		installments_plan INTEGER NOT NULL,
		status TEXT NOT NULL,
		due_date DATETIME,
		approved_at DATETIME,
		metadata BLOB,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE loan_installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		source TEXT NOT NULL,
		fgc_covered BOOLEAN NOT NULL DEFAULT 0,
		transaction_id TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		payout_status TEXT NOT NULL DEFAULT 'NONE',
		description TEXT,
		metadata BLOB,
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		actor_id TEXT,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		old_values BLOB,
		new_values BLOB,
		created_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE market_listings (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		boosted BOOLEAN NOT NULL DEFAULT 0,
		boosted_until DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE market_orders (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		price NUMERIC NOT NULL,
		status TEXT NOT NULL,
		paid_at DATETIME,
		updated_at DATETIME
	)`,
	`INSERT INTO reserve_accounts (id) VALUES (1)`,
}

// OpenDB returns an isolated in-memory ledger with the reserve row seeded.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// OpenClient wraps OpenDB in the transaction runner used by services.
func OpenClient(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := OpenDB(t)
	return db.NewFromConn(conn), conn
}

// Dec parses a literal amount and fails the test on bad input.
func Dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return d
}

// SeedUser inserts a member with the given balance and score.
func SeedUser(t *testing.T, conn *gorm.DB, balance string, score int) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:             id,
		Name:           "member " + id.String()[:8],
		Email:          id.String() + "@club.test",
		Balance:        Dec(t, balance),
		Score:          score,
		MembershipTier: enums.MembershipTierFree,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedQuotas issues count quotas of the given value to owner, one second apart
// so ordering by creation is deterministic.
func SeedQuotas(t *testing.T, conn *gorm.DB, owner uuid.UUID, count int, value string) []models.Quota {
	t.Helper()
	base := time.Now().UTC().Add(-time.Duration(count) * time.Hour)
	out := make([]models.Quota, 0, count)
	for i := 0; i < count; i++ {
		q := models.Quota{
			OwnerID:       owner,
			PurchasePrice: Dec(t, value),
			CurrentValue:  Dec(t, value),
			Status:        enums.QuotaStatusActive,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if err := conn.Create(&q).Error; err != nil {
			t.Fatalf("seed quota: %v", err)
		}
		out = append(out, q)
	}
	return out
}

// SetReserve overwrites reserve buckets by column name.
func SetReserve(t *testing.T, conn *gorm.DB, buckets map[string]string) {
	t.Helper()
	updates := make(map[string]any, len(buckets))
	for column, value := range buckets {
		updates[column] = Dec(t, value)
	}
	if err := conn.Model(&models.ReserveAccount{}).Where("id = ?", models.ReserveAccountID).Updates(updates).Error; err != nil {
		t.Fatalf("set reserve: %v", err)
	}
}

// Reserve reads the reserve row.
func Reserve(t *testing.T, conn *gorm.DB) models.ReserveAccount {
	t.Helper()
	var acct models.ReserveAccount
	if err := conn.First(&acct, models.ReserveAccountID).Error; err != nil {
		t.Fatalf("load reserve: %v", err)
	}
	return acct
}

// User reloads a member.
func User(t *testing.T, conn *gorm.DB, id uuid.UUID) models.User {
	t.Helper()
	var user models.User
	if err := conn.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user
}

// RequireMoney fails when got and want differ at currency precision.
func RequireMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Round(2).Equal(Dec(t, want).Round(2)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got.StringFixed(2))
	}
}
