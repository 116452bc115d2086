package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReserveAccountID is the primary key of the single reserve row.
const ReserveAccountID = 1

// ReserveAccount is the system-wide money aggregate.
type ReserveAccount struct {
	ID                  int             `gorm:"column:id;primaryKey"`
	OperatingCash       decimal.Decimal `gorm:"column:operating_cash;type:numeric(18,2);not null;default:0"`
	ProfitPool          decimal.Decimal `gorm:"column:profit_pool;type:numeric(18,2);not null;default:0"`
	TaxReserve          decimal.Decimal `gorm:"column:tax_reserve;type:numeric(18,2);not null;default:0"`
	OperationalReserve  decimal.Decimal `gorm:"column:operational_reserve;type:numeric(18,2);not null;default:0"`
	OwnerProfit         decimal.Decimal `gorm:"column:owner_profit;type:numeric(18,2);not null;default:0"`
	InvestmentReserve   decimal.Decimal `gorm:"column:investment_reserve;type:numeric(18,2);not null;default:0"`
	CreditGuaranteeFund decimal.Decimal `gorm:"column:credit_guarantee_fund;type:numeric(18,2);not null;default:0"`
	TotalGatewayCosts   decimal.Decimal `gorm:"column:total_gateway_costs;type:numeric(18,2);not null;default:0"`
	TotalManualCosts    decimal.Decimal `gorm:"column:total_manual_costs;type:numeric(18,2);not null;default:0"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
