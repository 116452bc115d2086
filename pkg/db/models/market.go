package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/enums"
)

// MarketOrder is owned by the marketplace feature; the ledger only flips its
// status when the purchase is settled.
type MarketOrder struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ListingID uuid.UUID               `gorm:"column:listing_id;type:uuid;not null"`
	BuyerID   uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID  uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	Price     decimal.Decimal         `gorm:"column:price;type:numeric(18,2);not null"`
	Status    enums.MarketOrderStatus `gorm:"column:status;type:text;not null"`
	PaidAt    *time.Time              `gorm:"column:paid_at;type:timestamptz"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// MarketListing is owned by the marketplace feature; the ledger only toggles boosts.
type MarketListing struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SellerID     uuid.UUID  `gorm:"column:seller_id;type:uuid;not null"`
	Boosted      bool       `gorm:"column:boosted;not null;default:false"`
	BoostedUntil *time.Time `gorm:"column:boosted_until;type:timestamptz"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
