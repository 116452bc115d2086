package loans

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OriginationFee is the fee breakdown stamped at approval.
type OriginationFee struct {
	Fee         decimal.Decimal `json:"fee"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	Guarantee   decimal.Decimal `json:"guarantee"`
	Tax         decimal.Decimal `json:"tax"`
	Operational decimal.Decimal `json:"operational"`
	Owner       decimal.Decimal `json:"owner"`
	Investment  decimal.Decimal `json:"investment"`
}

// LiquidationStamp records a forced collateral sale.
type LiquidationStamp struct {
	Amount          decimal.Decimal `json:"amount"`
	QuotaValue      decimal.Decimal `json:"quotaValue"`
	Surplus         decimal.Decimal `json:"surplus"`
	QuotasDeleted   int             `json:"quotasDeleted"`
	GuarantorUsed   bool            `json:"guarantorUsed"`
	GuarantorAmount decimal.Decimal `json:"guarantorAmount"`
	LiquidatedAt    time.Time       `json:"liquidatedAt"`
}

// GuaranteeStamp records a write-off paid by the guarantee fund.
type GuaranteeStamp struct {
	Amount    decimal.Decimal `json:"amount"`
	CoveredAt time.Time       `json:"coveredAt"`
	Partial   bool            `json:"partial"`
}

// Metadata is the typed view of a loan's metadata column. Keys written by
// other features are kept untouched on Encode.
type Metadata struct {
	GuarantorID    *uuid.UUID
	PixKey         string
	OriginationFee *OriginationFee
	Liquidation    *LiquidationStamp
	Guarantee      *GuaranteeStamp

	extra map[string]json.RawMessage
}

const (
	keyGuarantorID    = "guarantorId"
	keyPixKey         = "pixKey"
	keyOriginationFee = "originationFee"
	keyLiquidation    = "liquidation"
	keyGuarantee      = "fgc"
)

// DecodeMetadata parses raw loan metadata. Empty input yields empty metadata.
func DecodeMetadata(raw json.RawMessage) (*Metadata, error) {
	meta := &Metadata{extra: map[string]json.RawMessage{}}
	if len(raw) == 0 || string(raw) == "null" {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta.extra); err != nil {
		return nil, fmt.Errorf("decode loan metadata: %w", err)
	}

	if v, ok := meta.extra[keyGuarantorID]; ok && string(v) != "null" && string(v) != `""` {
		var id uuid.UUID
		if err := json.Unmarshal(v, &id); err != nil {
			return nil, fmt.Errorf("decode guarantor id: %w", err)
		}
		if id != uuid.Nil {
			meta.GuarantorID = &id
		}
	}
	if v, ok := meta.extra[keyPixKey]; ok {
		_ = json.Unmarshal(v, &meta.PixKey)
	}
	if err := decodeKey(meta.extra, keyOriginationFee, &meta.OriginationFee); err != nil {
		return nil, err
	}
	if err := decodeKey(meta.extra, keyLiquidation, &meta.Liquidation); err != nil {
		return nil, err
	}
	if err := decodeKey(meta.extra, keyGuarantee, &meta.Guarantee); err != nil {
		return nil, err
	}
	return meta, nil
}

func decodeKey[T any](fields map[string]json.RawMessage, key string, dest **T) error {
	v, ok := fields[key]
	if !ok || string(v) == "null" {
		return nil
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	*dest = &out
	return nil
}

// Encode merges the typed fields back over the original document.
func (m *Metadata) Encode() (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(m.extra)+5)
	for k, v := range m.extra {
		out[k] = v
	}
	set := func(key string, value any, present bool) error {
		if !present {
			return nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}
	if err := set(keyGuarantorID, m.GuarantorID, m.GuarantorID != nil); err != nil {
		return nil, err
	}
	if err := set(keyPixKey, m.PixKey, m.PixKey != ""); err != nil {
		return nil, err
	}
	if err := set(keyOriginationFee, m.OriginationFee, m.OriginationFee != nil); err != nil {
		return nil, err
	}
	if err := set(keyLiquidation, m.Liquidation, m.Liquidation != nil); err != nil {
		return nil, err
	}
	if err := set(keyGuarantee, m.Guarantee, m.Guarantee != nil); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}
