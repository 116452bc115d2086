package loans

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataPreservesUnknownKeys(t *testing.T) {
	guarantor := uuid.New()
	raw := json.RawMessage(`{"guarantorId":"` + guarantor.String() + `","pixKey":"member@pix","purpose":"tuition"}`)

	meta, err := DecodeMetadata(raw)
	require.NoError(t, err)
	require.NotNil(t, meta.GuarantorID)
	assert.Equal(t, guarantor, *meta.GuarantorID)
	assert.Equal(t, "member@pix", meta.PixKey)

	meta.Liquidation = &LiquidationStamp{
		Amount:        dec("200"),
		QuotaValue:    dec("250"),
		Surplus:       dec("50"),
		QuotasDeleted: 2,
		GuarantorUsed: true,
		LiquidatedAt:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	encoded, err := meta.Encode()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(encoded, &doc))
	assert.Equal(t, "tuition", doc["purpose"])
	assert.Equal(t, guarantor.String(), doc["guarantorId"])
	require.Contains(t, doc, "liquidation")

	again, err := DecodeMetadata(encoded)
	require.NoError(t, err)
	require.NotNil(t, again.Liquidation)
	assert.True(t, again.Liquidation.Amount.Equal(dec("200")))
	assert.True(t, again.Liquidation.GuarantorUsed)
}

func TestDecodeMetadataEdgeCases(t *testing.T) {
	meta, err := DecodeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, meta.GuarantorID)

	meta, err = DecodeMetadata(json.RawMessage(`{"guarantorId":""}`))
	require.NoError(t, err)
	assert.Nil(t, meta.GuarantorID)

	_, err = DecodeMetadata(json.RawMessage(`[1,2]`))
	assert.Error(t, err)

	_, err = DecodeMetadata(json.RawMessage(`{"guarantorId":"not-a-uuid"}`))
	assert.Error(t, err)
}
