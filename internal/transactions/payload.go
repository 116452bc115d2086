package transactions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

// Payload is the typed metadata of one transaction row. The set of variants is
// closed; Process switches over it.
type Payload interface {
	Type() enums.TransactionType
}

// Funding says how the member paid for a request.
type Funding struct {
	UseBalance    bool                `json:"useBalance"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod,omitempty" validate:"omitempty,enum"`
}

// FromBalance reports whether the request was debited from the wallet when it was created.
func (f Funding) FromBalance() bool {
	return f.UseBalance
}

// External reports whether money arrived through a payment processor.
func (f Funding) External() bool {
	return !f.UseBalance && f.PaymentMethod.IsExternal()
}

type BuyQuota struct {
	Funding
	Quantity   int             `json:"quantity" validate:"required,min=1"`
	BasePrice  decimal.Decimal `json:"basePrice" validate:"gte=0"`
	ServiceFee decimal.Decimal `json:"serviceFee" validate:"gte=0"`
}

type LoanPayment struct {
	Funding
	LoanID        uuid.UUID `json:"loanId" validate:"required"`
	IsInstallment bool      `json:"isInstallment"`
}

type Withdrawal struct {
	PixKey    string           `json:"pixKey" validate:"required"`
	FeeAmount *decimal.Decimal `json:"feeAmount,omitempty"`
	NetAmount *decimal.Decimal `json:"netAmount,omitempty"`
}

type Deposit struct {
	PaymentMethod enums.PaymentMethod `json:"paymentMethod,omitempty" validate:"omitempty,enum"`
}

type MembershipUpgrade struct {
	Funding
	Tier enums.MembershipTier `json:"tier" validate:"required,enum"`
}

type MarketPurchase struct {
	Funding
	OrderID     uuid.UUID       `json:"orderId" validate:"required"`
	PlatformFee decimal.Decimal `json:"platformFee" validate:"gte=0"`
}

type MarketBoost struct {
	Funding
	ListingID     uuid.UUID `json:"listingId" validate:"required"`
	DurationHours int       `json:"durationHours" validate:"required,min=1,max=720"`
}

// ReferralBonus is written by the ledger itself when a referred member buys quotas.
type ReferralBonus struct {
	ReferredUserID      uuid.UUID `json:"referredUserId" validate:"required"`
	SourceTransactionID uuid.UUID `json:"sourceTransactionId" validate:"required"`
}

func (*BuyQuota) Type() enums.TransactionType          { return enums.TransactionTypeBuyQuota }
func (*LoanPayment) Type() enums.TransactionType       { return enums.TransactionTypeLoanPayment }
func (*Withdrawal) Type() enums.TransactionType        { return enums.TransactionTypeWithdrawal }
func (*Deposit) Type() enums.TransactionType           { return enums.TransactionTypeDeposit }
func (*MembershipUpgrade) Type() enums.TransactionType { return enums.TransactionTypeMembershipUpgrade }
func (*MarketPurchase) Type() enums.TransactionType    { return enums.TransactionTypeMarketPurchase }
func (*MarketBoost) Type() enums.TransactionType       { return enums.TransactionTypeMarketBoost }
func (*ReferralBonus) Type() enums.TransactionType     { return enums.TransactionTypeReferralBonus }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if id, ok := field.Interface().(uuid.UUID); ok && id != uuid.Nil {
			return id.String()
		}
		return ""
	}, uuid.UUID{})
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(interface{ IsValid() bool })
		return ok && value.IsValid()
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		funding := sl.Current().Interface().(Funding)
		if !funding.UseBalance && funding.PaymentMethod == "" {
			sl.ReportError(funding.PaymentMethod, "paymentMethod", "PaymentMethod", "funding", "")
		}
	}, Funding{})
	return v
}

// DecodePayload parses and validates the metadata of a transaction of the given type.
func DecodePayload(txnType enums.TransactionType, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch txnType {
	case enums.TransactionTypeBuyQuota:
		payload = &BuyQuota{}
	case enums.TransactionTypeLoanPayment:
		payload = &LoanPayment{}
	case enums.TransactionTypeWithdrawal:
		payload = &Withdrawal{}
	case enums.TransactionTypeDeposit:
		payload = &Deposit{}
	case enums.TransactionTypeMembershipUpgrade:
		payload = &MembershipUpgrade{}
	case enums.TransactionTypeMarketPurchase:
		payload = &MarketPurchase{}
	case enums.TransactionTypeMarketBoost:
		payload = &MarketBoost{}
	case enums.TransactionTypeReferralBonus:
		payload = &ReferralBonus{}
	case enums.TransactionTypeSystemLiquidation, enums.TransactionTypeSystemAdjustment, enums.TransactionTypeLoanApproved:
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s transactions are written by the ledger and cannot be decided", txnType)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown transaction type %q", txnType)
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction metadata").
				WithDetails(map[string]any{"type": txnType, "error": err.Error()})
		}
	}
	if err := validate.Struct(payload); err != nil {
		return nil, formatValidationErrors(err)
	}
	return payload, nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction metadata").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction metadata")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "enum":
		return "is not a known value"
	case "funding":
		return "is required unless paid from balance"
	}
	return "is invalid"
}

// stampMetadata merges fields into the row's metadata, keeping every existing key.
func stampMetadata(raw json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &merged); err != nil {
			return nil, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	for key, value := range fields {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode metadata key %s: %w", key, err)
		}
		merged[key] = encoded
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode transaction metadata: %w", err)
	}
	return out, nil
}
