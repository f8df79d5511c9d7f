package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction is one STK push and its outcome. CorrelationID is the gateway's
// CheckoutRequestID and the only key a callback can be matched on.
type Transaction struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	Reference         string          `gorm:"size:16;not null;index" json:"reference"`
	CorrelationID     string          `gorm:"column:checkout_request_id;size:64;not null;uniqueIndex" json:"correlation_id"`
	MerchantRequestID string          `gorm:"size:64" json:"merchant_request_id"`
	Phone             string          `gorm:"size:12;not null" json:"phone"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status            string          `gorm:"size:20;not null;index" json:"status"`
	Receipt           *string         `gorm:"column:mpesa_receipt;size:32" json:"receipt"`
	FailureReason     *string         `gorm:"size:255" json:"failure_reason"`
	ResultCode        *int            `json:"result_code"`
	CallbackPayload   datatypes.JSON  `json:"-"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "payments"
}

// Resolution is the terminal outcome a callback applies to a pending transaction.
type Resolution struct {
	Status        string
	Receipt       *string
	FailureReason *string
	ResultCode    int
	Payload       datatypes.JSON
	ResolvedAt    time.Time
}
