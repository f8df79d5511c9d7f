package repository

import (
	"context"
	"errors"

	"dovepay/internal/domain"
	"dovepay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("transaction not found")

// ListFilter narrows the admin listing. Zero values mean no filter.
type ListFilter struct {
	Status string
	Limit  int
}

// TransactionRepository stores transactions in the relational database. Every
// method is a single-row statement; no multi-row transactions are used.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TransactionRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.WithContext(ctx).Where("checkout_request_id = ?", correlationID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Resolve moves a pending transaction to its terminal state. It reports false
// when no pending row matched, either because none exists or because another
// callback already resolved it.
func (r *TransactionRepository) Resolve(ctx context.Context, correlationID string, res models.Resolution) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("checkout_request_id = ? AND status = ?", correlationID, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":           res.Status,
			"mpesa_receipt":    res.Receipt,
			"failure_reason":   res.FailureReason,
			"result_code":      res.ResultCode,
			"callback_payload": res.Payload,
			"updated_at":       res.ResolvedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List returns transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, f ListFilter) ([]models.Transaction, error) {
	q := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.Transaction
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
