package service

import (
	"context"

	"dovepay/internal/models"
	"dovepay/internal/repository"
	"dovepay/pkg/payment"
)

// Collaborators of PaymentService.
//
//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=interface.go
type Gateway interface {
	InitiatePayment(ctx context.Context, req payment.PaymentRequest) (*payment.PaymentResponse, error)
	QueryPayment(ctx context.Context, checkoutRequestID string) (*payment.QueryResponse, error)
}

// TransactionStore is implemented by repository.TransactionRepository (MySQL)
// and repository.MongoTransactionRepository.
type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error)
	Resolve(ctx context.Context, correlationID string, res models.Resolution) (bool, error)
	List(ctx context.Context, f repository.ListFilter) ([]models.Transaction, error)
}

type Notifier interface {
	PaymentCompleted(ctx context.Context, t *models.Transaction) error
}
