package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dovepay/internal/domain"
	"dovepay/internal/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 5 * time.Second

// MongoTransactionRepository stores transactions as documents in one collection.
type MongoTransactionRepository struct {
	coll *mongo.Collection
}

func NewMongoTransactionRepository(coll *mongo.Collection) *MongoTransactionRepository {
	return &MongoTransactionRepository{coll: coll}
}

type mongoTransaction struct {
	ID                string               `bson:"_id"`
	Reference         string               `bson:"reference"`
	CorrelationID     string               `bson:"checkout_request_id"`
	MerchantRequestID string               `bson:"merchant_request_id,omitempty"`
	Phone             string               `bson:"phone"`
	Amount            primitive.Decimal128 `bson:"amount"`
	Status            string               `bson:"status"`
	Receipt           *string              `bson:"mpesa_receipt"`
	FailureReason     *string              `bson:"failure_reason"`
	ResultCode        *int                 `bson:"result_code,omitempty"`
	CallbackPayload   string               `bson:"callback_payload,omitempty"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

func toMongo(t *models.Transaction) (*mongoTransaction, error) {
	amount, err := primitive.ParseDecimal128(t.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("amount %s: %w", t.Amount, err)
	}
	return &mongoTransaction{
		ID:                t.ID,
		Reference:         t.Reference,
		CorrelationID:     t.CorrelationID,
		MerchantRequestID: t.MerchantRequestID,
		Phone:             t.Phone,
		Amount:            amount,
		Status:            t.Status,
		Receipt:           t.Receipt,
		FailureReason:     t.FailureReason,
		ResultCode:        t.ResultCode,
		CallbackPayload:   string(t.CallbackPayload),
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}, nil
}

func (m *mongoTransaction) toModel() (*models.Transaction, error) {
	amount, err := decimal.NewFromString(m.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("amount %s: %w", m.Amount, err)
	}
	t := &models.Transaction{
		ID:                m.ID,
		Reference:         m.Reference,
		CorrelationID:     m.CorrelationID,
		MerchantRequestID: m.MerchantRequestID,
		Phone:             m.Phone,
		Amount:            amount,
		Status:            m.Status,
		Receipt:           m.Receipt,
		FailureReason:     m.FailureReason,
		ResultCode:        m.ResultCode,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.CallbackPayload != "" {
		t.CallbackPayload = []byte(m.CallbackPayload)
	}
	return t, nil
}

// EnsureIndexes creates the unique correlation id index and the listing index.
func (r *MongoTransactionRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "checkout_request_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *MongoTransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	doc, err := toMongo(t)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return err
}

func (r *MongoTransactionRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	var doc mongoTransaction
	err := r.coll.FindOne(ctx, bson.M{"checkout_request_id": correlationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel()
}

func (r *MongoTransactionRepository) Resolve(ctx context.Context, correlationID string, res models.Resolution) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	set := bson.M{
		"status":         res.Status,
		"mpesa_receipt":  res.Receipt,
		"failure_reason": res.FailureReason,
		"result_code":    res.ResultCode,
		"updated_at":     res.ResolvedAt,
	}
	if len(res.Payload) > 0 {
		set["callback_payload"] = string(res.Payload)
	}
	out, err := r.coll.UpdateOne(ctx,
		bson.M{"checkout_request_id": correlationID, "status": domain.StatusPending},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return out.ModifiedCount == 1, nil
}

func (r *MongoTransactionRepository) List(ctx context.Context, f ListFilter) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []mongoTransaction
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Transaction, 0, len(docs))
	for i := range docs {
		t, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
