package repository

import (
	"context"
	"fmt"
	"time"

	"ledger-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type TransactionRepository interface {
	Create(tx *domain.Transaction) error
	FindByID(id string) (*domain.Transaction, error)
	FindByOwner(ownerID string, page, limit int) ([]*domain.Transaction, int, error)
	// FindBatch returns one page of an owner's transactions for revaluation,
	// bounded by limit so a job never loads the whole set at once. A nil
	// startDate means unbounded; empty currencies means all currencies.
	FindBatch(ownerID string, startDate *time.Time, currencies []string, limit, skip int) ([]*domain.Transaction, error)
	Update(tx *domain.Transaction) error
	Delete(id string) error
}

type transactionRepository struct {
	client *kivik.Client
	dbName string
}

func NewTransactionRepository(client *kivik.Client, dbName string) TransactionRepository {
	return &transactionRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *transactionRepository) Create(tx *domain.Transaction) error {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("transaction:%s", tx.ID)
	_, err := db.Put(context.Background(), docID, tx)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

func (r *transactionRepository) FindByID(id string) (*domain.Transaction, error) {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("transaction:%s", id)
	row := db.Get(context.Background(), docID)

	var tx domain.Transaction
	if err := row.ScanDoc(&tx); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}

	if tx.IsDeleted {
		return nil, ErrNotFound
	}

	return &tx, nil
}

func (r *transactionRepository) FindByOwner(ownerID string, page, limit int) ([]*domain.Transaction, int, error) {
	db := r.client.DB(r.dbName)

	selector := map[string]interface{}{
		"owner_id":   ownerID,
		"kind":       map[string]interface{}{"$exists": true},
		"is_deleted": false,
	}

	total, err := r.count(db, selector)
	if err != nil {
		return nil, 0, err
	}

	query := map[string]interface{}{
		"selector": selector,
		"sort":     []map[string]string{{"date": "desc"}},
		"limit":    limit,
		"skip":     (page - 1) * limit,
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.ScanDoc(&tx); err != nil {
			continue // Skip malformed docs
		}
		txs = append(txs, &tx)
	}

	return txs, total, nil
}

func (r *transactionRepository) FindBatch(ownerID string, startDate *time.Time, currencies []string, limit, skip int) ([]*domain.Transaction, error) {
	db := r.client.DB(r.dbName)

	selector := map[string]interface{}{
		"owner_id":   ownerID,
		"kind":       map[string]interface{}{"$exists": true},
		"is_deleted": false,
	}
	if startDate != nil {
		selector["date"] = map[string]interface{}{"$gte": startDate.Format(time.RFC3339)}
	}
	if len(currencies) > 0 {
		selector["original_currency"] = map[string]interface{}{"$in": currencies}
	}

	query := map[string]interface{}{
		"selector": selector,
		"sort":     []map[string]string{{"date": "asc"}},
		"limit":    limit,
		"skip":     skip,
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query transaction batch: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.ScanDoc(&tx); err != nil {
			continue
		}
		txs = append(txs, &tx)
	}

	return txs, nil
}

func (r *transactionRepository) Update(tx *domain.Transaction) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("transaction:%s", tx.ID)

	var existingDoc map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existingDoc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch existing transaction for update: %w", err)
	}

	existingDoc["kind"] = tx.Kind
	existingDoc["description"] = tx.Description
	existingDoc["category"] = tx.Category
	existingDoc["merchant"] = tx.Merchant
	existingDoc["date"] = tx.Date
	existingDoc["original_amount"] = tx.OriginalAmount
	existingDoc["original_currency"] = tx.OriginalCurrency
	existingDoc["converted_amount"] = tx.ConvertedAmount
	existingDoc["converted_currency"] = tx.ConvertedCurrency
	existingDoc["exchange_rate"] = tx.ExchangeRate
	existingDoc["revaluation_history"] = tx.RevaluationHistory
	existingDoc["sync_clock"] = tx.SyncClock
	existingDoc["last_edit_device"] = tx.LastEditDevice
	existingDoc["updated_at"] = time.Now()
	existingDoc["is_deleted"] = tx.IsDeleted

	_, err := db.Put(context.Background(), docID, existingDoc)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	return nil
}

func (r *transactionRepository) Delete(id string) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("transaction:%s", id)

	var existingDoc map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existingDoc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch transaction for delete: %w", err)
	}

	existingDoc["is_deleted"] = true
	existingDoc["updated_at"] = time.Now()

	_, err := db.Put(context.Background(), docID, existingDoc)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	return nil
}

func (r *transactionRepository) count(db *kivik.DB, selector map[string]interface{}) (int, error) {
	query := map[string]interface{}{
		"selector": selector,
		"fields":   []string{"_id"},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		total++
	}
	return total, nil
}
