package repository

import (
	"context"
	"fmt"
	"time"

	"ledger-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type ConflictRepository interface {
	Create(record *domain.ConflictRecord) error
	Get(id string) (*domain.ConflictRecord, error)
	// FindOpen returns the open conflict for the entity, or ErrNotFound when
	// no open record exists. At most one open record per entity is expected.
	FindOpen(entityID, entityType string) (*domain.ConflictRecord, error)
	Update(record *domain.ConflictRecord) error
	ListByOwner(ownerID string, status domain.ConflictStatus) ([]*domain.ConflictRecord, error)
	// DeleteResolvedBefore bulk-deletes resolved records whose resolved_at is
	// older than the cutoff and returns how many were removed.
	DeleteResolvedBefore(cutoff time.Time) (int, error)
	// IgnoreStaleOpenBefore bulk-marks open records created before the cutoff
	// as ignored with the auto_merge strategy, leaving resolved_state unset.
	IgnoreStaleOpenBefore(cutoff time.Time) (int, error)
}

type conflictRepository struct {
	client *kivik.Client
	dbName string
}

func NewConflictRepository(client *kivik.Client, dbName string) ConflictRepository {
	return &conflictRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *conflictRepository) Create(record *domain.ConflictRecord) error {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("conflict:%s", record.ID)
	_, err := db.Put(context.Background(), docID, record)
	if err != nil {
		return fmt.Errorf("failed to create conflict record: %w", err)
	}

	return nil
}

func (r *conflictRepository) Get(id string) (*domain.ConflictRecord, error) {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("conflict:%s", id)
	row := db.Get(context.Background(), docID)

	var record domain.ConflictRecord
	if err := row.ScanDoc(&record); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find conflict record: %w", err)
	}

	return &record, nil
}

func (r *conflictRepository) FindOpen(entityID, entityType string) (*domain.ConflictRecord, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"entity_id":   entityID,
			"entity_type": entityType,
			"status":      domain.ConflictOpen,
		},
		"limit": 1,
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query open conflict: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}

	var record domain.ConflictRecord
	if err := rows.ScanDoc(&record); err != nil {
		return nil, fmt.Errorf("failed to scan conflict record: %w", err)
	}

	return &record, nil
}

func (r *conflictRepository) Update(record *domain.ConflictRecord) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("conflict:%s", record.ID)

	var existingDoc map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existingDoc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch existing conflict for update: %w", err)
	}

	existingDoc["base_state"] = record.BaseState
	existingDoc["conflicting_states"] = record.ConflictingStates
	existingDoc["resolved_state"] = record.ResolvedState
	existingDoc["resolved_at"] = record.ResolvedAt
	existingDoc["resolution_strategy"] = record.ResolutionStrategy
	existingDoc["status"] = record.Status
	existingDoc["updated_at"] = time.Now()

	_, err := db.Put(context.Background(), docID, existingDoc)
	if err != nil {
		return fmt.Errorf("failed to update conflict record: %w", err)
	}

	return nil
}

func (r *conflictRepository) ListByOwner(ownerID string, status domain.ConflictStatus) ([]*domain.ConflictRecord, error) {
	db := r.client.DB(r.dbName)

	selector := map[string]interface{}{
		"owner_id":    ownerID,
		"entity_type": map[string]interface{}{"$exists": true},
	}
	if status != "" {
		selector["status"] = status
	}

	rows := db.Find(context.Background(), map[string]interface{}{"selector": selector})
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var records []*domain.ConflictRecord
	for rows.Next() {
		var record domain.ConflictRecord
		if err := rows.ScanDoc(&record); err != nil {
			continue // Skip malformed docs
		}
		records = append(records, &record)
	}

	return records, nil
}

func (r *conflictRepository) DeleteResolvedBefore(cutoff time.Time) (int, error) {
	selector := map[string]interface{}{
		"status":      domain.ConflictResolved,
		"resolved_at": map[string]interface{}{"$lt": cutoff.Format(time.RFC3339)},
	}

	docs, err := r.findRaw(selector)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	for _, doc := range docs {
		doc["_deleted"] = true
	}

	return r.bulkWrite(docs, "delete resolved conflicts")
}

func (r *conflictRepository) IgnoreStaleOpenBefore(cutoff time.Time) (int, error) {
	selector := map[string]interface{}{
		"status":     domain.ConflictOpen,
		"created_at": map[string]interface{}{"$lt": cutoff.Format(time.RFC3339)},
	}

	docs, err := r.findRaw(selector)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	now := time.Now()
	for _, doc := range docs {
		doc["status"] = domain.ConflictIgnored
		doc["resolution_strategy"] = domain.ResolutionAutoMerge
		doc["updated_at"] = now
	}

	return r.bulkWrite(docs, "ignore stale conflicts")
}

func (r *conflictRepository) findRaw(selector map[string]interface{}) ([]map[string]interface{}, error) {
	db := r.client.DB(r.dbName)

	rows := db.Find(context.Background(), map[string]interface{}{"selector": selector})
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query conflicts for sweep: %w", err)
	}
	defer rows.Close()

	var docs []map[string]interface{}
	for rows.Next() {
		var doc map[string]interface{}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (r *conflictRepository) bulkWrite(docs []map[string]interface{}, op string) (int, error) {
	db := r.client.DB(r.dbName)

	bulk := make([]interface{}, len(docs))
	for i, doc := range docs {
		bulk[i] = doc
	}

	results, err := db.BulkDocs(context.Background(), bulk)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}

	affected := 0
	for _, res := range results {
		if res.Error == nil {
			affected++
		}
	}

	return affected, nil
}
