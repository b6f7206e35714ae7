package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"ledger-sync-server/internal/domain"
	"ledger-sync-server/internal/repository"
	"ledger-sync-server/internal/vclock"
)

// transactionEntityStore adapts the transaction repository to the conflict
// machinery's EntityStore. The "state" of a transaction is the JSON view of
// its user-editable fields; server-side bookkeeping stays out of it.
type transactionEntityStore struct {
	repo repository.TransactionRepository
}

func NewTransactionEntityStore(repo repository.TransactionRepository) EntityStore {
	return &transactionEntityStore{repo: repo}
}

var bookkeepingFields = []string{
	"id", "owner_id", "sync_clock", "revaluation_history",
	"created_at", "updated_at", "is_deleted", "last_edit_device",
	"_id", "_rev",
}

func (s *transactionEntityStore) GetState(entityID string) (map[string]any, vclock.VectorClock, error) {
	tx, err := s.repo.FindByID(entityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrTransactionNotFound
		}
		return nil, nil, err
	}

	state, err := transactionState(tx)
	if err != nil {
		return nil, nil, err
	}

	clock := tx.SyncClock
	if clock == nil {
		clock = vclock.New()
	}

	return state, clock.Copy(), nil
}

func (s *transactionEntityStore) ApplyState(entityID string, state map[string]any, clock vclock.VectorClock, deviceID string) error {
	tx, err := s.repo.FindByID(entityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}

	// Overlay the agreed state on top of the stored transaction; fields the
	// state does not mention keep their current values.
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode entity state: %w", err)
	}
	if err := json.Unmarshal(data, tx); err != nil {
		return fmt.Errorf("failed to apply entity state: %w", err)
	}

	tx.SyncClock = clock
	if deviceID != "" {
		tx.LastEditDevice = deviceID
	}

	return s.repo.Update(tx)
}

func transactionState(tx *domain.Transaction) (map[string]any, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode transaction state: %w", err)
	}

	for _, field := range bookkeepingFields {
		delete(state, field)
	}

	return state, nil
}
