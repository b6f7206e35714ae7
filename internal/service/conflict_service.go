package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger-sync-server/internal/domain"
	"ledger-sync-server/internal/repository"
	"ledger-sync-server/internal/vclock"

	"github.com/google/uuid"
)

// EntityStore exposes the contested entity to the conflict machinery: the
// last agreed state with its vector clock, and a way to apply a new agreed
// state. One store is registered per entity type.
type EntityStore interface {
	GetState(entityID string) (map[string]any, vclock.VectorClock, error)
	ApplyState(entityID string, state map[string]any, clock vclock.VectorClock, deviceID string) error
}

type ConflictService struct {
	conflictRepo   repository.ConflictRepository
	stores         map[string]EntityStore
	notifier       Notifier
	sourceDeviceID string
	now            func() time.Time

	// Serializes the read-check-write sequence per entity so two concurrent
	// edits cannot both miss the existing open record and create duplicates.
	mu          sync.Mutex
	entityLocks map[string]*sync.Mutex
}

func NewConflictService(conflictRepo repository.ConflictRepository, notifier Notifier, sourceDeviceID string) *ConflictService {
	return &ConflictService{
		conflictRepo:   conflictRepo,
		stores:         make(map[string]EntityStore),
		notifier:       notifier,
		sourceDeviceID: sourceDeviceID,
		now:            time.Now,
		entityLocks:    make(map[string]*sync.Mutex),
	}
}

// RegisterStore binds an entity type to its backing store.
func (s *ConflictService) RegisterStore(entityType string, store EntityStore) {
	s.stores[entityType] = store
}

func (s *ConflictService) lockEntity(entityID, entityType string) *sync.Mutex {
	key := entityType + "/" + entityID
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.entityLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.entityLocks[key] = lock
	}
	return lock
}

// DetectEdit decides what to do with a device edit:
//   - causally newer than the stored state: apply it and advance the clock
//   - dominated or identical: reject as stale, no mutation
//   - concurrent: capture it into the entity's open conflict record, leaving
//     the entity at its last agreed state until resolution
func (s *ConflictService) DetectEdit(edit *domain.SyncEdit) (*domain.SyncEditResponse, error) {
	store, ok := s.stores[edit.EntityType]
	if !ok {
		return nil, fmt.Errorf("unsupported entity type: %s", edit.EntityType)
	}

	lock := s.lockEntity(edit.EntityID, edit.EntityType)
	lock.Lock()
	defer lock.Unlock()

	baseState, storedClock, err := store.GetState(edit.EntityID)
	if err != nil {
		return nil, err
	}

	switch edit.VectorClock.Compare(storedClock) {
	case vclock.After:
		newClock := edit.VectorClock.Copy()
		if err := store.ApplyState(edit.EntityID, edit.State, newClock, edit.DeviceID); err != nil {
			return nil, err
		}
		return &domain.SyncEditResponse{Applied: true, VectorClock: newClock}, nil

	case vclock.Before, vclock.Equal:
		return nil, ErrStaleEdit

	default: // concurrent
		record, err := s.captureConflict(edit, baseState)
		if err != nil {
			return nil, err
		}
		return &domain.SyncEditResponse{Applied: false, Conflict: record}, nil
	}
}

func (s *ConflictService) captureConflict(edit *domain.SyncEdit, baseState map[string]any) (*domain.ConflictRecord, error) {
	entry := domain.ConflictingState{
		DeviceID:    edit.DeviceID,
		State:       edit.State,
		VectorClock: edit.VectorClock.Copy(),
		ObservedAt:  s.now(),
	}

	record, err := s.conflictRepo.FindOpen(edit.EntityID, edit.EntityType)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}

		record = &domain.ConflictRecord{
			ID:                uuid.New().String(),
			EntityID:          edit.EntityID,
			EntityType:        edit.EntityType,
			OwnerID:           edit.OwnerID,
			BaseState:         baseState,
			ConflictingStates: []domain.ConflictingState{entry},
			Status:            domain.ConflictOpen,
			CreatedAt:         s.now(),
			UpdatedAt:         s.now(),
		}
		if err := s.conflictRepo.Create(record); err != nil {
			return nil, err
		}
	} else {
		record.ConflictingStates = append(record.ConflictingStates, entry)
		record.UpdatedAt = s.now()
		if err := s.conflictRepo.Update(record); err != nil {
			return nil, err
		}
	}

	if s.notifier != nil {
		s.notifier.NotifyConflictDetected(record.OwnerID, record)
	}

	return record, nil
}

// Resolve collapses an open conflict into one state, applies it to the entity
// and advances the entity's clock past every conflicting write.
func (s *ConflictService) Resolve(conflictID string, strategy domain.ResolutionStrategy, manualState map[string]any) (*domain.ConflictRecord, error) {
	record, err := s.conflictRepo.Get(conflictID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}

	lock := s.lockEntity(record.EntityID, record.EntityType)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the entity lock: a concurrent resolution may have won.
	record, err = s.conflictRepo.Get(conflictID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.ConflictOpen {
		return nil, ErrAlreadyResolved
	}

	resolvedState, winnerDevice, err := s.resolveState(record, strategy, manualState)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record.ResolvedState = resolvedState
	record.ResolvedAt = &now
	record.ResolutionStrategy = strategy
	record.Status = domain.ConflictResolved
	record.UpdatedAt = now

	if err := s.conflictRepo.Update(record); err != nil {
		return nil, err
	}

	store, ok := s.stores[record.EntityType]
	if !ok {
		return nil, fmt.Errorf("unsupported entity type: %s", record.EntityType)
	}

	_, storedClock, err := store.GetState(record.EntityID)
	if err != nil {
		return nil, err
	}

	clocks := []vclock.VectorClock{storedClock}
	for _, cs := range record.ConflictingStates {
		clocks = append(clocks, cs.VectorClock)
	}
	merged := vclock.MergeAll(clocks...)

	if err := store.ApplyState(record.EntityID, resolvedState, merged, winnerDevice); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyConflictResolved(record.OwnerID, record)
	}

	return record, nil
}

func (s *ConflictService) resolveState(record *domain.ConflictRecord, strategy domain.ResolutionStrategy, manualState map[string]any) (map[string]any, string, error) {
	switch strategy {
	case domain.ResolutionManual:
		if manualState == nil {
			return nil, "", ErrManualStateRequired
		}
		return manualState, "", nil

	case domain.ResolutionLastWriteWins:
		winner := lastWrite(record.ConflictingStates)
		return winner.State, winner.DeviceID, nil

	case domain.ResolutionSourceWins:
		if s.sourceDeviceID == "" {
			return nil, "", ErrNoSourceDevice
		}
		for _, cs := range record.ConflictingStates {
			if cs.DeviceID == s.sourceDeviceID {
				return cs.State, cs.DeviceID, nil
			}
		}
		return nil, "", ErrNoSourceDevice

	case domain.ResolutionAutoMerge:
		winner := lastWrite(record.ConflictingStates)
		return autoMerge(record), winner.DeviceID, nil

	default:
		return nil, "", fmt.Errorf("unknown resolution strategy: %s", strategy)
	}
}

// lastWrite picks the entry with the latest observation time; equal
// timestamps break to the lexically smaller device ID for determinism.
func lastWrite(states []domain.ConflictingState) *domain.ConflictingState {
	winner := &states[0]
	for i := 1; i < len(states); i++ {
		cand := &states[i]
		if cand.ObservedAt.After(winner.ObservedAt) {
			winner = cand
		} else if cand.ObservedAt.Equal(winner.ObservedAt) && cand.DeviceID < winner.DeviceID {
			winner = cand
		}
	}
	return winner
}

// autoMerge merges field-wise on top of the base state. For each field, the
// value comes from the conflicting entry whose own device counter is highest;
// entries that tie fall back to last-write-wins ordering.
func autoMerge(record *domain.ConflictRecord) map[string]any {
	merged := make(map[string]any, len(record.BaseState))
	for k, v := range record.BaseState {
		merged[k] = v
	}

	fields := make(map[string]struct{})
	for _, cs := range record.ConflictingStates {
		for k := range cs.State {
			fields[k] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(fields))
	for k := range fields {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	for _, field := range ordered {
		var winner *domain.ConflictingState
		var winnerCounter int64
		for i := range record.ConflictingStates {
			cand := &record.ConflictingStates[i]
			if _, ok := cand.State[field]; !ok {
				continue
			}
			counter := cand.VectorClock.Get(cand.DeviceID)
			switch {
			case winner == nil, counter > winnerCounter:
				winner, winnerCounter = cand, counter
			case counter == winnerCounter:
				if laterWrite(cand, winner) {
					winner = cand
				}
			}
		}
		if winner != nil {
			merged[field] = winner.State[field]
		}
	}

	return merged
}

func laterWrite(a, b *domain.ConflictingState) bool {
	if a.ObservedAt.After(b.ObservedAt) {
		return true
	}
	return a.ObservedAt.Equal(b.ObservedAt) && a.DeviceID < b.DeviceID
}

func (s *ConflictService) Get(conflictID string) (*domain.ConflictRecord, error) {
	record, err := s.conflictRepo.Get(conflictID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *ConflictService) ListByOwner(ownerID string, status domain.ConflictStatus) ([]*domain.ConflictRecord, error) {
	return s.conflictRepo.ListByOwner(ownerID, status)
}
