package domain

import (
	"time"

	"ledger-sync-server/internal/vclock"
)

type ResolutionStrategy string

const (
	ResolutionManual        ResolutionStrategy = "manual"
	ResolutionAutoMerge     ResolutionStrategy = "auto_merge"
	ResolutionLastWriteWins ResolutionStrategy = "last_write_wins"
	ResolutionSourceWins    ResolutionStrategy = "source_wins"
)

type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// ConflictingState is one divergent device write, captured at detection time.
type ConflictingState struct {
	DeviceID    string             `json:"device_id"`
	State       map[string]any     `json:"state"`
	VectorClock vclock.VectorClock `json:"vector_clock"`
	ObservedAt  time.Time          `json:"observed_at"`
}

// ConflictRecord holds the concurrent edits detected for one entity. States
// are append-only while the record is open; resolution fields are set exactly
// once and the record never leaves a terminal status.
type ConflictRecord struct {
	ID         string `json:"id"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	OwnerID    string `json:"owner_id"`

	BaseState         map[string]any     `json:"base_state,omitempty"`
	ConflictingStates []ConflictingState `json:"conflicting_states"`

	ResolvedState      map[string]any     `json:"resolved_state,omitempty"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty"`
	ResolutionStrategy ResolutionStrategy `json:"resolution_strategy,omitempty"`

	Status    ConflictStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SyncEdit is an edit submitted by a device together with the vector clock it
// observed, used to decide between applying, rejecting and conflict capture.
type SyncEdit struct {
	EntityID    string
	EntityType  string
	OwnerID     string
	DeviceID    string
	State       map[string]any
	VectorClock vclock.VectorClock
}

type SyncEditRequest struct {
	EntityID    string             `json:"entity_id" validate:"required"`
	EntityType  string             `json:"entity_type" validate:"required,oneof=transaction"`
	DeviceID    string             `json:"device_id" validate:"required"`
	State       map[string]any     `json:"state" validate:"required"`
	VectorClock vclock.VectorClock `json:"vector_clock" validate:"required"`
}

// SyncEditResponse reports how an edit was handled. An accepted edit carries
// the advanced clock, a concurrent one carries the conflict it was captured
// into.
type SyncEditResponse struct {
	Applied     bool               `json:"applied"`
	VectorClock vclock.VectorClock `json:"vector_clock,omitempty"`
	Conflict    *ConflictRecord    `json:"conflict,omitempty"`
}

type ResolveConflictRequest struct {
	Strategy    ResolutionStrategy `json:"strategy" validate:"required,oneof=manual auto_merge last_write_wins source_wins"`
	ManualState map[string]any     `json:"manual_state,omitempty"`
}
