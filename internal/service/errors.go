package service

import "errors"

var (
	// ErrStaleEdit means the submitted edit is causally dominated by (or equal
	// to) the stored state; nothing was mutated.
	ErrStaleEdit = errors.New("stale edit: already superseded by a newer version")

	// ErrAlreadyResolved means resolution was attempted on a conflict that is
	// no longer open.
	ErrAlreadyResolved = errors.New("conflict is not open")

	// ErrNoSourceDevice means the source_wins strategy was requested but no
	// canonical source device is configured, or none of the conflicting
	// states came from it.
	ErrNoSourceDevice = errors.New("no canonical source device for source_wins resolution")

	// ErrManualStateRequired means a manual resolution arrived without the
	// caller-supplied state.
	ErrManualStateRequired = errors.New("manual resolution requires a state")

	ErrJobNotFound = errors.New("revaluation job not found")

	ErrAccessDenied = errors.New("access denied")

	// ErrJobAlreadyActive enforces the one-active-job-per-owner policy.
	ErrJobAlreadyActive = errors.New("a revaluation job is already active for this account")

	ErrTransactionNotFound = errors.New("transaction not found")

	ErrConflictNotFound = errors.New("conflict not found")
)
