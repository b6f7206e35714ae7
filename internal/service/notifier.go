package service

import "ledger-sync-server/internal/domain"

// Notifier pushes best-effort, at-most-once events to a user's connected
// devices. Implementations must not block; delivery is not required for
// correctness and failures are swallowed.
type Notifier interface {
	NotifyConflictDetected(ownerID string, record *domain.ConflictRecord)
	NotifyConflictResolved(ownerID string, record *domain.ConflictRecord)
	NotifyRevaluationCompleted(ownerID string, job *domain.RevaluationJob)
}
