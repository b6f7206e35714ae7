package websocket

import (
	"encoding/json"

	"ledger-sync-server/internal/domain"
)

// Notifier fan-outs sync and revaluation events to a user's connected
// devices through the manager. Delivery is best effort.
type Notifier struct {
	manager *Manager
}

func NewNotifier(manager *Manager) *Notifier {
	return &Notifier{manager: manager}
}

func (n *Notifier) NotifyConflictDetected(ownerID string, record *domain.ConflictRecord) {
	n.pushConflict(ownerID, TypeConflictDetected, record)
}

func (n *Notifier) NotifyConflictResolved(ownerID string, record *domain.ConflictRecord) {
	n.pushConflict(ownerID, TypeConflictResolved, record)
}

func (n *Notifier) pushConflict(ownerID string, msgType MessageType, record *domain.ConflictRecord) {
	raw, err := json.Marshal(record)
	if err != nil {
		n.manager.log.WithError(err).WithField("conflict_id", record.ID).Error("failed to encode conflict notification")
		return
	}

	msg, err := NewMessage(msgType, &ConflictPayload{
		ConflictID: record.ID,
		EntityID:   record.EntityID,
		EntityType: record.EntityType,
		Status:     string(record.Status),
		Strategy:   string(record.ResolutionStrategy),
		Conflict:   raw,
	})
	if err != nil {
		n.manager.log.WithError(err).WithField("type", string(msgType)).Error("failed to build conflict notification")
		return
	}

	if err := n.manager.BroadcastToUser(ownerID, msg, ""); err != nil {
		n.manager.log.WithError(err).WithField("type", string(msgType)).Error("failed to broadcast conflict notification")
	}
}

func (n *Notifier) NotifyRevaluationCompleted(ownerID string, job *domain.RevaluationJob) {
	msg, err := NewMessage(TypeRevaluationCompleted, &RevaluationPayload{
		JobID:          job.ID,
		Status:         string(job.Status),
		TargetCurrency: job.TargetCurrency,
		UpdatedCount:   job.UpdatedCount,
		ErrorCount:     job.ErrorCount,
		ProcessedCount: job.ProcessedCount,
	})
	if err != nil {
		n.manager.log.WithError(err).WithField("job_id", job.ID).Error("failed to build revaluation notification")
		return
	}

	if err := n.manager.BroadcastToUser(ownerID, msg, ""); err != nil {
		n.manager.log.WithError(err).WithField("job_id", job.ID).Error("failed to broadcast revaluation notification")
	}
}
