package service

import (
	"fmt"
	"sync"
	"time"

	"ledger-sync-server/internal/currency"
	"ledger-sync-server/internal/domain"
	"ledger-sync-server/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultRevaluationReason = "Manual user-triggered revaluation"

// RevaluationService runs retroactive recomputation of converted amounts as
// background jobs. Jobs are kept in an in-memory registry for status polling;
// the worker streams the owner's transactions in bounded batches so a large
// history never sits in memory at once.
type RevaluationService struct {
	txRepo   repository.TransactionRepository
	userRepo repository.UserRepository
	provider currency.Provider
	notifier Notifier
	log      *logrus.Logger

	batchSize int
	tolerance decimal.Decimal
	now       func() time.Time

	mu     sync.RWMutex
	jobs   map[string]*domain.RevaluationJob
	active map[string]string // owner ID -> non-terminal job ID
}

func NewRevaluationService(txRepo repository.TransactionRepository, userRepo repository.UserRepository, provider currency.Provider, notifier Notifier, log *logrus.Logger, batchSize int, tolerance decimal.Decimal) *RevaluationService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RevaluationService{
		txRepo:    txRepo,
		userRepo:  userRepo,
		provider:  provider,
		notifier:  notifier,
		log:       log,
		batchSize: batchSize,
		tolerance: tolerance,
		now:       time.Now,
		jobs:      make(map[string]*domain.RevaluationJob),
		active:    make(map[string]string),
	}
}

// StartJob registers a pending job and dispatches the worker, returning the
// job snapshot right away. At most one non-terminal job per owner is allowed;
// no cancellation exists, a dispatched job runs to completion or failure.
func (s *RevaluationService) StartJob(ownerID string, req *domain.RevaluationRequest) (*domain.RevaluationJob, error) {
	reason := req.Reason
	if reason == "" {
		reason = defaultRevaluationReason
	}

	job := &domain.RevaluationJob{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		StartDate:  req.StartDate,
		Currencies: req.Currencies,
		DryRun:     req.DryRun,
		Reason:     reason,
		Status:     domain.JobPending,
		CreatedAt:  s.now(),
	}

	s.mu.Lock()
	if activeID, ok := s.active[ownerID]; ok {
		if existing := s.jobs[activeID]; existing != nil && !existing.Status.Terminal() {
			s.mu.Unlock()
			return nil, ErrJobAlreadyActive
		}
	}
	s.jobs[job.ID] = job
	s.active[ownerID] = job.ID
	snapshot := cloneJob(job)
	s.mu.Unlock()

	go s.run(job.ID)

	return snapshot, nil
}

// GetJobStatus returns the current snapshot for the requesting owner. A job
// belonging to someone else is an access violation, not a lookup miss.
func (s *RevaluationService) GetJobStatus(jobID, requesterID string) (*domain.RevaluationJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrJobNotFound
	}
	snapshot := cloneJob(job)
	s.mu.RUnlock()

	if snapshot.OwnerID != requesterID {
		return nil, ErrAccessDenied
	}

	return snapshot, nil
}

func (s *RevaluationService) run(jobID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failJob(jobID, fmt.Sprintf("revaluation worker panicked: %v", r))
		}
	}()

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	started := s.now()
	job.Status = domain.JobRunning
	job.StartedAt = &started
	ownerID := job.OwnerID
	startDate := job.StartDate
	currencies := append([]string(nil), job.Currencies...)
	dryRun := job.DryRun
	reason := job.Reason
	s.mu.Unlock()

	owner, err := s.userRepo.FindByID(ownerID)
	if err != nil {
		s.failJob(jobID, fmt.Sprintf("failed to load account: %v", err))
		return
	}
	target := owner.PreferredCurrency

	s.mu.Lock()
	if job, ok := s.jobs[jobID]; ok {
		job.TargetCurrency = target
	}
	s.mu.Unlock()

	skip := 0
	for {
		batch, err := s.txRepo.FindBatch(ownerID, startDate, currencies, s.batchSize, skip)
		if err != nil {
			s.failJob(jobID, fmt.Sprintf("failed to stream transactions: %v", err))
			return
		}
		if len(batch) == 0 {
			break
		}

		for _, tx := range batch {
			s.processTransaction(jobID, tx, target, dryRun, reason)
		}

		skip += len(batch)
		if len(batch) < s.batchSize {
			break
		}
	}

	s.completeJob(jobID)
}

func (s *RevaluationService) processTransaction(jobID string, tx *domain.Transaction, target string, dryRun bool, reason string) {
	conv, err := s.provider.Convert(tx.OriginalAmount, tx.OriginalCurrency, target)
	if err != nil {
		s.recordResult(jobID, domain.RevaluationResult{
			TransactionID: tx.ID,
			OldAmount:     tx.ConvertedAmount,
			Error:         err.Error(),
		}, outcomeError)
		return
	}

	oldAmount := tx.ConvertedAmount
	newAmount := conv.ConvertedAmount

	if newAmount.Sub(oldAmount).Abs().LessThanOrEqual(s.tolerance) {
		s.recordResult(jobID, domain.RevaluationResult{}, outcomeUnchanged)
		return
	}

	result := domain.RevaluationResult{
		TransactionID: tx.ID,
		OldAmount:     oldAmount,
		NewAmount:     newAmount,
		Rate:          conv.ExchangeRate,
	}

	if dryRun {
		s.recordResult(jobID, result, outcomePreview)
		return
	}

	tx.ConvertedAmount = newAmount
	tx.ConvertedCurrency = target
	tx.ExchangeRate = conv.ExchangeRate
	tx.RevaluationHistory = append(tx.RevaluationHistory, domain.RevaluationEntry{
		JobID:      jobID,
		OldAmount:  oldAmount,
		NewAmount:  newAmount,
		Rate:       conv.ExchangeRate,
		Reason:     reason,
		RevaluedAt: s.now(),
	})

	if err := s.txRepo.Update(tx); err != nil {
		result.Error = fmt.Sprintf("failed to persist revaluation: %v", err)
		s.recordResult(jobID, result, outcomeError)
		return
	}

	result.Applied = true
	s.recordResult(jobID, result, outcomeApplied)
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomePreview
	outcomeApplied
	outcomeError
)

func (s *RevaluationService) recordResult(jobID string, result domain.RevaluationResult, o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}

	job.ProcessedCount++
	switch o {
	case outcomeApplied:
		job.UpdatedCount++
		job.Results = append(job.Results, result)
	case outcomePreview:
		job.Results = append(job.Results, result)
	case outcomeError:
		job.ErrorCount++
		job.Results = append(job.Results, result)
	}
}

func (s *RevaluationService) completeJob(jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	done := s.now()
	job.Status = domain.JobCompleted
	job.CompletedAt = &done
	snapshot := cloneJob(job)
	delete(s.active, job.OwnerID)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"module":    "revaluation",
		"job_id":    snapshot.ID,
		"owner_id":  snapshot.OwnerID,
		"processed": snapshot.ProcessedCount,
		"updated":   snapshot.UpdatedCount,
		"errors":    snapshot.ErrorCount,
		"dry_run":   snapshot.DryRun,
	}).Info("revaluation job completed")

	if s.notifier != nil {
		s.notifier.NotifyRevaluationCompleted(snapshot.OwnerID, snapshot)
	}
}

func (s *RevaluationService) failJob(jobID, message string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	done := s.now()
	job.Status = domain.JobFailed
	job.CompletedAt = &done
	job.ErrorMessage = message
	snapshot := cloneJob(job)
	delete(s.active, job.OwnerID)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"module":    "revaluation",
		"job_id":    snapshot.ID,
		"owner_id":  snapshot.OwnerID,
		"processed": snapshot.ProcessedCount,
	}).WithField("error", message).Error("revaluation job failed")
}

func cloneJob(job *domain.RevaluationJob) *domain.RevaluationJob {
	clone := *job
	clone.Currencies = append([]string(nil), job.Currencies...)
	clone.Results = append([]domain.RevaluationResult(nil), job.Results...)
	return &clone
}
