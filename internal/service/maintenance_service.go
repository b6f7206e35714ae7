package service

import (
	"time"

	"ledger-sync-server/internal/repository"

	"github.com/sirupsen/logrus"
)

// MaintenanceService ages out conflict records on a fixed weekly schedule:
// resolved records past their retention window are purged, open records that
// stayed untouched for too long are marked ignored. Runs are idempotent and a
// failing run never takes the process down.
type MaintenanceService struct {
	conflictRepo repository.ConflictRepository
	log          *logrus.Logger

	resolvedRetention time.Duration
	staleOpenAfter    time.Duration
	weekday           time.Weekday
	hour              int

	now func() time.Time
}

func NewMaintenanceService(conflictRepo repository.ConflictRepository, log *logrus.Logger, resolvedRetention, staleOpenAfter time.Duration, weekday time.Weekday, hour int) *MaintenanceService {
	return &MaintenanceService{
		conflictRepo:      conflictRepo,
		log:               log,
		resolvedRetention: resolvedRetention,
		staleOpenAfter:    staleOpenAfter,
		weekday:           weekday,
		hour:              hour,
		now:               time.Now,
	}
}

// Start launches the scheduler loop. It returns immediately; the loop stops
// when the stop channel is closed.
func (s *MaintenanceService) Start(stop <-chan struct{}) {
	go func() {
		for {
			next := s.nextRun(s.now())
			s.log.WithFields(logrus.Fields{
				"module":   "maintenance",
				"next_run": next,
			}).Info("conflict maintenance scheduled")

			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
				s.runGuarded()
			}
		}
	}()
}

// nextRun returns the first scheduled instant strictly after from.
func (s *MaintenanceService) nextRun(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, 0, 0, 0, from.Location())
	for next.Weekday() != s.weekday || !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *MaintenanceService) runGuarded() {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"module": "maintenance",
				"panic":  r,
			}).Error("conflict maintenance run panicked")
		}
	}()

	s.RunOnce()
}

// RunOnce executes one maintenance sweep. The two steps are independent bulk
// operations: a failure in one is logged and does not undo or block the other.
func (s *MaintenanceService) RunOnce() {
	now := s.now()

	purged, err := s.conflictRepo.DeleteResolvedBefore(now.Add(-s.resolvedRetention))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"module": "maintenance",
			"step":   "purge_resolved",
		}).WithError(err).Error("failed to purge resolved conflicts")
	}

	ignored, err := s.conflictRepo.IgnoreStaleOpenBefore(now.Add(-s.staleOpenAfter))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"module": "maintenance",
			"step":   "ignore_stale",
		}).WithError(err).Error("failed to ignore stale open conflicts")
	}

	s.log.WithFields(logrus.Fields{
		"module":  "maintenance",
		"purged":  purged,
		"ignored": ignored,
	}).Info("conflict maintenance sweep complete")
}
