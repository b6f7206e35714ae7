package service

import (
	"errors"
	"time"

	"ledger-sync-server/internal/currency"
	"ledger-sync-server/internal/domain"
	"ledger-sync-server/internal/repository"
	"ledger-sync-server/internal/vclock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionService struct {
	txRepo       repository.TransactionRepository
	userRepo     repository.UserRepository
	conflictRepo repository.ConflictRepository
	provider     currency.Provider
}

func NewTransactionService(txRepo repository.TransactionRepository, userRepo repository.UserRepository, conflictRepo repository.ConflictRepository, provider currency.Provider) *TransactionService {
	return &TransactionService{
		txRepo:       txRepo,
		userRepo:     userRepo,
		conflictRepo: conflictRepo,
		provider:     provider,
	}
}

func (s *TransactionService) Create(ownerID string, req *domain.CreateTransactionRequest) (*domain.TransactionResponse, error) {
	owner, err := s.userRepo.FindByID(ownerID)
	if err != nil {
		return nil, err
	}

	curr := req.Currency
	if curr == "" {
		curr = owner.PreferredCurrency
	}

	date := time.Now()
	if req.Date != nil {
		date = *req.Date
	}

	now := time.Now()
	clock := vclock.New()
	clock.Increment(req.DeviceID)

	tx := &domain.Transaction{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Kind:             req.Kind,
		Description:      req.Description,
		Category:         req.Category,
		Merchant:         req.Merchant,
		Date:             date,
		OriginalAmount:   req.Amount,
		OriginalCurrency: curr,
		SyncClock:        clock,
		LastEditDevice:   req.DeviceID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.convert(tx, owner.PreferredCurrency)

	if err := s.txRepo.Create(tx); err != nil {
		return nil, err
	}

	return s.toResponse(tx, owner.PreferredCurrency, false), nil
}

// convert fills the converted fields from a fresh provider rate. A provider
// failure leaves the converted fields empty; the save path stays usable and
// a later revaluation job picks the transaction up.
func (s *TransactionService) convert(tx *domain.Transaction, target string) {
	conv, err := s.provider.Convert(tx.OriginalAmount, tx.OriginalCurrency, target)
	if err != nil {
		return
	}
	tx.ConvertedAmount = conv.ConvertedAmount
	tx.ConvertedCurrency = target
	tx.ExchangeRate = conv.ExchangeRate
}

func (s *TransactionService) Get(ownerID, txID string) (*domain.TransactionResponse, error) {
	tx, err := s.ownedTransaction(ownerID, txID)
	if err != nil {
		return nil, err
	}

	owner, err := s.userRepo.FindByID(ownerID)
	if err != nil {
		return nil, err
	}

	hasConflicts := false
	if _, err := s.conflictRepo.FindOpen(tx.ID, "transaction"); err == nil {
		hasConflicts = true
	}

	return s.toResponse(tx, owner.PreferredCurrency, hasConflicts), nil
}

func (s *TransactionService) List(ownerID string, page, limit int) (*domain.TransactionListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	owner, err := s.userRepo.FindByID(ownerID)
	if err != nil {
		return nil, err
	}

	txs, total, err := s.txRepo.FindByOwner(ownerID, page, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		responses = append(responses, s.toResponse(tx, owner.PreferredCurrency, false))
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}

	return &domain.TransactionListResponse{
		Transactions: responses,
		Pagination: domain.Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: pages,
		},
	}, nil
}

func (s *TransactionService) Update(ownerID, txID string, req *domain.UpdateTransactionRequest) (*domain.TransactionResponse, error) {
	tx, err := s.ownedTransaction(ownerID, txID)
	if err != nil {
		return nil, err
	}

	owner, err := s.userRepo.FindByID(ownerID)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		tx.Description = *req.Description
	}
	if req.Category != nil {
		tx.Category = *req.Category
	}
	if req.Kind != nil {
		tx.Kind = *req.Kind
	}
	if req.Merchant != nil {
		tx.Merchant = *req.Merchant
	}
	if req.Date != nil {
		tx.Date = *req.Date
	}

	if req.Amount != nil || req.Currency != nil {
		if req.Amount != nil {
			tx.OriginalAmount = *req.Amount
		}
		if req.Currency != nil {
			tx.OriginalCurrency = *req.Currency
		}
		s.convert(tx, owner.PreferredCurrency)
	}

	if tx.SyncClock == nil {
		tx.SyncClock = vclock.New()
	}
	tx.SyncClock.Increment(req.DeviceID)
	tx.LastEditDevice = req.DeviceID
	tx.UpdatedAt = time.Now()

	if err := s.txRepo.Update(tx); err != nil {
		return nil, err
	}

	return s.toResponse(tx, owner.PreferredCurrency, false), nil
}

func (s *TransactionService) Delete(ownerID, txID string) error {
	tx, err := s.ownedTransaction(ownerID, txID)
	if err != nil {
		return err
	}
	return s.txRepo.Delete(tx.ID)
}

func (s *TransactionService) RevaluationHistory(ownerID, txID string) (*domain.RevaluationHistoryResponse, error) {
	tx, err := s.ownedTransaction(ownerID, txID)
	if err != nil {
		return nil, err
	}

	history := tx.RevaluationHistory
	if history == nil {
		history = []domain.RevaluationEntry{}
	}

	return &domain.RevaluationHistoryResponse{
		CurrentRate: tx.ExchangeRate,
		History:     history,
	}, nil
}

func (s *TransactionService) ownedTransaction(ownerID, txID string) (*domain.Transaction, error) {
	tx, err := s.txRepo.FindByID(txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if tx.OwnerID != ownerID {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *TransactionService) toResponse(tx *domain.Transaction, preferredCurrency string, hasConflicts bool) *domain.TransactionResponse {
	resp := &domain.TransactionResponse{
		ID:                tx.ID,
		Kind:              tx.Kind,
		Description:       tx.Description,
		Category:          tx.Category,
		Merchant:          tx.Merchant,
		Date:              tx.Date,
		OriginalAmount:    tx.OriginalAmount,
		OriginalCurrency:  tx.OriginalCurrency,
		ConvertedAmount:   tx.ConvertedAmount,
		ConvertedCurrency: tx.ConvertedCurrency,
		ExchangeRate:      tx.ExchangeRate,
		HasOpenConflicts:  hasConflicts,
		LastEditDevice:    tx.LastEditDevice,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
	}

	if tx.OriginalCurrency == preferredCurrency {
		resp.DisplayAmount = tx.OriginalAmount
		resp.DisplayCurrency = tx.OriginalCurrency
	} else if !tx.ConvertedAmount.Equal(decimal.Zero) {
		resp.DisplayAmount = tx.ConvertedAmount
		resp.DisplayCurrency = tx.ConvertedCurrency
	} else {
		// No stored conversion; show the original rather than nothing.
		resp.DisplayAmount = tx.OriginalAmount
		resp.DisplayCurrency = tx.OriginalCurrency
	}

	return resp
}
