package service

import (
	"errors"
	"testing"
	"time"

	"ledger-sync-server/internal/currency"
	"ledger-sync-server/internal/domain"
	"ledger-sync-server/internal/repository"

	"github.com/shopspring/decimal"
)

type mockTransactionRepo struct {
	txs   map[string]*domain.Transaction
	order []string

	updateErr error
}

func newMockTransactionRepo() *mockTransactionRepo {
	return &mockTransactionRepo{
		txs: make(map[string]*domain.Transaction),
	}
}

func (m *mockTransactionRepo) Create(tx *domain.Transaction) error {
	m.txs[tx.ID] = tx
	m.order = append(m.order, tx.ID)
	return nil
}

func (m *mockTransactionRepo) FindByID(id string) (*domain.Transaction, error) {
	if tx, ok := m.txs[id]; ok && !tx.IsDeleted {
		return tx, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockTransactionRepo) FindByOwner(ownerID string, page, limit int) ([]*domain.Transaction, int, error) {
	matching := m.matching(ownerID, nil, nil)
	start := (page - 1) * limit
	if start > len(matching) {
		start = len(matching)
	}
	end := start + limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[start:end], len(matching), nil
}

func (m *mockTransactionRepo) FindBatch(ownerID string, startDate *time.Time, currencies []string, limit, skip int) ([]*domain.Transaction, error) {
	matching := m.matching(ownerID, startDate, currencies)
	if skip > len(matching) {
		skip = len(matching)
	}
	end := skip + limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[skip:end], nil
}

func (m *mockTransactionRepo) matching(ownerID string, startDate *time.Time, currencies []string) []*domain.Transaction {
	var out []*domain.Transaction
	for _, id := range m.order {
		tx := m.txs[id]
		if tx.OwnerID != ownerID || tx.IsDeleted {
			continue
		}
		if startDate != nil && tx.Date.Before(*startDate) {
			continue
		}
		if len(currencies) > 0 {
			found := false
			for _, c := range currencies {
				if tx.OriginalCurrency == c {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, tx)
	}
	return out
}

func (m *mockTransactionRepo) Update(tx *domain.Transaction) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.txs[tx.ID]; !ok {
		return repository.ErrNotFound
	}
	m.txs[tx.ID] = tx
	return nil
}

func (m *mockTransactionRepo) Delete(id string) error {
	tx, ok := m.txs[id]
	if !ok {
		return repository.ErrNotFound
	}
	tx.IsDeleted = true
	return nil
}

// stubProvider converts with fixed per-currency rates; currencies in failFor
// return the configured error instead. A non-nil block channel stalls every
// call until the channel is closed.
type stubProvider struct {
	rates   map[string]decimal.Decimal
	failFor map[string]error
	block   chan struct{}
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		rates:   make(map[string]decimal.Decimal),
		failFor: make(map[string]error),
	}
}

func (p *stubProvider) Convert(amount decimal.Decimal, fromCurrency, toCurrency string) (*currency.Conversion, error) {
	if p.block != nil {
		<-p.block
	}
	if err, ok := p.failFor[fromCurrency]; ok {
		return nil, err
	}
	if fromCurrency == toCurrency {
		return &currency.Conversion{ConvertedAmount: amount, ExchangeRate: decimal.NewFromInt(1)}, nil
	}
	rate, ok := p.rates[fromCurrency]
	if !ok {
		return nil, errors.New("no rate for " + fromCurrency)
	}
	return &currency.Conversion{ConvertedAmount: amount.Mul(rate), ExchangeRate: rate}, nil
}

func revaluationFixture() (*RevaluationService, *mockTransactionRepo, *mockUserRepository, *stubProvider, *recordingNotifier) {
	txRepo := newMockTransactionRepo()
	userRepo := newMockUserRepository()
	provider := newStubProvider()
	notifier := &recordingNotifier{}

	userRepo.Create(&domain.User{
		ID:                "user1",
		Username:          "user1",
		Email:             "user1@example.com",
		PreferredCurrency: "USD",
	})

	svc := NewRevaluationService(txRepo, userRepo, provider, notifier, quietLogger(), 2, decimal.RequireFromString("0.01"))
	return svc, txRepo, userRepo, provider, notifier
}

func seedTransaction(repo *mockTransactionRepo, id, owner, currency string, amount, converted string) *domain.Transaction {
	tx := &domain.Transaction{
		ID:               id,
		OwnerID:          owner,
		Kind:             domain.KindExpense,
		Description:      "seed " + id,
		Category:         "other",
		Date:             time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		OriginalAmount:   decimal.RequireFromString(amount),
		OriginalCurrency: currency,
		ConvertedAmount:  decimal.RequireFromString(converted),
	}
	repo.Create(tx)
	return tx
}

func waitForTerminal(t *testing.T, svc *RevaluationService, jobID, ownerID string) *domain.RevaluationJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.GetJobStatus(jobID, ownerID)
		if err != nil {
			t.Fatalf("GetJobStatus() unexpected error = %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("revaluation job did not reach a terminal status in time")
	return nil
}

func TestRevaluationService_LiveRunUpdatesTransactions(t *testing.T) {
	svc, txRepo, _, provider, notifier := revaluationFixture()
	provider.rates["EUR"] = decimal.RequireFromString("1.10")

	seedTransaction(txRepo, "t1", "user1", "EUR", "100", "105")
	seedTransaction(txRepo, "t2", "user1", "USD", "50", "50")
	seedTransaction(txRepo, "t3", "user1", "EUR", "200", "220")

	job, err := svc.StartJob("user1", &domain.RevaluationRequest{})
	if err != nil {
		t.Fatalf("StartJob() unexpected error = %v", err)
	}
	if job.Reason == "" {
		t.Error("StartJob() expected a defaulted reason")
	}

	done := waitForTerminal(t, svc, job.ID, "user1")

	if done.Status != domain.JobCompleted {
		t.Fatalf("job status = %s, want completed (%s)", done.Status, done.ErrorMessage)
	}
	if done.ProcessedCount != 3 {
		t.Errorf("processed = %d, want 3", done.ProcessedCount)
	}
	// t1 moves from 105 to 110; t2 and t3 are already within tolerance.
	if done.UpdatedCount != 1 {
		t.Errorf("updated = %d, want 1", done.UpdatedCount)
	}
	if done.ErrorCount != 0 {
		t.Errorf("errors = %d, want 0", done.ErrorCount)
	}
	if done.TargetCurrency != "USD" {
		t.Errorf("target currency = %s, want USD", done.TargetCurrency)
	}

	updated := txRepo.txs["t1"]
	if !updated.ConvertedAmount.Equal(decimal.RequireFromString("110")) {
		t.Errorf("t1 converted amount = %s, want 110", updated.ConvertedAmount)
	}
	if len(updated.RevaluationHistory) != 1 {
		t.Fatalf("t1 history entries = %d, want 1", len(updated.RevaluationHistory))
	}
	entry := updated.RevaluationHistory[0]
	if entry.JobID != job.ID {
		t.Errorf("history job id = %s, want %s", entry.JobID, job.ID)
	}
	if !entry.OldAmount.Equal(decimal.RequireFromString("105")) || !entry.NewAmount.Equal(decimal.RequireFromString("110")) {
		t.Errorf("history amounts = %s -> %s, want 105 -> 110", entry.OldAmount, entry.NewAmount)
	}

	if notifier.completed != 1 {
		t.Errorf("completion notifications = %d, want 1", notifier.completed)
	}
}

func TestRevaluationService_DryRunDoesNotMutate(t *testing.T) {
	svc, txRepo, _, provider, _ := revaluationFixture()
	provider.rates["EUR"] = decimal.RequireFromString("1.10")

	seedTransaction(txRepo, "t1", "user1", "EUR", "100", "105")

	job, err := svc.StartJob("user1", &domain.RevaluationRequest{DryRun: true, Reason: "preview"})
	if err != nil {
		t.Fatalf("StartJob() unexpected error = %v", err)
	}

	done := waitForTerminal(t, svc, job.ID, "user1")

	if done.Status != domain.JobCompleted {
		t.Fatalf("job status = %s, want completed", done.Status)
	}
	if done.UpdatedCount != 0 {
		t.Errorf("dry run updated = %d, want 0", done.UpdatedCount)
	}
	if len(done.Results) != 1 {
		t.Fatalf("dry run results = %d, want 1 preview", len(done.Results))
	}
	if done.Results[0].Applied {
		t.Error("dry run result marked applied")
	}

	tx := txRepo.txs["t1"]
	if !tx.ConvertedAmount.Equal(decimal.RequireFromString("105")) {
		t.Errorf("dry run mutated converted amount to %s", tx.ConvertedAmount)
	}
	if len(tx.RevaluationHistory) != 0 {
		t.Error("dry run appended revaluation history")
	}
}

func TestRevaluationService_ProviderErrorsAreNonFatal(t *testing.T) {
	svc, txRepo, _, provider, _ := revaluationFixture()
	provider.failFor["EUR"] = &currency.ProviderError{Err: errors.New("rate service down")}
	provider.rates["GBP"] = decimal.RequireFromString("1.30")

	seedTransaction(txRepo, "t1", "user1", "EUR", "100", "105")
	seedTransaction(txRepo, "t2", "user1", "GBP", "100", "100")
	seedTransaction(txRepo, "t3", "user1", "EUR", "200", "220")

	job, err := svc.StartJob("user1", &domain.RevaluationRequest{})
	if err != nil {
		t.Fatalf("StartJob() unexpected error = %v", err)
	}

	done := waitForTerminal(t, svc, job.ID, "user1")

	if done.Status != domain.JobCompleted {
		t.Fatalf("job status = %s, want completed despite item errors", done.Status)
	}
	if done.ProcessedCount != 3 {
		t.Errorf("processed = %d, want 3", done.ProcessedCount)
	}
	if done.ErrorCount != 2 {
		t.Errorf("errors = %d, want 2", done.ErrorCount)
	}
	if done.UpdatedCount != 1 {
		t.Errorf("updated = %d, want 1", done.UpdatedCount)
	}
}

func TestRevaluationService_AllItemsFailingStillCompletes(t *testing.T) {
	svc, txRepo, _, provider, _ := revaluationFixture()
	provider.failFor["EUR"] = errors.New("provider unreachable")

	seedTransaction(txRepo, "t1", "user1", "EUR", "100", "105")
	seedTransaction(txRepo, "t2", "user1", "EUR", "200", "220")

	job, _ := svc.StartJob("user1", &domain.RevaluationRequest{})
	done := waitForTerminal(t, svc, job.ID, "user1")

	if done.Status != domain.JobCompleted {
		t.Fatalf("job status = %s, want completed", done.Status)
	}
	if done.ErrorCount != done.ProcessedCount {
		t.Errorf("errors = %d, processed = %d, want them equal", done.ErrorCount, done.ProcessedCount)
	}
}

func TestRevaluationService_CurrencyFilter(t *testing.T) {
	svc, txRepo, _, provider, _ := revaluationFixture()
	provider.rates["EUR"] = decimal.RequireFromString("1.10")
	provider.rates["GBP"] = decimal.RequireFromString("1.30")

	seedTransaction(txRepo, "t1", "user1", "EUR", "100", "0")
	seedTransaction(txRepo, "t2", "user1", "GBP", "100", "0")

	job, _ := svc.StartJob("user1", &domain.RevaluationRequest{Currencies: []string{"EUR"}})
	done := waitForTerminal(t, svc, job.ID, "user1")

	if done.ProcessedCount != 1 {
		t.Errorf("processed = %d, want only the EUR transaction", done.ProcessedCount)
	}
	if !txRepo.txs["t2"].ConvertedAmount.Equal(decimal.Zero) {
		t.Error("filtered-out transaction was revalued")
	}
}

func TestRevaluationService_MissingOwnerFailsJob(t *testing.T) {
	svc, _, _, _, _ := revaluationFixture()

	job, err := svc.StartJob("ghost", &domain.RevaluationRequest{})
	if err != nil {
		t.Fatalf("StartJob() unexpected error = %v", err)
	}

	done := waitForTerminal(t, svc, job.ID, "ghost")

	if done.Status != domain.JobFailed {
		t.Fatalf("job status = %s, want failed", done.Status)
	}
	if done.ErrorMessage == "" {
		t.Error("failed job carries no error message")
	}
}

func TestRevaluationService_GetJobStatus(t *testing.T) {
	svc, txRepo, _, provider, _ := revaluationFixture()
	provider.rates["EUR"] = decimal.RequireFromString("1.10")
	seedTransaction(txRepo, "t1", "user1", "EUR", "100", "105")

	job, _ := svc.StartJob("user1", &domain.RevaluationRequest{})
	waitForTerminal(t, svc, job.ID, "user1")

	if _, err := svc.GetJobStatus("missing-job", "user1"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJobStatus() unknown job error = %v, want ErrJobNotFound", err)
	}

	if _, err := svc.GetJobStatus(job.ID, "somebody-else"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("GetJobStatus() foreign job error = %v, want ErrAccessDenied", err)
	}

	got, err := svc.GetJobStatus(job.ID, "user1")
	if err != nil {
		t.Fatalf("GetJobStatus() unexpected error = %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("GetJobStatus() id = %s, want %s", got.ID, job.ID)
	}
}

func TestRevaluationService_OneActiveJobPerOwner(t *testing.T) {
	svc, txRepo, _, provider, _ := revaluationFixture()
	provider.rates["EUR"] = decimal.RequireFromString("1.10")
	provider.block = make(chan struct{})

	seedTransaction(txRepo, "t1", "user1", "EUR", "100", "105")

	first, err := svc.StartJob("user1", &domain.RevaluationRequest{})
	if err != nil {
		t.Fatalf("StartJob() unexpected error = %v", err)
	}

	if _, err := svc.StartJob("user1", &domain.RevaluationRequest{}); !errors.Is(err, ErrJobAlreadyActive) {
		t.Errorf("StartJob() while active error = %v, want ErrJobAlreadyActive", err)
	}

	// Another owner is not affected by user1's running job.
	if _, err := svc.StartJob("ghost", &domain.RevaluationRequest{}); err != nil {
		t.Errorf("StartJob() other owner error = %v, want none", err)
	}

	close(provider.block)
	waitForTerminal(t, svc, first.ID, "user1")

	if _, err := svc.StartJob("user1", &domain.RevaluationRequest{}); err != nil {
		t.Errorf("StartJob() after completion error = %v, want none", err)
	}
}
