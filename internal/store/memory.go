package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/satya6366/trust-ledger/internal/domain"
)

// MemoryStore is the in-process store used by tests and local development.
// A single mutex around every composite operation gives the same guarantee
// the Postgres transactions do: balance mutations never interleave, and
// collect is an atomic check-and-transition.
type MemoryStore struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	loans     map[string]domain.Loan
	expenses  map[string]domain.Expense
	donations map[string]domain.Donation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:     make(map[string]domain.Loan),
		expenses:  make(map[string]domain.Expense),
		donations: make(map[string]domain.Donation),
	}
}

func (s *MemoryStore) Balance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *MemoryStore) Loans(ctx context.Context) ([]domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loans := make([]domain.Loan, 0, len(s.loans))
	for _, l := range s.loans {
		loans = append(loans, l)
	}
	sortByCreatedAtDesc(loans, func(l domain.Loan) sortKey { return sortKey{l.CreatedAt.UnixNano(), l.ID} })
	return loans, nil
}

func (s *MemoryStore) LoansByUser(ctx context.Context, userID string) ([]domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loans := []domain.Loan{}
	for _, l := range s.loans {
		if l.UserID == userID {
			loans = append(loans, l)
		}
	}
	sortByCreatedAtDesc(loans, func(l domain.Loan) sortKey { return sortKey{l.CreatedAt.UnixNano(), l.ID} })
	return loans, nil
}

func (s *MemoryStore) Loan(ctx context.Context, id string) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (s *MemoryStore) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[loan.ID] = *loan
	return nil
}

func (s *MemoryStore) UpdateLoan(ctx context.Context, id string, upd domain.LoanUpdate) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if l.IsCollected {
		return nil, domain.ErrAlreadyCollected
	}
	l.UserID = upd.UserID
	l.Borrower = upd.Borrower
	l.Amount = upd.Amount
	l.InterestAmount = upd.InterestAmount
	l.DueDate = upd.DueDate
	s.loans[id] = l
	return &l, nil
}

func (s *MemoryStore) CollectLoan(ctx context.Context, id string) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if l.IsCollected {
		return nil, domain.ErrAlreadyCollected
	}
	l.IsCollected = true
	s.loans[id] = l
	s.balance = s.balance.Add(l.Amount.Add(l.InterestAmount))
	return &l, nil
}

func (s *MemoryStore) DeleteLoan(ctx context.Context, id string) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.loans, id)
	return &l, nil
}

func (s *MemoryStore) Expenses(ctx context.Context) ([]domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenses := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		expenses = append(expenses, e)
	}
	sortByCreatedAtDesc(expenses, func(e domain.Expense) sortKey { return sortKey{e.CreatedAt.UnixNano(), e.ID} })
	return expenses, nil
}

func (s *MemoryStore) CreateExpense(ctx context.Context, e *domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[e.ID] = *e
	s.balance = s.balance.Sub(e.Amount)
	return nil
}

func (s *MemoryStore) DeleteExpense(ctx context.Context, id string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.expenses, id)
	s.balance = s.balance.Add(e.Amount)
	return &e, nil
}

func (s *MemoryStore) Donations(ctx context.Context) ([]domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	donations := make([]domain.Donation, 0, len(s.donations))
	for _, d := range s.donations {
		donations = append(donations, d)
	}
	sortByCreatedAtDesc(donations, func(d domain.Donation) sortKey { return sortKey{d.CreatedAt.UnixNano(), d.ID} })
	return donations, nil
}

func (s *MemoryStore) CreateDonation(ctx context.Context, d *domain.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donations[d.ID] = *d
	s.balance = s.balance.Add(d.Amount)
	return nil
}

func (s *MemoryStore) DeleteDonation(ctx context.Context, id string) (*domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.donations, id)
	s.balance = s.balance.Sub(d.Amount)
	return &d, nil
}

type sortKey struct {
	createdAt int64
	id        string
}

// sortByCreatedAtDesc gives map iteration a stable, newest-first order, with
// the ID as tiebreaker for records created in the same nanosecond.
func sortByCreatedAtDesc[T any](items []T, key func(T) sortKey) {
	sort.Slice(items, func(i, j int) bool {
		a, b := key(items[i]), key(items[j])
		if a.createdAt != b.createdAt {
			return a.createdAt > b.createdAt
		}
		return a.id < b.id
	})
}
