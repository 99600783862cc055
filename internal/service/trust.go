package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/satya6366/trust-ledger/internal/auth"
	"github.com/satya6366/trust-ledger/internal/domain"
	"github.com/satya6366/trust-ledger/internal/notify"
)

var (
	ledgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ledger_operations_total",
		Help: "Ledger engine operations by entity, action and outcome",
	}, []string{"entity", "action", "outcome"})

	trustBalanceGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trust_balance",
		Help: "Current trust balance as last observed by the service",
	})
)

// Store is the persistence port for the ledger engine. Each balance-mutating
// method persists the domain record and applies the corresponding balance
// delta as one atomic unit, deriving the delta from the record it stores so
// caller input can never skew the aggregate. Implementations must serialize
// concurrent balance mutations: no two read-modify-write cycles on the
// aggregate may interleave.
type Store interface {
	Balance(ctx context.Context) (decimal.Decimal, error)

	Loans(ctx context.Context) ([]domain.Loan, error)
	LoansByUser(ctx context.Context, userID string) ([]domain.Loan, error)
	Loan(ctx context.Context, id string) (*domain.Loan, error)
	CreateLoan(ctx context.Context, loan *domain.Loan) error
	UpdateLoan(ctx context.Context, id string, upd domain.LoanUpdate) (*domain.Loan, error)
	// CollectLoan atomically flips is_collected false -> true and credits
	// amount + interest. Exactly one of N concurrent calls wins; the rest
	// observe domain.ErrAlreadyCollected.
	CollectLoan(ctx context.Context, id string) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, id string) (*domain.Loan, error)

	Expenses(ctx context.Context) ([]domain.Expense, error)
	CreateExpense(ctx context.Context, e *domain.Expense) error
	DeleteExpense(ctx context.Context, id string) (*domain.Expense, error)

	Donations(ctx context.Context) ([]domain.Donation, error)
	CreateDonation(ctx context.Context, d *domain.Donation) error
	DeleteDonation(ctx context.Context, id string) (*domain.Donation, error)
}

// TrustService is the balance ledger engine. Every mutation follows the same
// template: validate the caller's user_id, authorize, validate the remaining
// business fields, persist via one atomic store op, then fire a best-effort
// notification that can never fail the operation.
type TrustService struct {
	store    Store
	gate     *auth.Gate
	notifier notify.Notifier
	log      *zap.SugaredLogger
	now      func() time.Time
}

func New(store Store, gate *auth.Gate, notifier notify.Notifier, log *zap.SugaredLogger) *TrustService {
	return &TrustService{
		store:    store,
		gate:     gate,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (s *TrustService) Balance(ctx context.Context) (*domain.TrustBalance, error) {
	balance, err := s.store.Balance(ctx)
	if err != nil {
		return nil, err
	}
	setBalanceGauge(balance)
	return &domain.TrustBalance{Balance: balance}, nil
}

func (s *TrustService) Role(ctx context.Context, userID string) (domain.Role, error) {
	return s.gate.EffectiveRole(ctx, userID)
}

func (s *TrustService) Loans(ctx context.Context) ([]domain.Loan, error) {
	return s.store.Loans(ctx)
}

func (s *TrustService) LoansByUser(ctx context.Context, userID string) ([]domain.Loan, error) {
	return s.store.LoansByUser(ctx, userID)
}

func (s *TrustService) CreateLoan(ctx context.Context, in domain.LoanInput) (loan *domain.Loan, err error) {
	defer func() { recordOp("loan", "create", err) }()

	if in.UserID == "" {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}
	if err := s.gate.RequireAdmin(ctx, in.UserID); err != nil {
		return nil, domain.E(domain.ErrForbidden, "Only admins can add loans")
	}
	if in.Borrower == "" || !in.Amount.IsPositive() || !in.InterestAmount.IsPositive() {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}

	now := s.now()
	loan = &domain.Loan{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Borrower:       in.Borrower,
		Amount:         in.Amount,
		InterestAmount: in.InterestAmount,
		DueDate:        now.AddDate(0, 1, 0),
		CreatedAt:      now,
		IsCollected:    false,
	}
	if err = s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.notify(ctx, in.UserID, fmt.Sprintf("Loan of ₹%s with interest ₹%s due on %s",
		loan.Amount, loan.InterestAmount, loan.DueDate.Format("02/01/2006")))
	return loan, nil
}

func (s *TrustService) UpdateLoan(ctx context.Context, id string, in domain.LoanUpdate) (loan *domain.Loan, err error) {
	defer func() { recordOp("loan", "update", err) }()

	if in.UserID == "" {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}
	if err := s.gate.RequireAdmin(ctx, in.UserID); err != nil {
		return nil, domain.E(domain.ErrForbidden, "Only admins can edit loans")
	}
	if in.Borrower == "" || !in.Amount.IsPositive() || !in.InterestAmount.IsPositive() || in.DueDate.IsZero() {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}

	loan, err = s.store.UpdateLoan(ctx, id, in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.E(domain.ErrNotFound, "Loan not found")
		case errors.Is(err, domain.ErrAlreadyCollected):
			return nil, domain.E(domain.ErrAlreadyCollected, "Loan already collected")
		}
		return nil, err
	}

	s.notify(ctx, in.UserID, fmt.Sprintf("Loan of ₹%s to %s updated", loan.Amount, loan.Borrower))
	return loan, nil
}

// CollectLoan credits the stored loan's amount plus interest to the balance.
// The caller supplies nothing but its identity; amounts always come from the
// persisted record.
func (s *TrustService) CollectLoan(ctx context.Context, id, userID string) (loan *domain.Loan, err error) {
	defer func() { recordOp("loan", "collect", err) }()

	if userID == "" {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}
	if err := s.gate.RequireAdmin(ctx, userID); err != nil {
		return nil, domain.E(domain.ErrForbidden, "Only admins can mark loans as collected")
	}

	loan, err = s.store.CollectLoan(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.E(domain.ErrNotFound, "Loan not found")
		case errors.Is(err, domain.ErrAlreadyCollected):
			return nil, domain.E(domain.ErrAlreadyCollected, "Loan already collected")
		}
		return nil, err
	}
	s.refreshBalanceGauge(ctx)

	s.notify(ctx, userID, fmt.Sprintf("Loan of ₹%s with interest ₹%s marked as collected",
		loan.Amount, loan.InterestAmount))
	return loan, nil
}

// DeleteLoan is the one admin-or-owner operation: borrowers may cancel their
// own loan but not edit its terms or mark it paid. The loan is fetched first
// because ownership cannot be checked without it.
func (s *TrustService) DeleteLoan(ctx context.Context, id, userID string) (loan *domain.Loan, err error) {
	defer func() { recordOp("loan", "delete", err) }()

	if userID == "" {
		return nil, domain.E(domain.ErrValidation, "user_id is required")
	}

	loan, err = s.store.Loan(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.E(domain.ErrNotFound, "Loan not found")
		}
		return nil, err
	}

	if err := s.gate.RequireAdminOrOwner(ctx, userID, loan.UserID); err != nil {
		if errors.Is(err, auth.ErrUnverified) {
			return nil, err
		}
		return nil, domain.E(domain.ErrForbidden, "You can only delete your own loans or be an admin")
	}

	loan, err = s.store.DeleteLoan(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.E(domain.ErrNotFound, "Loan not found")
		}
		return nil, err
	}

	s.notify(ctx, loan.UserID, fmt.Sprintf("Loan of ₹%s deleted", loan.Amount))
	return loan, nil
}

func (s *TrustService) Expenses(ctx context.Context) ([]domain.Expense, error) {
	return s.store.Expenses(ctx)
}

func (s *TrustService) CreateExpense(ctx context.Context, in domain.EntryInput) (expense *domain.Expense, err error) {
	defer func() { recordOp("expense", "create", err) }()

	if in.UserID == "" {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}
	if err := s.gate.RequireAdmin(ctx, in.UserID); err != nil {
		return nil, domain.E(domain.ErrForbidden, "Only admins can add expenses")
	}
	if in.Description == "" || !in.Amount.IsPositive() {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}

	expense = &domain.Expense{
		ID:          uuid.NewString(),
		Description: in.Description,
		Amount:      in.Amount,
		CreatedAt:   s.now(),
	}
	if err = s.store.CreateExpense(ctx, expense); err != nil {
		return nil, err
	}
	s.refreshBalanceGauge(ctx)

	s.notify(ctx, in.UserID, fmt.Sprintf("Expense of ₹%s added: %s", expense.Amount, expense.Description))
	return expense, nil
}

func (s *TrustService) DeleteExpense(ctx context.Context, id, userID string) (expense *domain.Expense, err error) {
	defer func() { recordOp("expense", "delete", err) }()

	if userID == "" {
		return nil, domain.E(domain.ErrValidation, "user_id is required")
	}
	if err := s.gate.RequireAdmin(ctx, userID); err != nil {
		return nil, domain.E(domain.ErrForbidden, "Only admins can delete expenses")
	}

	expense, err = s.store.DeleteExpense(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.E(domain.ErrNotFound, "Expense not found")
		}
		return nil, err
	}
	s.refreshBalanceGauge(ctx)

	s.notify(ctx, userID, fmt.Sprintf("Expense of ₹%s deleted: %s", expense.Amount, expense.Description))
	return expense, nil
}

func (s *TrustService) Donations(ctx context.Context) ([]domain.Donation, error) {
	return s.store.Donations(ctx)
}

func (s *TrustService) CreateDonation(ctx context.Context, in domain.EntryInput) (donation *domain.Donation, err error) {
	defer func() { recordOp("donation", "create", err) }()

	if in.UserID == "" {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}
	if err := s.gate.RequireAdmin(ctx, in.UserID); err != nil {
		return nil, domain.E(domain.ErrForbidden, "Only admins can add donations")
	}
	if in.Description == "" || !in.Amount.IsPositive() {
		return nil, domain.E(domain.ErrValidation, "Missing required fields")
	}

	donation = &domain.Donation{
		ID:          uuid.NewString(),
		Description: in.Description,
		Amount:      in.Amount,
		CreatedAt:   s.now(),
	}
	if err = s.store.CreateDonation(ctx, donation); err != nil {
		return nil, err
	}
	s.refreshBalanceGauge(ctx)

	s.notify(ctx, in.UserID, fmt.Sprintf("Donation of ₹%s added: %s", donation.Amount, donation.Description))
	return donation, nil
}

// DeleteDonation removes exactly the donation's stored amount from the
// balance. A caller-supplied amount is never consulted.
func (s *TrustService) DeleteDonation(ctx context.Context, id, userID string) (donation *domain.Donation, err error) {
	defer func() { recordOp("donation", "delete", err) }()

	if userID == "" {
		return nil, domain.E(domain.ErrValidation, "user_id is required")
	}
	if err := s.gate.RequireAdmin(ctx, userID); err != nil {
		return nil, domain.E(domain.ErrForbidden, "Only admins can delete donations")
	}

	donation, err = s.store.DeleteDonation(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.E(domain.ErrNotFound, "Donation not found")
		}
		return nil, err
	}
	s.refreshBalanceGauge(ctx)

	s.notify(ctx, userID, fmt.Sprintf("Donation of ₹%s deleted: %s", donation.Amount, donation.Description))
	return donation, nil
}

// notify delivers a message best-effort. Failures are logged and swallowed;
// the parent operation has already committed and must not be affected.
func (s *TrustService) notify(ctx context.Context, userID, message string) {
	if err := s.notifier.Send(ctx, userID, message); err != nil {
		s.log.Warnw("notification delivery failed", "user_id", userID, "error", err)
	}
}

func (s *TrustService) refreshBalanceGauge(ctx context.Context) {
	balance, err := s.store.Balance(ctx)
	if err != nil {
		s.log.Warnw("balance gauge refresh failed", "error", err)
		return
	}
	setBalanceGauge(balance)
}

func setBalanceGauge(balance decimal.Decimal) {
	v, _ := balance.Float64()
	trustBalanceGauge.Set(v)
}

func recordOp(entity, action string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyCollected):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	ledgerOpsTotal.WithLabelValues(entity, action, outcome).Inc()
}
