package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/satya6366/trust-ledger/internal/auth"
	"github.com/satya6366/trust-ledger/internal/domain"
	"github.com/satya6366/trust-ledger/internal/store"
)

type stubResolver struct {
	roles map[string]domain.Role
	err   error
}

func (r *stubResolver) ResolveRole(ctx context.Context, userID string) (domain.Role, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	role, ok := r.roles[userID]
	return role, ok, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	fail     bool
	messages []string
}

func (n *recordingNotifier) Send(ctx context.Context, userID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	if n.fail {
		return errors.New("channel down")
	}
	return nil
}

func newTestService(resolver *stubResolver, notifier *recordingNotifier) (*TrustService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	svc := New(st, auth.NewGate(resolver), notifier, zap.NewNop().Sugar())
	return svc, st
}

func adminResolver() *stubResolver {
	return &stubResolver{roles: map[string]domain.Role{
		"admin-1": domain.RoleAdmin,
		"user-1":  domain.RoleUser,
		"user-2":  domain.RoleUser,
	}}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustBalance(t *testing.T, svc *TrustService, want string) {
	t.Helper()
	b, err := svc.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !b.Balance.Equal(dec(want)) {
		t.Fatalf("balance = %s, want %s", b.Balance, want)
	}
}

func TestBalanceAccumulation(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	mustBalance(t, svc, "0")

	if _, err := svc.CreateDonation(ctx, domain.EntryInput{
		UserID: "admin-1", Description: "temple fund", Amount: dec("500"),
	}); err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	mustBalance(t, svc, "500")

	if _, err := svc.CreateExpense(ctx, domain.EntryInput{
		UserID: "admin-1", Description: "repairs", Amount: dec("200"),
	}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	mustBalance(t, svc, "300")

	loan, err := svc.CreateLoan(ctx, domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("1000"), InterestAmount: dec("50"),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	// Issuance moves no money.
	mustBalance(t, svc, "300")

	collected, err := svc.CollectLoan(ctx, loan.ID, "admin-1")
	if err != nil {
		t.Fatalf("CollectLoan: %v", err)
	}
	if !collected.IsCollected {
		t.Fatalf("expected loan marked collected")
	}
	mustBalance(t, svc, "1350")
}

func TestCreateExpense_NonAdminForbidden(t *testing.T) {
	svc, st := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	_, err := svc.CreateExpense(ctx, domain.EntryInput{
		UserID: "user-1", Description: "snacks", Amount: dec("50"),
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err.Error() != "Only admins can add expenses" {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	expenses, _ := st.Expenses(ctx)
	if len(expenses) != 0 {
		t.Fatalf("expected no expense recorded, got %d", len(expenses))
	}
	mustBalance(t, svc, "0")
}

func TestValidationOrder(t *testing.T) {
	// Missing user_id must fail before the identity store is consulted,
	// even when that store is down.
	svc, _ := newTestService(&stubResolver{err: errors.New("identity store down")}, &recordingNotifier{})
	_, err := svc.CreateExpense(context.Background(), domain.EntryInput{Description: "x", Amount: dec("1")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// Authorization runs before the remaining business fields: a non-admin
	// with a missing description sees Forbidden, not ValidationError.
	svc2, _ := newTestService(adminResolver(), &recordingNotifier{})
	_, err = svc2.CreateExpense(context.Background(), domain.EntryInput{UserID: "user-1"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateLoan_Validation(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	cases := []struct {
		name string
		in   domain.LoanInput
	}{
		{"missing user_id", domain.LoanInput{Borrower: "b", Amount: dec("1"), InterestAmount: dec("1")}},
		{"missing borrower", domain.LoanInput{UserID: "admin-1", Amount: dec("1"), InterestAmount: dec("1")}},
		{"zero amount", domain.LoanInput{UserID: "admin-1", Borrower: "b", InterestAmount: dec("1")}},
		{"negative interest", domain.LoanInput{UserID: "admin-1", Borrower: "b", Amount: dec("1"), InterestAmount: dec("-2")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateLoan(ctx, tc.in); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateLoan_DueDateDefaultsOneMonthOut(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	loan, err := svc.CreateLoan(context.Background(), domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("100"), InterestAmount: dec("10"),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if got, want := loan.DueDate, loan.CreatedAt.AddDate(0, 1, 0); !got.Equal(want) {
		t.Fatalf("due date = %s, want %s", got, want)
	}
}

func TestCollectLoan_Twice(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("1000"), InterestAmount: dec("50"),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if _, err := svc.CollectLoan(ctx, loan.ID, "admin-1"); err != nil {
		t.Fatalf("first collect: %v", err)
	}
	if _, err := svc.CollectLoan(ctx, loan.ID, "admin-1"); !errors.Is(err, domain.ErrAlreadyCollected) {
		t.Fatalf("expected ErrAlreadyCollected, got %v", err)
	}
	mustBalance(t, svc, "1050")
}

func TestCollectLoan_Concurrent(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("1000"), InterestAmount: dec("50"),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.CollectLoan(ctx, loan.ID, "admin-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyCollected):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins = %d, conflicts = %d, want 1 and %d", wins, conflicts, n-1)
	}
	mustBalance(t, svc, "1050")
}

func TestCollectLoan_NotFound(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	if _, err := svc.CollectLoan(context.Background(), "missing-id", "admin-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCollectLoan_NonAdmin(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()
	loan, _ := svc.CreateLoan(ctx, domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("10"), InterestAmount: dec("1"),
	})
	if _, err := svc.CollectLoan(ctx, loan.ID, "user-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	mustBalance(t, svc, "0")
}

func TestUpdateLoan_CollectedIsFrozen(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()
	loan, _ := svc.CreateLoan(ctx, domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("10"), InterestAmount: dec("1"),
	})
	if _, err := svc.CollectLoan(ctx, loan.ID, "admin-1"); err != nil {
		t.Fatalf("collect: %v", err)
	}
	_, err := svc.UpdateLoan(ctx, loan.ID, domain.LoanUpdate{
		UserID: "admin-1", Borrower: "Someone", Amount: dec("99"), InterestAmount: dec("9"),
		DueDate: loan.DueDate,
	})
	if !errors.Is(err, domain.ErrAlreadyCollected) {
		t.Fatalf("expected ErrAlreadyCollected, got %v", err)
	}
}

func TestDeleteLoan_Authorization(t *testing.T) {
	ctx := context.Background()

	// Seeded directly so the loan can belong to a non-admin borrower.
	newLoan := func(st *store.MemoryStore) *domain.Loan {
		loan := &domain.Loan{
			ID:             uuid.NewString(),
			UserID:         "user-1",
			Borrower:       "Ravi",
			Amount:         dec("10"),
			InterestAmount: dec("1"),
			DueDate:        time.Now().AddDate(0, 1, 0),
			CreatedAt:      time.Now(),
		}
		if err := st.CreateLoan(ctx, loan); err != nil {
			t.Fatalf("CreateLoan: %v", err)
		}
		return loan
	}

	t.Run("owner may delete", func(t *testing.T) {
		svc, st := newTestService(adminResolver(), &recordingNotifier{})
		loan := newLoan(st)
		if _, err := svc.DeleteLoan(ctx, loan.ID, "user-1"); err != nil {
			t.Fatalf("owner delete: %v", err)
		}
		if _, err := st.Loan(ctx, loan.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("loan still present after delete")
		}
	})

	t.Run("admin may delete", func(t *testing.T) {
		svc, st := newTestService(adminResolver(), &recordingNotifier{})
		loan := newLoan(st)
		if _, err := svc.DeleteLoan(ctx, loan.ID, "admin-1"); err != nil {
			t.Fatalf("admin delete: %v", err)
		}
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		svc, st := newTestService(adminResolver(), &recordingNotifier{})
		loan := newLoan(st)
		_, err := svc.DeleteLoan(ctx, loan.ID, "user-2")
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if !strings.Contains(err.Error(), "your own loans") {
			t.Fatalf("unexpected message: %q", err.Error())
		}
	})

	t.Run("unverifiable caller is forbidden", func(t *testing.T) {
		resolver := adminResolver()
		svc, st := newTestService(resolver, &recordingNotifier{})
		loan := newLoan(st)
		resolver.err = errors.New("identity store down")
		_, err := svc.DeleteLoan(ctx, loan.ID, "user-1")
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if err.Error() != "Invalid user" {
			t.Fatalf("unexpected message: %q", err.Error())
		}
	})
}

func TestExpenseRoundTrip(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	if _, err := svc.CreateDonation(ctx, domain.EntryInput{
		UserID: "admin-1", Description: "seed", Amount: dec("250.75"),
	}); err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}

	expense, err := svc.CreateExpense(ctx, domain.EntryInput{
		UserID: "admin-1", Description: "chairs", Amount: dec("100"),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	mustBalance(t, svc, "150.75")

	if _, err := svc.DeleteExpense(ctx, expense.ID, "admin-1"); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	mustBalance(t, svc, "250.75")
}

func TestDeleteDonation_RemovesStoredAmount(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	donation, err := svc.CreateDonation(ctx, domain.EntryInput{
		UserID: "admin-1", Description: "drive", Amount: dec("500"),
	})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	mustBalance(t, svc, "500")

	// The delete path takes no amount at all; only the stored record counts.
	if _, err := svc.DeleteDonation(ctx, donation.ID, "admin-1"); err != nil {
		t.Fatalf("DeleteDonation: %v", err)
	}
	mustBalance(t, svc, "0")
}

func TestNotifierFailureNeverFailsOperations(t *testing.T) {
	notifier := &recordingNotifier{fail: true}
	svc, _ := newTestService(adminResolver(), notifier)
	ctx := context.Background()

	if _, err := svc.CreateDonation(ctx, domain.EntryInput{
		UserID: "admin-1", Description: "d", Amount: dec("500"),
	}); err != nil {
		t.Fatalf("CreateDonation with failing notifier: %v", err)
	}
	expense, err := svc.CreateExpense(ctx, domain.EntryInput{
		UserID: "admin-1", Description: "e", Amount: dec("200"),
	})
	if err != nil {
		t.Fatalf("CreateExpense with failing notifier: %v", err)
	}
	if _, err := svc.DeleteExpense(ctx, expense.ID, "admin-1"); err != nil {
		t.Fatalf("DeleteExpense with failing notifier: %v", err)
	}
	loan, err := svc.CreateLoan(ctx, domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("1000"), InterestAmount: dec("50"),
	})
	if err != nil {
		t.Fatalf("CreateLoan with failing notifier: %v", err)
	}
	if _, err := svc.CollectLoan(ctx, loan.ID, "admin-1"); err != nil {
		t.Fatalf("CollectLoan with failing notifier: %v", err)
	}

	mustBalance(t, svc, "1550")
	if len(notifier.messages) != 5 {
		t.Fatalf("expected 5 delivery attempts, got %d", len(notifier.messages))
	}
}

func TestNotificationMessages(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, _ := newTestService(adminResolver(), notifier)
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, domain.LoanInput{
		UserID: "admin-1", Borrower: "Ravi", Amount: dec("1000"), InterestAmount: dec("50"),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	want := fmt.Sprintf("Loan of ₹1000 with interest ₹50 due on %s", loan.DueDate.Format("02/01/2006"))
	if notifier.messages[0] != want {
		t.Fatalf("message = %q, want %q", notifier.messages[0], want)
	}

	if _, err := svc.CollectLoan(ctx, loan.ID, "admin-1"); err != nil {
		t.Fatalf("CollectLoan: %v", err)
	}
	if got := notifier.messages[1]; got != "Loan of ₹1000 with interest ₹50 marked as collected" {
		t.Fatalf("unexpected collect message: %q", got)
	}
}

func TestRole_Asymmetry(t *testing.T) {
	svc, _ := newTestService(adminResolver(), &recordingNotifier{})
	ctx := context.Background()

	// Unknown users read as plain users, never an error.
	role, err := svc.Role(ctx, "nobody")
	if err != nil || role != domain.RoleUser {
		t.Fatalf("Role(nobody) = %q, %v; want user, nil", role, err)
	}

	role, err = svc.Role(ctx, "admin-1")
	if err != nil || role != domain.RoleAdmin {
		t.Fatalf("Role(admin-1) = %q, %v; want admin, nil", role, err)
	}

	// A lookup failure is surfaced on the read path, not downgraded.
	broken, _ := newTestService(&stubResolver{err: errors.New("down")}, &recordingNotifier{})
	if _, err := broken.Role(ctx, "admin-1"); err == nil {
		t.Fatalf("expected lookup error to propagate")
	}
}
