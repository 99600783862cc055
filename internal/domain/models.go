package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is a caller's authorization level as recorded in the identity store.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// TrustBalance is the singleton cash-on-hand aggregate. It is mutated only
// through the ledger engine's store operations, never directly.
type TrustBalance struct {
	Balance decimal.Decimal `json:"balance"`
}

// Loan is money lent out of the trust. Issuing a loan does not move the
// balance; collecting it credits amount + interest.
type Loan struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Borrower       string          `json:"borrower"`
	Amount         decimal.Decimal `json:"amount"`
	InterestAmount decimal.Decimal `json:"interest_amount"`
	DueDate        time.Time       `json:"due_date"`
	CreatedAt      time.Time       `json:"created_at"`
	IsCollected    bool            `json:"is_collected"`
}

// Expense debits the balance on creation and restores it on deletion.
type Expense struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Donation credits the balance on creation and removes its own stored
// amount on deletion.
type Donation struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LoanInput is the payload for creating a loan. The due date is not part of
// the input; the engine sets it to creation time plus one month.
type LoanInput struct {
	UserID         string          `json:"user_id"`
	Borrower       string          `json:"borrower"`
	Amount         decimal.Decimal `json:"amount"`
	InterestAmount decimal.Decimal `json:"interest_amount"`
}

// LoanUpdate is the payload for editing an uncollected loan. Every field is
// required.
type LoanUpdate struct {
	UserID         string          `json:"user_id"`
	Borrower       string          `json:"borrower"`
	Amount         decimal.Decimal `json:"amount"`
	InterestAmount decimal.Decimal `json:"interest_amount"`
	DueDate        time.Time       `json:"due_date"`
}

// EntryInput is the payload for creating an expense or donation.
type EntryInput struct {
	UserID      string          `json:"user_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}
