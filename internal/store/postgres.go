package store

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/satya6366/trust-ledger/internal/domain"
)

// Schema bootstraps the four collections. The balance aggregate is a
// single-row table: the boolean primary key with a CHECK constraint makes a
// second row unrepresentable.
const Schema = `
CREATE TABLE IF NOT EXISTS trust_balance (
	id boolean PRIMARY KEY DEFAULT true CHECK (id),
	balance numeric NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS loans (
	id uuid PRIMARY KEY,
	user_id text NOT NULL,
	borrower text NOT NULL,
	amount numeric NOT NULL,
	interest_amount numeric NOT NULL,
	due_date timestamptz NOT NULL,
	created_at timestamptz NOT NULL,
	is_collected boolean NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS loans_user_id_idx ON loans (user_id);
CREATE TABLE IF NOT EXISTS expenses (
	id uuid PRIMARY KEY,
	description text NOT NULL,
	amount numeric NOT NULL,
	created_at timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS donations (
	id uuid PRIMARY KEY,
	description text NOT NULL,
	amount numeric NOT NULL,
	created_at timestamptz NOT NULL
);
`

// PostgresStore keeps the ledger in Postgres. Every balance-mutating method
// runs its record write and the balance adjustment in one transaction; the
// row lock on the singleton balance row serializes concurrent mutations.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Balance reads the aggregate, creating the singleton row with balance 0 on
// first access.
func (s *PostgresStore) Balance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRow(ctx, "SELECT balance FROM trust_balance WHERE id").Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.db.QueryRow(ctx,
			`INSERT INTO trust_balance (id, balance) VALUES (true, 0)
			 ON CONFLICT (id) DO UPDATE SET balance = trust_balance.balance
			 RETURNING balance`).Scan(&balance)
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("reading balance: %w", err)
	}
	return balance, nil
}

// applyDelta adjusts the singleton balance row inside the caller's
// transaction. The upsert creates the row on first use and increments it in
// place afterwards, so the read-modify-write never happens client-side.
func applyDelta(ctx context.Context, tx pgx.Tx, delta decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO trust_balance (id, balance) VALUES (true, $1)
		 ON CONFLICT (id) DO UPDATE SET balance = trust_balance.balance + EXCLUDED.balance`,
		delta)
	if err != nil {
		return fmt.Errorf("applying balance delta: %w", err)
	}
	return nil
}

const loanColumns = "id, user_id, borrower, amount, interest_amount, due_date, created_at, is_collected"

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(&l.ID, &l.UserID, &l.Borrower, &l.Amount, &l.InterestAmount,
		&l.DueDate, &l.CreatedAt, &l.IsCollected)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) Loans(ctx context.Context) ([]domain.Loan, error) {
	return s.queryLoans(ctx, "SELECT "+loanColumns+" FROM loans ORDER BY created_at DESC")
}

func (s *PostgresStore) LoansByUser(ctx context.Context, userID string) ([]domain.Loan, error) {
	return s.queryLoans(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (s *PostgresStore) queryLoans(ctx context.Context, sql string, args ...any) ([]domain.Loan, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying loans: %w", err)
	}
	defer rows.Close()

	loans := []domain.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (s *PostgresStore) Loan(ctx context.Context, id string) (*domain.Loan, error) {
	loan, err := scanLoan(s.db.QueryRow(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying loan: %w", err)
	}
	return loan, nil
}

func (s *PostgresStore) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO loans (id, user_id, borrower, amount, interest_amount, due_date, created_at, is_collected)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		loan.ID, loan.UserID, loan.Borrower, loan.Amount, loan.InterestAmount,
		loan.DueDate, loan.CreatedAt, loan.IsCollected)
	if err != nil {
		return fmt.Errorf("inserting loan: %w", err)
	}
	return nil
}

// UpdateLoan edits an uncollected loan. A collected loan's terms are frozen.
func (s *PostgresStore) UpdateLoan(ctx context.Context, id string, upd domain.LoanUpdate) (*domain.Loan, error) {
	loan, err := scanLoan(s.db.QueryRow(ctx,
		`UPDATE loans
		 SET user_id = $2, borrower = $3, amount = $4, interest_amount = $5, due_date = $6
		 WHERE id = $1 AND NOT is_collected
		 RETURNING `+loanColumns,
		id, upd.UserID, upd.Borrower, upd.Amount, upd.InterestAmount, upd.DueDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.loanConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating loan: %w", err)
	}
	return loan, nil
}

// CollectLoan is the atomic find-and-modify: the is_collected predicate in
// the UPDATE guarantees exactly one of N concurrent calls transitions the
// loan, and the balance credit commits in the same transaction.
func (s *PostgresStore) CollectLoan(ctx context.Context, id string) (*domain.Loan, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	loan, err := scanLoan(tx.QueryRow(ctx,
		`UPDATE loans SET is_collected = true
		 WHERE id = $1 AND NOT is_collected
		 RETURNING `+loanColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.loanConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("collecting loan: %w", err)
	}

	if err := applyDelta(ctx, tx, loan.Amount.Add(loan.InterestAmount)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return loan, nil
}

// loanConflict distinguishes a missing loan from one whose guarded update
// matched no row because it is already collected.
func (s *PostgresStore) loanConflict(ctx context.Context, id string) error {
	var collected bool
	err := s.db.QueryRow(ctx, "SELECT is_collected FROM loans WHERE id = $1", id).Scan(&collected)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying loan: %w", err)
	}
	return domain.ErrAlreadyCollected
}

func (s *PostgresStore) DeleteLoan(ctx context.Context, id string) (*domain.Loan, error) {
	loan, err := scanLoan(s.db.QueryRow(ctx,
		"DELETE FROM loans WHERE id = $1 RETURNING "+loanColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting loan: %w", err)
	}
	return loan, nil
}

func (s *PostgresStore) Expenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, description, amount, created_at FROM expenses ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	expenses := []domain.Expense{}
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *PostgresStore) CreateExpense(ctx context.Context, e *domain.Expense) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO expenses (id, description, amount, created_at) VALUES ($1, $2, $3, $4)",
		e.ID, e.Description, e.Amount, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting expense: %w", err)
	}
	if err := applyDelta(ctx, tx, e.Amount.Neg()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteExpense restores the stored amount to the balance, whatever the
// caller claimed it was.
func (s *PostgresStore) DeleteExpense(ctx context.Context, id string) (*domain.Expense, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var e domain.Expense
	err = tx.QueryRow(ctx,
		"DELETE FROM expenses WHERE id = $1 RETURNING id, description, amount, created_at", id).
		Scan(&e.ID, &e.Description, &e.Amount, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting expense: %w", err)
	}
	if err := applyDelta(ctx, tx, e.Amount); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) Donations(ctx context.Context) ([]domain.Donation, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, description, amount, created_at FROM donations ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("querying donations: %w", err)
	}
	defer rows.Close()

	donations := []domain.Donation{}
	for rows.Next() {
		var d domain.Donation
		if err := rows.Scan(&d.ID, &d.Description, &d.Amount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning donation: %w", err)
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

func (s *PostgresStore) CreateDonation(ctx context.Context, d *domain.Donation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO donations (id, description, amount, created_at) VALUES ($1, $2, $3, $4)",
		d.ID, d.Description, d.Amount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting donation: %w", err)
	}
	if err := applyDelta(ctx, tx, d.Amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteDonation debits the stored amount, never a caller-supplied one.
func (s *PostgresStore) DeleteDonation(ctx context.Context, id string) (*domain.Donation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var d domain.Donation
	err = tx.QueryRow(ctx,
		"DELETE FROM donations WHERE id = $1 RETURNING id, description, amount, created_at", id).
		Scan(&d.ID, &d.Description, &d.Amount, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting donation: %w", err)
	}
	if err := applyDelta(ctx, tx, d.Amount.Neg()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &d, nil
}
