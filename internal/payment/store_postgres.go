package payment

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"

	"splitpay/internal/common/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations applies the transactions schema to the configured database.
func RunMigrations(databaseURL string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// PostgresLedger implements Ledger on PostgreSQL. Row-level atomicity gives
// readers the same no-torn-state guarantee the in-memory ledger provides;
// insertion order is preserved by a sequence column.
type PostgresLedger struct {
	db *database.DB
}

// NewPostgresLedger creates a PostgreSQL-backed ledger.
func NewPostgresLedger(db *database.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Append implements Ledger.
func (l *PostgresLedger) Append(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO transactions (
			id, status, total_minor, currency, refs, charges,
			error_code, error_message, refund_of, refunded_by,
			created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	refs, _ := json.Marshal(tx.Refs)
	charges, _ := json.Marshal(tx.Charges)

	_, err := l.db.Exec(ctx, query,
		tx.ID, tx.Status, tx.Total.AmountMinor, tx.Total.Currency, refs, charges,
		nullStr(tx.ErrorCode), nullStr(tx.ErrorMessage), nullStr(tx.RefundOf), nullStr(tx.RefundedBy),
		tx.CreatedAt, tx.CompletedAt,
	)
	return err
}

// Update implements Ledger.
func (l *PostgresLedger) Update(ctx context.Context, tx *Transaction) error {
	query := `
		UPDATE transactions SET
			status = $2, charges = $3, error_code = $4, error_message = $5,
			refund_of = $6, refunded_by = $7, completed_at = $8
		WHERE id = $1
	`

	charges, _ := json.Marshal(tx.Charges)

	tag, err := l.db.Exec(ctx, query,
		tx.ID, tx.Status, charges,
		nullStr(tx.ErrorCode), nullStr(tx.ErrorMessage), nullStr(tx.RefundOf), nullStr(tx.RefundedBy),
		tx.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, tx.ID)
	}
	return nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, id string) (*Transaction, error) {
	query := `
		SELECT id, status, total_minor, currency, refs, charges,
			   error_code, error_message, refund_of, refunded_by,
			   created_at, completed_at
		FROM transactions
		WHERE id = $1
	`

	tx, err := scanTransaction(l.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
		}
		return nil, err
	}
	return tx, nil
}

// List implements Ledger.
func (l *PostgresLedger) List(ctx context.Context) ([]*Transaction, error) {
	query := `
		SELECT id, status, total_minor, currency, refs, charges,
			   error_code, error_message, refund_of, refunded_by,
			   created_at, completed_at
		FROM transactions
		ORDER BY seq ASC
	`

	rows, err := l.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var errorCode, errorMsg, refundOf, refundedBy *string
	var refs, charges []byte

	err := row.Scan(
		&t.ID, &t.Status, &t.Total.AmountMinor, &t.Total.Currency, &refs, &charges,
		&errorCode, &errorMsg, &refundOf, &refundedBy,
		&t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorCode != nil {
		t.ErrorCode = *errorCode
	}
	if errorMsg != nil {
		t.ErrorMessage = *errorMsg
	}
	if refundOf != nil {
		t.RefundOf = *refundOf
	}
	if refundedBy != nil {
		t.RefundedBy = *refundedBy
	}

	if err := json.Unmarshal(refs, &t.Refs); err != nil {
		return nil, fmt.Errorf("decoding refs: %w", err)
	}
	if len(charges) > 0 {
		if err := json.Unmarshal(charges, &t.Charges); err != nil {
			return nil, fmt.Errorf("decoding charges: %w", err)
		}
	}

	return &t, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
