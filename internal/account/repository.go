package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository defines data access for administrator accounts.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// UpdatePassword sets a new password hash, stamps password_changed_at,
	// archives the old hash into the history table, and prunes history
	// beyond keepHistory entries. Runs in a single transaction.
	UpdatePassword(ctx context.Context, id int64, newHash, oldHash string, keepHistory int) error

	// PasswordHistory returns the most recent archived hashes for the
	// account, newest first, up to limit.
	PasswordHistory(ctx context.Context, id int64, limit int) ([]string, error)

	// SetTwoFactor toggles the email second factor for the account.
	SetTwoFactor(ctx context.Context, id int64, enabled bool) error
}

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("account not found")

type mariaDBRepository struct {
	db *sql.DB
}

// NewRepository creates a MariaDB-backed account repository.
func NewRepository(db *sql.DB) Repository {
	return &mariaDBRepository{db: db}
}

const accountColumns = `id, username, role, email, mobile, password_hash,
	two_factor_enabled, two_factor_method, password_changed_at, active, created_at, updated_at`

func (r *mariaDBRepository) scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Role, &a.Email, &a.Mobile, &a.PasswordHash,
		&a.TwoFactorEnabled, &a.TwoFactorMethod, &a.PasswordChangedAt, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return &a, nil
}

func (r *mariaDBRepository) GetByID(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM admin_accounts WHERE id = ?`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *mariaDBRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM admin_accounts WHERE username = ?`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, username))
}

func (r *mariaDBRepository) UpdatePassword(ctx context.Context, id int64, newHash, oldHash string, keepHistory int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE admin_accounts SET password_hash = ?, password_changed_at = NOW(), updated_at = NOW() WHERE id = ?`,
		newHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO password_history (account_id, password_hash) VALUES (?, ?)`,
		id, oldHash); err != nil {
		return fmt.Errorf("archiving password: %w", err)
	}

	// Drop history rows beyond the retention count, oldest first.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM password_history WHERE account_id = ? AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM password_history WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
			) keep
		)`, id, id, keepHistory); err != nil {
		return fmt.Errorf("pruning password history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing password change: %w", err)
	}
	return nil
}

func (r *mariaDBRepository) PasswordHistory(ctx context.Context, id int64, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT password_hash FROM password_history WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		id, limit)
	if err != nil {
		return nil, fmt.Errorf("querying password history: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning password history: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (r *mariaDBRepository) SetTwoFactor(ctx context.Context, id int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE admin_accounts SET two_factor_enabled = ?, two_factor_method = 'email', updated_at = NOW() WHERE id = ?`,
		enabled, id)
	if err != nil {
		return fmt.Errorf("updating two factor flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
