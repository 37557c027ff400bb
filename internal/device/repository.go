package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no device row matches the lookup.
var ErrNotFound = errors.New("device not found")

// Repository defines data access for remembered devices.
type Repository interface {
	// Upsert records a login from the device, creating the row on first
	// sight and bumping login_count and last_login otherwise. Returns the
	// row after the write.
	Upsert(ctx context.Context, d *Device) (*Device, error)

	Get(ctx context.Context, accountID int64, deviceID string) (*Device, error)
	List(ctx context.Context, accountID int64) ([]Device, error)

	SetTrusted(ctx context.Context, accountID int64, deviceID string, trusted bool) error
	SetRevoked(ctx context.Context, accountID int64, deviceID string) error
}

type mariaDBRepository struct {
	db *sql.DB
}

// NewRepository creates a MariaDB-backed device repository.
func NewRepository(db *sql.DB) Repository {
	return &mariaDBRepository{db: db}
}

const deviceColumns = `id, account_id, device_id, name, type, ip_address, user_agent,
	trusted, revoked, login_count, first_seen, last_login`

func (r *mariaDBRepository) Upsert(ctx context.Context, d *Device) (*Device, error) {
	// The unique key on (account_id, device_id) makes repeat logins fold
	// into the existing row with the counter bumped in SQL.
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_devices (account_id, device_id, name, type, ip_address, user_agent, login_count, first_seen, last_login)
		 VALUES (?, ?, ?, ?, ?, ?, 1, NOW(), NOW())
		 ON DUPLICATE KEY UPDATE
			login_count = login_count + 1,
			last_login = NOW(),
			ip_address = VALUES(ip_address),
			user_agent = VALUES(user_agent),
			name = VALUES(name),
			type = VALUES(type)`,
		d.AccountID, d.DeviceID, d.Name, d.Type, d.IPAddress, d.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("upserting device: %w", err)
	}
	return r.Get(ctx, d.AccountID, d.DeviceID)
}

func (r *mariaDBRepository) Get(ctx context.Context, accountID int64, deviceID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM admin_devices WHERE account_id = ? AND device_id = ?`,
		accountID, deviceID)

	var d Device
	err := row.Scan(&d.ID, &d.AccountID, &d.DeviceID, &d.Name, &d.Type, &d.IPAddress,
		&d.UserAgent, &d.Trusted, &d.Revoked, &d.LoginCount, &d.FirstSeen, &d.LastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}
	return &d, nil
}

func (r *mariaDBRepository) List(ctx context.Context, accountID int64) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM admin_devices WHERE account_id = ? ORDER BY last_login DESC, id DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.AccountID, &d.DeviceID, &d.Name, &d.Type, &d.IPAddress,
			&d.UserAgent, &d.Trusted, &d.Revoked, &d.LoginCount, &d.FirstSeen, &d.LastLogin); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *mariaDBRepository) SetTrusted(ctx context.Context, accountID int64, deviceID string, trusted bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE admin_devices SET trusted = ? WHERE account_id = ? AND device_id = ?`,
		trusted, accountID, deviceID)
	if err != nil {
		return fmt.Errorf("updating device trust: %w", err)
	}
	return checkAffected(res)
}

func (r *mariaDBRepository) SetRevoked(ctx context.Context, accountID int64, deviceID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE admin_devices SET revoked = TRUE, trusted = FALSE WHERE account_id = ? AND device_id = ?`,
		accountID, deviceID)
	if err != nil {
		return fmt.Errorf("revoking device: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
