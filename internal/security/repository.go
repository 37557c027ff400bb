package security

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository defines data access for the security event trail.
type Repository interface {
	Insert(ctx context.Context, event *Event) error
	List(ctx context.Context, filter ListFilter) ([]Event, int64, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
	Report(ctx context.Context, days int, now time.Time) ([]ReportRow, error)
}

type mariaDBRepository struct {
	db *sql.DB
}

// NewRepository creates a MariaDB-backed event repository.
func NewRepository(db *sql.DB) Repository {
	return &mariaDBRepository{db: db}
}

func (r *mariaDBRepository) Insert(ctx context.Context, event *Event) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO security_events (incident_type, level, username, ip_address, user_agent, path, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.IncidentType, event.Level, event.Username, event.IPAddress,
		event.UserAgent, event.Path, event.Description)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading event id: %w", err)
	}
	event.ID = id
	return nil
}

// buildWhere assembles the WHERE clause from the filter. All conditions
// are ANDed.
func buildWhere(filter ListFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		conds = append(conds, `(username LIKE ? OR ip_address LIKE ? OR description LIKE ?)`)
		args = append(args, pattern, pattern, pattern)
	}
	if filter.IncidentType != "" {
		conds = append(conds, `incident_type = ?`)
		args = append(args, filter.IncidentType)
	}
	if filter.Level != "" {
		conds = append(conds, `level = ?`)
		args = append(args, filter.Level)
	}
	if filter.StartDate != "" {
		conds = append(conds, `created_at >= ?`)
		args = append(args, filter.StartDate+" 00:00:00")
	}
	if filter.EndDate != "" {
		// Inclusive through the end of the day.
		conds = append(conds, `created_at <= ?`)
		args = append(args, filter.EndDate+" 23:59:59")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *mariaDBRepository) List(ctx context.Context, filter ListFilter) ([]Event, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM security_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting security events: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	query := `SELECT id, incident_type, level, username, ip_address, user_agent, path, description, created_at
		FROM security_events` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying security events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, pageSize)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.IncidentType, &e.Level, &e.Username, &e.IPAddress,
			&e.UserAgent, &e.Path, &e.Description, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning security event: %w", err)
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

func (r *mariaDBRepository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	var s Stats
	today := now.Format("2006-01-02")
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(level = 'HIGH'), 0),
			COALESCE(SUM(level = 'CRITICAL'), 0),
			COALESCE(SUM(created_at >= ?), 0)
		 FROM security_events`,
		today+" 00:00:00").Scan(&s.TotalIncidents, &s.HighIncidents, &s.CriticalIncidents, &s.TodayIncidents)
	if err != nil {
		return nil, fmt.Errorf("querying security stats: %w", err)
	}
	return &s, nil
}

func (r *mariaDBRepository) Report(ctx context.Context, days int, now time.Time) ([]ReportRow, error) {
	if days < 1 {
		days = 7
	}
	start := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	rows, err := r.db.QueryContext(ctx,
		`SELECT DATE(created_at) AS day, incident_type, level, COUNT(*)
		 FROM security_events
		 WHERE created_at >= ?
		 GROUP BY day, incident_type, level
		 ORDER BY day DESC`,
		start+" 00:00:00")
	if err != nil {
		return nil, fmt.Errorf("querying security report: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]*ReportRow)
	var order []string
	for rows.Next() {
		var day, incidentType, level string
		var count int64
		if err := rows.Scan(&day, &incidentType, &level, &count); err != nil {
			return nil, fmt.Errorf("scanning security report: %w", err)
		}
		row, ok := byDay[day]
		if !ok {
			row = &ReportRow{
				Date:    day,
				ByLevel: make(map[string]int64),
				ByType:  make(map[string]int64),
			}
			byDay[day] = row
			order = append(order, day)
		}
		row.Total += count
		row.ByLevel[level] += count
		row.ByType[incidentType] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report := make([]ReportRow, 0, len(order))
	for _, day := range order {
		report = append(report, *byDay[day])
	}
	return report, nil
}
