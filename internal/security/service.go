package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumenwerk/gatehouse/internal/apperror"
)

// Recorder appends events to the security trail. Recording is best effort:
// a failed insert must never fail the operation that triggered it.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Service records, lists, and aggregates security events.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a security event service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record appends an event to the trail. Invalid or failed events are
// logged and dropped; the caller's operation proceeds either way.
func (s *Service) Record(ctx context.Context, event Event) {
	if !validIncidentTypes[event.IncidentType] || !validLevels[event.Level] {
		slog.Error("dropping malformed security event",
			slog.String("incident_type", event.IncidentType),
			slog.String("level", event.Level))
		return
	}

	if err := s.repo.Insert(ctx, &event); err != nil {
		slog.Error("recording security event failed",
			slog.String("incident_type", event.IncidentType),
			slog.String("username", event.Username),
			slog.String("error", err.Error()))
		return
	}

	if event.Level == LevelHigh || event.Level == LevelCritical {
		slog.Warn("security incident",
			slog.String("incident_type", event.IncidentType),
			slog.String("level", event.Level),
			slog.String("username", event.Username),
			slog.String("ip", event.IPAddress))
	}
}

// List returns events matching the filter, newest first, with the total
// match count for pagination.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Event, int64, error) {
	if filter.IncidentType != "" && !validIncidentTypes[filter.IncidentType] {
		return nil, 0, apperror.NewValidation("unknown incident type")
	}
	if filter.Level != "" && !validLevels[filter.Level] {
		return nil, 0, apperror.NewValidation("unknown severity level")
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}
	return events, total, nil
}

// Stats returns the dashboard summary counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx, s.now())
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return stats, nil
}

// Report returns the per-day incident breakdown for the last `days` days.
func (s *Service) Report(ctx context.Context, days int) ([]ReportRow, error) {
	if days > 90 {
		days = 90
	}
	report, err := s.repo.Report(ctx, days, s.now())
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return report, nil
}
