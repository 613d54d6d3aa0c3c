package retention

import (
	"context"
	"log/slog"
	"time"
)

type EventPruner interface {
	DeleteNotificationEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	history       HistoryStore
	events        EventPruner
	maxSlowLogs   int64
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(history HistoryStore, events EventPruner, maxSlowLogs int64, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	if maxSlowLogs <= 0 {
		maxSlowLogs = 1000
	}
	return &Service{history: history, events: events, maxSlowLogs: maxSlowLogs, retentionDays: days, log: logger, now: time.Now}
}

// Run prunes notification events older than the retention window.
func (s *Service) Run(ctx context.Context) {
	if s.events == nil {
		return
	}
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.events.DeleteNotificationEventsBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "err", err)
	} else {
		s.log.Info("retention cleanup completed", "cutoff", cutoff, "deleted", n)
	}
}
