package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"relumon/internal/models"
)

type HistoryStore interface {
	SlowLogKey(clusterName string) string
	Prepend(ctx context.Context, key string, record []byte) error
	Trim(ctx context.Context, key string, maxCount int64) error
}

// Merge prepends records oldest-first so the persisted list ends up newest
// first, then trims it to the configured size. Duplicates are not detected.
func (s *Service) Merge(ctx context.Context, clusterName string, records []models.SlowLog) error {
	if len(records) == 0 {
		return nil
	}
	sorted := make([]models.SlowLog, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TimeStamp != sorted[j].TimeStamp {
			return sorted[i].TimeStamp < sorted[j].TimeStamp
		}
		return sorted[i].ID < sorted[j].ID
	})

	key := s.history.SlowLogKey(clusterName)
	for _, rec := range sorted {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode slow log %d: %w", rec.ID, err)
		}
		if err := s.history.Prepend(ctx, key, b); err != nil {
			return fmt.Errorf("prepend slow log %d: %w", rec.ID, err)
		}
	}
	if err := s.history.Trim(ctx, key, s.maxSlowLogs); err != nil {
		return fmt.Errorf("trim slow log history: %w", err)
	}
	s.log.Debug("slow logs merged", "cluster", clusterName, "count", len(sorted))
	return nil
}
