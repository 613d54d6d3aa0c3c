package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"relumon/internal/models"
)

type ConfigStore interface {
	ListClusterNames(ctx context.Context) ([]string, error)
	ClusterSeed(ctx context.Context, name string) (string, error)
	GetNotice(ctx context.Context, name string) (*models.Notice, error)
}

type TopologySource interface {
	Topology(ctx context.Context, name, seedAddr string) (models.Cluster, error)
}

type HistoryReader interface {
	SlowLogKey(clusterName string) string
	Range(ctx context.Context, key string, offset, limit int64) ([]string, int64, error)
}

// Registry answers cluster questions from the configuration database, the
// live seed node, and the slow-log history store.
type Registry struct {
	config   ConfigStore
	topology TopologySource
	history  HistoryReader
}

func New(config ConfigStore, topology TopologySource, history HistoryReader) *Registry {
	return &Registry{config: config, topology: topology, history: history}
}

func (r *Registry) ListClusterNames(ctx context.Context) ([]string, error) {
	return r.config.ListClusterNames(ctx)
}

func (r *Registry) GetNotice(ctx context.Context, name string) (*models.Notice, error) {
	return r.config.GetNotice(ctx, name)
}

func (r *Registry) GetCluster(ctx context.Context, name string) (models.Cluster, error) {
	seed, err := r.config.ClusterSeed(ctx, name)
	if err != nil {
		return models.Cluster{}, err
	}
	return r.topology.Topology(ctx, name, seed)
}

// GetSlowLogHistory pages through persisted slow logs, newest first.
func (r *Registry) GetSlowLogHistory(ctx context.Context, name string, offset, limit int64) (models.PagerData[models.SlowLog], error) {
	page := models.PagerData[models.SlowLog]{Offset: offset, Limit: limit, Data: []models.SlowLog{}}
	raw, total, err := r.history.Range(ctx, r.history.SlowLogKey(name), offset, limit)
	if err != nil {
		return page, fmt.Errorf("read slow log history of %s: %w", name, err)
	}
	page.Total = total
	for _, item := range raw {
		var rec models.SlowLog
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return page, fmt.Errorf("decode slow log of %s: %w", name, err)
		}
		page.Data = append(page.Data, rec)
	}
	return page, nil
}
