package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relumon/internal/models"
)

// Record is the per-node telemetry payload.
type Record struct {
	Tag     string
	Cluster string
	Node    models.NodeKey
	Metrics map[string]string
	Time    time.Time
}

type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// Pruner is implemented by sinks that keep per-node state and must forget
// nodes that left the cluster.
type Pruner interface {
	Prune(cluster string, live []models.NodeKey)
}

// Fanout forwards a fixed subset of each node's statistics to a sink.
type Fanout struct {
	sink    Sink
	tag     string
	keys    []string
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

func NewFanout(sink Sink, tag string, keys []string, timeout time.Duration, logger *slog.Logger) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{sink: sink, tag: tag, keys: keys, timeout: timeout, log: logger, now: time.Now}
}

// Publish emits one record per node. Emits run concurrently, each under its
// own timeout; failures are logged and never returned.
func (f *Fanout) Publish(ctx context.Context, cluster models.Cluster, metrics models.NodeMetrics) {
	if f.sink == nil {
		return
	}
	now := f.now()
	nodes := metrics.Keys()
	var wg sync.WaitGroup
	for _, node := range nodes {
		rec := Record{Tag: f.tag, Cluster: cluster.Name, Node: node, Metrics: f.selectKeys(metrics[node]), Time: now}
		wg.Add(1)
		go func() {
			defer wg.Done()
			emitCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			if err := f.sink.Emit(emitCtx, rec); err != nil {
				f.log.Warn("telemetry emit failed", "cluster", cluster.Name, "node", node.HostAndPort, "err", err)
			}
		}()
	}
	wg.Wait()
	if p, ok := f.sink.(Pruner); ok {
		p.Prune(cluster.Name, nodes)
	}
}

func (f *Fanout) selectKeys(stats map[string]string) map[string]string {
	out := make(map[string]string, len(f.keys))
	for _, k := range f.keys {
		if v, ok := stats[k]; ok {
			out[k] = v
		}
	}
	return out
}
