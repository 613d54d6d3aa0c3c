package telemetry

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"relumon/internal/metrics"
	"relumon/internal/models"
)

// PrometheusSink exposes records as gauges on /metrics and, when a
// Pushgateway URL is configured, pushes each record under its own grouping.
type PrometheusSink struct {
	gauges  *prometheus.GaugeVec
	pushURL string
	job     string

	mu   sync.Mutex
	seen map[string]map[models.NodeKey]string // cluster -> node -> tag
}

func NewPrometheusSink(pushURL, job string) *PrometheusSink {
	if job == "" {
		job = "relumon"
	}
	return &PrometheusSink{gauges: metrics.NodeMetric, pushURL: pushURL, job: job, seen: map[string]map[models.NodeKey]string{}}
}

func (s *PrometheusSink) Emit(ctx context.Context, rec Record) error {
	values := numericValues(rec.Metrics)
	for name, v := range values {
		s.gauges.WithLabelValues(rec.Tag, rec.Cluster, rec.Node.NodeID, rec.Node.HostAndPort, name).Set(v)
	}
	s.mu.Lock()
	if s.seen[rec.Cluster] == nil {
		s.seen[rec.Cluster] = map[models.NodeKey]string{}
	}
	s.seen[rec.Cluster][rec.Node] = rec.Tag
	s.mu.Unlock()
	if s.pushURL == "" {
		return nil
	}

	node := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relumon_node_metric",
		Help: "Selected node statistics mirrored from INFO",
	}, []string{"node_id", "metric"})
	for name, v := range values {
		node.WithLabelValues(rec.Node.NodeID, name).Set(v)
	}
	return push.New(s.pushURL, s.job).
		Collector(node).
		Grouping("tag", rec.Tag).
		Grouping("cluster", rec.Cluster).
		Grouping("instance", rec.Node.HostAndPort).
		PushContext(ctx)
}

// Prune deletes the gauges of nodes in cluster that are not in live.
func (s *PrometheusSink) Prune(cluster string, live []models.NodeKey) {
	keep := make(map[models.NodeKey]bool, len(live))
	for _, k := range live {
		keep[k] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for node, tag := range s.seen[cluster] {
		if keep[node] {
			continue
		}
		s.gauges.DeletePartialMatch(prometheus.Labels{
			"tag":       tag,
			"cluster":   cluster,
			"node_id":   node.NodeID,
			"host_port": node.HostAndPort,
		})
		delete(s.seen[cluster], node)
	}
}

// numericValues drops values that are not plain numbers.
func numericValues(in map[string]string) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, raw := range in {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[k] = v
	}
	return out
}
