package alerts

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"relumon/internal/models"
)

var ErrMissingNodeMetrics = errors.New("node_info rule evaluated without node metrics")

type Engine struct {
	log *slog.Logger
	now func() time.Time
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{log: logger, now: time.Now}
}

// Suppressed is IsSuppressed evaluated against the engine clock. A
// malformed mute timestamp is logged and ignored.
func (e *Engine) Suppressed(notice *models.Notice) bool {
	if notice != nil {
		if raw := strings.TrimSpace(notice.InvalidEndTime); raw != "" {
			if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
				e.log.Warn("ignore malformed invalidEndTime", "value", raw, "err", err)
			}
		}
	}
	return IsSuppressed(notice, e.now())
}

// Evaluate returns one NoticeJob per item that matched at least one source,
// in item order. A suppressed or absent notice yields no jobs.
func (e *Engine) Evaluate(notice *models.Notice, cluster models.Cluster, metrics models.NodeMetrics) ([]models.NoticeJob, error) {
	if notice == nil || e.Suppressed(notice) {
		return nil, nil
	}

	var jobs []models.NoticeJob
	for _, item := range notice.Items {
		var results []models.ResultValue
		switch item.MetricsType {
		case models.MetricsTypeClusterInfo:
			value, ok := cluster.Info[item.MetricsName]
			if ok && e.match(item, value) {
				results = append(results, models.ResultValue{Value: value})
			}
		case models.MetricsTypeNodeInfo:
			if metrics == nil {
				return nil, fmt.Errorf("%w: %s", ErrMissingNodeMetrics, item.MetricsName)
			}
			for _, node := range metrics.Keys() {
				value, ok := metrics[node][item.MetricsName]
				if ok && e.match(item, value) {
					results = append(results, models.ResultValue{NodeID: node.NodeID, HostAndPort: node.HostAndPort, Value: value})
				}
			}
		default:
			e.log.Warn("skip rule with unknown metrics type", "metric", item.MetricsName, "type", item.MetricsType)
			continue
		}
		if len(results) > 0 {
			jobs = append(jobs, models.NoticeJob{Item: item, ResultValues: results})
		}
	}
	return jobs, nil
}

func (e *Engine) match(item models.NoticeItem, value string) bool {
	ok, err := compare(item.ValueType, item.Operator, value, item.Value)
	if err != nil {
		e.log.Warn("rule comparison failed", "metric", item.MetricsName, "operator", item.Operator, "value", value, "threshold", item.Value, "err", err)
		return false
	}
	return ok
}
