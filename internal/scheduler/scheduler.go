package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"relumon/internal/metrics"
	"relumon/internal/models"
)

type ClusterRegistry interface {
	ListClusterNames(ctx context.Context) ([]string, error)
	GetNotice(ctx context.Context, name string) (*models.Notice, error)
	GetCluster(ctx context.Context, name string) (models.Cluster, error)
	GetSlowLogHistory(ctx context.Context, name string, offset, limit int64) (models.PagerData[models.SlowLog], error)
}

type NodeMetricsSource interface {
	Fetch(ctx context.Context, nodes []models.ClusterNode) (models.NodeMetrics, error)
	SlowLogs(ctx context.Context, nodes []models.ClusterNode) ([]models.SlowLog, error)
}

type RuleEvaluator interface {
	Evaluate(notice *models.Notice, cluster models.Cluster, metrics models.NodeMetrics) ([]models.NoticeJob, error)
}

type AlertSink interface {
	Name() string
	Notify(ctx context.Context, recipients []string, from, subject, body string) error
}

type MetricsPublisher interface {
	Publish(ctx context.Context, cluster models.Cluster, metrics models.NodeMetrics)
}

type SlowLogMerger interface {
	Merge(ctx context.Context, clusterName string, records []models.SlowLog) error
}

type EventRecorder interface {
	InsertNotificationEvent(ctx context.Context, cluster, channel, status, subject string, attempts int, lastErr string, sent *time.Time) error
}

type Config struct {
	// Workers bounds how many clusters are processed at once.
	Workers       int
	// MaxNodes caps the nodes sampled per cluster and cycle; 0 disables the cap.
	MaxNodes      int
	// Timeout bounds each registry call.
	Timeout       time.Duration
	// Attempts is the number of delivery tries per alert sink.
	Attempts      int
	// NotifyTimeout bounds each delivery attempt; defaults to Timeout.
	NotifyTimeout time.Duration
	// HistoryWindow is how many persisted slow logs are read to find each
	// node's newest stored record.
	HistoryWindow int64
}

type Deps struct {
	Registry  ClusterRegistry
	Source    NodeMetricsSource
	Evaluator RuleEvaluator
	Sinks     []AlertSink
	Events    EventRecorder
	Publisher MetricsPublisher
	SlowLogs  SlowLogMerger
}

type Scheduler struct {
	cfg     Config
	deps    Deps
	log     *slog.Logger
	backoff time.Duration
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = cfg.Timeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 1000
	}
	return &Scheduler{cfg: cfg, deps: deps, log: logger, backoff: 300 * time.Millisecond}
}

// RunCycle processes every registered cluster once. Clusters run in
// parallel up to the worker limit and never affect each other.
func (s *Scheduler) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.CyclesTotal.Inc()
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	listCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	names, err := s.deps.Registry.ListClusterNames(listCtx)
	cancel()
	if err != nil {
		s.log.Error("list clusters", "err", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, name := range names {
		g.Go(func() error {
			s.runCluster(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	s.log.Debug("cycle completed", "clusters", len(names), "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) runCluster(ctx context.Context, name string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ClusterRuns.WithLabelValues(name, "error").Inc()
			s.log.Error("cluster cycle panicked", "cluster", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := s.processCluster(ctx, name); err != nil {
		metrics.ClusterRuns.WithLabelValues(name, "error").Inc()
		s.log.Error("cluster cycle failed", "cluster", name, "err", err)
		return
	}
	metrics.ClusterRuns.WithLabelValues(name, "ok").Inc()
}

func (s *Scheduler) processCluster(ctx context.Context, name string) error {
	var notice *models.Notice
	err := s.call(ctx, func(ctx context.Context) (err error) {
		notice, err = s.deps.Registry.GetNotice(ctx, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("get notice: %w", err)
	}

	var cluster models.Cluster
	err = s.call(ctx, func(ctx context.Context) (err error) {
		cluster, err = s.deps.Registry.GetCluster(ctx, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("get cluster: %w", err)
	}
	if cluster.Name == "" {
		cluster.Name = name
	}

	nodes := s.sample(name, cluster.Nodes)
	nodeMetrics, err := s.deps.Source.Fetch(ctx, nodes)
	if err != nil {
		return fmt.Errorf("fetch node metrics: %w", err)
	}

	jobs, err := s.deps.Evaluator.Evaluate(notice, cluster, nodeMetrics)
	if err != nil {
		return fmt.Errorf("evaluate rules: %w", err)
	}
	if len(jobs) > 0 {
		metrics.NoticeJobs.WithLabelValues(name).Add(float64(len(jobs)))
		s.log.Warn("NOTIFY", "cluster", name, "jobs", len(jobs), "detail", summarize(jobs))
		s.dispatch(ctx, name, notice, jobs)
	}

	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(ctx, cluster, nodeMetrics)
	}

	if s.deps.SlowLogs != nil {
		if err := s.saveSlowLogs(ctx, name, nodes); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return fn(ctx)
}

// sample drops nodes the topology reports as down, then applies the node
// cap. Clusters losing nodes either way are logged as partially sampled.
func (s *Scheduler) sample(name string, nodes []models.ClusterNode) []models.ClusterNode {
	up := make([]models.ClusterNode, 0, len(nodes))
	var down []string
	for _, n := range nodes {
		if n.Down() {
			down = append(down, n.HostAndPort)
			continue
		}
		up = append(up, n)
	}
	capped := up
	if s.cfg.MaxNodes > 0 && len(up) > s.cfg.MaxNodes {
		capped = up[:s.cfg.MaxNodes]
	}
	if len(capped) < len(nodes) {
		s.log.Warn("cluster partially sampled", "cluster", name, "nodes", len(nodes), "sampled", len(capped), "down", down)
	}
	return capped
}

func (s *Scheduler) saveSlowLogs(ctx context.Context, name string, nodes []models.ClusterNode) error {
	records, err := s.deps.Source.SlowLogs(ctx, nodes)
	if err != nil {
		return fmt.Errorf("fetch slow logs: %w", err)
	}
	var head models.PagerData[models.SlowLog]
	err = s.call(ctx, func(ctx context.Context) (err error) {
		head, err = s.deps.Registry.GetSlowLogHistory(ctx, name, 0, s.cfg.HistoryWindow)
		return err
	})
	if err != nil {
		return fmt.Errorf("read slow log watermark: %w", err)
	}
	fresh := newerThan(records, head.Data)
	if len(fresh) == 0 {
		return nil
	}
	if err := s.deps.SlowLogs.Merge(ctx, name, fresh); err != nil {
		return fmt.Errorf("merge slow logs: %w", err)
	}
	metrics.SlowLogsStored.WithLabelValues(name).Add(float64(len(fresh)))
	return nil
}

// newerThan keeps records after the newest persisted record of the same
// node. Slow log ids and clocks are per node, so each node has its own
// watermark ordered by timestamp then id.
func newerThan(records []models.SlowLog, persisted []models.SlowLog) []models.SlowLog {
	if len(persisted) == 0 {
		return records
	}
	marks := make(map[string]models.SlowLog, len(persisted))
	for _, p := range persisted {
		if m, ok := marks[p.HostAndPort]; !ok || after(p, m) {
			marks[p.HostAndPort] = p
		}
	}
	out := make([]models.SlowLog, 0, len(records))
	for _, r := range records {
		if m, ok := marks[r.HostAndPort]; !ok || after(r, m) {
			out = append(out, r)
		}
	}
	return out
}

func after(a, b models.SlowLog) bool {
	return a.TimeStamp > b.TimeStamp || (a.TimeStamp == b.TimeStamp && a.ID > b.ID)
}
