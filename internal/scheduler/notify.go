package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"relumon/internal/metrics"
	"relumon/internal/models"
)

func (s *Scheduler) dispatch(ctx context.Context, cluster string, notice *models.Notice, jobs []models.NoticeJob) {
	subject, body := buildMessage(cluster, jobs)
	recipients := notice.Mail.Recipients()
	for _, sink := range s.deps.Sinks {
		s.deliver(ctx, sink, cluster, recipients, notice.Mail.From, subject, body)
	}
}

func (s *Scheduler) deliver(ctx context.Context, sink AlertSink, cluster string, recipients []string, from, subject, body string) {
	attempts := 0
	var err error
	for attempts < s.cfg.Attempts {
		attempts++
		err = s.notifyOnce(ctx, sink, recipients, from, subject, body)
		if err == nil {
			now := time.Now().UTC()
			metrics.Notifications.WithLabelValues(sink.Name(), "sent").Inc()
			s.record(ctx, cluster, sink.Name(), "sent", subject, attempts, "", &now)
			return
		}
		if attempts < s.cfg.Attempts && !sleep(ctx, time.Duration(attempts)*s.backoff) {
			break
		}
	}
	metrics.Notifications.WithLabelValues(sink.Name(), "failed").Inc()
	s.record(ctx, cluster, sink.Name(), "failed", subject, attempts, err.Error(), nil)
	s.log.Warn("notify failed", "cluster", cluster, "channel", sink.Name(), "attempts", attempts, "err", err)
}

func (s *Scheduler) notifyOnce(ctx context.Context, sink AlertSink, recipients []string, from, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	return sink.Notify(ctx, recipients, from, subject, body)
}

func (s *Scheduler) record(ctx context.Context, cluster, channel, status, subject string, attempts int, lastErr string, sent *time.Time) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.InsertNotificationEvent(ctx, cluster, channel, status, subject, attempts, lastErr, sent); err != nil {
		s.log.Error("record notification event", "cluster", cluster, "err", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func buildMessage(cluster string, jobs []models.NoticeJob) (string, string) {
	subject := fmt.Sprintf("[relumon] Notice of cluster %q: %d rule(s) matched", cluster, len(jobs))
	var b strings.Builder
	fmt.Fprintf(&b, "Cluster: %s\n", cluster)
	fmt.Fprintf(&b, "Time: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	for i, job := range jobs {
		it := job.Item
		fmt.Fprintf(&b, "%d. %s %s %s %s (%s)\n", i+1, it.MetricsType, it.MetricsName, it.Operator, it.Value, it.ValueType)
		for _, rv := range job.ResultValues {
			if rv.HostAndPort == "" {
				fmt.Fprintf(&b, "   value: %s\n", rv.Value)
				continue
			}
			fmt.Fprintf(&b, "   %s (%s): %s\n", rv.HostAndPort, rv.NodeID, rv.Value)
		}
	}
	return subject, b.String()
}

func summarize(jobs []models.NoticeJob) string {
	parts := make([]string, 0, len(jobs))
	for _, job := range jobs {
		parts = append(parts, fmt.Sprintf("%s %s %s x%d", job.Item.MetricsName, job.Item.Operator, job.Item.Value, len(job.ResultValues)))
	}
	return strings.Join(parts, "; ")
}
