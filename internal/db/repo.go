package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"relumon/internal/models"
)

var ErrClusterNotFound = errors.New("cluster not found")

type Repository struct {
	db *sql.DB
}

type NotificationEvent struct {
	ID        int64      `json:"id"`
	Cluster   string     `json:"cluster"`
	Channel   string     `json:"channel"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	Subject   string     `json:"subject"`
	LastError string     `json:"lastError,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) UpsertCluster(ctx context.Context, name, seedAddr string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO clusters (name,seed_addr,created_at) VALUES (?,?,?)
		ON CONFLICT(name) DO UPDATE SET seed_addr=excluded.seed_addr`,
		name, seedAddr, time.Now().UTC())
	return err
}

func (r *Repository) ListClusterNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM clusters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repository) ClusterSeed(ctx context.Context, name string) (string, error) {
	var addr string
	err := r.db.QueryRowContext(ctx, `SELECT seed_addr FROM clusters WHERE name=?`, name).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrClusterNotFound, name)
	}
	return addr, err
}

// GetNotice returns nil without error when the cluster has no notice.
func (r *Repository) GetNotice(ctx context.Context, name string) (*models.Notice, error) {
	var n models.Notice
	var items string
	err := r.db.QueryRowContext(ctx, `SELECT invalid_end_time,items_json,mail_to,mail_from FROM notices WHERE cluster_name=?`, name).
		Scan(&n.InvalidEndTime, &items, &n.Mail.To, &n.Mail.From)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &n.Items); err != nil {
		return nil, fmt.Errorf("decode notice items of %s: %w", name, err)
	}
	return &n, nil
}

func (r *Repository) SaveNotice(ctx context.Context, name string, n models.Notice) error {
	items := n.Items
	if items == nil {
		items = []models.NoticeItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO notices (cluster_name,invalid_end_time,items_json,mail_to,mail_from,updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(cluster_name) DO UPDATE SET invalid_end_time=excluded.invalid_end_time,items_json=excluded.items_json,
			mail_to=excluded.mail_to,mail_from=excluded.mail_from,updated_at=excluded.updated_at`,
		name, n.InvalidEndTime, string(b), n.Mail.To, n.Mail.From, time.Now().UTC())
	return err
}

// CompareAndSetInvalidEndTime replaces the mute-until timestamp only if it
// still equals old. A cluster without a notice is treated as having old == "".
func (r *Repository) CompareAndSetInvalidEndTime(ctx context.Context, name, old, next string) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE notices SET invalid_end_time=?,updated_at=? WHERE cluster_name=? AND invalid_end_time=?`, next, now, name, old)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 || old != "" {
		return n > 0, nil
	}
	res, err = r.db.ExecContext(ctx, `INSERT INTO notices (cluster_name,invalid_end_time,items_json,updated_at)
		SELECT ?,?,'[]',? WHERE NOT EXISTS (SELECT 1 FROM notices WHERE cluster_name=?)`, name, next, now, name)
	if err != nil {
		return false, err
	}
	n, err = res.RowsAffected()
	return n > 0, err
}

func (r *Repository) InsertNotificationEvent(ctx context.Context, cluster, channel, status, subject string, attempts int, lastErr string, sent *time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notification_events (cluster_name,channel,status,attempts,subject,last_error,created_ts,sent_ts_nullable)
		VALUES (?,?,?,?,?,?,?,?)`, cluster, channel, status, attempts, subject, lastErr, time.Now().UTC(), sent)
	return err
}

func (r *Repository) RecentNotificationEvents(ctx context.Context, cluster string, limit int) ([]NotificationEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,cluster_name,channel,status,attempts,subject,COALESCE(last_error,''),created_ts,sent_ts_nullable
		FROM notification_events WHERE cluster_name=? ORDER BY created_ts DESC, id DESC LIMIT ?`, cluster, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]NotificationEvent, 0, limit)
	for rows.Next() {
		var e NotificationEvent
		var sent sql.NullTime
		if err := rows.Scan(&e.ID, &e.Cluster, &e.Channel, &e.Status, &e.Attempts, &e.Subject, &e.LastError, &e.CreatedAt, &sent); err != nil {
			return nil, err
		}
		if sent.Valid {
			t := sent.Time
			e.SentAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteNotificationEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification_events WHERE created_ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return res.RowsAffected()
}
