package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relumon/internal/alerts"
	"relumon/internal/db"
	"relumon/internal/models"
)

type Store interface {
	ListClusterNames(ctx context.Context) ([]string, error)
	UpsertCluster(ctx context.Context, name, seedAddr string) error
	ClusterSeed(ctx context.Context, name string) (string, error)
	GetNotice(ctx context.Context, name string) (*models.Notice, error)
	SaveNotice(ctx context.Context, name string, n models.Notice) error
	CompareAndSetInvalidEndTime(ctx context.Context, name, old, next string) (bool, error)
	RecentNotificationEvents(ctx context.Context, cluster string, limit int) ([]db.NotificationEvent, error)
}

type SlowLogReader interface {
	GetSlowLogHistory(ctx context.Context, name string, offset, limit int64) (models.PagerData[models.SlowLog], error)
}

type Notifier interface {
	Notify(ctx context.Context, recipients []string, from, subject, body string) error
}

// ReadyCheck reports whether one backing service is reachable.
type ReadyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type Server struct {
	store    Store
	slowlogs SlowLogReader
	notify   Notifier
	checks   []ReadyCheck
	log      *slog.Logger
}

func NewServer(store Store, slowlogs SlowLogReader, notify Notifier, checks []ReadyCheck, logger *slog.Logger) *Server {
	return &Server{store: store, slowlogs: slowlogs, notify: notify, checks: checks, log: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clusters", s.handleListClusters)
	mux.HandleFunc("POST /api/clusters", s.handleRegisterCluster)
	mux.HandleFunc("GET /api/clusters/{name}/slowlogs", s.handleSlowLogs)
	mux.HandleFunc("GET /api/clusters/{name}/notice", s.handleGetNotice)
	mux.HandleFunc("PUT /api/clusters/{name}/notice", s.handlePutNotice)
	mux.HandleFunc("POST /api/clusters/{name}/mute", s.handleMute)
	mux.HandleFunc("GET /api/clusters/{name}/events", s.handleEvents)
	mux.HandleFunc("POST /api/alerts/test", s.handleTestNotify)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	return logMiddleware(mux, s.log)
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListClusterNames(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

type registerRequest struct {
	ClusterName string `json:"clusterName"`
	HostAndPort string `json:"hostAndPort"`
}

func (s *Server) handleRegisterCluster(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	req.ClusterName = strings.TrimSpace(req.ClusterName)
	req.HostAndPort = strings.TrimSpace(req.HostAndPort)
	if req.ClusterName == "" || req.HostAndPort == "" {
		http.Error(w, "clusterName and hostAndPort are required", 400)
		return
	}
	if err := s.store.UpsertCluster(r.Context(), req.ClusterName, req.HostAndPort); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(req)
}

func (s *Server) handleSlowLogs(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.clusterExists(w, r, name) {
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	page, err := s.slowlogs.GetSlowLogHistory(r.Context(), name, offset, limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, page)
}

func (s *Server) handleGetNotice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.clusterExists(w, r, name) {
		return
	}
	n, err := s.store.GetNotice(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if n == nil {
		n = &models.Notice{Items: []models.NoticeItem{}}
	}
	writeJSON(w, n)
}

func (s *Server) handlePutNotice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.clusterExists(w, r, name) {
		return
	}
	var n models.Notice
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if !validEndTime(n.InvalidEndTime) {
		http.Error(w, "invalidEndTime must be empty or epoch milliseconds", 400)
		return
	}
	for i, item := range n.Items {
		if err := alerts.ValidateItem(item); err != nil {
			http.Error(w, "item "+strconv.Itoa(i)+": "+err.Error(), 400)
			return
		}
	}
	if err := s.store.SaveNotice(r.Context(), name, n); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, n)
}

type muteRequest struct {
	Expected       string `json:"expected"`
	InvalidEndTime string `json:"invalidEndTime"`
}

// handleMute replaces invalidEndTime only while the stored value still equals
// the expected one.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.clusterExists(w, r, name) {
		return
	}
	var req muteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if !validEndTime(req.InvalidEndTime) {
		http.Error(w, "invalidEndTime must be empty or epoch milliseconds", 400)
		return
	}
	ok, err := s.store.CompareAndSetInvalidEndTime(r.Context(), name, req.Expected, req.InvalidEndTime)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if !ok {
		http.Error(w, "invalidEndTime changed concurrently", http.StatusConflict)
		return
	}
	s.log.Info("notice mute updated", "cluster", name, "invalid_end_time", req.InvalidEndTime)
	writeJSON(w, map[string]string{"status": "ok", "invalidEndTime": req.InvalidEndTime})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	events, err := s.store.RecentNotificationEvents(r.Context(), name, int(queryInt(r, "limit", 50)))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if events == nil {
		events = []db.NotificationEvent{}
	}
	writeJSON(w, events)
}

type testNotifyRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
}

func (s *Server) handleTestNotify(w http.ResponseWriter, r *http.Request) {
	var req testNotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	mail := models.NoticeMail{To: req.To, From: req.From}
	err := s.notify.Notify(r.Context(), mail.Recipients(), mail.From,
		"[relumon] test notification", "Relumon test alert: notification channels are working\n")
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.checks {
		if err := c.Ping(r.Context()); err != nil {
			http.Error(w, c.Name+" not ready", 503)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) clusterExists(w http.ResponseWriter, r *http.Request, name string) bool {
	_, err := s.store.ClusterSeed(r.Context(), name)
	if errors.Is(err, db.ErrClusterNotFound) {
		http.NotFound(w, r)
		return false
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return false
	}
	return true
}

func validEndTime(v string) bool {
	if v == "" {
		return true
	}
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func queryInt(r *http.Request, key string, d int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return d
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return d
	}
	return n
}
