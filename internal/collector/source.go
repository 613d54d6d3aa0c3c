package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"relumon/internal/models"
)

// Source reads topology, INFO statistics and slow logs from cluster nodes.
// Connections are pooled per node address.
type Source struct {
	password  string
	timeout   time.Duration
	limit     int
	slowCount int64
	log       *slog.Logger

	mu      sync.Mutex
	clients map[string]*redis.Client
}

type Options struct {
	Password string
	// Timeout bounds every single node call.
	Timeout time.Duration
	// Concurrency bounds parallel node calls within one cluster.
	Concurrency int
	// SlowLogCount is the number of entries requested per node.
	SlowLogCount int64
}

func NewSource(opts Options, logger *slog.Logger) *Source {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.SlowLogCount <= 0 {
		opts.SlowLogCount = 128
	}
	return &Source{
		password:  opts.Password,
		timeout:   opts.Timeout,
		limit:     opts.Concurrency,
		slowCount: opts.SlowLogCount,
		log:       logger,
		clients:   map[string]*redis.Client{},
	}
}

func (s *Source) client(addr string) *redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[addr]; ok {
		return c
	}
	c := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     s.password,
		DialTimeout:  s.timeout,
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
		PoolSize:     2,
	})
	s.clients[addr] = c
	return c
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for addr, c := range s.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.clients, addr)
	}
	return firstErr
}

// Topology asks the seed node for CLUSTER INFO and CLUSTER NODES.
func (s *Source) Topology(ctx context.Context, name, seedAddr string) (models.Cluster, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	c := s.client(seedAddr)

	rawInfo, err := c.ClusterInfo(ctx).Result()
	if err != nil {
		return models.Cluster{}, fmt.Errorf("cluster info from %s: %w", seedAddr, err)
	}
	rawNodes, err := c.ClusterNodes(ctx).Result()
	if err != nil {
		return models.Cluster{}, fmt.Errorf("cluster nodes from %s: %w", seedAddr, err)
	}
	host, _, _ := net.SplitHostPort(seedAddr)
	nodes, err := ParseClusterNodes(rawNodes, host)
	if err != nil {
		return models.Cluster{}, err
	}
	info := ParseInfo(rawInfo)
	return models.Cluster{Name: name, Status: info["cluster_state"], Info: info, Nodes: nodes}, nil
}

// Fetch collects INFO from every node. The first failing node aborts the
// whole fetch.
func (s *Source) Fetch(ctx context.Context, nodes []models.ClusterNode) (models.NodeMetrics, error) {
	var mu sync.Mutex
	out := make(models.NodeMetrics, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, n := range nodes {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			raw, err := s.client(n.HostAndPort).Info(callCtx).Result()
			if err != nil {
				return fmt.Errorf("info from %s: %w", n.HostAndPort, err)
			}
			stats := ParseInfo(raw)
			mu.Lock()
			out[n.Key()] = stats
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SlowLogs returns the most recent slow log entries of every node.
func (s *Source) SlowLogs(ctx context.Context, nodes []models.ClusterNode) ([]models.SlowLog, error) {
	var mu sync.Mutex
	var out []models.SlowLog
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, n := range nodes {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			entries, err := s.client(n.HostAndPort).SlowLogGet(callCtx, s.slowCount).Result()
			if err != nil {
				return fmt.Errorf("slowlog from %s: %w", n.HostAndPort, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, e := range entries {
				out = append(out, models.SlowLog{
					ID:            e.ID,
					TimeStamp:     e.Time.Unix(),
					ExecutionTime: e.Duration.Microseconds(),
					Args:          e.Args,
					HostAndPort:   n.HostAndPort,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Debug("slow logs fetched", "nodes", len(nodes), "entries", len(out))
	return out, nil
}
