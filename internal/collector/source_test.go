package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relumon/internal/models"
)

// fakeNode speaks just enough RESP2 to answer the commands Source sends.
type fakeNode struct {
	ln     net.Listener
	silent bool

	mu      sync.Mutex
	replies map[string]string
	conns   []net.Conn
}

func startFakeNode(t *testing.T, silent bool, replies map[string]string) *fakeNode {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	n := &fakeNode{ln: ln, silent: silent, replies: replies}
	go n.serve()
	t.Cleanup(n.close)
	return n
}

func (n *fakeNode) addr() string { return n.ln.Addr().String() }

func (n *fakeNode) setReplies(replies map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies = replies
}

func (n *fakeNode) reply(cmd string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for prefix, r := range n.replies {
		if strings.HasPrefix(cmd, prefix) {
			return r
		}
	}
	return "-ERR unknown command\r\n"
}

func (n *fakeNode) close() {
	_ = n.ln.Close()
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.conns {
		_ = c.Close()
	}
}

func (n *fakeNode) serve() {
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			return
		}
		n.mu.Lock()
		n.conns = append(n.conns, conn)
		n.mu.Unlock()
		if !n.silent {
			go n.handle(conn)
		}
	}
}

func (n *fakeNode) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		name := strings.ToUpper(strings.Join(args, " "))
		reply := "-ERR unknown command\r\n"
		switch {
		case strings.HasPrefix(name, "HELLO"):
		case strings.HasPrefix(name, "CLIENT"), strings.HasPrefix(name, "PING"):
			reply = "+OK\r\n"
		default:
			reply = n.reply(name)
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "*")))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "$")))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func bulk(s string) string {
	return fmt.Sprintf("$%d\r\n%s\r\n", len(s), s)
}

func newTestSource(timeout time.Duration) *Source {
	return NewSource(Options{Timeout: timeout, Concurrency: 4, SlowLogCount: 10}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSourceTopology(t *testing.T) {
	seed := startFakeNode(t, false, nil)
	_, port, _ := net.SplitHostPort(seed.addr())
	seed.setReplies(map[string]string{
		"CLUSTER INFO": bulk("cluster_state:ok\r\ncluster_known_nodes:2\r\n"),
		"CLUSTER NODES": bulk(
			"07c37dfeb235213a872192d90877d0cd55635b91 :" + port + "@17000 myself,master - 0 0 1 connected 0-8191\n" +
				"e7d1eecce10fd6bb5eb35b9f99a514335d9ba9ca 10.0.0.2:7001@17001 master,fail - 1700000000 1700000000 2 disconnected 8192-16383\n"),
	})
	src := newTestSource(time.Second)
	t.Cleanup(func() { _ = src.Close() })

	c, err := src.Topology(context.Background(), "prod", seed.addr())
	require.NoError(t, err)
	assert.Equal(t, "prod", c.Name)
	assert.Equal(t, "ok", c.Status)
	require.Len(t, c.Nodes, 2)
	assert.Equal(t, seed.addr(), c.Nodes[0].HostAndPort)
	assert.False(t, c.Nodes[0].Down())
	assert.True(t, c.Nodes[1].Down())
}

func TestSourceFetch(t *testing.T) {
	a := startFakeNode(t, false, map[string]string{"INFO": bulk("# Clients\r\nconnected_clients:12\r\n\r\n# Memory\r\nused_memory:1024\r\n")})
	b := startFakeNode(t, false, map[string]string{"INFO": bulk("# Clients\r\nconnected_clients:3\r\n")})
	src := newTestSource(time.Second)
	t.Cleanup(func() { _ = src.Close() })

	nodes := []models.ClusterNode{
		{NodeID: "a", HostAndPort: a.addr(), Connected: true},
		{NodeID: "b", HostAndPort: b.addr(), Connected: true},
	}
	got, err := src.Fetch(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, "12", got[nodes[0].Key()]["connected_clients"])
	assert.Equal(t, "1024", got[nodes[0].Key()]["used_memory"])
	assert.Equal(t, "3", got[nodes[1].Key()]["connected_clients"])
}

func TestSourceFetchFailsOnAnyNode(t *testing.T) {
	ok := startFakeNode(t, false, map[string]string{"INFO": bulk("connected_clients:1\r\n")})
	broken := startFakeNode(t, false, map[string]string{"INFO": "-ERR loading dataset\r\n"})
	src := newTestSource(time.Second)
	t.Cleanup(func() { _ = src.Close() })

	_, err := src.Fetch(context.Background(), []models.ClusterNode{
		{NodeID: "ok", HostAndPort: ok.addr(), Connected: true},
		{NodeID: "broken", HostAndPort: broken.addr(), Connected: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.addr())
}

func TestSourceFetchTimesOutSilentNode(t *testing.T) {
	silent := startFakeNode(t, true, nil)
	src := newTestSource(100 * time.Millisecond)
	t.Cleanup(func() { _ = src.Close() })

	start := time.Now()
	_, err := src.Fetch(context.Background(), []models.ClusterNode{{NodeID: "s", HostAndPort: silent.addr(), Connected: true}})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSourceSlowLogs(t *testing.T) {
	entry := "*6\r\n:7\r\n:1700000000\r\n:1500\r\n*2\r\n" + bulk("KEYS") + bulk("*") + bulk("127.0.0.1:50000") + bulk("")
	node := startFakeNode(t, false, map[string]string{"SLOWLOG GET": "*1\r\n" + entry})
	src := newTestSource(time.Second)
	t.Cleanup(func() { _ = src.Close() })

	got, err := src.SlowLogs(context.Background(), []models.ClusterNode{{NodeID: "n", HostAndPort: node.addr(), Connected: true}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.SlowLog{
		ID:            7,
		TimeStamp:     1700000000,
		ExecutionTime: 1500,
		Args:          []string{"KEYS", "*"},
		HostAndPort:   node.addr(),
	}, got[0])
}
