package collector

import (
	"bufio"
	"fmt"
	"strings"

	"relumon/internal/models"
)

// ParseInfo turns an INFO or CLUSTER INFO reply into a key/value map.
// Section headers and blank lines are skipped.
func ParseInfo(raw string) map[string]string {
	out := map[string]string{}
	s := bufio.NewScanner(strings.NewReader(raw))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// ParseClusterNodes parses a CLUSTER NODES reply. seedHost replaces an
// empty host, which a node reports for itself before meeting any peer.
func ParseClusterNodes(raw, seedHost string) ([]models.ClusterNode, error) {
	var nodes []models.ClusterNode
	s := bufio.NewScanner(strings.NewReader(raw))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return nil, fmt.Errorf("malformed cluster nodes line: %q", line)
		}
		addr, _, _ := strings.Cut(fields[1], "@")
		if strings.HasPrefix(addr, ":") {
			addr = seedHost + addr
		}
		master := fields[3]
		if master == "-" {
			master = ""
		}
		nodes = append(nodes, models.ClusterNode{
			NodeID:      fields[0],
			HostAndPort: addr,
			Flags:       fields[2],
			MasterID:    master,
			Connected:   fields[7] == "connected",
		})
	}
	return nodes, s.Err()
}
