package models

import (
	"sort"
	"strings"
)

type MetricsType string

const (
	MetricsTypeClusterInfo MetricsType = "cluster_info"
	MetricsTypeNodeInfo    MetricsType = "node_info"
)

type Operator string

const (
	OpEq Operator = "eq"
	OpNe Operator = "ne"
	OpGt Operator = "gt"
	OpGe Operator = "ge"
	OpLt Operator = "lt"
	OpLe Operator = "le"
)

type ValueType string

const (
	ValueTypeString ValueType = "string"
	ValueTypeNumber ValueType = "number"
)

type Cluster struct {
	Name   string            `json:"clusterName"`
	Status string            `json:"status"`
	Info   map[string]string `json:"info"`
	Nodes  []ClusterNode     `json:"nodes"`
}

type ClusterNode struct {
	NodeID      string `json:"nodeId"`
	HostAndPort string `json:"hostAndPort"`
	Flags       string `json:"flags,omitempty"`
	MasterID    string `json:"masterNodeId,omitempty"`
	Connected   bool   `json:"connect"`
}

// NodeKey is the identity of a node within one cluster snapshot.
type NodeKey struct {
	NodeID      string
	HostAndPort string
}

func (n ClusterNode) Key() NodeKey {
	return NodeKey{NodeID: n.NodeID, HostAndPort: n.HostAndPort}
}

// Down reports whether the topology marks the node unreachable: flagged
// fail or noaddr, still in handshake, or with its cluster link disconnected.
func (n ClusterNode) Down() bool {
	if !n.Connected {
		return true
	}
	for _, f := range strings.Split(n.Flags, ",") {
		switch f {
		case "fail", "noaddr", "handshake":
			return true
		}
	}
	return false
}

func (k NodeKey) String() string {
	return k.NodeID + "@" + k.HostAndPort
}

// NodeMetrics maps a node to its metric name -> raw value snapshot.
type NodeMetrics map[NodeKey]map[string]string

// Keys returns the nodes ordered by address, then node id.
func (m NodeMetrics) Keys() []NodeKey {
	keys := make([]NodeKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].HostAndPort != keys[j].HostAndPort {
			return keys[i].HostAndPort < keys[j].HostAndPort
		}
		return keys[i].NodeID < keys[j].NodeID
	})
	return keys
}

type NoticeMail struct {
	To   string `json:"to"`
	From string `json:"from"`
}

// Recipients splits the comma separated To field.
func (m NoticeMail) Recipients() []string {
	var out []string
	for _, addr := range strings.Split(m.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

type Notice struct {
	InvalidEndTime string       `json:"invalidEndTime"`
	Items          []NoticeItem `json:"items"`
	Mail           NoticeMail   `json:"mail"`
}

type NoticeItem struct {
	MetricsName string      `json:"metricsName"`
	MetricsType MetricsType `json:"metricsType"`
	Operator    Operator    `json:"operator"`
	Value       string      `json:"value"`
	ValueType   ValueType   `json:"valueType"`
}

type ResultValue struct {
	NodeID      string `json:"nodeId,omitempty"`
	HostAndPort string `json:"hostAndPort,omitempty"`
	Value       string `json:"value"`
}

type NoticeJob struct {
	Item         NoticeItem    `json:"item"`
	ResultValues []ResultValue `json:"resultValues"`
}

type SlowLog struct {
	ID            int64    `json:"id"`
	TimeStamp     int64    `json:"timeStamp"`
	ExecutionTime int64    `json:"executionTime"`
	Args          []string `json:"args"`
	HostAndPort   string   `json:"hostAndPort"`
}

type PagerData[T any] struct {
	Offset int64 `json:"offset"`
	Limit  int64 `json:"limit"`
	Total  int64 `json:"total"`
	Data   []T   `json:"data"`
}
