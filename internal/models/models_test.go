package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterNodeDown(t *testing.T) {
	cases := []struct {
		flags     string
		connected bool
		want      bool
	}{
		{"myself,master", true, false},
		{"slave", true, false},
		{"master,fail?", true, false},
		{"master,fail", true, true},
		{"master,fail,noaddr", true, true},
		{"handshake", true, true},
		{"master", false, true},
	}
	for _, c := range cases {
		n := ClusterNode{NodeID: "n1", HostAndPort: "10.0.0.1:7000", Flags: c.flags, Connected: c.connected}
		assert.Equal(t, c.want, n.Down(), "flags=%s connected=%v", c.flags, c.connected)
	}
}

func TestNodeMetricsKeysOrdered(t *testing.T) {
	m := NodeMetrics{
		{NodeID: "b", HostAndPort: "10.0.0.2:7000"}: nil,
		{NodeID: "z", HostAndPort: "10.0.0.1:7000"}: nil,
		{NodeID: "a", HostAndPort: "10.0.0.2:7000"}: nil,
	}
	assert.Equal(t, []NodeKey{
		{NodeID: "z", HostAndPort: "10.0.0.1:7000"},
		{NodeID: "a", HostAndPort: "10.0.0.2:7000"},
		{NodeID: "b", HostAndPort: "10.0.0.2:7000"},
	}, m.Keys())
}
