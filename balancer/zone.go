package balancer

import (
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/consulagent/balance"
	"github.com/kbukum/consulagent/probe"
	"github.com/kbukum/consulagent/registration"
)

// Node is one discovered instance.
type Node struct {
	ID            string `json:"id"`
	Address       string `json:"address"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Zone          string `json:"zone"`
	BalanceFactor int    `json:"balance_factor"`
}

// NodeFromEntry converts a health entry. A missing or unparsable
// balanceFactor counts as the default factor and a missing zone as unknown.
func NodeFromEntry(e *api.ServiceEntry) Node {
	svc := e.Service
	host := svc.Address
	if host == "" && e.Node != nil {
		host = e.Node.Address
	}

	factor := balance.DefaultFactor
	if v, ok := svc.Meta[registration.MetaBalanceFactor]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			factor = n
		}
	}
	zone := probe.Unknown
	if z, ok := svc.Meta[registration.MetaZone]; ok {
		zone = z
	}

	return Node{
		ID:            svc.ID,
		Address:       net.JoinHostPort(host, strconv.Itoa(svc.Port)),
		Host:          host,
		Port:          svc.Port,
		Zone:          zone,
		BalanceFactor: factor,
	}
}

// NodesFromEntries converts health entries, skipping entries without a service.
func NodesFromEntries(entries []*api.ServiceEntry) []Node {
	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Service == nil {
			continue
		}
		nodes = append(nodes, NodeFromEntry(e))
	}
	return nodes
}

// ZonePicker prefers nodes in the local zone and falls back to the other
// zones when the local zone has no positive factor.
type ZonePicker struct {
	localZone string
	nodes     map[string]Node
	local     SmoothWeighted
	other     SmoothWeighted
}

// NewZonePicker creates a picker for localZone. Nodes with duplicate IDs keep
// the last occurrence.
func NewZonePicker(localZone string, nodes []Node) *ZonePicker {
	p := &ZonePicker{localZone: localZone, nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		key := n.ID
		if key == "" {
			key = n.Address
		}
		p.nodes[key] = n
		if n.Zone == localZone {
			p.other.Delete(key)
			p.local.Add(key, n.BalanceFactor)
		} else {
			p.local.Delete(key)
			p.other.Add(key, n.BalanceFactor)
		}
	}
	return p
}

// LocalZone returns the zone the picker prefers.
func (p *ZonePicker) LocalZone() string { return p.localZone }

// LocalFactor returns the total factor of local nodes.
func (p *ZonePicker) LocalFactor() int { return p.local.Total() }

// OtherFactor returns the total factor of nodes in other zones.
func (p *ZonePicker) OtherFactor() int { return p.other.Total() }

// Pick returns the next node, or false when no node has a positive factor.
func (p *ZonePicker) Pick() (Node, bool) {
	side := &p.local
	if side.Total() == 0 {
		side = &p.other
	}
	key := side.Next()
	if key == "" {
		return Node{}, false
	}
	return p.nodes[key], true
}
