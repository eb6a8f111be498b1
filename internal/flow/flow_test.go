package flow

import (
	"testing"

	"delivery-network-engine/internal/network"
)

// Two depots feed a single hub which serves three customers. Every edge
// has capacity 5, so throughput is bounded by the 10 units entering the
// hub, not by the 30 units of demand.
func buildHubBound(t *testing.T, depotCapacity int) *network.Network {
	t.Helper()
	n := network.New("hub-bound")
	nodes := []network.Node{
		{ID: "D1", Kind: network.KindDepot, Capacity: depotCapacity},
		{ID: "D2", Kind: network.KindDepot, Capacity: depotCapacity},
		{ID: "H1", Kind: network.KindHub, Capacity: 50},
		{ID: "C1", Kind: network.KindCustomer, Demand: 10},
		{ID: "C2", Kind: network.KindCustomer, Demand: 10},
		{ID: "C3", Kind: network.KindCustomer, Demand: 10},
	}
	for _, node := range nodes {
		if err := n.AddNode(node); err != nil {
			t.Fatalf("add node %s: %v", node.ID, err)
		}
	}
	edges := []network.Edge{
		{ID: "E1", From: "D1", To: "H1", Capacity: 5},
		{ID: "E2", From: "D2", To: "H1", Capacity: 5},
		{ID: "E3", From: "H1", To: "C1", Capacity: 5},
		{ID: "E4", From: "H1", To: "C2", Capacity: 5},
		{ID: "E5", From: "H1", To: "C3", Capacity: 5},
	}
	for _, e := range edges {
		if err := n.AddEdge(e); err != nil {
			t.Fatalf("add edge %s: %v", e.ID, err)
		}
	}
	return n
}

func TestMaxFlowHubBound(t *testing.T) {
	n := buildHubBound(t, 0)
	res := MaxFlow(n)
	if res.Value != 10 {
		t.Fatalf("expected max flow 10, got %d", res.Value)
	}
}

func TestMaxFlowUpperBounds(t *testing.T) {
	n := buildHubBound(t, 0)
	res := MaxFlow(n)

	depotOut := 0
	for _, d := range n.NodesOfKind(network.KindDepot) {
		for _, e := range n.Query(d.ID) {
			depotOut += e.Capacity
		}
	}
	demand := 0
	for _, c := range n.NodesOfKind(network.KindCustomer) {
		demand += c.Demand
	}
	if res.Value > depotOut {
		t.Fatalf("flow %d exceeds depot outbound capacity %d", res.Value, depotOut)
	}
	if res.Value > demand {
		t.Fatalf("flow %d exceeds total demand %d", res.Value, demand)
	}
}

func TestMaxFlowDeterministic(t *testing.T) {
	n := buildHubBound(t, 0)
	a := MaxFlow(n)
	b := MaxFlow(n)
	if a.Value != b.Value || len(a.Paths) != len(b.Paths) {
		t.Fatalf("non-deterministic result: %v vs %v", a, b)
	}
	for i := range a.Paths {
		if len(a.Paths[i]) != len(b.Paths[i]) {
			t.Fatalf("path %d differs between runs", i)
		}
		for j := range a.Paths[i] {
			if a.Paths[i][j] != b.Paths[i][j] {
				t.Fatalf("path %d differs between runs", i)
			}
		}
	}
}

func TestBottlenecksAreSaturated(t *testing.T) {
	// Large depot capacity pushes the min cut onto the depot-to-hub
	// edges instead of the synthetic source arcs.
	n := buildHubBound(t, 100)
	res := MaxFlow(n)
	got := Bottlenecks(n)
	if len(got) != 2 || got[0] != "E1" || got[1] != "E2" {
		t.Fatalf("expected bottlenecks [E1 E2], got %v", got)
	}
	for _, id := range got {
		e, _ := n.Edge(id)
		if res.EdgeFlows[id] != e.Capacity {
			t.Fatalf("bottleneck %s not saturated: flow %d cap %d", id, res.EdgeFlows[id], e.Capacity)
		}
	}
}

func TestDemandCoverage(t *testing.T) {
	n := buildHubBound(t, 100)
	covered := DemandCoverage(n)
	for id, ok := range covered {
		if ok {
			t.Fatalf("customer %s reported covered with only 10 units available", id)
		}
	}

	// A trivially feasible network: single depot and customer with
	// ample capacity end to end.
	m := network.New("feasible")
	_ = m.AddNode(network.Node{ID: "D1", Kind: network.KindDepot, Capacity: 50})
	_ = m.AddNode(network.Node{ID: "C1", Kind: network.KindCustomer, Demand: 4})
	_ = m.AddEdge(network.Edge{ID: "E1", From: "D1", To: "C1", Capacity: 10})
	covered = DemandCoverage(m)
	if !covered["C1"] {
		t.Fatalf("expected C1 covered")
	}
}

func TestMaxFlowDegenerateNetworks(t *testing.T) {
	noDepots := network.New("no-depots")
	_ = noDepots.AddNode(network.Node{ID: "C1", Kind: network.KindCustomer, Demand: 5})
	if res := MaxFlow(noDepots); res.Value != 0 {
		t.Fatalf("expected zero flow without depots, got %d", res.Value)
	}
	if got := Bottlenecks(noDepots); len(got) != 0 {
		t.Fatalf("expected no bottlenecks without depots, got %v", got)
	}

	noCustomers := network.New("no-customers")
	_ = noCustomers.AddNode(network.Node{ID: "D1", Kind: network.KindDepot})
	if res := MaxFlow(noCustomers); res.Value != 0 {
		t.Fatalf("expected zero flow without customers, got %d", res.Value)
	}
}
