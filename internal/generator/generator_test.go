package generator

import (
	"math/rand"
	"testing"

	"delivery-network-engine/internal/network"
)

func generate(t *testing.T, seed int64, customers int) *network.Network {
	t.Helper()
	g := New(DefaultRegion(), rand.New(rand.NewSource(seed)))
	n, err := g.Generate(Params{NumCustomers: customers, Name: "gen-test"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return n
}

func TestGenerateConnected(t *testing.T) {
	for _, seed := range []int64{1, 42, 1234} {
		n := generate(t, seed, 80)
		if unreachable := n.Validate(); len(unreachable) > 0 {
			t.Fatalf("seed %d: unreachable customers %v", seed, unreachable)
		}
	}
}

func TestGenerateCounts(t *testing.T) {
	n := generate(t, 42, 100)
	s := n.Stats()
	if s.Depots != 2 {
		t.Fatalf("expected 2 depots, got %d", s.Depots)
	}
	if s.Hubs != 12 {
		t.Fatalf("expected 12 hubs, got %d", s.Hubs)
	}
	if s.Customers != 100 {
		t.Fatalf("expected 100 customers, got %d", s.Customers)
	}
	if s.Zones != 5 {
		t.Fatalf("expected 5 zones, got %d", s.Zones)
	}
	if s.Vehicles < 2 {
		t.Fatalf("expected at least 2 vehicles, got %d", s.Vehicles)
	}
}

func TestGenerateZonesPartitionCustomers(t *testing.T) {
	n := generate(t, 7, 60)
	seen := make(map[string]string)
	for _, z := range n.Zones() {
		for _, cid := range z.CustomerIDs {
			if prev, dup := seen[cid]; dup {
				t.Fatalf("customer %s in zones %s and %s", cid, prev, z.ID)
			}
			seen[cid] = z.ID
		}
	}
	for _, c := range n.NodesOfKind(network.KindCustomer) {
		if _, ok := seen[c.ID]; !ok {
			t.Fatalf("customer %s omitted from all zones", c.ID)
		}
	}
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	a := generate(t, 99, 50)
	b := generate(t, 99, 50)
	if len(a.Nodes()) != len(b.Nodes()) || len(a.Edges()) != len(b.Edges()) {
		t.Fatalf("same seed produced different structure")
	}
	for i, node := range a.Nodes() {
		other := b.Nodes()[i]
		if node.ID != other.ID || node.Lat != other.Lat || node.Lon != other.Lon || node.Demand != other.Demand {
			t.Fatalf("same seed produced different node %d: %+v vs %+v", i, node, other)
		}
	}
}

func TestGenerateVehiclesIdleAtDepots(t *testing.T) {
	n := generate(t, 42, 40)
	targeted := make(map[string]bool)
	for _, v := range n.Vehicles() {
		if v.State != "idle" {
			t.Fatalf("vehicle %s not idle: %s", v.ID, v.State)
		}
		home, ok := n.Node(v.HomeDepot)
		if !ok || home.Kind != network.KindDepot {
			t.Fatalf("vehicle %s not homed at a depot", v.ID)
		}
		for _, tid := range v.Targets {
			targeted[tid] = true
		}
	}
	for _, c := range n.NodesOfKind(network.KindCustomer) {
		if !targeted[c.ID] {
			t.Fatalf("customer %s assigned to no vehicle", c.ID)
		}
	}
}

func TestGenerateDepotCapacityMatchesOutbound(t *testing.T) {
	n := generate(t, 42, 40)
	for _, d := range n.NodesOfKind(network.KindDepot) {
		total := 0
		for _, e := range n.Query(d.ID) {
			total += e.Capacity
		}
		if d.Capacity != total {
			t.Fatalf("depot %s capacity %d != outbound %d", d.ID, d.Capacity, total)
		}
	}
}

func TestGenerateRejectsNonPositiveCustomers(t *testing.T) {
	g := New(DefaultRegion(), rand.New(rand.NewSource(1)))
	if _, err := g.Generate(Params{NumCustomers: 0}); err == nil {
		t.Fatalf("expected error for zero customers")
	}
}

func TestGenerateDefaultsName(t *testing.T) {
	g := New(DefaultRegion(), rand.New(rand.NewSource(3)))
	n, err := g.Generate(Params{NumCustomers: 20})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n.Name != "delivery-network" {
		t.Fatalf("name = %q, want default", n.Name)
	}
}
