package network

import (
	"errors"
	"testing"
)

func buildSmall(t *testing.T) *Network {
	t.Helper()
	n := New("test")
	nodes := []Node{
		{ID: "D1", Kind: KindDepot, Lat: -9.66, Lon: -35.73},
		{ID: "H1", Kind: KindHub, Lat: -9.65, Lon: -35.72, Capacity: 100},
		{ID: "C1", Kind: KindCustomer, Lat: -9.64, Lon: -35.71, Demand: 3},
		{ID: "C2", Kind: KindCustomer, Lat: -9.63, Lon: -35.70, Demand: 2},
	}
	for _, node := range nodes {
		if err := n.AddNode(node); err != nil {
			t.Fatalf("add node %s: %v", node.ID, err)
		}
	}
	edges := []Edge{
		{ID: "E1", From: "D1", To: "H1", Capacity: 10, DistanceKM: 1.5, TravelTimeMin: 4},
		{ID: "E2", From: "H1", To: "C1", Capacity: 5, DistanceKM: 1.2, TravelTimeMin: 3},
		{ID: "E3", From: "H1", To: "C2", Capacity: 5, DistanceKM: 2.0, TravelTimeMin: 5},
	}
	for _, e := range edges {
		if err := n.AddEdge(e); err != nil {
			t.Fatalf("add edge %s: %v", e.ID, err)
		}
	}
	return n
}

func TestAddEdgeRejectsDanglingEndpoint(t *testing.T) {
	n := buildSmall(t)
	err := n.AddEdge(Edge{ID: "EX", From: "H1", To: "NOPE", Capacity: 1})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Invariant != "edge_endpoints_exist" {
		t.Fatalf("unexpected invariant %q", ve.Invariant)
	}
	if len(n.Edges()) != 3 {
		t.Fatalf("network modified by rejected edge")
	}
}

func TestAddEdgeRejectsNegativeCapacity(t *testing.T) {
	n := buildSmall(t)
	err := n.AddEdge(Edge{ID: "EX", From: "D1", To: "H1", Capacity: -1})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Invariant != "capacity_non_negative" {
		t.Fatalf("unexpected invariant %q", ve.Invariant)
	}
}

func TestAddEdgeAllowsParallelDistinctIDs(t *testing.T) {
	n := buildSmall(t)
	if err := n.AddEdge(Edge{ID: "E2B", From: "H1", To: "C1", Capacity: 2}); err != nil {
		t.Fatalf("parallel edge with distinct id rejected: %v", err)
	}
	if err := n.AddEdge(Edge{ID: "E2", From: "H1", To: "C1", Capacity: 2}); err == nil {
		t.Fatalf("duplicate edge id accepted")
	}
}

func TestZonePartition(t *testing.T) {
	n := buildSmall(t)
	if err := n.AddZone(Zone{ID: "Z1", Name: "north", CustomerIDs: []string{"C1"}}); err != nil {
		t.Fatalf("add zone: %v", err)
	}
	err := n.AddZone(Zone{ID: "Z2", Name: "south", CustomerIDs: []string{"C1", "C2"}})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for overlapping zones, got %v", err)
	}
	if ve.Invariant != "zone_partition" {
		t.Fatalf("unexpected invariant %q", ve.Invariant)
	}
	// The rejected zone must not have claimed C2.
	if _, taken := n.ZoneOfCustomer("C2"); taken {
		t.Fatalf("rejected zone left partial membership")
	}
	if err := n.AddZone(Zone{ID: "Z2", Name: "south", CustomerIDs: []string{"C2"}}); err != nil {
		t.Fatalf("add disjoint zone: %v", err)
	}
}

func TestZoneRejectsNonCustomerMember(t *testing.T) {
	n := buildSmall(t)
	err := n.AddZone(Zone{ID: "Z1", CustomerIDs: []string{"H1"}})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Invariant != "zone_members_customers" {
		t.Fatalf("expected zone_members_customers, got %v", err)
	}
}

func TestValidateReportsUnreachableCustomers(t *testing.T) {
	n := buildSmall(t)
	if got := n.Validate(); len(got) != 0 {
		t.Fatalf("expected connected network, got unreachable %v", got)
	}
	if err := n.AddNode(Node{ID: "C3", Kind: KindCustomer, Demand: 1}); err != nil {
		t.Fatalf("add node: %v", err)
	}
	got := n.Validate()
	if len(got) != 1 || got[0] != "C3" {
		t.Fatalf("expected [C3] unreachable, got %v", got)
	}
}

func TestQueryInsertionOrder(t *testing.T) {
	n := buildSmall(t)
	out := n.Query("H1")
	if len(out) != 2 || out[0].ID != "E2" || out[1].ID != "E3" {
		t.Fatalf("expected insertion order [E2 E3], got %v", out)
	}
}

func TestAddVehicleValidation(t *testing.T) {
	n := buildSmall(t)
	if err := n.AddVehicle(Vehicle{ID: "V1", Class: ClassMoto, Capacity: 5, SpeedKMH: 30, HomeDepot: "D1", Targets: []string{"C1"}}); err != nil {
		t.Fatalf("add vehicle: %v", err)
	}
	v, _ := n.Vehicle("V1")
	if v.State != "idle" {
		t.Fatalf("expected default idle state, got %q", v.State)
	}
	if err := n.AddVehicle(Vehicle{ID: "V2", Capacity: 5, SpeedKMH: 30, HomeDepot: "H1"}); err == nil {
		t.Fatalf("vehicle homed at hub accepted")
	}
	if err := n.AddVehicle(Vehicle{ID: "V3", Capacity: 5, SpeedKMH: 30, HomeDepot: "D1", Targets: []string{"H1"}}); err == nil {
		t.Fatalf("vehicle targeting a hub accepted")
	}
}

func TestStats(t *testing.T) {
	n := buildSmall(t)
	s := n.Stats()
	if s.Depots != 1 || s.Hubs != 1 || s.Customers != 2 {
		t.Fatalf("unexpected node counts: %+v", s)
	}
	if s.TotalDemand != 5 {
		t.Fatalf("expected total demand 5, got %d", s.TotalDemand)
	}
	if s.TotalCapacity != 20 {
		t.Fatalf("expected total capacity 20, got %d", s.TotalCapacity)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	n := buildSmall(t)
	if err := n.AddZone(Zone{ID: "Z1", Name: "all", CustomerIDs: []string{"C1", "C2"}}); err != nil {
		t.Fatalf("add zone: %v", err)
	}
	if err := n.AddVehicle(Vehicle{ID: "V1", Class: ClassCar, Capacity: 10, SpeedKMH: 25, HomeDepot: "D1", Targets: []string{"C1", "C2"}}); err != nil {
		t.Fatalf("add vehicle: %v", err)
	}

	doc := n.Export()
	got, err := FromDocument(doc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got.ID != n.ID || got.Name != n.Name {
		t.Fatalf("identity lost in round trip")
	}
	if len(got.Nodes()) != len(n.Nodes()) || len(got.Edges()) != len(n.Edges()) {
		t.Fatalf("structure lost in round trip")
	}
	if zone, ok := got.ZoneOfCustomer("C2"); !ok || zone != "Z1" {
		t.Fatalf("zone membership lost in round trip")
	}
	v, ok := got.Vehicle("V1")
	if !ok || len(v.Targets) != 2 {
		t.Fatalf("vehicle lost in round trip")
	}
}
