package network

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"delivery-network-engine/shared/workflow"
)

const (
	KindDepot    = "depot"
	KindHub      = "hub"
	KindCustomer = "customer"
)

const (
	ClassMoto  = "moto"
	ClassCar   = "car"
	ClassVan   = "van"
	ClassTruck = "truck"
)

type Node struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Name     string  `json:"name,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Capacity int     `json:"capacity"`
	Demand   int     `json:"demand"`
	ZoneID   string  `json:"zone_id,omitempty"`
}

type Edge struct {
	ID            string  `json:"id"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Capacity      int     `json:"capacity"`
	DistanceKM    float64 `json:"distance_km"`
	TravelTimeMin float64 `json:"travel_time_min"`
}

type Zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CustomerIDs []string `json:"customer_ids"`
}

type Vehicle struct {
	ID        string   `json:"id"`
	Class     string   `json:"class"`
	Capacity  int      `json:"capacity"`
	SpeedKMH  float64  `json:"speed_kmh"`
	HomeDepot string   `json:"home_depot"`
	State     string   `json:"state"`
	EdgeID    string   `json:"edge_id,omitempty"`
	Progress  float64  `json:"progress"`
	Targets   []string `json:"targets"`
	Delivered int      `json:"delivered"`
}

// Network is the in-memory graph store. Nodes and edges keep insertion
// order; index maps back each slice for id lookup. All structural
// mutation goes through the Add* methods.
type Network struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	nodes    []*Node
	nodeByID map[string]*Node
	edges    []*Edge
	edgeByID map[string]*Edge
	outgoing map[string][]*Edge
	zones    []*Zone
	zoneByID map[string]*Zone
	zoneOf   map[string]string
	vehicles []*Vehicle
	vehByID  map[string]*Vehicle
}

func New(name string) *Network {
	return &Network{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		nodeByID:  make(map[string]*Node),
		edgeByID:  make(map[string]*Edge),
		outgoing:  make(map[string][]*Edge),
		zoneByID:  make(map[string]*Zone),
		zoneOf:    make(map[string]string),
		vehByID:   make(map[string]*Vehicle),
	}
}

func (n *Network) AddNode(node Node) error {
	if node.ID == "" {
		return invalid("node_id", "node id must not be empty")
	}
	if _, exists := n.nodeByID[node.ID]; exists {
		return invalid("node_id_unique", "node %q already exists", node.ID)
	}
	switch node.Kind {
	case KindDepot, KindHub, KindCustomer:
	default:
		return invalid("node_kind", "unknown node kind %q", node.Kind)
	}
	if node.Capacity < 0 {
		return invalid("capacity_non_negative", "node %q has capacity %d", node.ID, node.Capacity)
	}
	if node.Demand < 0 {
		return invalid("demand_non_negative", "node %q has demand %d", node.ID, node.Demand)
	}
	if node.Demand > 0 && node.Kind != KindCustomer {
		return invalid("demand_customer_only", "node %q of kind %s carries demand", node.ID, node.Kind)
	}
	stored := node
	n.nodes = append(n.nodes, &stored)
	n.nodeByID[node.ID] = &stored
	return nil
}

func (n *Network) AddEdge(edge Edge) error {
	if edge.ID == "" {
		return invalid("edge_id", "edge id must not be empty")
	}
	if _, exists := n.edgeByID[edge.ID]; exists {
		return invalid("edge_id_unique", "edge %q already exists", edge.ID)
	}
	if _, ok := n.nodeByID[edge.From]; !ok {
		return invalid("edge_endpoints_exist", "edge %q references unknown origin %q", edge.ID, edge.From)
	}
	if _, ok := n.nodeByID[edge.To]; !ok {
		return invalid("edge_endpoints_exist", "edge %q references unknown destination %q", edge.ID, edge.To)
	}
	if edge.Capacity < 0 {
		return invalid("capacity_non_negative", "edge %q has capacity %d", edge.ID, edge.Capacity)
	}
	stored := edge
	n.edges = append(n.edges, &stored)
	n.edgeByID[edge.ID] = &stored
	n.outgoing[edge.From] = append(n.outgoing[edge.From], &stored)
	return nil
}

func (n *Network) AddZone(zone Zone) error {
	if zone.ID == "" {
		return invalid("zone_id", "zone id must not be empty")
	}
	if _, exists := n.zoneByID[zone.ID]; exists {
		return invalid("zone_id_unique", "zone %q already exists", zone.ID)
	}
	for _, cid := range zone.CustomerIDs {
		node, ok := n.nodeByID[cid]
		if !ok {
			return invalid("zone_members_exist", "zone %q references unknown customer %q", zone.ID, cid)
		}
		if node.Kind != KindCustomer {
			return invalid("zone_members_customers", "zone %q member %q is a %s", zone.ID, cid, node.Kind)
		}
		if owner, taken := n.zoneOf[cid]; taken {
			return invalid("zone_partition", "customer %q already belongs to zone %q", cid, owner)
		}
	}
	stored := zone
	stored.CustomerIDs = append([]string(nil), zone.CustomerIDs...)
	n.zones = append(n.zones, &stored)
	n.zoneByID[zone.ID] = &stored
	for _, cid := range stored.CustomerIDs {
		n.zoneOf[cid] = zone.ID
		n.nodeByID[cid].ZoneID = zone.ID
	}
	return nil
}

func (n *Network) AddVehicle(vehicle Vehicle) error {
	if vehicle.ID == "" {
		return invalid("vehicle_id", "vehicle id must not be empty")
	}
	if _, exists := n.vehByID[vehicle.ID]; exists {
		return invalid("vehicle_id_unique", "vehicle %q already exists", vehicle.ID)
	}
	home, ok := n.nodeByID[vehicle.HomeDepot]
	if !ok {
		return invalid("vehicle_home_exists", "vehicle %q references unknown home %q", vehicle.ID, vehicle.HomeDepot)
	}
	if home.Kind != KindDepot {
		return invalid("vehicle_home_depot", "vehicle %q home %q is a %s", vehicle.ID, vehicle.HomeDepot, home.Kind)
	}
	if vehicle.Capacity < 0 {
		return invalid("capacity_non_negative", "vehicle %q has capacity %d", vehicle.ID, vehicle.Capacity)
	}
	if vehicle.SpeedKMH <= 0 {
		return invalid("vehicle_speed_positive", "vehicle %q has speed %f", vehicle.ID, vehicle.SpeedKMH)
	}
	for _, tid := range vehicle.Targets {
		target, ok := n.nodeByID[tid]
		if !ok {
			return invalid("vehicle_targets_exist", "vehicle %q targets unknown node %q", vehicle.ID, tid)
		}
		if target.Kind != KindCustomer {
			return invalid("vehicle_targets_customers", "vehicle %q target %q is a %s", vehicle.ID, tid, target.Kind)
		}
	}
	if vehicle.EdgeID != "" {
		if _, ok := n.edgeByID[vehicle.EdgeID]; !ok {
			return invalid("vehicle_edge_exists", "vehicle %q references unknown edge %q", vehicle.ID, vehicle.EdgeID)
		}
	}
	stored := vehicle
	if stored.State == "" {
		stored.State = workflow.VehicleStateIdle
	}
	stored.State = workflow.NormalizeVehicleState(stored.State)
	stored.Targets = append([]string(nil), vehicle.Targets...)
	n.vehicles = append(n.vehicles, &stored)
	n.vehByID[vehicle.ID] = &stored
	return nil
}

// Validate runs a breadth-first search from every depot over directed
// edges and returns the ids of customers no depot can reach, sorted.
// An empty result means the network is complete.
func (n *Network) Validate() []string {
	visited := make(map[string]bool, len(n.nodes))
	queue := make([]string, 0, len(n.nodes))
	for _, node := range n.nodes {
		if node.Kind == KindDepot {
			visited[node.ID] = true
			queue = append(queue, node.ID)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range n.outgoing[cur] {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}

	var unreachable []string
	for _, node := range n.nodes {
		if node.Kind == KindCustomer && !visited[node.ID] {
			unreachable = append(unreachable, node.ID)
		}
	}
	sort.Strings(unreachable)
	return unreachable
}

// Query returns the edges leaving nodeID in insertion order.
func (n *Network) Query(nodeID string) []*Edge {
	return n.outgoing[nodeID]
}

// HasEdgeBetween reports whether any edge runs from "from" to "to".
func (n *Network) HasEdgeBetween(from, to string) bool {
	for _, e := range n.outgoing[from] {
		if e.To == to {
			return true
		}
	}
	return false
}

func (n *Network) Node(id string) (*Node, bool) {
	node, ok := n.nodeByID[id]
	return node, ok
}

func (n *Network) Edge(id string) (*Edge, bool) {
	edge, ok := n.edgeByID[id]
	return edge, ok
}

func (n *Network) Zone(id string) (*Zone, bool) {
	zone, ok := n.zoneByID[id]
	return zone, ok
}

func (n *Network) Vehicle(id string) (*Vehicle, bool) {
	v, ok := n.vehByID[id]
	return v, ok
}

func (n *Network) Nodes() []*Node       { return n.nodes }
func (n *Network) Edges() []*Edge       { return n.edges }
func (n *Network) Zones() []*Zone       { return n.zones }
func (n *Network) Vehicles() []*Vehicle { return n.vehicles }

func (n *Network) NodesOfKind(kind string) []*Node {
	var out []*Node
	for _, node := range n.nodes {
		if node.Kind == kind {
			out = append(out, node)
		}
	}
	return out
}

func (n *Network) ZoneOfCustomer(customerID string) (string, bool) {
	z, ok := n.zoneOf[customerID]
	return z, ok
}

type Stats struct {
	Depots        int     `json:"depots"`
	Hubs          int     `json:"hubs"`
	Customers     int     `json:"customers"`
	Edges         int     `json:"edges"`
	Zones         int     `json:"zones"`
	Vehicles      int     `json:"vehicles"`
	TotalDemand   int     `json:"total_demand"`
	TotalCapacity int     `json:"total_capacity"`
	Utilization   float64 `json:"utilization"`
}

// Stats summarizes the network: node counts by kind, aggregate demand
// against aggregate route capacity.
func (n *Network) Stats() Stats {
	s := Stats{Edges: len(n.edges), Zones: len(n.zones), Vehicles: len(n.vehicles)}
	for _, node := range n.nodes {
		switch node.Kind {
		case KindDepot:
			s.Depots++
		case KindHub:
			s.Hubs++
		case KindCustomer:
			s.Customers++
			s.TotalDemand += node.Demand
		}
	}
	for _, e := range n.edges {
		s.TotalCapacity += e.Capacity
	}
	if s.TotalCapacity > 0 {
		s.Utilization = float64(s.TotalDemand) / float64(s.TotalCapacity)
	}
	return s
}
