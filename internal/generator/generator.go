package generator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"delivery-network-engine/internal/geo"
	"delivery-network-engine/internal/network"
	"delivery-network-engine/shared/workflow"
)

// GenerationError means the generator could not produce a connected
// network within its repair bound. Nothing is persisted when one is
// returned.
type GenerationError struct {
	Attempts int
	Detail   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d repair passes: %s", e.Attempts, e.Detail)
}

// Anchor is a fixed depot site.
type Anchor struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// Area is a zone's geographic sub-region with a relative customer
// density weight.
type Area struct {
	ZoneID string
	Name   string
	Lat    float64
	Lon    float64
	Radius float64
	Weight float64
}

// Region is the geographic seed data for generation.
type Region struct {
	Depots []Anchor
	Areas  []Area
}

// DefaultRegion returns the coastal-city seed layout: two depot anchors
// and five density-weighted zone areas.
func DefaultRegion() Region {
	return Region{
		Depots: []Anchor{
			{ID: "DEP_01", Name: "Central Depot", Lat: -9.6658, Lon: -35.7350},
			{ID: "DEP_02", Name: "East Depot", Lat: -9.6200, Lon: -35.6800},
		},
		Areas: []Area{
			{ZoneID: "ZONE_CENTER", Name: "Center", Lat: -9.6500, Lon: -35.7200, Radius: 0.020, Weight: 15},
			{ZoneID: "ZONE_NORTH", Name: "North", Lat: -9.6150, Lon: -35.6950, Radius: 0.018, Weight: 22},
			{ZoneID: "ZONE_SOUTH", Name: "South", Lat: -9.7000, Lon: -35.7300, Radius: 0.020, Weight: 24},
			{ZoneID: "ZONE_WEST", Name: "West", Lat: -9.6750, Lon: -35.7700, Radius: 0.022, Weight: 26},
			{ZoneID: "ZONE_EAST", Name: "East", Lat: -9.6550, Lon: -35.6850, Radius: 0.020, Weight: 13},
		},
	}
}

// Params controls a single generation run.
type Params struct {
	NumCustomers int
	Name         string
	HubCount     int
	FanoutLimit  int
	SafetyMargin float64
	RepairMax    int
	FleetSize    int
}

const (
	minHubSeparation = 0.008
	hubPlaceTries    = 50
	baseSpeedKMH     = 25.0
)

type Generator struct {
	region Region
	rng    *rand.Rand
}

// New builds a generator over region using the injected seeded source,
// so runs are reproducible.
func New(region Region, rng *rand.Rand) *Generator {
	return &Generator{region: region, rng: rng}
}

// Generate produces a complete validated network. The post-condition is
// Validate() returning no unreachable customers; the generator repairs
// connectivity by adding nearest-hub links for up to p.RepairMax passes
// before giving up with a GenerationError.
func (g *Generator) Generate(p Params) (*network.Network, error) {
	if p.NumCustomers <= 0 {
		return nil, &GenerationError{Detail: "numCustomers must be positive"}
	}
	if p.HubCount <= 0 {
		p.HubCount = 12
	}
	if p.FanoutLimit <= 0 {
		p.FanoutLimit = 8
	}
	if p.SafetyMargin < 1 {
		p.SafetyMargin = 1.2
	}
	if p.RepairMax <= 0 {
		p.RepairMax = 10
	}
	name := p.Name
	if name == "" {
		name = "delivery-network"
	}

	n := network.New(name)

	for _, d := range g.region.Depots {
		if err := n.AddNode(network.Node{ID: d.ID, Kind: network.KindDepot, Name: d.Name, Lat: d.Lat, Lon: d.Lon}); err != nil {
			return nil, err
		}
	}

	hubs, err := g.placeHubs(n, p.HubCount)
	if err != nil {
		return nil, err
	}
	customers, byZone := g.placeCustomers(n, p.NumCustomers)
	for _, area := range g.region.Areas {
		zone := network.Zone{ID: area.ZoneID, Name: area.Name, CustomerIDs: byZone[area.ZoneID]}
		if err := n.AddZone(zone); err != nil {
			return nil, err
		}
	}

	if err := g.connect(n, hubs, customers, p); err != nil {
		return nil, err
	}

	attempts := 0
	for unreachable := n.Validate(); len(unreachable) > 0; unreachable = n.Validate() {
		attempts++
		if attempts > p.RepairMax {
			return nil, &GenerationError{
				Attempts: p.RepairMax,
				Detail:   fmt.Sprintf("%d customers still unreachable", len(unreachable)),
			}
		}
		if err := g.repair(n, hubs, unreachable, p.SafetyMargin); err != nil {
			return nil, err
		}
	}

	g.sizeDepots(n)
	if err := g.buildFleet(n, customers, p.FleetSize); err != nil {
		return nil, err
	}
	return n, nil
}

func (g *Generator) placeHubs(n *network.Network, count int) ([]*network.Node, error) {
	totalWeight := 0.0
	for _, a := range g.region.Areas {
		totalWeight += a.Weight
	}

	var hubs []*network.Node
	for i := 0; i < count; i++ {
		var lat, lon float64
		placed := false
		for try := 0; try < hubPlaceTries; try++ {
			area := g.pickArea(totalWeight)
			lat, lon = g.scatter(area)
			if g.separated(hubs, lat, lon) {
				placed = true
				break
			}
		}
		if !placed {
			// Dense regions can exhaust separation tries; take the
			// last candidate rather than failing the whole run.
			placed = true
		}
		id := fmt.Sprintf("HUB_%02d", i+1)
		hub := network.Node{
			ID:       id,
			Kind:     network.KindHub,
			Name:     fmt.Sprintf("Hub %02d", i+1),
			Lat:      lat,
			Lon:      lon,
			Capacity: 60 + g.rng.Intn(61),
		}
		if err := n.AddNode(hub); err != nil {
			return nil, err
		}
		stored, _ := n.Node(id)
		hubs = append(hubs, stored)
	}
	return hubs, nil
}

func (g *Generator) pickArea(totalWeight float64) Area {
	r := g.rng.Float64() * totalWeight
	for _, a := range g.region.Areas {
		if r < a.Weight {
			return a
		}
		r -= a.Weight
	}
	return g.region.Areas[len(g.region.Areas)-1]
}

func (g *Generator) scatter(area Area) (float64, float64) {
	angle := g.rng.Float64() * 2 * math.Pi
	radius := g.rng.Float64() * area.Radius
	return area.Lat + radius*math.Cos(angle), area.Lon + radius*math.Sin(angle)
}

func (g *Generator) separated(hubs []*network.Node, lat, lon float64) bool {
	for _, h := range hubs {
		d := math.Sqrt((h.Lat-lat)*(h.Lat-lat) + (h.Lon-lon)*(h.Lon-lon))
		if d < minHubSeparation {
			return false
		}
	}
	return true
}

func (g *Generator) placeCustomers(n *network.Network, total int) ([]*network.Node, map[string][]string) {
	totalWeight := 0.0
	for _, a := range g.region.Areas {
		totalWeight += a.Weight
	}

	counts := make([]int, len(g.region.Areas))
	assigned := 0
	for i, a := range g.region.Areas {
		counts[i] = int(float64(total) * a.Weight / totalWeight)
		assigned += counts[i]
	}
	// Rounding remainder goes to the densest area.
	densest := 0
	for i, a := range g.region.Areas {
		if a.Weight > g.region.Areas[densest].Weight {
			densest = i
		}
	}
	counts[densest] += total - assigned

	var customers []*network.Node
	byZone := make(map[string][]string)
	id := 1
	for i, area := range g.region.Areas {
		for j := 0; j < counts[i]; j++ {
			lat, lon := g.scatter(area)
			demand := []int{1, 1, 2, 2, 3, 4, 5}[g.rng.Intn(7)]
			cid := fmt.Sprintf("CLI_%04d", id)
			node := network.Node{ID: cid, Kind: network.KindCustomer, Lat: lat, Lon: lon, Demand: demand}
			if err := n.AddNode(node); err != nil {
				continue
			}
			stored, _ := n.Node(cid)
			customers = append(customers, stored)
			byZone[area.ZoneID] = append(byZone[area.ZoneID], cid)
			id++
		}
	}
	return customers, byZone
}

func (g *Generator) connect(n *network.Network, hubs, customers []*network.Node, p Params) error {
	edgeID := 0
	nextEdge := func() string {
		edgeID++
		return fmt.Sprintf("RT_%04d", edgeID)
	}

	// Hub served-demand accumulates as customers attach; depot and
	// cross-hub capacities derive from it afterwards.
	served := make(map[string]int)

	// Each customer attaches to its nearest hub, then hubs extend to
	// additional near customers up to the fan-out limit.
	inbound := make(map[string]int)
	for _, c := range customers {
		h := nearestHub(hubs, c.Lat, c.Lon)
		if h == nil {
			continue
		}
		if err := g.addRoute(n, nextEdge(), h, c, capacityForDemand(c.Demand, p.SafetyMargin)); err != nil {
			return err
		}
		served[h.ID] += c.Demand
		inbound[c.ID]++
	}
	for _, h := range hubs {
		near := nearestCustomers(customers, h.Lat, h.Lon, p.FanoutLimit)
		for _, c := range near {
			if n.HasEdgeBetween(h.ID, c.ID) {
				continue
			}
			if err := g.addRoute(n, nextEdge(), h, c, capacityForDemand(c.Demand, p.SafetyMargin)); err != nil {
				return err
			}
			served[h.ID] += c.Demand
			inbound[c.ID]++
		}
	}

	// Depots connect to every hub so depot reachability holds by
	// construction; capacity covers the hub's served demand.
	for _, d := range n.NodesOfKind(network.KindDepot) {
		for _, h := range hubs {
			cap := capacityForDemand(served[h.ID], p.SafetyMargin)
			if cap < 1 {
				cap = 1
			}
			if err := g.addRoute(n, nextEdge(), d, h, cap); err != nil {
				return err
			}
		}
	}

	// Redundant cross-hub links: each hub pairs bidirectionally with
	// its two nearest peers so no hub is a single point of failure.
	linked := make(map[string]bool)
	for _, h := range hubs {
		peers := nearestHubs(hubs, h, 2)
		for _, peer := range peers {
			key := h.ID + "|" + peer.ID
			rkey := peer.ID + "|" + h.ID
			if linked[key] || linked[rkey] {
				continue
			}
			linked[key] = true
			cap := capacityForDemand(minInt(served[h.ID], served[peer.ID]), p.SafetyMargin)
			if cap < 1 {
				cap = 1
			}
			if err := g.addRoute(n, nextEdge(), h, peer, cap); err != nil {
				return err
			}
			if err := g.addRoute(n, nextEdge(), peer, h, cap); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Generator) addRoute(n *network.Network, id string, from, to *network.Node, cap int) error {
	dist := geo.HaversineKM(from.Lat, from.Lon, to.Lat, to.Lon)
	travel := dist / baseSpeedKMH * 60
	if travel < 0.5 {
		travel = 0.5
	}
	return n.AddEdge(network.Edge{
		ID:            id,
		From:          from.ID,
		To:            to.ID,
		Capacity:      cap,
		DistanceKM:    dist,
		TravelTimeMin: travel,
	})
}

func (g *Generator) repair(n *network.Network, hubs []*network.Node, unreachable []string, margin float64) error {
	for i, cid := range unreachable {
		c, ok := n.Node(cid)
		if !ok {
			continue
		}
		h := nearestHub(hubs, c.Lat, c.Lon)
		if h == nil {
			return &GenerationError{Detail: "no hubs available for repair"}
		}
		id := fmt.Sprintf("FIX_%s_%02d", cid, i)
		if err := g.addRoute(n, id, h, c, capacityForDemand(c.Demand, margin)); err != nil {
			return err
		}
	}
	return nil
}

// sizeDepots records each depot's outbound capacity on the node so the
// flow analyzer can bound the source side.
func (g *Generator) sizeDepots(n *network.Network) {
	for _, d := range n.NodesOfKind(network.KindDepot) {
		total := 0
		for _, e := range n.Query(d.ID) {
			total += e.Capacity
		}
		d.Capacity = total
	}
}

func (g *Generator) buildFleet(n *network.Network, customers []*network.Node, fleetSize int) error {
	totalDemand := 0
	for _, c := range customers {
		totalDemand += c.Demand
	}
	const avgVehicleCapacity = 10
	count := fleetSize
	if count <= 0 {
		count = (totalDemand + avgVehicleCapacity - 1) / avgVehicleCapacity
		if count < 2 {
			count = 2
		}
	}

	depots := n.NodesOfKind(network.KindDepot)
	targets := make([][]string, count)
	for i, c := range customers {
		targets[i%count] = append(targets[i%count], c.ID)
	}

	for i := 0; i < count; i++ {
		class, cap, speed := g.drawVehicleClass()
		v := network.Vehicle{
			ID:        fmt.Sprintf("VEH_%03d", i+1),
			Class:     class,
			Capacity:  cap,
			SpeedKMH:  speed,
			HomeDepot: depots[i%len(depots)].ID,
			State:     workflow.VehicleStateIdle,
			Targets:   targets[i],
		}
		if err := n.AddVehicle(v); err != nil {
			return err
		}
	}
	return nil
}

// drawVehicleClass samples the fleet mix: mostly motos, few trucks.
func (g *Generator) drawVehicleClass() (string, int, float64) {
	r := g.rng.Intn(100)
	switch {
	case r < 50:
		return network.ClassMoto, 3 + g.rng.Intn(6), 25 + g.rng.Float64()*10
	case r < 80:
		return network.ClassCar, 8 + g.rng.Intn(8), 20 + g.rng.Float64()*10
	case r < 95:
		return network.ClassVan, 15 + g.rng.Intn(11), 18 + g.rng.Float64()*7
	default:
		return network.ClassTruck, 25 + g.rng.Intn(16), 15 + g.rng.Float64()*5
	}
}

func capacityForDemand(demand int, margin float64) int {
	cap := int(math.Ceil(float64(demand) * margin))
	if cap < 1 {
		cap = 1
	}
	return cap
}

func nearestHub(hubs []*network.Node, lat, lon float64) *network.Node {
	var best *network.Node
	bestDist := math.Inf(1)
	for _, h := range hubs {
		d := geo.HaversineKM(h.Lat, h.Lon, lat, lon)
		if d < bestDist {
			best = h
			bestDist = d
		}
	}
	return best
}

func nearestHubs(hubs []*network.Node, from *network.Node, k int) []*network.Node {
	type cand struct {
		hub  *network.Node
		dist float64
	}
	var cands []cand
	for _, h := range hubs {
		if h.ID == from.ID {
			continue
		}
		cands = append(cands, cand{hub: h, dist: geo.HaversineKM(h.Lat, h.Lon, from.Lat, from.Lon)})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]*network.Node, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.hub)
	}
	return out
}

func nearestCustomers(customers []*network.Node, lat, lon float64, k int) []*network.Node {
	type cand struct {
		node *network.Node
		dist float64
	}
	var cands []cand
	for _, c := range customers {
		cands = append(cands, cand{node: c, dist: geo.HaversineKM(c.Lat, c.Lon, lat, lon)})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]*network.Node, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.node)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
