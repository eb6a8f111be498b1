package movement

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"delivery-network-engine/internal/broadcast"
	"delivery-network-engine/internal/geo"
	"delivery-network-engine/internal/network"
	"delivery-network-engine/shared/workflow"
)

// PathNotFoundError records a delivery miss: the vehicle could not
// reach its target under current capacities. Recovered inside the tick;
// the simulation continues.
type PathNotFoundError struct {
	VehicleID string
	TargetID  string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("vehicle %s: no feasible path to %s", e.VehicleID, e.TargetID)
}

type Config struct {
	TickInterval  time.Duration
	DwellTicks    int
	SnapshotEvery int
	TrafficMin    float64
	TrafficMax    float64
}

// simMinutesPerTick is the simulated time advanced by one tick. Edge
// travel times are in minutes, so progress per tick follows directly.
const simMinutesPerTick = 1.0

const baseSpeedKMH = 25.0

type plan struct {
	edges []*network.Edge
	idx   int
}

// Engine advances one network's vehicles per discrete tick. All vehicle
// mutation is confined to the engine: callers interact through Start,
// Stop, Reset and Stats only.
type Engine struct {
	net *network.Network
	cfg Config
	rng *rand.Rand
	hub *broadcast.Hub

	// Optional hooks, set before Start. Called inside the tick with
	// the engine lock held; they must not call back into the engine.
	OnDelivery   func(vehicleID, customerID string, units int)
	OnMiss       func(vehicleID, targetID string)
	OnSnapshot   func(broadcast.Snapshot, int)
	OnTransition func(vehicleID, eventType string)

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	tick      uint64
	delivered int
	misses    int
	edgeLoad  map[string]int
	plans     map[string]*plan
	dwell     map[string]int
	location  map[string]string
	initial   map[string][]string
	order     []*network.Vehicle
}

func NewEngine(net *network.Network, cfg Config, rng *rand.Rand, hub *broadcast.Hub) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 1
	}
	if cfg.TrafficMin <= 0 {
		cfg.TrafficMin = 0.6
	}
	if cfg.TrafficMax < cfg.TrafficMin {
		cfg.TrafficMax = 1.1
	}
	if cfg.DwellTicks < 0 {
		cfg.DwellTicks = 0
	}

	e := &Engine{
		net:      net,
		cfg:      cfg,
		rng:      rng,
		hub:      hub,
		edgeLoad: make(map[string]int),
		plans:    make(map[string]*plan),
		dwell:    make(map[string]int),
		location: make(map[string]string),
		initial:  make(map[string][]string),
	}
	e.order = append(e.order, net.Vehicles()...)
	sort.SliceStable(e.order, func(i, j int) bool { return e.order[i].ID < e.order[j].ID })
	for _, v := range e.order {
		e.location[v.ID] = v.HomeDepot
		e.initial[v.ID] = append([]string(nil), v.Targets...)
	}
	return e
}

// Start launches the tick loop. It is a no-op when already running.
// Stopping finishes the in-flight tick and freezes all vehicle state;
// the simulation is resumable with another Start.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Step()
			}
		}
	}(e.done)
}

// Stop halts tick scheduling and waits for the in-flight tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Step advances the simulation by exactly one tick. Vehicles are
// processed in ascending id order so runs reproduce under a fixed seed.
func (e *Engine) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick++
	for _, v := range e.order {
		switch v.State {
		case workflow.VehicleStateIdle:
			e.stepIdle(v)
		case workflow.VehicleStateEnRoute:
			e.stepMoving(v, false)
		case workflow.VehicleStateDelivering:
			e.stepDelivering(v)
		case workflow.VehicleStateReturning:
			e.stepMoving(v, true)
		}
	}

	if e.tick%uint64(e.cfg.SnapshotEvery) == 0 {
		snap := e.snapshotLocked()
		dropped := 0
		if e.hub != nil {
			dropped = e.hub.Publish(snap)
		}
		if e.OnSnapshot != nil {
			e.OnSnapshot(snap, dropped)
		}
	}
}

func (e *Engine) stepIdle(v *network.Vehicle) {
	for len(v.Targets) > 0 {
		target := v.Targets[0]
		p, err := e.findPath(v.ID, e.location[v.ID], target)
		if err != nil {
			// Miss: the target is skipped permanently and counted
			// exactly once for this assignment attempt.
			v.Targets = v.Targets[1:]
			e.misses++
			if e.OnMiss != nil {
				e.OnMiss(v.ID, target)
			}
			continue
		}
		e.transition(v, workflow.VehicleStateEnRoute)
		e.plans[v.ID] = p
		e.enterEdge(v, p.edges[0])
		return
	}
}

func (e *Engine) stepMoving(v *network.Vehicle, returning bool) {
	p := e.plans[v.ID]
	if p == nil || v.EdgeID == "" {
		if returning {
			// Return path was unavailable earlier; retry now that
			// edge slots may have freed.
			if np := e.pathToNearestDepot(e.location[v.ID]); np != nil {
				e.plans[v.ID] = np
				e.enterEdge(v, np.edges[0])
			}
		}
		return
	}
	cur := p.edges[p.idx]

	traffic := e.cfg.TrafficMin + e.rng.Float64()*(e.cfg.TrafficMax-e.cfg.TrafficMin)
	speedRatio := v.SpeedKMH / baseSpeedKMH
	v.Progress += speedRatio * traffic * simMinutesPerTick / cur.TravelTimeMin

	if v.Progress < 1 {
		return
	}

	if p.idx == len(p.edges)-1 {
		// Arrived at the path's final node.
		e.releaseEdge(cur)
		e.location[v.ID] = cur.To
		v.EdgeID = ""
		v.Progress = 0
		delete(e.plans, v.ID)
		if returning {
			e.transition(v, workflow.VehicleStateIdle)
		} else {
			e.transition(v, workflow.VehicleStateDelivering)
			e.dwell[v.ID] = e.cfg.DwellTicks
		}
		return
	}

	next := p.edges[p.idx+1]
	if e.edgeLoad[next.ID] >= next.Capacity {
		// Backpressure: hold on the current edge until a slot frees.
		v.Progress = 1
		return
	}
	e.releaseEdge(cur)
	p.idx++
	e.enterEdge(v, next)
}

func (e *Engine) stepDelivering(v *network.Vehicle) {
	if e.dwell[v.ID] > 0 {
		e.dwell[v.ID]--
		return
	}

	customerID := e.location[v.ID]
	if node, ok := e.net.Node(customerID); ok && node.Kind == network.KindCustomer {
		e.delivered += node.Demand
		v.Delivered++
		if e.OnDelivery != nil {
			e.OnDelivery(v.ID, customerID, node.Demand)
		}
	}
	if len(v.Targets) > 0 && v.Targets[0] == customerID {
		v.Targets = v.Targets[1:]
	}

	for len(v.Targets) > 0 {
		target := v.Targets[0]
		p, err := e.findPath(v.ID, customerID, target)
		if err != nil {
			v.Targets = v.Targets[1:]
			e.misses++
			if e.OnMiss != nil {
				e.OnMiss(v.ID, target)
			}
			continue
		}
		e.transition(v, workflow.VehicleStateEnRoute)
		e.plans[v.ID] = p
		e.enterEdge(v, p.edges[0])
		return
	}

	e.transition(v, workflow.VehicleStateReturning)
	if p := e.pathToNearestDepot(customerID); p != nil {
		e.plans[v.ID] = p
		e.enterEdge(v, p.edges[0])
	}
	// With no path back yet the vehicle waits at the customer and
	// retries next tick.
}

func (e *Engine) enterEdge(v *network.Vehicle, edge *network.Edge) {
	e.edgeLoad[edge.ID]++
	v.EdgeID = edge.ID
	v.Progress = 0
}

func (e *Engine) releaseEdge(edge *network.Edge) {
	if e.edgeLoad[edge.ID] > 0 {
		e.edgeLoad[edge.ID]--
	}
}

func (e *Engine) transition(v *network.Vehicle, to string) {
	if !workflow.CanTransition(v.State, to) {
		return
	}
	if e.OnTransition != nil {
		if ev := workflow.EventTypeForTransition(v.State, to); ev != "" {
			e.OnTransition(v.ID, ev)
		}
	}
	v.State = to
}

// Reset returns every vehicle to Idle at its home depot with its
// original target list, and zeroes delivery counters. Graph structure
// is untouched. The engine must be stopped first.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick = 0
	e.delivered = 0
	e.misses = 0
	e.edgeLoad = make(map[string]int)
	e.plans = make(map[string]*plan)
	e.dwell = make(map[string]int)
	for _, v := range e.order {
		v.State = workflow.VehicleStateIdle
		v.EdgeID = ""
		v.Progress = 0
		v.Delivered = 0
		v.Targets = append([]string(nil), e.initial[v.ID]...)
		e.location[v.ID] = v.HomeDepot
	}
}

func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// ExportNetwork builds the network's document under the engine lock.
// Vehicle state is mutated only inside the tick, so exporting a running
// network must go through here rather than Network.Export directly.
func (e *Engine) ExportNetwork() network.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Export()
}

type Statistics struct {
	Tick           uint64         `json:"tick"`
	Delivered      int            `json:"delivered"`
	Pending        int            `json:"pending"`
	Misses         int            `json:"misses"`
	ActiveVehicles int            `json:"active_vehicles"`
	StateCounts    map[string]int `json:"state_counts"`
}

func (e *Engine) Stats() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked()
}

func (e *Engine) statsLocked() Statistics {
	s := Statistics{
		Tick:        e.tick,
		Delivered:   e.delivered,
		Misses:      e.misses,
		StateCounts: make(map[string]int),
	}
	for _, state := range workflow.AllVehicleStates() {
		s.StateCounts[state] = 0
	}
	for _, v := range e.order {
		s.Pending += len(v.Targets)
		s.StateCounts[v.State]++
		if v.State != workflow.VehicleStateIdle {
			s.ActiveVehicles++
		}
	}
	return s
}

func (e *Engine) snapshotLocked() broadcast.Snapshot {
	stats := e.statsLocked()
	snap := broadcast.Snapshot{
		Timestamp: time.Now().UTC(),
		NetworkID: e.net.ID,
		Tick:      e.tick,
		Stats: broadcast.Stats{
			Delivered:      stats.Delivered,
			Pending:        stats.Pending,
			Misses:         stats.Misses,
			ActiveVehicles: stats.ActiveVehicles,
		},
	}
	for _, v := range e.order {
		pos := broadcast.VehiclePosition{VehicleID: v.ID, State: v.State}
		if v.EdgeID != "" {
			if edge, ok := e.net.Edge(v.EdgeID); ok {
				from, _ := e.net.Node(edge.From)
				to, _ := e.net.Node(edge.To)
				pos.Lat, pos.Lon = geo.Interpolate(from.Lat, from.Lon, to.Lat, to.Lon, v.Progress)
			}
		} else if node, ok := e.net.Node(e.location[v.ID]); ok {
			pos.Lat, pos.Lon = node.Lat, node.Lon
		}
		snap.Vehicles = append(snap.Vehicles, pos)
	}
	var active []string
	for id, load := range e.edgeLoad {
		if load > 0 {
			active = append(active, id)
		}
	}
	sort.Strings(active)
	snap.ActiveRoutes = active
	return snap
}
