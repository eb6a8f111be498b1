package movement

import (
	"container/heap"
	"math"

	"delivery-network-engine/internal/network"
)

// findPath runs Dijkstra over travel time from start to goal,
// restricted to edges with at least one free capacity slot.
func (e *Engine) findPath(vehicleID, start, goal string) (*plan, error) {
	edges := e.dijkstra(start, goal)
	if edges == nil {
		return nil, &PathNotFoundError{VehicleID: vehicleID, TargetID: goal}
	}
	return &plan{edges: edges}, nil
}

// pathToNearestDepot picks the depot with the lowest travel time from
// start, ties broken by depot id.
func (e *Engine) pathToNearestDepot(start string) *plan {
	var best []*network.Edge
	bestCost := math.Inf(1)
	bestID := ""
	for _, d := range e.net.NodesOfKind(network.KindDepot) {
		edges := e.dijkstra(start, d.ID)
		if edges == nil {
			continue
		}
		cost := 0.0
		for _, edge := range edges {
			cost += edge.TravelTimeMin
		}
		if cost < bestCost || (cost == bestCost && d.ID < bestID) {
			best = edges
			bestCost = cost
			bestID = d.ID
		}
	}
	if best == nil {
		return nil
	}
	return &plan{edges: best}
}

func (e *Engine) usable(edge *network.Edge) bool {
	return e.edgeLoad[edge.ID] < edge.Capacity
}

func (e *Engine) dijkstra(start, goal string) []*network.Edge {
	if start == goal {
		return nil
	}
	dist := map[string]float64{start: 0}
	prev := make(map[string]*network.Edge)
	visited := make(map[string]bool)

	pq := &pathQueue{}
	heap.Init(pq)
	heap.Push(pq, &pathItem{node: start, cost: 0})

	for pq.Len() > 0 {
		it := heap.Pop(pq).(*pathItem)
		if visited[it.node] {
			continue
		}
		visited[it.node] = true
		if it.node == goal {
			break
		}
		for _, edge := range e.net.Query(it.node) {
			if !e.usable(edge) {
				continue
			}
			alt := dist[it.node] + edge.TravelTimeMin
			cur, seen := dist[edge.To]
			if !seen || alt < cur {
				dist[edge.To] = alt
				prev[edge.To] = edge
				heap.Push(pq, &pathItem{node: edge.To, cost: alt})
			}
		}
	}

	if !visited[goal] {
		return nil
	}
	var path []*network.Edge
	for at := goal; at != start; {
		edge := prev[at]
		path = append([]*network.Edge{edge}, path...)
		at = edge.From
	}
	return path
}

type pathItem struct {
	node string
	cost float64
}

type pathQueue []*pathItem

func (pq pathQueue) Len() int { return len(pq) }
func (pq pathQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].node < pq[j].node
}
func (pq pathQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *pathQueue) Push(x any)   { *pq = append(*pq, x.(*pathItem)) }
func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	*pq = old[:n-1]
	return it
}
