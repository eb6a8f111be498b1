package flow

import (
	"sort"

	"delivery-network-engine/internal/network"
)

const (
	superSource = "__source__"
	superSink   = "__sink__"
)

// Result holds a max-flow solution. EdgeFlows maps network edge ids to
// the flow routed over them; Paths records the augmenting paths in the
// order they were found.
type Result struct {
	Value     int
	EdgeFlows map[string]int
	Paths     [][]string
}

type arc struct {
	from, to string
	cap      int
	flow     int
	edgeID   string
	rev      *arc
}

type solver struct {
	adj   map[string][]*arc
	value int
	paths [][]string
}

// MaxFlow computes the maximum simultaneous flow from the combined depot
// super-source to the combined customer super-sink with Edmonds-Karp.
// Augmenting-path ties are broken by ascending neighbor node id, so the
// solution is deterministic for a given network. A network with zero
// depots or zero customers yields a flow of zero.
func MaxFlow(n *network.Network) Result {
	s := solve(n)
	res := Result{Value: s.value, EdgeFlows: make(map[string]int), Paths: s.paths}
	for _, arcs := range s.adj {
		for _, a := range arcs {
			if a.edgeID != "" && a.cap > 0 && a.flow > 0 {
				res.EdgeFlows[a.edgeID] = a.flow
			}
		}
	}
	return res
}

// Bottlenecks returns the ids of min-cut edges: saturated network edges
// crossing from the residual-reachable side of the super-source to its
// complement. These are the binding capacity constraints.
func Bottlenecks(n *network.Network) []string {
	s := solve(n)
	reachable := s.residualReachable()

	var out []string
	for _, arcs := range s.adj {
		for _, a := range arcs {
			if a.edgeID == "" || a.cap == 0 {
				continue
			}
			if reachable[a.from] && !reachable[a.to] && a.flow == a.cap {
				out = append(out, a.edgeID)
			}
		}
	}
	sort.Strings(out)
	return out
}

// DemandCoverage reports, per customer id, whether the max-flow solution
// satisfies that customer's full demand simultaneously with all others.
func DemandCoverage(n *network.Network) map[string]bool {
	s := solve(n)
	covered := make(map[string]bool)
	for _, node := range n.NodesOfKind(network.KindCustomer) {
		covered[node.ID] = true
		if node.Demand == 0 {
			continue
		}
		got := 0
		for _, a := range s.adj[node.ID] {
			if a.to == superSink && a.cap > 0 {
				got += a.flow
			}
		}
		covered[node.ID] = got >= node.Demand
	}
	return covered
}

func solve(n *network.Network) *solver {
	s := &solver{adj: make(map[string][]*arc)}

	depots := n.NodesOfKind(network.KindDepot)
	customers := n.NodesOfKind(network.KindCustomer)
	if len(depots) == 0 || len(customers) == 0 {
		return s
	}

	for _, e := range n.Edges() {
		s.addArc(e.From, e.To, e.Capacity, e.ID)
	}
	for _, d := range depots {
		cap := d.Capacity
		if cap == 0 {
			for _, e := range n.Query(d.ID) {
				cap += e.Capacity
			}
		}
		s.addArc(superSource, d.ID, cap, "")
	}
	for _, c := range customers {
		s.addArc(c.ID, superSink, c.Demand, "")
	}
	s.sortAdjacency()

	for {
		path := s.shortestAugmentingPath()
		if path == nil {
			break
		}
		bottleneck := path[0].cap - path[0].flow
		nodes := []string{path[0].from}
		for _, a := range path {
			if r := a.cap - a.flow; r < bottleneck {
				bottleneck = r
			}
			nodes = append(nodes, a.to)
		}
		for _, a := range path {
			a.flow += bottleneck
			a.rev.flow -= bottleneck
		}
		s.value += bottleneck
		s.paths = append(s.paths, nodes)
	}
	return s
}

func (s *solver) addArc(from, to string, cap int, edgeID string) {
	fwd := &arc{from: from, to: to, cap: cap, edgeID: edgeID}
	bwd := &arc{from: to, to: from, cap: 0, edgeID: edgeID}
	fwd.rev = bwd
	bwd.rev = fwd
	s.adj[from] = append(s.adj[from], fwd)
	s.adj[to] = append(s.adj[to], bwd)
}

func (s *solver) sortAdjacency() {
	for _, arcs := range s.adj {
		sort.SliceStable(arcs, func(i, j int) bool {
			if arcs[i].to != arcs[j].to {
				return arcs[i].to < arcs[j].to
			}
			return arcs[i].edgeID < arcs[j].edgeID
		})
	}
}

// shortestAugmentingPath runs a BFS over residual arcs and returns the
// arcs of a shortest source-to-sink path, or nil when none remains.
func (s *solver) shortestAugmentingPath() []*arc {
	parent := make(map[string]*arc)
	visited := map[string]bool{superSource: true}
	queue := []string{superSource}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range s.adj[cur] {
			if visited[a.to] || a.cap-a.flow <= 0 {
				continue
			}
			visited[a.to] = true
			parent[a.to] = a
			if a.to == superSink {
				var path []*arc
				for at := superSink; at != superSource; {
					pa := parent[at]
					path = append([]*arc{pa}, path...)
					at = pa.from
				}
				return path
			}
			queue = append(queue, a.to)
		}
	}
	return nil
}

func (s *solver) residualReachable() map[string]bool {
	reachable := map[string]bool{superSource: true}
	queue := []string{superSource}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range s.adj[cur] {
			if !reachable[a.to] && a.cap-a.flow > 0 {
				reachable[a.to] = true
				queue = append(queue, a.to)
			}
		}
	}
	return reachable
}
