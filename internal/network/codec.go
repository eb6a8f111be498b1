package network

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is the wire/storage form of a Network. Replaying it through
// the Add* methods reproduces the graph with validation applied.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	Zones     []Zone    `json:"zones"`
	Vehicles  []Vehicle `json:"vehicles"`
}

func (n *Network) Export() Document {
	doc := Document{
		ID:        n.ID,
		Name:      n.Name,
		CreatedAt: n.CreatedAt,
		Nodes:     make([]Node, 0, len(n.nodes)),
		Edges:     make([]Edge, 0, len(n.edges)),
		Zones:     make([]Zone, 0, len(n.zones)),
		Vehicles:  make([]Vehicle, 0, len(n.vehicles)),
	}
	for _, node := range n.nodes {
		doc.Nodes = append(doc.Nodes, *node)
	}
	for _, e := range n.edges {
		doc.Edges = append(doc.Edges, *e)
	}
	for _, z := range n.zones {
		zc := *z
		zc.CustomerIDs = append([]string(nil), z.CustomerIDs...)
		doc.Zones = append(doc.Zones, zc)
	}
	for _, v := range n.vehicles {
		vc := *v
		vc.Targets = append([]string(nil), v.Targets...)
		doc.Vehicles = append(doc.Vehicles, vc)
	}
	return doc
}

func FromDocument(doc Document) (*Network, error) {
	n := New(doc.Name)
	if doc.ID != uuid.Nil {
		n.ID = doc.ID
	}
	if !doc.CreatedAt.IsZero() {
		n.CreatedAt = doc.CreatedAt
	}
	for _, node := range doc.Nodes {
		if err := n.AddNode(node); err != nil {
			return nil, fmt.Errorf("import node %q: %w", node.ID, err)
		}
	}
	for _, e := range doc.Edges {
		if err := n.AddEdge(e); err != nil {
			return nil, fmt.Errorf("import edge %q: %w", e.ID, err)
		}
	}
	for _, z := range doc.Zones {
		if err := n.AddZone(z); err != nil {
			return nil, fmt.Errorf("import zone %q: %w", z.ID, err)
		}
	}
	for _, v := range doc.Vehicles {
		if err := n.AddVehicle(v); err != nil {
			return nil, fmt.Errorf("import vehicle %q: %w", v.ID, err)
		}
	}
	return n, nil
}
