package graph

import (
	"sync"

	"github.com/nicktill/toptalkers/pkg/aggregate"
)

const (
	legendWidth = 62
	padding     = 5

	// Ticks allowed per Settle; the layout cools in about 300.
	maxSettleTicks = 1000
)

// Node is one address in the view. Bytes is the traffic it took part in,
// as client or server, across the current batch.
type Node struct {
	Address string
	Bytes   int64
	Links   []*Link

	X, Y   float64
	px, py float64
	weight float64
	placed bool
}

// Link joins two nodes that talked in either direction. ID is its creation
// order since the last Reset.
type Link struct {
	ID     int
	Source *Node
	Target *Node
	Bytes  int64
}

// Name is "source - target", with the endpoints in creation order.
func (l *Link) Name() string {
	return l.Source.Address + " - " + l.Target.Address
}

type pair struct{ a, b string }

func pairOf(x, y string) pair {
	if x > y {
		x, y = y, x
	}
	return pair{x, y}
}

// Graph is the conversation model. Node identity and position survive
// Reset so consecutive queries keep a stable picture.
type Graph struct {
	mu sync.Mutex

	width, height float64
	nodes         []*Node
	byAddress     map[string]*Node
	links         []*Link
	byPair        map[pair]*Link
	layout        *Layout

	nodeHandlers map[Event]func(*Node)
	linkHandlers map[Event]func(*Link)
}

// New creates an empty graph drawn in a width x height area, of which the
// right-hand legend column is not available to the layout.
func New(width, height float64) *Graph {
	visw := width - legendWidth
	return &Graph{
		width:        visw,
		height:       height,
		byAddress:    make(map[string]*Node),
		byPair:       make(map[pair]*Link),
		layout:       NewLayout(visw, height, 1),
		nodeHandlers: make(map[Event]func(*Node)),
		linkHandlers: make(map[Event]func(*Link)),
	}
}

// Update folds a batch of conversations into the graph and restarts the
// layout. A->B and B->A land on the same link.
func (g *Graph) Update(conversations []aggregate.Conversation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range conversations {
		g.node(c.ClientAddress)
		g.node(c.ServerAddress)
	}

	for _, c := range conversations {
		source := g.byAddress[c.ClientAddress]
		target := g.byAddress[c.ServerAddress]

		key := pairOf(c.ClientAddress, c.ServerAddress)
		link, ok := g.byPair[key]
		if !ok {
			link = &Link{ID: len(g.links), Source: source, Target: target}
			g.links = append(g.links, link)
			g.byPair[key] = link
			source.Links = append(source.Links, link)
			if target != source {
				target.Links = append(target.Links, link)
			}
		}

		link.Bytes += c.Bytes
		source.Bytes += c.Bytes
		target.Bytes += c.Bytes
	}

	g.layout.Start(g.visibleLocked(), g.activeLinksLocked())
}

func (g *Graph) activeLinksLocked() []*Link {
	var out []*Link
	for _, l := range g.links {
		if l.Bytes > 0 {
			out = append(out, l)
		}
	}
	return out
}

func (g *Graph) node(address string) *Node {
	n, ok := g.byAddress[address]
	if !ok {
		n = &Node{Address: address}
		g.byAddress[address] = n
		g.nodes = append(g.nodes, n)
	}
	return n
}

// Reset zeroes every node and drops all links. Nodes stay indexed with
// their positions.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range g.nodes {
		n.Bytes = 0
		n.Links = nil
	}
	g.links = nil
	g.byPair = make(map[pair]*Link)
	g.layout.Stop()
}

// Visible returns the nodes with traffic in the current batch.
func (g *Graph) Visible() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visibleLocked()
}

func (g *Graph) visibleLocked() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Bytes > 0 {
			out = append(out, n)
		}
	}
	return out
}

// Links returns the current links in creation order.
func (g *Graph) Links() []*Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Link(nil), g.links...)
}

// Len returns the number of indexed nodes, hidden ones included.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Node looks up an indexed node.
func (g *Graph) Node(address string) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.byAddress[address]
	return n, ok
}

// Tick advances the layout one step; false once it has settled.
func (g *Graph) Tick() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.layout.Tick()
}

// Settle runs the layout until it cools.
func (g *Graph) Settle() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.layout.Run(maxSettleTicks)
}

// Transform maps layout coordinates into the drawing area.
type Transform struct {
	x, y Linear
}

func (t Transform) X(x float64) float64 { return t.x.At(x) }
func (t Transform) Y(y float64) float64 { return t.y.At(y) }

// Transform fits the extent of the visible nodes into the drawing area
// less padding. Overlays such as tooltips use it to find a node on screen.
func (g *Graph) Transform() Transform {
	g.mu.Lock()
	defer g.mu.Unlock()

	visible := g.visibleLocked()
	xs := make([]float64, len(visible))
	ys := make([]float64, len(visible))
	for i, n := range visible {
		xs[i], ys[i] = n.X, n.Y
	}
	x0, x1 := extent(xs)
	y0, y1 := extent(ys)
	return Transform{
		x: Linear{D0: x0, D1: x1, R0: padding, R1: g.width - padding},
		y: Linear{D0: y0, D1: y1, R0: padding, R1: g.height - padding},
	}
}
