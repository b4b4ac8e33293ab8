package graph

import "fmt"

// Radius and stroke ranges in pixels.
const (
	minRadius    = 2
	maxRadius    = 25
	maxLinkWidth = 12
	minLinkWidth = 2
)

// Legend describes the reference circle and line drawn beside the graph.
type Legend struct {
	NodeBytes  float64
	NodeRadius float64
	NodeLabel  string
	LinkBytes  float64
	LinkWidth  float64
	LinkLabel  string
}

func (g *Graph) maxima() (node, link float64) {
	for _, n := range g.nodes {
		if b := float64(n.Bytes); b > node {
			node = b
		}
	}
	for _, l := range g.links {
		if b := float64(l.Bytes); b > link {
			link = b
		}
	}
	return node, link
}

func (g *Graph) radiusScale() Sqrt {
	node, _ := g.maxima()
	return Sqrt{Max: node, R0: minRadius, R1: maxRadius}
}

func (g *Graph) widthScale() Linear {
	_, link := g.maxima()
	return Linear{D0: 0, D1: link, R0: 0, R1: maxLinkWidth}
}

// NodeRadius sizes n by area relative to the busiest node.
func (g *Graph) NodeRadius(n *Node) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.radiusScale().At(float64(n.Bytes))
}

// LinkWidth scales l linearly against the busiest link, never thinner
// than minLinkWidth.
func (g *Graph) LinkWidth(l *Link) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return max(g.widthScale().At(float64(l.Bytes)), minLinkWidth)
}

// Legend rounds the current maxima to readable values and sizes them with
// the same scales as the graph. The legend line is not clamped.
func (g *Graph) Legend() Legend {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, link := g.maxima()
	nodeRef, linkRef := RoundBytes(node), RoundBytes(link)
	return Legend{
		NodeBytes:  nodeRef,
		NodeRadius: g.radiusScale().At(nodeRef),
		NodeLabel:  FormatBytes(nodeRef),
		LinkBytes:  linkRef,
		LinkWidth:  g.widthScale().At(linkRef),
		LinkLabel:  FormatBytes(linkRef),
	}
}

// NodeLabel is the tooltip text for a node.
func NodeLabel(n *Node) string {
	return fmt.Sprintf("%s\n%s", n.Address, FormatBytes(float64(n.Bytes)))
}

// LinkLabel is the tooltip text for a link.
func LinkLabel(l *Link) string {
	return fmt.Sprintf("%s\n%s", l.Name(), FormatBytes(float64(l.Bytes)))
}
