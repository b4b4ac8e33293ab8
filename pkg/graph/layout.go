package graph

import (
	"math"
	"math/rand"
)

// Layout parameters for the conversation view.
const (
	Charge       = -350.0
	LinkDistance = 100.0
	Friction     = 0.5
	Gravity      = 0.1
	LinkStrength = 1.0

	startAlpha = 0.1
	alphaDecay = 0.99
	minAlpha   = 0.005
)

// Layout is a verlet force simulation: links pull endpoints toward
// LinkDistance, nodes repel each other with Charge, and Gravity drags
// everything toward the center. It cools geometrically and stops once
// alpha drops below minAlpha.
type Layout struct {
	Width, Height float64

	nodes []*Node
	links []*Link
	alpha float64
	rng   *rand.Rand
}

// NewLayout creates a stopped layout of the given size.
func NewLayout(width, height float64, seed int64) *Layout {
	return &Layout{
		Width:  width,
		Height: height,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Start (re)heats the simulation over nodes and links. Nodes that have
// never been placed start next to a placed neighbor, or anywhere in the
// area if they have none; placed nodes keep their positions.
func (l *Layout) Start(nodes []*Node, links []*Link) {
	l.nodes = nodes
	l.links = links

	for _, n := range nodes {
		n.weight = 0
	}
	for _, link := range links {
		link.Source.weight++
		link.Target.weight++
	}

	for _, n := range nodes {
		if n.placed {
			continue
		}
		n.X, n.Y = l.initialPosition(n)
		n.px, n.py = n.X, n.Y
		n.placed = true
	}

	l.alpha = startAlpha
}

func (l *Layout) initialPosition(n *Node) (float64, float64) {
	for _, link := range n.Links {
		other := link.Target
		if other == n {
			other = link.Source
		}
		if other.placed {
			return other.X, other.Y
		}
	}
	return l.rng.Float64() * l.Width, l.rng.Float64() * l.Height
}

// Running reports whether the simulation still has energy.
func (l *Layout) Running() bool {
	return l.alpha > 0
}

// Stop freezes nodes where they are.
func (l *Layout) Stop() {
	l.alpha = 0
}

// Tick advances the simulation one step and returns false once it has
// cooled down.
func (l *Layout) Tick() bool {
	if l.alpha == 0 {
		return false
	}
	l.alpha *= alphaDecay
	if l.alpha < minAlpha {
		l.alpha = 0
		return false
	}

	// Links: move both ends toward the rest distance, heavier ends less
	for _, link := range l.links {
		s, t := link.Source, link.Target
		x, y := t.X-s.X, t.Y-s.Y
		d2 := x*x + y*y
		if d2 == 0 {
			continue
		}
		d := math.Sqrt(d2)
		k := l.alpha * LinkStrength * (d - LinkDistance) / d
		x *= k
		y *= k
		share := s.weight / (s.weight + t.weight)
		t.X -= x * share
		t.Y -= y * share
		s.X += x * (1 - share)
		s.Y += y * (1 - share)
	}

	// Gravity
	if k := l.alpha * Gravity; k != 0 {
		cx, cy := l.Width/2, l.Height/2
		for _, n := range l.nodes {
			n.X += (cx - n.X) * k
			n.Y += (cy - n.Y) * k
		}
	}

	// Charge acts on the previous position so it shows up as velocity
	for i, a := range l.nodes {
		for _, b := range l.nodes[i+1:] {
			dx, dy := b.X-a.X, b.Y-a.Y
			d2 := dx*dx + dy*dy
			if d2 == 0 {
				// Coincident nodes: nudge apart in a random direction
				dx, dy = l.rng.Float64()-0.5, l.rng.Float64()-0.5
				d2 = dx*dx + dy*dy
			}
			k := l.alpha * Charge / d2
			a.px -= dx * k
			a.py -= dy * k
			b.px += dx * k
			b.py += dy * k
		}
	}

	// Verlet integration with friction
	for _, n := range l.nodes {
		vx, vy := (n.X-n.px)*Friction, (n.Y-n.py)*Friction
		n.px, n.py = n.X, n.Y
		n.X += vx
		n.Y += vy
	}

	return true
}

// Run ticks until the simulation cools or maxTicks is reached and returns
// the number of ticks taken.
func (l *Layout) Run(maxTicks int) int {
	ticks := 0
	for ticks < maxTicks && l.Tick() {
		ticks++
	}
	return ticks
}
