package graph

// Event names a pointer interaction forwarded by the renderer.
type Event string

const (
	MouseOver Event = "mouseover"
	MouseOut  Event = "mouseout"
)

// OnNode installs fn for event on every node, replacing any previous
// handler. Nodes added later get it too.
func (g *Graph) OnNode(event Event, fn func(*Node)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodeHandlers[event] = fn
}

// OnLink installs fn for event on every link.
func (g *Graph) OnLink(event Event, fn func(*Link)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.linkHandlers[event] = fn
}

// EmitNode dispatches event for the visible node at address. It reports
// whether a handler ran.
func (g *Graph) EmitNode(event Event, address string) bool {
	g.mu.Lock()
	fn := g.nodeHandlers[event]
	n, ok := g.byAddress[address]
	visible := ok && n.Bytes > 0
	g.mu.Unlock()

	if fn == nil || !visible {
		return false
	}
	fn(n)
	return true
}

// EmitLink dispatches event for the link with id.
func (g *Graph) EmitLink(event Event, id int) bool {
	g.mu.Lock()
	fn := g.linkHandlers[event]
	var l *Link
	if id >= 0 && id < len(g.links) {
		l = g.links[id]
	}
	g.mu.Unlock()

	if fn == nil || l == nil {
		return false
	}
	fn(l)
	return true
}
