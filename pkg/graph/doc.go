// Package graph holds the conversation graph behind the network view: one
// node per address, one link per unordered address pair, and a
// force-directed layout that positions them.
//
// The model is renderer-agnostic. A UI draws Visible nodes and Links using
// the Transform, NodeRadius and LinkWidth helpers, and forwards pointer
// events through EmitNode and EmitLink.
//
// Basic usage:
//
//	g := graph.New(800, 450)
//	g.OnNode(graph.MouseOver, func(n *graph.Node) { ... })
//
//	g.Reset()
//	g.Update(conversations)
//	g.Settle()
//
//	tf := g.Transform()
//	for _, n := range g.Visible() {
//	    draw(tf.X(n.X), tf.Y(n.Y), g.NodeRadius(n))
//	}
package graph
