// Package view drives the network view: it loads the data span, keeps the
// conversation graph and the drill-down timelines in step with the user's
// selections, and fetches the data each transition needs.
package view

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/client"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/graph"
	"github.com/nicktill/toptalkers/pkg/timeline"
)

// ErrNotStarted is returned by transitions before Start has loaded the span.
var ErrNotStarted = errors.New("view not started")

// ErrNoLevel is returned for a timeline level that is not on screen.
var ErrNoLevel = errors.New("no such timeline level")

const protocolCount = 10

// Tooltip offsets so the box sits above and left of the pointer.
const (
	tipOffsetX = 90
	tipOffsetY = 86
)

// Options sizes the view and hooks up optional behavior.
type Options struct {
	Width, Height float64
	MaxHosts      int

	// Settle runs the layout to rest after each graph update, for clients
	// that don't animate.
	Settle bool

	// ShowTip and HideTip receive debounced hover tooltips; leave nil to
	// skip tooltip handling.
	ShowTip func(graph.Tip)
	HideTip func()
}

// DefaultOptions is an 800x750 view of the top 200 conversations.
var DefaultOptions = Options{
	Width:    800,
	Height:   750,
	MaxHosts: config.DefaultMaxHosts,
}

// View is the orchestrator. Transitions are serialized: a selection made
// while another is loading waits for it to finish.
type View struct {
	client  *client.Client
	fetcher *client.Fetcher
	graph   *graph.Graph
	tooltip *graph.Tooltip
	opts    Options

	// mu serializes Start, selections, dismissals and SetMaxHosts
	mu        sync.Mutex
	ctx       context.Context
	stack     *timeline.Stack
	maxHosts  int
	protocols []aggregate.Protocol
}

// New creates a view reading from c.
func New(c *client.Client, opts Options) *View {
	if opts.MaxHosts <= 0 {
		opts.MaxHosts = config.DefaultMaxHosts
	}
	v := &View{
		client:   c,
		fetcher:  client.NewFetcher(c),
		graph:    graph.New(opts.Width, math.Round(opts.Height*0.6)),
		opts:     opts,
		maxHosts: opts.MaxHosts,
	}
	if opts.ShowTip != nil && opts.HideTip != nil {
		v.tooltip = graph.NewTooltip(opts.ShowTip, opts.HideTip)
		v.wireHover()
	}
	return v
}

func (v *View) wireHover() {
	v.graph.OnNode(graph.MouseOver, func(n *graph.Node) {
		tf := v.graph.Transform()
		v.tooltip.Display(graph.Tip{
			Owner: n.Address,
			X:     math.Round(tf.X(n.X)) - tipOffsetX,
			Y:     math.Round(tf.Y(n.Y)) - tipOffsetY,
			Text:  graph.NodeLabel(n),
		})
	})
	v.graph.OnNode(graph.MouseOut, func(n *graph.Node) {
		v.tooltip.Undisplay(n.Address)
	})
	v.graph.OnLink(graph.MouseOver, func(l *graph.Link) {
		tf := v.graph.Transform()
		v.tooltip.Display(graph.Tip{
			Owner: l.Name(),
			X:     tf.X((l.Source.X+l.Target.X)/2) - tipOffsetX,
			Y:     tf.Y((l.Source.Y+l.Target.Y)/2) - tipOffsetY,
			Text:  graph.LinkLabel(l),
		})
	})
	v.graph.OnLink(graph.MouseOut, func(l *graph.Link) {
		v.tooltip.Undisplay(l.Name())
	})
}

// Graph returns the conversation graph.
func (v *View) Graph() *graph.Graph { return v.graph }

// Timelines returns the visible levels, newest first, or nil before Start.
func (v *View) Timelines() []*timeline.Timeline {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stack == nil {
		return nil
	}
	return v.stack.Visible()
}

// Protocols returns the top applications over the newest level's range.
func (v *View) Protocols() []aggregate.Protocol {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.protocols
}

// MaxHosts returns the conversation count requested for the graph.
func (v *View) MaxHosts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxHosts
}

// Start loads the data span and builds the root level from it. ctx bounds
// every request the view makes afterwards.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	start, end, err := v.client.Times(ctx)
	if err != nil {
		return fmt.Errorf("failed to load data bounds: %w", err)
	}

	v.ctx = ctx
	v.stack = timeline.NewStack(start, end, v.opts.Width, math.Round(v.opts.Height*0.2), v.onSelect, v.onDismiss)
	v.load(v.stack.Top(), true)
	return nil
}

// Select brushes [start, end) on visible level (0 is the newest). An empty
// range acts as Dismiss.
func (v *View) Select(level int, start, end time.Time) error {
	tl, err := v.level(level)
	if err != nil {
		return err
	}
	tl.Select(start, end)
	return nil
}

// Dismiss clears the brush on visible level.
func (v *View) Dismiss(level int) error {
	tl, err := v.level(level)
	if err != nil {
		return err
	}
	tl.Dismiss()
	return nil
}

// SetMaxHosts changes the conversation count and reloads the graph.
func (v *View) SetMaxHosts(n int) error {
	if n <= 0 {
		return fmt.Errorf("max hosts must be positive, got %d", n)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxHosts = n
	if v.stack == nil {
		return nil
	}
	log.Printf("Set max hosts to %d", n)
	v.requestGraph(v.stack.Top())
	return nil
}

// Wait blocks until the pending graph request has been applied or dropped.
func (v *View) Wait() {
	v.fetcher.Wait()
}

// Close cancels outstanding work.
func (v *View) Close() {
	v.fetcher.Cancel()
	v.fetcher.Wait()
	if v.tooltip != nil {
		v.tooltip.Stop()
	}
}

func (v *View) level(i int) (*timeline.Timeline, error) {
	v.mu.Lock()
	stack := v.stack
	v.mu.Unlock()

	if stack == nil {
		return nil, ErrNotStarted
	}
	tl, ok := stack.Level(i)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoLevel, i)
	}
	return tl, nil
}

func (v *View) onSelect(tl *timeline.Timeline, start, end time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tr, err := v.stack.Select(tl, start, end)
	if err != nil {
		log.Printf("Ignoring selection: %v", err)
		return
	}
	log.Printf("Select %s to %s (%s)", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), tr.Op)
	v.load(tr.Top, true)
}

func (v *View) onDismiss(tl *timeline.Timeline) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tr, err := v.stack.Dismiss(tl)
	if err != nil {
		log.Printf("Ignoring dismissal: %v", err)
		return
	}
	if tr.Op == timeline.Ignored {
		return
	}
	// The parent keeps its samples, so only the graph is reloaded
	v.load(tr.Top, false)
}

// load re-queries everything shown for top. The graph goes through the
// fetcher; the series and protocol summary are fetched together and
// waited for. Failures are logged and leave the previous data in place.
func (v *View) load(top *timeline.Timeline, series bool) {
	v.requestGraph(top)

	g, ctx := errgroup.WithContext(v.ctx)
	if series {
		g.Go(func() error {
			points, err := v.client.TimeSeries(ctx, top.Start, top.End, top.Points())
			if err != nil {
				return fmt.Errorf("timeseries: %w", err)
			}
			top.SetSamples(points)
			return nil
		})
	}
	g.Go(func() error {
		limit, _ := aggregate.Top(protocolCount)
		protocols, err := v.client.Protocols(ctx, top.Start, top.End, limit)
		if err != nil {
			return fmt.Errorf("protocols: %w", err)
		}
		v.protocols = protocols
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("Failed to load %s to %s: %v",
			top.Start.UTC().Format(time.RFC3339), top.End.UTC().Format(time.RFC3339), err)
	}
}

func (v *View) requestGraph(top *timeline.Timeline) {
	limit, _ := aggregate.Top(v.maxHosts)
	v.fetcher.Fetch(v.ctx, top.Start, top.End, limit, func(convs []aggregate.Conversation) {
		v.graph.Reset()
		v.graph.Update(convs)
		if v.opts.Settle {
			v.graph.Settle()
		}
	})
}
