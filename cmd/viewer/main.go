// Command viewer is a headless client for the top talkers server. It loads
// the full data span, then drills down into the middle half of the newest
// level a number of times, printing the top conversations and protocols at
// each step.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nicktill/toptalkers/pkg/client"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/graph"
	"github.com/nicktill/toptalkers/pkg/view"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "top talkers server base URL")
	levels := flag.Int("levels", 2, "number of drill-downs below the full span")
	maxHosts := flag.Int("max-hosts", config.DefaultMaxHosts, "conversations to request per level")
	show := flag.Int("show", 10, "links to print per level")
	flag.Parse()

	c, err := client.New(*serverURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := view.DefaultOptions
	opts.MaxHosts = *maxHosts
	opts.Settle = true

	v := view.New(c, opts)
	defer v.Close()

	if err := v.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	v.Wait()
	printLevel(v, 0, *show)

	for i := 1; i <= *levels; i++ {
		if ctx.Err() != nil {
			return
		}
		top := v.Timelines()[0]
		quarter := top.End.Sub(top.Start) / 4
		if err := v.Select(0, top.Start.Add(quarter), top.End.Add(-quarter)); err != nil {
			log.Fatalf("Failed to drill down: %v", err)
		}
		v.Wait()
		printLevel(v, i, *show)
	}
}

func printLevel(v *view.View, depth, show int) {
	top := v.Timelines()[0]
	fmt.Printf("\n== Level %d: %s to %s ==\n", depth,
		top.Start.UTC().Format(time.RFC3339), top.End.UTC().Format(time.RFC3339))

	var peak float64
	for _, p := range top.Samples() {
		if p.Y > peak {
			peak = p.Y
		}
	}
	fmt.Printf("%d samples, peak %s\n", len(top.Samples()), graph.FormatRate(peak))

	g := v.Graph()
	links := g.Links()
	sort.SliceStable(links, func(i, j int) bool { return links[i].Bytes > links[j].Bytes })
	if len(links) > show {
		links = links[:show]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "CONVERSATION\tBYTES\tWIDTH\n")
	for _, l := range links {
		fmt.Fprintf(w, "%s\t%s\t%.1f\n", l.Name(), graph.FormatBytes(float64(l.Bytes)), g.LinkWidth(l))
	}
	w.Flush()

	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "APPLICATION\tBYTES\n")
	for _, p := range v.Protocols() {
		fmt.Fprintf(w, "%s\t%s\n", p.Application, graph.FormatBytes(float64(p.Bytes)))
	}
	w.Flush()

	legend := g.Legend()
	fmt.Printf("legend: node %s, link %s (%d hosts)\n", legend.NodeLabel, legend.LinkLabel, len(g.Visible()))
}
