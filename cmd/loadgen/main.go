// Command loadgen feeds synthetic traffic samples to a top talkers server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicktill/toptalkers/pkg/client"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "top talkers server base URL")
	hosts := flag.Int("hosts", 40, "number of simulated hosts")
	perSample := flag.Int("conversations", 25, "conversations reported per sample")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	c, err := client.New(*serverURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	batcher := client.NewBatcher(c, client.DefaultBatchConfig)
	batcher.Start(ctx)

	sim := newSimulator(*hosts, *perSample, *seed)
	log.Printf("Sending samples for %d hosts to %s", *hosts, *serverURL)
	sim.run(ctx, batcher)

	if err := batcher.Stop(); err != nil {
		log.Printf("Final flush failed: %v", err)
	}
	sent, failed := batcher.Stats()
	log.Printf("Load generator stopped: %d samples sent, %d lost", sent, failed)
}
