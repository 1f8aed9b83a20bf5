// Command heapcap-client connects to a running heapcap-server, ingests
// its event stream into a SQLite capture database, and prints frame
// statistics as they arrive. Run it against heapcap-server, or pass
// -db alone with -connect="" to open an existing capture for offline
// query instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heapcap/heapcap/client"
	"github.com/heapcap/heapcap/internal/logging"
)

func main() {
	var (
		connect = flag.String("connect", "localhost:9510", "Server address to connect to; empty to open -db offline")
		dbPath  = flag.String("db", "capture.sqlite", "Capture database path")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *connect == "" {
		runOffline(*dbPath)
		return
	}
	runCapture(*connect, *dbPath, logger)
}

func runCapture(addr, dbPath string, logger *logging.Logger) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("heapcap-client: dial %s: %v", addr, err)
	}

	c, err := client.NewClient(conn, dbPath, nil)
	if err != nil {
		log.Fatalf("heapcap-client: %v", err)
	}
	defer c.Close()

	logger = logger.With("server", addr, "db", dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("disconnecting")
		conn.Close()
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run() }()

	go printProgress(ctx, c, logger)

	if err := <-runErr; err != nil {
		logger.Info("capture ended", "error", err)
	}
	cancel()

	report(c, dbPath)
}

func printProgress(ctx context.Context, c *client.Client, logger *logging.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			min, max, ok, err := c.Query().GetFrameBoundaries()
			if err != nil || !ok {
				continue
			}
			logger.Info("capturing", "frames", fmt.Sprintf("%d-%d", min, max))
		}
	}
}

func runOffline(dbPath string) {
	c, err := client.OpenCapture(dbPath)
	if err != nil {
		log.Fatalf("heapcap-client: open %s: %v", dbPath, err)
	}
	defer c.Close()
	report(c, dbPath)
}

func report(c *client.Client, dbPath string) {
	min, max, ok, err := c.Query().GetFrameBoundaries()
	if err != nil {
		log.Fatalf("heapcap-client: query %s: %v", dbPath, err)
	}
	if !ok {
		fmt.Printf("%s: no frames captured\n", dbPath)
		return
	}

	stats, err := c.Query().GetFrameStats(min, max)
	if err != nil {
		log.Fatalf("heapcap-client: frame stats: %v", err)
	}
	fmt.Printf("%s: frames %d-%d, max_allocs=%d max_frees=%d max_size=%d\n",
		dbPath, min, max, stats.MaxAllocs, stats.MaxFrees, stats.MaxSize)

	live, err := c.Query().GetLiveObjects(min, max, nil)
	if err != nil {
		log.Fatalf("heapcap-client: live objects: %v", err)
	}
	fmt.Printf("%d objects live at frame %d\n", len(live), max)
}
