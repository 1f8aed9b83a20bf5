// Command heapcap-server hosts the profiler core and accepts a single
// client connection. A real deployment embeds heapcap.Server inside the
// target scripting runtime's process and wires adapter.NewMonoAdapter or
// adapter.NewIL2CPPAdapter to that runtime's resolved host symbols; this
// binary stands alone for local testing, so it drives a synthetic
// allocation workload against adapter.MockAdapter instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heapcap/heapcap"
	"github.com/heapcap/heapcap/internal/adapter"
	"github.com/heapcap/heapcap/internal/interfaces"
	"github.com/heapcap/heapcap/internal/logging"
)

func main() {
	var (
		listen  = flag.String("listen", ":9510", "Address to accept a client connection on")
		verbose = flag.Bool("v", false, "Verbose output")
		classes = flag.Int("classes", 4, "Number of synthetic allocation classes to cycle through")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	a := adapter.NewMockAdapter()
	for i := 1; i <= *classes; i++ {
		a.SetClassName(interfaces.ClassHandle(i), "Demo", fmt.Sprintf("Object%d", i))
	}

	metrics := heapcap.NewMetrics(timeNow())
	server, err := heapcap.NewServer(heapcap.ServerParams{
		Adapter:  a,
		Logger:   logger,
		Observer: metrics,
	})
	if err != nil {
		log.Fatalf("heapcap-server: %v", err)
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("heapcap-server: listen %s: %v", *listen, err)
	}
	defer ln.Close()
	logger.Info("waiting for a client", "addr", *listen)

	conn, err := ln.Accept()
	if err != nil {
		log.Fatalf("heapcap-server: accept: %v", err)
	}
	logger = logger.With("remote", conn.RemoteAddr())
	logger.Info("client connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runWorkload(ctx, a, *classes)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		server.Stop()
	}()

	if err := server.Serve(ctx, conn); err != nil {
		logger.Info("serve ended", "error", err)
	}

	snap := metrics.Snapshot(timeNow())
	fmt.Printf("allocs=%d frees=%d alloc_bytes=%d free_bytes=%d mark_passes=%d\n",
		snap.AllocCount, snap.FreeCount, snap.AllocBytes, snap.FreeBytes, snap.MarkPasses)
}

// runWorkload feeds synthetic ALLOC/GC traffic into the mock adapter
// until ctx is cancelled, standing in for a real scripting runtime's
// allocation hook firing during gameplay. Addresses are drawn from a
// small fixed pool so that reallocating a live address exercises the
// worker's synthetic-FREE-on-realloc path, the same as a real runtime
// reusing a freed slot.
func runWorkload(ctx context.Context, a *adapter.MockAdapter, classCount int) {
	rng := rand.New(rand.NewSource(1))
	const poolSize = 64
	var frame uint64

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame++
			for i, n := 0, rng.Intn(8); i < n; i++ {
				class := interfaces.ClassHandle(1 + rng.Intn(classCount))
				size := uint32(8 + rng.Intn(256))
				addr := uint64(0x1000 + 64*rng.Intn(poolSize))
				a.FireAlloc(frame, class, interfaces.ObjectHandle(addr), size)
			}
			if frame%30 == 0 {
				a.FireGC(frame)
			}
		}
	}
}

func timeNow() time.Time { return time.Now() }
