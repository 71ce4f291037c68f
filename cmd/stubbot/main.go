// Command stubbot runs a fake trading process: every console endpoint plus
// the SSE push stream, backed by a deterministic simulator. Useful for
// developing the console with no real bot anywhere near real funds.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcheng-dev/botconsole/internal/stubs"
)

func main() {
	addr := flag.String("addr", ":9091", "listen address")
	apiKey := flag.String("api-key", "", "require this X-API-Key on /api endpoints")
	seed := flag.Int64("seed", time.Now().UnixNano(), "simulator seed")
	tick := flag.Duration("tick", 2*time.Second, "simulation step interval")
	legacyOnly := flag.Bool("legacy-only", false, "404 the overview endpoint to exercise the legacy fallback")
	flag.Parse()

	sim := stubs.NewSimulator(*seed)
	sim.LegacyOnly = *legacyOnly
	server := stubs.NewServer(sim, *apiKey)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go server.Run(ctx, *tick)

	httpServer := &http.Server{Addr: *addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("stub trading process listening on %s (seed=%d)", *addr, *seed)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
