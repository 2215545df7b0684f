package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prostocks-dashboard/internal/engine"
	"prostocks-dashboard/internal/logger"
	"prostocks-dashboard/internal/server"
	"prostocks-dashboard/internal/store"
	"prostocks-dashboard/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := store.LoadConfig("config.yaml")
	must(err)

	creds, err := loadCredentials()
	must(err)

	compressOldLogs(ctx)

	settings := store.NewSettingsStore(cfg.SettingsFile)
	sess, gw, md := initializeBroker(ctx, cfg, creds)
	eng := engine.New(cfg, settings, gw, md)
	srv := server.New(cfg, settings, sess, gw, md, eng)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	// Engine loop: one pass over the universe per poll tick. The server
	// runs on its own goroutine and owns the quote stream.
	go func() {
		tick := time.NewTicker(time.Duration(cfg.PollSeconds) * time.Second)
		defer tick.Stop()

		for {
			select {
			case <-tick.C:
				if _, ok := sess.Token(); !ok {
					continue // wait for the dashboard to log in
				}
				for _, sym := range cfg.Universe {
					if _, err := eng.Step(ctx, sym); err != nil {
						logger.Warn(ctx, "Engine step failed", "symbol", sym, "error", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-sigc
		logger.Info(ctx, "Shutting down...")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Server stopped", err)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	_ = trace.Shutdown(shutCtx)
}
