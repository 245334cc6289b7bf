package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for operational overrides; absence is fine
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	if key := os.Getenv("POSTHOG_API_KEY"); key != "" {
		PostHogKey = key
	}
	if host := os.Getenv("POSTHOG_HOST"); host != "" {
		PostHogHost = host
	}

	app := NewApp()

	addr := app.GetSettings().StatusListenAddr
	if env := os.Getenv("PHOTOMAP_STATUS_ADDR"); env != "" {
		addr = env
	}

	errCh := make(chan error, 1)
	go func() { errCh <- app.Serve(addr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("Status server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Shutdown(ctx)
}
