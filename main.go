package main

import (
	"context"
	"log"
	"os"
	"time"

	"task-assign/backend/internal/config"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := newApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	serveErr := app.start()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"task-assign": func(ctx context.Context) error {
				log.Println("[server] Graceful shutdown initiated...")
				return app.shutdown(ctx)
			},
		},
	)

	select {
	case err, ok := <-serveErr:
		if ok && err != nil {
			log.Printf("[server] Error: %v", err)
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := app.shutdown(ctx); err != nil {
				log.Printf("[server] Warning: shutdown: %v", err)
			}
			cancel()
			os.Exit(1)
		}
		os.Exit(<-wait)
	case exitCode := <-wait:
		log.Printf("[server] Exited with code: %d", exitCode)
		os.Exit(exitCode)
	}
}
