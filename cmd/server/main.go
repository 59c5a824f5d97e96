package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhollis/dedupd/internal/app"
)

func main() {
	server, err := app.CreateServer(app.ServerConfig{})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer server.Cleanup()

	// Start cleanup goroutine
	cleanupCancel, cleanupDone := server.StartCleanupLoop()
	defer func() {
		cleanupCancel()
		<-cleanupDone
	}()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.HTTP.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// Start server
	log.Printf("Server listening on http://localhost:%d", server.Config.Port)
	if err := server.HTTP.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
