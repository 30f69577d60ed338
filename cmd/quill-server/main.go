// Command quill-server runs the Quill content-processing API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quillforge/quill/internal/config"
	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/server"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/internal/storage/postgres"
	"github.com/quillforge/quill/internal/storage/sqlite"
)

func main() {
	routesPath := flag.String("routes", "", "Path to YAML route table (default: $QUILL_ROUTES_PATH)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *routesPath != "" {
		cfg.LLM.RoutesPath = *routesPath
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	routes, err := config.LoadRoutes(cfg.LLM.RoutesPath)
	if err != nil {
		log.Fatalf("Failed to load routes: %v", err)
	}
	router := llm.NewRouterFromConfig(cfg.LLM, routes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := server.Start(ctx, cfg, store, router)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Quill API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()
}

// openStore selects the storage backend from configuration.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewStore(cfg.Storage.DataPath + "/quill.db")
	}
}
