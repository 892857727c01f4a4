// Command instrumentsd runs the uncertainty-aware strategy evaluation
// engine as an HTTP daemon: estimators observe network conditions,
// strategies are scored against the configured evaluator method, and the
// chooser picks a winner on demand.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tutu-network/instruments/internal/api"
	"github.com/tutu-network/instruments/internal/infra/config"
	"github.com/tutu-network/instruments/internal/infra/observability"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to instrumentsd's TOML config")
	flag.Parse()

	log := observability.New("instrumentsd")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	app, err := api.NewApp(cfg)
	if err != nil {
		log.Error("build app", "err", err)
		os.Exit(1)
	}

	if err := app.Restore(); err != nil {
		log.Error("restore state", "err", err)
	}

	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("serve", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}

	if err := app.Save(); err != nil {
		log.Error("save state", "err", err)
	}
	if err := app.Close(); err != nil {
		log.Error("close app", "err", err)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".instruments/config.toml"
	}
	return filepath.Join(home, ".instruments", "config.toml")
}

func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.Default(), nil
	}
	return config.Load(path)
}
