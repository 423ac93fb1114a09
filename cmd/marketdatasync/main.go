// Command marketdatasync wires the Config Loader, Persistent Bar Store,
// Provider Adapter Set, Sync Service, Public Facade, and read-only HTTP
// facade together and serves them, following the originating codebase's
// cmd/server main.go composition-root pattern: load config, open storage,
// construct every layer in dependency order, start the HTTP server in a
// goroutine, then block on an interrupt signal and shut down gracefully.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/config"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/facade"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providerhealth"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providers"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/server"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/store"
	marketsync "github.com/YOUSOYOUSO/zsxq-market-data/internal/sync"
	"github.com/YOUSOYOUSO/zsxq-market-data/pkg/logger"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func providerNames(raw []string) []providers.Name {
	out := make([]providers.Name, 0, len(raw))
	for _, n := range raw {
		out = append(out, providers.Name(n))
	}
	return out
}

func main() {
	log := logger.New(logger.Config{
		Level:  getEnv("MARKET_DATA_LOG_LEVEL", "info"),
		Pretty: getEnv("MARKET_DATA_DEV_MODE", "") != "",
	})

	log.Info().Msg("starting market-data sync service")

	cfg, err := config.Load(getEnv("MARKET_DATA_CONFIG_PATH", "config/app.toml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open persistent bar store")
	}
	defer st.Close()

	health := providerhealth.Global()
	catalog := providers.BuildCatalog(providerNames(cfg.Providers), cfg.ProAPIToken, log)
	if len(catalog) == 0 {
		log.Fatal().Msg("no providers could be constructed; check provider configuration")
	}

	syncSvc := marketsync.New(cfg, st, catalog, health, log)
	appFacade := facade.New(cfg, st, syncSvc, health, log)

	port := 8090
	if v := getEnv("MARKET_DATA_PORT", ""); v != "" {
		if n, perr := parsePort(v); perr == nil {
			port = n
		}
	}

	srv := server.New(server.Config{
		Log:     log,
		Facade:  appFacade,
		Cfg:     cfg,
		Port:    port,
		DevMode: getEnv("MARKET_DATA_DEV_MODE", "") != "",
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", port).Str("db_path", cfg.DBPath).Msg("market-data sync service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down market-data sync service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("market-data sync service stopped")
}

func parsePort(v string) (int, error) {
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
