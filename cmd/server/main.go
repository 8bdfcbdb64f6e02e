package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/trade-hub/trade-hub/internal/api/http"
	"github.com/trade-hub/trade-hub/internal/application/auth"
	"github.com/trade-hub/trade-hub/internal/application/broadcast"
	"github.com/trade-hub/trade-hub/internal/application/conversation"
	"github.com/trade-hub/trade-hub/internal/application/lock"
	"github.com/trade-hub/trade-hub/internal/application/settlement"
	"github.com/trade-hub/trade-hub/internal/config"
	"github.com/trade-hub/trade-hub/internal/domain/asset"
	domainConversation "github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/event"
	domainSettlement "github.com/trade-hub/trade-hub/internal/domain/settlement"
	"github.com/trade-hub/trade-hub/internal/infrastructure/natsbus"
	"github.com/trade-hub/trade-hub/internal/infrastructure/postgres"
	"github.com/trade-hub/trade-hub/internal/infrastructure/sqlite"
	"github.com/trade-hub/trade-hub/internal/realtime"
)

// stores is the persistence selected by STORE_DRIVER.
type stores struct {
	conversations domainConversation.Repository
	assets        asset.Repository
	settlements   domainSettlement.Repository
	pinger        httpapi.Pinger
	close         func()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	addr := pflag.String("addr", "", "listen address (overrides SERVER_ADDR)")
	driver := pflag.String("store", "", "store driver: postgres or sqlite (overrides STORE_DRIVER)")
	migrateOnly := pflag.Bool("migrate-only", false, "apply migrations and exit")
	seedPath := pflag.String("seed-assets", "", "JSON file of assets to upsert at startup")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	if *driver != "" {
		cfg.StoreDriver = *driver
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store %s: %w", cfg.StoreDriver, err)
	}
	defer st.close()
	if *migrateOnly {
		logger.Info().Str("driver", cfg.StoreDriver).Msg("migrations applied")
		return nil
	}
	if *seedPath != "" {
		if err := seedAssets(ctx, st.assets, *seedPath); err != nil {
			return fmt.Errorf("seed assets: %w", err)
		}
	}

	// realtime
	hub := realtime.NewHub(cfg.RealtimeSessionBuffer, logger)
	defer hub.Stop()
	var publisher event.Publisher = hub
	if cfg.NATSURL != "" {
		nc, err := natsbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()
		bus := natsbus.New(nc, cfg.NATSPrefix, hub, logger)
		if err := bus.Start(); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer func() { _ = bus.Close() }()
		publisher = bus
	}
	broadcaster := broadcast.NewBroadcaster(publisher, logger)

	// services
	signingKey, _ := cfg.SigningKey()
	policy, err := domainSettlement.NewPolicy(cfg.SettlementPolicy)
	if err != nil {
		return fmt.Errorf("settlement policy: %w", err)
	}
	authSvc := auth.NewService([]byte(cfg.JWTSecret), cfg.JWTIssuer, logger)
	conversationSvc := conversation.NewService(st.conversations, st.assets, broadcaster, logger)
	lockSvc := lock.NewService(st.conversations, broadcaster, logger)
	settlementSvc := settlement.NewService(st.settlements, policy, signingKey, broadcaster, logger)

	// API server
	apiServer := httpapi.NewServer(conversationSvc, lockSvc, settlementSvc, authSvc, hub, st.pinger, httpapi.Options{
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WSFramesPerSecond:  cfg.WSFramesPerSecond,
		WSFrameBurst:       cfg.WSFrameBurst,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("driver", cfg.StoreDriver).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	hub.Stop()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			conversations: store.Conversations(),
			assets:        store.Assets(),
			settlements:   store.Settlements(),
			pinger:        store,
			close:         func() { _ = store.Close() },
		}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
		return &stores{
			conversations: postgres.NewConversationRepository(pool),
			assets:        postgres.NewAssetRepository(pool),
			settlements:   postgres.NewSettlementRepository(pool),
			pinger:        pool,
			close:         pool.Close,
		}, nil
	}
}

func seedAssets(ctx context.Context, repo asset.Repository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var items []*asset.Asset
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	for _, a := range items {
		if err := repo.Upsert(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
