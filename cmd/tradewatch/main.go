package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/trade-hub/trade-hub/internal/application/auth"
	"github.com/trade-hub/trade-hub/internal/domain/event"
	"github.com/trade-hub/trade-hub/internal/realtime"
)

type runtimeConfig struct {
	Server     string
	Token      string
	Party      string
	Secret     string
	Issuer     string
	TokenTTL   time.Duration
	Others     []string
	DedupeSize int
}

// tradewatch tails the realtime events of one party as JSON lines on stdout.
func main() {
	_ = godotenv.Load(".env")
	cfg := loadConfig()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	token := cfg.Token
	if token == "" {
		if cfg.Secret == "" || cfg.Party == "" {
			log.Fatalf("config error: --token or both --party and JWT_SECRET are required")
		}
		minted, err := auth.NewService([]byte(cfg.Secret), cfg.Issuer, logger).Issue(cfg.Party, cfg.TokenTTL)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		token = minted
	}

	client, err := realtime.Dial(cfg.Server, token, cfg.DedupeSize)
	if err != nil {
		logger.Fatal().Err(err).Str("server", cfg.Server).Msg("connect failed")
	}
	defer func() { _ = client.Close() }()

	for _, other := range cfg.Others {
		if _, err := client.Join(other); err != nil {
			logger.Fatal().Err(err).Str("other", other).Msg("join failed")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		_ = client.Close()
	}()

	out := json.NewEncoder(os.Stdout)
	for {
		frame, err := client.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Info().Err(err).Msg("stream closed")
			}
			return
		}
		// Rooms announced on the party channel are joined so their messages follow.
		if frame.Type == string(event.TypeConversationActivity) {
			var activity struct {
				Room string `json:"room"`
			}
			if err := json.Unmarshal(frame.Payload, &activity); err == nil && activity.Room != "" {
				if _, err := client.JoinRoom(activity.Room); err != nil {
					logger.Warn().Err(err).Str("room", activity.Room).Msg("join failed")
				}
			}
		}
		if err := out.Encode(frame); err != nil {
			return
		}
	}
}

func loadConfig() runtimeConfig {
	var cfg runtimeConfig
	pflag.StringVar(&cfg.Server, "server", getenv("TRADEHUB_SERVER", "http://127.0.0.1:8080"), "trade hub base URL")
	pflag.StringVar(&cfg.Token, "token", os.Getenv("TRADEHUB_TOKEN"), "bearer token")
	pflag.StringVar(&cfg.Party, "party", "", "party to mint a token for when --token is empty")
	pflag.StringVar(&cfg.Issuer, "issuer", getenv("JWT_ISSUER", "trade-hub"), "token issuer")
	pflag.DurationVar(&cfg.TokenTTL, "token-ttl", time.Hour, "lifetime of a minted token")
	pflag.StringSliceVar(&cfg.Others, "with", nil, "counterparties whose rooms to join")
	pflag.IntVar(&cfg.DedupeSize, "dedupe-size", 1024, "events remembered for de-duplication")
	pflag.Parse()
	cfg.Secret = os.Getenv("JWT_SECRET")
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
