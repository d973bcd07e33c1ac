package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/commitkings/commitkings/internal/ai"
	"github.com/commitkings/commitkings/internal/api"
	"github.com/commitkings/commitkings/internal/auth"
	"github.com/commitkings/commitkings/internal/config"
	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/relay"
	"github.com/commitkings/commitkings/internal/secret"
	"github.com/commitkings/commitkings/internal/stats"
	_ "github.com/lib/pq"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address, overrides SERVER_ADDR")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS, overrides ALLOWED_ORIGINS")
	flag.Parse()

	logger := log.New(os.Stderr, "[commit-kings] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config: ", err)
	}
	if addr != "" {
		cfg.ServerAddr = addr
	}
	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = allowedOrigins
	}

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("migrate: ", err)
	}

	verifier, err := auth.NewVerifier(cfg.SigningKey)
	if err != nil {
		logger.Fatal("verifier: ", err)
	}

	sealer, err := secret.NewSealer(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("sealer: ", err)
	}

	var gateway ai.Gateway = ai.Disabled{}
	if cfg.OpenRouterAPIKey != "" {
		gateway, err = ai.NewOpenRouterGateway(cfg.OpenRouterAPIKey, cfg.AIBaseURL, cfg.AIModel)
		if err != nil {
			logger.Fatal("ai gateway: ", err)
		}
	} else {
		logger.Println("OPENROUTER_API_KEY not set, ai feedback disabled")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	relayServer, err := relay.NewRelayServer(logger, dbConn, sealer, gateway, statsUpdater)
	if err != nil {
		logger.Fatal("new relay server: ", err)
	}

	srv := api.NewCommitKingsApp(mux, logger, relayServer, dbConn, verifier, sealer, gateway, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go relayServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down relay server...")
	relayServer.Shutdown()

	logger.Println("shutdown complete")
}
