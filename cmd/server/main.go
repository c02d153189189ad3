package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cbodonnell/gametable/pkg/api"
	"github.com/cbodonnell/gametable/pkg/bundle"
	"github.com/cbodonnell/gametable/pkg/lobby"
	"github.com/cbodonnell/gametable/pkg/log"
	"github.com/cbodonnell/gametable/pkg/repositories"
)

type config struct {
	Port        int    `env:"PORT" envDefault:"9000"`
	GamesDir    string `env:"GAMES_DIR"`
	DatabaseURL string `env:"DATABASE_URL"`
	ResultsDB   string `env:"RESULTS_DB"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`
}

func main() {
	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		panic(fmt.Sprintf("Failed to parse environment: %v", err))
	}

	port := flag.Int("port", cfg.Port, "Port to listen on")
	gamesDir := flag.String("games-dir", cfg.GamesDir, "Directory of game bundles (built-in games when empty)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var registry *bundle.Registry
	if *gamesDir != "" {
		registry, err = bundle.LoadDir(*gamesDir)
	} else {
		registry, err = bundle.Builtin()
	}
	if err != nil {
		panic(fmt.Sprintf("Failed to load game bundles: %v", err))
	}
	for _, g := range registry.List() {
		log.Info("Loaded game %s version %s", g.ID, g.Version)
	}

	var repository repositories.Repository
	switch {
	case cfg.DatabaseURL != "":
		repository, err = repositories.NewPostgresRepository(ctx, cfg.DatabaseURL)
	case cfg.ResultsDB != "":
		repository, err = repositories.NewSQLiteRepository(ctx, cfg.ResultsDB)
	}
	if err != nil {
		panic(fmt.Sprintf("Failed to open results repository: %v", err))
	}
	if repository != nil {
		defer repository.Close(context.Background())
	} else {
		log.Info("No results repository configured, round results will not be recorded")
	}

	manager := lobby.NewManager(lobby.NewManagerOptions{
		Registry: registry,
		Recorder: repository,
	})

	var tlsConfig *api.TLSConfig
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		tlsConfig = &api.TLSConfig{
			CertFile: cfg.TLSCertFile,
			KeyFile:  cfg.TLSKeyFile,
		}
	}

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:       *port,
		TLS:        tlsConfig,
		Registry:   registry,
		Manager:    manager,
		Repository: repository,
	})
	go apiServer.Start()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
}
