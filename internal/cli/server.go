package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pzielinski/wordrace/internal/auth"
	"github.com/pzielinski/wordrace/internal/cache"
	"github.com/pzielinski/wordrace/internal/config"
	"github.com/pzielinski/wordrace/internal/database"
	"github.com/pzielinski/wordrace/internal/handlers"
	"github.com/pzielinski/wordrace/internal/words"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the match coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// resolvePort picks the listen port: explicit flag, then config (file or
// PORT env), then the default.
func resolvePort(flagPort, cfgPort string) string {
	if flagPort != "" {
		return flagPort
	}
	if cfgPort != "" {
		return cfgPort
	}
	return "8080"
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	finalPort := resolvePort(portFlag, cfg.Server.Port)

	if cfg.Auth.PrivateKeyPath != "" && cfg.Auth.PublicKeyPath != "" {
		if err := auth.InitFromPath(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath); err != nil {
			return err
		}
	} else {
		auth.Init()
	}

	// postgres is optional; without it the server runs on the built-in
	// sample word sets and guest users live in memory only
	var provider words.Provider = words.NewStaticProvider(words.SampleSets())
	if cfg.Postgres.URL != "" {
		if err := database.ConnectURL(cfg.Postgres.URL); err != nil {
			return err
		}
		defer database.DB.Close()
		provider = database.NewWordSetProvider()
	} else {
		logger.Warn("postgres url not configured, running on sample word sets")
	}

	if cfg.Redis.Addr != "" {
		if err := cache.ConnectRedisAddr(cfg.Redis.Addr, cfg.Redis.DB); err != nil {
			return err
		}
		defer cache.Rdb.Close()
	} else {
		logger.Warn("redis addr not configured, session records will not be queued")
	}

	ms := handlers.NewMatchServer(logger, provider)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handlers.NewRouter(logger, ms),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on :%s", finalPort)
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-sigs:
		log.Printf("terminating: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
