package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/admin"
	"github.com/ternarybob/compleo/internal/common"
	badgerstore "github.com/ternarybob/compleo/internal/storage/badger"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	serverPort  = flag.Int("port", 0, "Admin server port (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Compleo admin version %s\n", common.GetVersion())
		os.Exit(0)
	}

	config, err := common.LoadFromFiles(*configFile)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *serverPort > 0 {
		config.AdminServer.Port = *serverPort
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.LoadVersionFromFile())

	manager, err := badgerstore.NewManager(&config.Storage.Badger, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer manager.Close()

	storage := badgerstore.NewAdminStorage(manager.DB(), logger)
	handler := admin.NewHandler(storage, &config.AdminServer, config.Callback.HeartbeatIntervalDuration(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/heartbeat", handler.HandleHeartbeat)
	mux.HandleFunc("/api/clients", handler.HandleClients)
	mux.HandleFunc("/api/send_command", handler.HandleSendCommand)
	mux.HandleFunc("/api/command_result", handler.HandleCommandResult)
	mux.HandleFunc("/api/command_results", handler.HandleCommandResults)

	addr := fmt.Sprintf("%s:%d", config.AdminServer.Host, config.AdminServer.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("address", addr).Msg("Admin server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Admin server failed")
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s", addr)).
		Msg("Admin server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Admin server shutdown failed")
	}
	logger.Info().Msg("Admin server stopped")
}
