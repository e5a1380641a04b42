package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/holidayvote/bridge/internal/bridge"
	"github.com/holidayvote/bridge/internal/config"
	"github.com/holidayvote/bridge/internal/event"
	"github.com/holidayvote/bridge/internal/metrics"
	"github.com/holidayvote/bridge/internal/model"
	"github.com/holidayvote/bridge/internal/pubsub"
	"github.com/holidayvote/bridge/internal/remote"
	"github.com/holidayvote/bridge/internal/store"
	"github.com/holidayvote/bridge/internal/stream"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	var persister store.Persister
	if cfg.RedisURL != "" {
		persister, err = store.NewRedisPersister(mainCtx, cfg.RedisURL)
	} else {
		persister, err = store.NewFilePersister(cfg.StoragePath)
	}
	if err != nil {
		logger.Error("failed to open durable storage", "error", err)
		os.Exit(1)
	}
	defer persister.Close()

	tallyStore := store.New(cfg.CandidateCount, persister, logger)

	synchronizer := remote.New(remote.Config{
		BaseURL:     cfg.RemoteBaseURL,
		ChannelID:   cfg.ChannelID,
		WriteAPIKey: cfg.WriteAPIKey,
		ReadAPIKey:  cfg.ReadAPIKey,
		Candidates:  cfg.CandidateCount,
		MinInterval: cfg.MinPushInterval,
	}, logger)

	var publisher event.VotePublisher = event.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("mirroring votes to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	mirror := event.NewMirror(publisher, 64, logger)
	go mirror.Run(mainCtx)

	hub := pubsub.NewHub(logger)
	go hub.Run(mainCtx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/tally", hub.ServeWS)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	coordinator := bridge.New(bridge.Options{
		Opener:       stream.ForAddress(cfg.DeviceAddress, cfg.BaudRate, logger),
		Store:        tallyStore,
		Synchronizer: synchronizer,
		Mirror:       mirror,
		Hub:          hub,
		Metrics:      metrics.NewBridgeMetrics(prometheus.DefaultRegisterer, "votebridge", "bridge"),
		Logger:       logger,
		Candidates:   cfg.CandidateCount,
		CandidateName: func(id model.CandidateID) string {
			return cfg.CandidateName(int(id))
		},
		PushInterval:   cfg.PushInterval,
		ConnectRetries: cfg.ConnectRetries,
		MaxBackoff:     cfg.ReconnectMaxBackoff,
	})

	logger.Info("bridge starting",
		"device", cfg.DeviceAddress, "channel", cfg.ChannelID, "candidates", cfg.CandidateCount)

	errChan := make(chan error, 1)
	go func() {
		errChan <- coordinator.Run(mainCtx)
	}()

	var runErr error
	select {
	case <-signalChan:
		logger.Info("shutdown signal received, stopping the bridge")
		cancel()
		// Wait for the coordinator so the final push gets to finish.
		<-errChan

	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("bridge stopped", "error", runErr)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	logger.Info("bridge terminated")
	if runErr != nil {
		persister.Close()
		publisher.Close()
		os.Exit(1)
	}
}
