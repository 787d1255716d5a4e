package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"duochat/config"
	"duochat/db"
	"duochat/presence"
	"duochat/relay"
	"duochat/server"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Debug)
	defer logger.Sync()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	engine := relay.NewEngine(
		database,
		presence.NewRegistry(),
		presence.NewRouter(),
		clock.New(),
		cfg.TypingTTL,
		logger,
	)

	srv := server.New(database, engine, &server.Config{
		Addr:          cfg.Addr,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		PingInterval:  cfg.PingInterval,
		SendQueueSize: cfg.SendQueueSize,
		TokenTTL:      cfg.TokenTTL,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Info("server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
