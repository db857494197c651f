package main

import (
	"context"
	"log"
	"time"

	"chat-platform/internal/auth"
	"chat-platform/internal/hub"
	"chat-platform/internal/server"
	"chat-platform/internal/storage"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	cfg := server.EnvConfig{}
	if err := env.Parse(&cfg); err != nil {
		sugar.Fatalf("Cannot parse server env config: %v", err)
	}

	storeCfg := storage.Config{}
	if err := env.Parse(&storeCfg); err != nil {
		sugar.Fatalf("Cannot parse storage env config: %v", err)
	}

	store, err := storage.NewStore(context.Background(), sugar, storeCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	if err := store.EnsureSchema(context.Background()); err != nil {
		sugar.Fatalf("Cannot ensure database schema: %v", err)
	}

	h := hub.New(sugar, store)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	srv, err := server.NewServer(sugar, cfg, store, h, verifier, server.ReadHeaderTimeout(5*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
