package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"devforge.org/internal/authflow"
	"devforge.org/internal/config"
	"devforge.org/internal/httpapi"
	"devforge.org/internal/obs"
	"devforge.org/internal/realtime"
	"devforge.org/internal/school"
	"devforge.org/internal/tenantdb"
	"devforge.org/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := tenantdb.Open(cfg.DatabaseURL, cfg.PoolMaxConns, cfg.PoolAcquireTimeout)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer pool.Close()

	tokens, err := token.NewService(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	store := school.NewPGStore(pool.DB())
	auth := authflow.NewService(store, tokens)
	hub := realtime.NewHub()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
	}

	api := httpapi.New(httpapi.Deps{
		Store:   store,
		Auth:    auth,
		Tokens:  tokens,
		Pool:    pool,
		Redis:   rdb,
		Hub:     hub,
		Version: version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting devforge-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
