package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/trowool/yarnshop/internal/cache"
	"github.com/trowool/yarnshop/internal/config"
	"github.com/trowool/yarnshop/internal/db"
	"github.com/trowool/yarnshop/internal/es"
	"github.com/trowool/yarnshop/internal/handlers"
	"github.com/trowool/yarnshop/internal/logging"
	"github.com/trowool/yarnshop/internal/mykafka"
	"github.com/trowool/yarnshop/internal/service/cart"
	"github.com/trowool/yarnshop/internal/service/catalog"
	"github.com/trowool/yarnshop/internal/service/order"
	"github.com/trowool/yarnshop/internal/service/token"
	httpserver "github.com/trowool/yarnshop/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(config.EnvDefault("LOG_LEVEL", "info"))

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("db unwrap error: %v", err)
	}
	if err := db.RunMigrations(sqlDB, cfg.MigrationsDir); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	prod, err := mykafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Printf("kafka disabled: %v", err)
		prod = nil
	}

	esClient, err := es.NewClient(cfg)
	if err != nil {
		log.Fatalf("elasticsearch init error: %v", err)
	}

	redisCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	store, err := cache.NewRedisStore(redisCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	cancel()
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	catalogCache := cache.New(store)

	tokens := &token.Service{DB: gdb, JWTSecret: cfg.JWTSecret, RefreshSecret: cfg.RefreshSecret}
	cartSvc := &cart.Service{DB: gdb}
	orderSvc := &order.Service{DB: gdb}
	catalogSvc := &catalog.Service{DB: gdb, Cache: catalogCache}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.AllowOrigins,
		AllowCredentials: true,
	}))
	e.Use(logging.RequestLogger(logger))

	deps := httpserver.Deps{
		AuthHandler:    &handlers.AuthHandler{DB: gdb, Tokens: tokens, Producer: prod},
		ProductHandler: &handlers.ProductHandler{Catalog: catalogSvc, Producer: prod},
		CartHandler:    &handlers.CartHandler{Svc: cartSvc, Orders: orderSvc, Producer: prod, Debug: !cfg.IsProduction()},
		ReviewHandler:  &handlers.ReviewHandler{DB: gdb, UploadDir: cfg.UploadDir},
		SearchHandler:  &handlers.SearchHandler{ES: esClient, Index: "product"},
		Tokens:         tokens,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("db close error: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("redis close error: %v", err)
	}
	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
