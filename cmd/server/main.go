package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	apihttp "tomtrade/api/http"
	"tomtrade/config"
	"tomtrade/domain/ledger"
	"tomtrade/infra/journal"
	"tomtrade/infra/orderstore"
	"tomtrade/infra/outbox"
	"tomtrade/jobs/broadcaster"
	"tomtrade/jobs/feed"
	"tomtrade/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	// ---------------- Persistence ----------------

	jnl, err := journal.Open(journal.Config{Dir: filepath.Join(cfg.DataDir, "journal")})
	if err != nil {
		log.Fatal("journal init failed", zap.Error(err))
	}
	defer jnl.Close()

	box, err := outbox.Open(filepath.Join(cfg.DataDir, "outbox"))
	if err != nil {
		log.Fatal("outbox init failed", zap.Error(err))
	}
	defer box.Close()

	orders, err := orderstore.Open(filepath.Join(cfg.DataDir, "orders"))
	if err != nil {
		log.Fatal("order store init failed", zap.Error(err))
	}
	defer orders.Close()

	// ---------------- Core ----------------

	led := ledger.NewMemoryLedger()
	events := service.NewEventLog(jnl, box, orders, log)
	router := service.New(cfg.Instruments, led, events, log)

	if err := router.Recover(orders); err != nil {
		log.Fatal("recovery failed", zap.Error(err))
	}
	router.Start()
	defer router.Close()

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Kafka.Enabled {
		bc, err := broadcaster.New(box, cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.ParsedInterval, log)
		if err != nil {
			log.Fatal("broadcaster init failed", zap.Error(err))
		}
		defer bc.Close()
		go bc.Run(ctx)

		if cfg.Kafka.PricesTopic != "" {
			pf := feed.New(cfg.Kafka.Brokers, cfg.Kafka.PricesTopic, cfg.Kafka.PricesGroupID, router, log)
			defer pf.Close()
			go pf.Run(ctx)
		}
	}

	// ---------------- HTTP ----------------

	app := fiber.New()
	handlers := apihttp.NewHandlers(router, orders, log)
	apihttp.InitializeRoutes(app, handlers)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
		_ = app.Shutdown()
	}()

	log.Info("matching core listening", zap.String("addr", cfg.ListenAddr),
		zap.Strings("instruments", cfg.Instruments))
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}

	if err := events.Sync(); err != nil {
		log.Error("final journal sync failed", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil && level != "" {
		cfg.Level = lvl
	}
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
