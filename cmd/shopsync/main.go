package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"shopsync/config"
	"shopsync/messaging"
	"shopsync/searchindex"
	"shopsync/shopify"
	"shopsync/store"
	"shopsync/syncer"
	"shopsync/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "shopsync.yaml", "path to config file")
	writeConfig := flag.Bool("write-config", false, "write default config to the config path and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("shopsync", Version)
		return
	}

	if *writeConfig {
		if err := config.Defaults().Save(*configPath); err != nil {
			log.Fatalf("write config: %v", err)
		}
		log.Printf("shopsync: wrote default config to %s", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("shopsync: database open (%s)", cfg.Database.Driver)

	// Redis search index
	var search syncer.SearchSink
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("shopsync: redis not available (%v), running without search index", err)
	} else {
		log.Printf("shopsync: redis connected (%s)", cfg.Redis.Address)
		search = searchindex.New(redisClient, cfg.Redis.KeyPrefix)
	}
	cancel()
	defer redisClient.Close()

	// Per-shop API clients, credentials resolved from the shop registry
	factory := shopify.NewFactory(&cfg.Shopify, func(shop string) (shopify.Connect, error) {
		s, err := db.GetShop(shop)
		if err != nil {
			return shopify.Connect{}, err
		}
		if s == nil {
			return shopify.Connect{}, fmt.Errorf("unknown shop: %s", shop)
		}
		return shopify.Connect{Shop: s.Name, Domain: s.Domain, AccessToken: s.AccessToken}, nil
	})

	// Sync engine
	bus := syncer.NewEventBus()
	orch := syncer.NewOrchestrator(db, search, factory, bus)
	svc := syncer.NewService(db, search, factory, bus)

	// Messaging (optional): events stage in the outbox, a drainer ships them
	if cfg.Messaging.Backend != "" {
		msgClient := messaging.NewClient(&cfg.Messaging)
		if err := msgClient.Connect(); err != nil {
			log.Printf("shopsync: messaging connect failed (%v)", err)
		} else {
			log.Printf("shopsync: messaging connected (%s)", cfg.Messaging.Backend)
		}
		defer msgClient.Close()

		messaging.WireEvents(bus, db, cfg.Messaging.EventsTopic)
		drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
		drainer.Start()
		defer drainer.Stop()
	}

	// Web server
	handler := www.NewRouter(&cfg.Web, db, orch, svc, factory)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("shopsync: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("shopsync: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shopsync: shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Printf("shopsync: sync shutdown: %v", err)
	}
	srv.Shutdown(shutdownCtx)

	log.Printf("shopsync: stopped")
}
