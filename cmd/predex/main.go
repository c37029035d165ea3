package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"predex/internal/api"
	"predex/internal/cache"
	"predex/internal/exchange"
	"predex/internal/matcher"
	"predex/internal/oracle"
	"predex/internal/outbox"
	"predex/internal/store"
	"predex/internal/stream"
	"predex/web"
)

func main() {
	// .env fills in the environment for local runs; deployments set it directly.
	_ = godotenv.Load()

	port := flag.String("port", "8080", "server port")
	dbPath := flag.String("db", "predex.db", "SQLite database path")
	corsOrigins := flag.String("cors", "", "comma-separated allowed CORS origins (empty = allow all for dev)")
	redisAddr := flag.String("redis", os.Getenv("REDIS_ADDR"), "Redis address for snapshot caching (empty = disabled)")
	kafkaBrokers := flag.String("kafka-brokers", os.Getenv("KAFKA_BROKERS"), "comma-separated Kafka brokers (empty = no event stream)")
	kafkaTopic := flag.String("kafka-topic", "predex.events", "Kafka topic for exchange events")
	treasury := flag.String("treasury", os.Getenv("TREASURY_ACCOUNT"), "account collecting pool creation fees (empty = fees waived)")
	oracleAccount := flag.String("oracle-account", os.Getenv("ORACLE_ACCOUNT"), "account whose markets and price pools the oracle manages (empty = no oracle)")
	oracleAsset := flag.String("oracle-asset", os.Getenv("COINGECKO_ASSET"), "CoinGecko asset id for collateral quotes (empty = synthetic quotes)")
	coingeckoKey := flag.String("coingecko-key", os.Getenv("COINGECKO_API_KEY"), "CoinGecko demo API key")
	baseUnits := flag.Uint64("base-units", 1_000_000_000, "collateral base units per whole unit")
	oracleInterval := flag.Duration("oracle-interval", 15*time.Second, "oracle refresh interval")
	matchInterval := flag.Duration("match-interval", 2*time.Second, "matcher scan interval (0 = matcher disabled)")
	flag.Parse()

	// Initialize SQLite store
	st, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	svc := exchange.New(st)

	if *treasury != "" {
		svc.SetTreasury(*treasury)
		log.Printf("Pool creation fees go to account %s", *treasury)
	}

	// Durable event stream (optional - events stay in-process without Kafka)
	var ob *outbox.Outbox
	var publisher *stream.Publisher
	if *kafkaBrokers != "" {
		ob, err = outbox.Open(*dbPath + ".outbox")
		if err != nil {
			log.Fatalf("Failed to open event outbox: %v", err)
		}
		svc.SetOutbox(ob)

		brokers := strings.Split(*kafkaBrokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		publisher, err = stream.New(brokers, *kafkaTopic, ob)
		if err != nil {
			log.Fatalf("Failed to connect Kafka producer: %v", err)
		}
		log.Printf("Streaming events to Kafka topic %s", *kafkaTopic)
	} else {
		log.Printf("No Kafka brokers - events stay in-process")
	}

	// Get embedded frontend files
	staticFS, err := web.StaticFS()
	if err != nil {
		log.Fatalf("Failed to load embedded frontend: %v", err)
	}

	server := api.NewServer(svc, st, staticFS)

	cacheClient := cache.New(*redisAddr, 5*time.Second)
	if cacheClient != nil {
		server.SetCache(cacheClient)
		log.Printf("Caching snapshots in Redis at %s", *redisAddr)
	}

	// Configure CORS if specified
	if *corsOrigins != "" {
		origins := strings.Split(*corsOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		server.SetCORSOrigins(origins)
		log.Printf("CORS restricted to: %v", origins)
	}

	// Background loops stop together when this context is cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if publisher != nil {
		publisher.Start(ctx)
	}

	if *oracleAccount != "" {
		var src oracle.Source
		if *oracleAsset != "" {
			src = oracle.NewCoinGeckoClient(*oracleAsset, *coingeckoKey)
			log.Printf("Quoting collateral from CoinGecko asset %s", *oracleAsset)
		} else {
			src = oracle.NewSyntheticSource(142_350_000, 500_000)
			log.Printf("No CoinGecko asset - using synthetic collateral quotes")
		}
		oracle.New(src, svc, *oracleAccount, *baseUnits).Start(ctx, *oracleInterval)
	}

	if *matchInterval > 0 {
		matcher.New(svc).Start(ctx, *matchInterval)
		log.Printf("Scanning for order matches every %s", *matchInterval)
	}

	addr := ":" + *port
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting predex server on http://localhost%s", addr)
		log.Printf("Database: %s", *dbPath)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop matcher, oracle and stream loops
	cancel()
	log.Println("Background loops stopped")

	// Stop server internal goroutines
	server.Shutdown()
	log.Println("Server internal goroutines stopped")

	// Graceful HTTP shutdown with 5 second timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("HTTP server stopped")

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("Kafka producer close error: %v", err)
		}
	}
	if ob != nil {
		if err := ob.Close(); err != nil {
			log.Printf("Outbox close error: %v", err)
		}
	}
	if err := cacheClient.Close(); err != nil {
		log.Printf("Cache close error: %v", err)
	}

	// Close database
	if err := st.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}
	log.Println("Database closed")

	log.Println("Server shutdown complete")
}
