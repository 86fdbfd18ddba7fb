package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockyard/auction-engine/internal/auction"
	"github.com/stockyard/auction-engine/internal/batch"
	"github.com/stockyard/auction-engine/internal/ledger"
	"github.com/stockyard/auction-engine/internal/metrics"
	"github.com/stockyard/auction-engine/internal/store"
	"github.com/stockyard/auction-engine/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	difficulty := ledger.DefaultDifficulty
	if v := os.Getenv("DIFFICULTY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			slog.Error("invalid DIFFICULTY", "value", v)
			os.Exit(1)
		}
		difficulty = n
	}

	// --- Initialize archive ---
	var archive store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		archive = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			archive = store.NewCachedStore(archive, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory archive (data will not persist)")
		archive = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core state ---
	wallets := wallet.NewRegistry()
	batches := batch.NewRegistry()
	chain := ledger.New(difficulty)
	engine := auction.NewEngine(wallets, batches, chain, archive)

	// --- WebSocket hub ---
	wsHub := auction.NewWSHub()
	go wsHub.Run()

	// --- HTTP service ---
	svc := auction.NewService(engine, wallets, batches, chain, archive, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"auction-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time auction events.
		r.Get("/ws", wsHub.HandleWS)

		// Accounts.
		r.Post("/accounts", svc.RegisterAccount)
		r.Get("/accounts", svc.ListAccounts)
		r.Get("/accounts/{accountID}", svc.GetAccount)

		// Batches.
		r.Post("/batches", svc.RecordBatch)
		r.Get("/batches", svc.ListBatches)

		// Futures contracts and bidding.
		r.Post("/contracts", svc.OpenContract)
		r.Get("/contracts", svc.ListContracts)
		r.Get("/contracts/{contractID}", svc.GetContract)
		r.Post("/contracts/{contractID}/bids", svc.SubmitBid)
		r.Post("/contracts/{contractID}/adjudicate", svc.Adjudicate)

		// Ledger.
		r.Get("/chain", svc.GetChain)
		r.Get("/chain/last", svc.GetLastBlock)
		r.Get("/chain/verify", svc.VerifyChain)

		// Mining and settlements.
		r.Post("/mine", svc.MineBlock)
		r.Get("/miners", svc.GetMinerRankings)
		r.Get("/settlements", svc.ListSettlements)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second, // sealing runs inside the request
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auction-engine listening", "port", port, "difficulty", difficulty)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down auction-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("auction-engine stopped")
}
