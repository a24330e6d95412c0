package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/agentcasino/engine/internal/bankroll"
	"github.com/agentcasino/engine/internal/engine"
	"github.com/agentcasino/engine/internal/insurance"
	"github.com/agentcasino/engine/internal/metrics"
	"github.com/agentcasino/engine/internal/settlement"
	"github.com/agentcasino/engine/internal/signer"
	"github.com/agentcasino/engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
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
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- House signing key ---
	keyHex := os.Getenv("HOUSE_PRIVATE_KEY")
	if keyHex == "" {
		slog.Error("HOUSE_PRIVATE_KEY not set")
		os.Exit(1)
	}
	houseKey, err := crypto.HexToECDSA(trimHexPrefix(keyHex))
	if err != nil {
		slog.Error("invalid HOUSE_PRIVATE_KEY", "err", err)
		os.Exit(1)
	}

	chainID := new(big.Int)
	if _, ok := chainID.SetString(envOr("CHAIN_ID", "1"), 10); !ok {
		slog.Error("invalid CHAIN_ID")
		os.Exit(1)
	}
	contractAddr := common.HexToAddress(os.Getenv("SETTLEMENT_CONTRACT_ADDRESS"))

	houseSigner := signer.NewLocalSigner(houseKey, chainID, contractAddr)
	houseAddr := houseSigner.Address()

	// --- Bankroll guard ---
	maxExposure, ok := new(big.Int).SetString(envOr("MAX_EXPOSURE_WEI", "0"), 10)
	if !ok {
		slog.Error("invalid MAX_EXPOSURE_WEI")
		os.Exit(1)
	}
	guard := bankroll.NewGuard(maxExposure)

	// --- Value transfer, settlement contract, insurance treasury ---
	transfer := &ledgerTransfer{}

	contract := settlement.NewContract(houseAddr, houseAddr, houseSigner, transfer, guard)
	treasury := insurance.NewTreasury(houseAddr, transfer)
	contract.SetInsuranceFund(treasury)

	// --- Event hub ---
	hub := engine.NewEventHub()
	go hub.Run()

	// --- Channel engine ---
	ticketPrice, ok := new(big.Int).SetString(envOr("TICKET_PRICE_WEI", "1000000000000000"), 10)
	if !ok {
		slog.Error("invalid TICKET_PRICE_WEI")
		os.Exit(1)
	}
	commitTimeout, err := time.ParseDuration(envOr("COMMIT_TIMEOUT", "5m"))
	if err != nil {
		slog.Error("invalid COMMIT_TIMEOUT", "err", err)
		os.Exit(1)
	}
	drawInterval, err := time.ParseDuration(envOr("DRAW_INTERVAL", "6h"))
	if err != nil {
		slog.Error("invalid DRAW_INTERVAL", "err", err)
		os.Exit(1)
	}

	eng := engine.NewEngine(houseSigner, guard, engine.Config{
		CommitTimeout: commitTimeout,
		TicketPrice:   ticketPrice,
		DrawInterval:  drawInterval,
	}, hub)
	eng.SetStore(st)

	// --- Scheduled lotto draws ---
	drawTicker := time.NewTicker(drawInterval)
	defer drawTicker.Stop()
	go func() {
		for range drawTicker.C {
			eng.RunScheduled()
		}
	}()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for cross-origin agent clients.
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
		w.Write([]byte(`{"status":"ok","service":"agentcasino-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", eng.HandleWebSocket)

		r.Post("/channel/open", eng.HandleOpenChannel)
		r.Post("/channel/close", eng.HandleCloseChannel)
		r.Get("/channel/status", eng.HandleChannelStatus)

		r.Post("/game/{game}/{action}", eng.HandleGameAction)

		r.Route("/settlement", func(r chi.Router) {
			r.Post("/channel/open", contract.HandleOpenChannel)
			r.Post("/channel/fund", contract.HandleFundHouseSide)
			r.Post("/channel/close", contract.HandleCloseChannel)
			r.Post("/challenge/start", contract.HandleStartChallenge)
			r.Post("/challenge/counter", contract.HandleCounterChallenge)
			r.Post("/challenge/resolve", contract.HandleResolveChallenge)
			r.Post("/channel/emergency-exit", contract.HandleEmergencyExit)
			r.Post("/withdraw", contract.HandleWithdrawPending)
			r.Post("/ownership/transfer", contract.HandleTransferOwnership)
			r.Post("/ownership/accept", contract.HandleAcceptOwnership)
			r.Post("/ownership/cancel", contract.HandleCancelTransferOwnership)
		})

		r.Route("/insurance", func(r chi.Router) {
			r.Get("/balance", treasury.HandleBalance)
			r.Post("/withdraw/request", treasury.HandleRequestWithdrawal)
			r.Post("/withdraw/execute", treasury.HandleExecuteWithdrawal)
			r.Post("/withdraw/cancel", treasury.HandleCancelWithdrawal)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("agentcasino-engine listening", "port", port, "house", houseAddr)
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

	slog.Info("shutting down agentcasino-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("agentcasino-engine stopped")
}

// ledgerTransfer is the settlement contract's and the insurance
// treasury's TransferPort: the value movement a real deployment would
// make as an on-chain call. No chain client is wired into this
// service, so every transfer is logged as executed; a deployment that
// puts this behind a real wallet/RPC client swaps this adapter only.
type ledgerTransfer struct{}

func (t *ledgerTransfer) Send(to common.Address, amount *big.Int) error {
	slog.Info("value transfer executed", "to", to, "amountWei", amount)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
