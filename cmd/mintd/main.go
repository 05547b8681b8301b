package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/justcoinit/basemint/internal/auth"
	"github.com/justcoinit/basemint/internal/config"
	"github.com/justcoinit/basemint/internal/contract"
	"github.com/justcoinit/basemint/internal/ipfs"
	"github.com/justcoinit/basemint/internal/metadata"
	"github.com/justcoinit/basemint/internal/mint"
	"github.com/justcoinit/basemint/internal/server"
	"github.com/justcoinit/basemint/internal/sponsor"
	"github.com/justcoinit/basemint/internal/wallet"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Wallet provider and session ───────────────────────────────────────────
	home := wallet.ChainParams{
		ChainID:     big.NewInt(cfg.Chain.ChainID),
		Name:        cfg.Chain.NetworkName,
		Currency:    "ETH",
		RPCURL:      cfg.Chain.RPCURL,
		ExplorerURL: cfg.Chain.ExplorerURL,
	}
	provider, err := wallet.NewNodeProvider(home, strings.TrimPrefix(cfg.Chain.WalletPrivateKey, "0x"))
	if err != nil {
		log.Fatal("wallet provider init failed", zap.Error(err))
	}
	session := wallet.NewSession(provider, home, log)

	// ── Contract binding ──────────────────────────────────────────────────────
	eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal("dial rpc failed", zap.Error(err))
	}
	minter, err := contract.NewClient(common.HexToAddress(cfg.Chain.ContractAddress), eth)
	if err != nil {
		log.Fatal("contract binding failed", zap.Error(err))
	}

	// ── Paymaster and pinning clients ─────────────────────────────────────────
	paymaster := sponsor.NewClient(cfg.Paymaster.APIURL, cfg.Paymaster.APIKey, log)
	pins := ipfs.NewClient(cfg.Pinning.APIURL, cfg.Pinning.APIKey)
	preparer := metadata.NewPreparer(pins, log)

	// ── Mint orchestrator ─────────────────────────────────────────────────────
	fallbackPrice, ok := new(big.Int).SetString(cfg.Mint.FallbackPriceWei, 10)
	if !ok {
		log.Fatal("invalid MINT_FALLBACK_PRICE_WEI")
	}
	orch := mint.NewOrchestrator(
		session,
		minter,
		paymaster,
		preparer,
		rdb,
		fallbackPrice,
		cfg.Mint.FallbackGasLimit,
		time.Duration(cfg.Mint.StatusTTLSec)*time.Second,
		log,
	)
	session.OnReload(orch.Reset)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(session, orch, rdb, log),
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func newRouter(session server.SessionControl, minter server.Minter, rdb *redis.Client, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api", auth.Verify(rdb, log))
	server.NewHandler(session, minter, log).Register(api)
	return r
}
