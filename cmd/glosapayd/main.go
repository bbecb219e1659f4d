// glosapayd is the payment-job orchestration daemon: one process, one
// browser session, one facilitator wallet.
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/glosapay/glosapay/internal/api"
	"github.com/glosapay/glosapay/internal/clock"
	"github.com/glosapay/glosapay/internal/config"
	"github.com/glosapay/glosapay/internal/dupguard"
	"github.com/glosapay/glosapay/internal/fiat"
	"github.com/glosapay/glosapay/internal/hybrid"
	"github.com/glosapay/glosapay/internal/logger"
	"github.com/glosapay/glosapay/internal/payment"
	"github.com/glosapay/glosapay/internal/queue"
	evmsigner "github.com/glosapay/glosapay/internal/signers/evm"
	"github.com/glosapay/glosapay/internal/twofactor"
	"github.com/glosapay/glosapay/internal/webhook"
	"github.com/glosapay/glosapay/internal/x402"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is a local-development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	clk := clock.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signer, err := evmsigner.Dial(ctx, cfg.EVM.RPCURL, cfg.EVM.PrivateKey)
	if err != nil {
		logg.Error("failed to connect to EVM RPC", "error", err)
		os.Exit(1)
	}
	defer signer.Close()
	logg.Info("facilitator signer ready",
		"address", signer.Address(), "chainId", signer.ChainID(), "network", cfg.EVM.Network)

	hooks := webhook.NewDispatcher(cfg.Webhook.URL, cfg.Webhook.Timeout, clk, logg)

	// One queue per fragile resource: the portal browser session and the
	// facilitator wallet's signing path.
	browserQueue := queue.New("browser", logg)
	walletQueue := queue.New("wallet", logg)

	payments, err := payment.NewMachine(payment.Config{
		Network: cfg.EVM.Network,
		PayTo:   cfg.EVM.PayTo,
		Timeout: cfg.Payment.Timeout,
	}, signer, walletQueue, hooks, clk, logg)
	if err != nil {
		logg.Error("failed to build payment machine", "error", err)
		os.Exit(1)
	}

	tokens := twofactor.NewStore()
	guard := dupguard.NewGuard(cfg.Fiat.GuardTTL, clk)

	automator := fiat.NewRemoteAutomator(fiat.RemoteAutomatorConfig{
		URL: cfg.Fiat.AutomationURL,
	}, tokens)
	fiatOrch := fiat.NewOrchestrator(automator, browserQueue, guard, hooks, clk, logg, cfg.Fiat.QRMarker)

	coordinator := hybrid.NewCoordinator(payments, fiatOrch, logg)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Handlers{
		Payments: payments,
		Fiat:     fiatOrch,
		Hybrid:   coordinator,
		Tokens:   tokens,
		Supported: []x402.SupportedKind{
			{X402Version: x402.Version, Scheme: x402.SchemeExact, Network: cfg.EVM.Network},
		},
		Log: logg,
	}, cfg.Server.InternalAPIKey)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logg.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Warn("http shutdown incomplete", "error", err)
	}

	// Let in-flight settlements and browser jobs finish before the process
	// exits; a half-submitted transfer is worse than a slow shutdown.
	if err := walletQueue.Drain(shutdownCtx); err != nil {
		logg.Warn("wallet queue not drained", "error", err)
	}
	if err := browserQueue.Drain(shutdownCtx); err != nil {
		logg.Warn("browser queue not drained", "error", err)
	}

	if err := automator.Close(shutdownCtx); err != nil {
		logg.Warn("browser session close failed", "error", err)
	}

	logg.Info("bye")
}
