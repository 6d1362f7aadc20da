package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blackjack-lite/apps/server/internal/auth"
	"blackjack-lite/apps/server/internal/gateway"
	"blackjack-lite/apps/server/internal/ledger"
	"blackjack-lite/apps/server/internal/lobby"
	"blackjack-lite/apps/server/internal/suite"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

func main() {
	// Optional .env for local runs; real deployments set the environment.
	if err := godotenv.Load(); err == nil {
		log.Printf("[Server] Loaded .env")
	}

	authService, authMode, err := auth.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init auth manager: %v", err)
	}
	ledgerService, ledgerMode, err := ledger.NewServiceFromEnv(authMode)
	if err != nil {
		log.Fatalf("[Server] Failed to init ledger service: %v", err)
	}
	progressService, suiteMode, err := suite.NewServiceFromEnv(authMode)
	if err != nil {
		log.Fatalf("[Server] Failed to init suite progress service: %v", err)
	}
	registry, err := suite.LoadRegistry()
	if err != nil {
		log.Fatalf("[Server] Failed to load suite registry: %v", err)
	}

	lby := lobby.New(ledgerService, progressService, registry)
	gw := gateway.New(lby, authService)
	authHTTP := auth.NewHTTPHandler(authService)
	auditHTTP := ledger.NewHTTPHandler(authService, ledgerService)
	suiteHTTP := suite.NewHTTPHandler(authService, registry, progressService)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	authHTTP.RegisterRoutes(mux)
	auditHTTP.RegisterRoutes(mux)
	suiteHTTP.RegisterRoutes(mux)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[Server] Auth mode: %s", authMode)
		log.Printf("[Server] Ledger mode: %s", ledgerMode)
		log.Printf("[Server] Suite mode: %s (%d suites)", suiteMode, len(registry.List()))
		log.Printf("[Server] Starting WebSocket server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] Failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Server] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closeErr := server.Shutdown(shutdownCtx)

	lby.Close()
	closeErr = multierr.Combine(
		closeErr,
		authService.Close(),
		ledgerService.Close(),
		progressService.Close(),
	)
	if closeErr != nil {
		log.Printf("[Server] Shutdown finished with errors: %v", closeErr)
		return
	}
	log.Printf("[Server] Shutdown complete")
}
