package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kyc-service/internal/factory"
	"kyc-service/internal/handler"
	"kyc-service/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()
	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine so shutdown signals can be handled
	go func() {
		util.Info("Starting HTTP server",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	util.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Server forced to shutdown", util.ErrorField(err))
	}

	util.Info("Server exited")
	util.Sync()
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	logger := util.Get()
	authHandler := handler.NewAuthHandler(f.AuthService(), logger)
	kycHandler := handler.NewKYCHandler(f.DocumentService(), logger)
	sumsubHandler := handler.NewSumsubHandler(f.Reconciler(), f.DocumentService(), logger)
	return handler.NewRouter(authHandler, kycHandler, sumsubHandler, f.AuthService(), logger)
}
