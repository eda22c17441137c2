package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/app"
	"github.com/sirgawain0x/metoken-orchestrator/internal/config"
	"github.com/sirgawain0x/metoken-orchestrator/internal/db"
	"github.com/sirgawain0x/metoken-orchestrator/internal/handlers"
	"github.com/sirgawain0x/metoken-orchestrator/internal/middleware"
	"github.com/sirgawain0x/metoken-orchestrator/internal/router"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.LoadConfig(configPath); err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// NETWORK accepts a configured network name or a chain ID.
	network := os.Getenv("NETWORK")
	if network == "" {
		network = "base"
	}

	db.InitDB()

	container, err := app.InitializeContainer(network)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}
	container.Start()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := config.AppConfig
	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, logrus.StandardLogger())
	engine := router.Setup(
		cfg,
		auth,
		handlers.NewMeTokenHandler(container.CreationService, container.PendingRepo, container.RecordRepo, logrus.StandardLogger()),
		handlers.NewWebSocketHandler(container.PushService, logrus.StandardLogger()),
		handlers.NewHealthHandler(container.DB),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		logrus.WithField("addr", addr).Info("MeToken orchestrator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown incomplete")
	}
	container.Shutdown()
	logrus.Info("Shutdown complete")
}
