package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-disease-api/internal/diagnosis"
	"github.com/Brownie44l1/plant-disease-api/internal/handlers"
	"github.com/Brownie44l1/plant-disease-api/internal/metrics"
	"github.com/Brownie44l1/plant-disease-api/internal/server"
	"github.com/Brownie44l1/plant-disease-api/internal/server/middleware"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			advisor, err := loadAdvisor(cfg)
			if err != nil {
				return err
			}
			adapter, err := openClassifier(cfg, advisor.Catalog().Labels())
			if err != nil {
				return err
			}
			defer adapter.Close()

			m, err := metrics.New()
			if err != nil {
				return err
			}
			m.SetModelLoaded(adapter.Loaded())

			svc := diagnosis.New(adapter, advisor, m, diagnosis.WithMaxConcurrent(cfg.Server.MaxConcurrent))
			h := handlers.NewHandler(svc, handlers.Options{
				MaxUploadBytes:    cfg.Server.MaxUploadBytes,
				MaxTensorBytes:    handlers.TensorBodyLimit(adapter.Metadata().InputSize()),
				AllowedExtensions: cfg.Server.AllowedExtensions,
			})

			gin.SetMode(gin.ReleaseMode)
			router := server.NewRouter(h, server.RouterOptions{
				CORSOrigins: cfg.Server.CORSAllowOrigins,
				PredictLimit: middleware.RateLimitRule{
					Rate:  cfg.Server.RateLimit.RequestsPerSecond,
					Burst: cfg.Server.RateLimit.Burst,
				},
				MetricsHandler: m.Handler(),
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(server.Addr(cfg.Server.Port), router, cfg.Server.ShutdownTimeout)
			if err := srv.Run(runCtx); err != nil {
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}
}
