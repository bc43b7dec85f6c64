package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alchemab/aab/internal/cloud/providers/s3"
	"github.com/alchemab/aab/internal/gateway"
	"github.com/alchemab/aab/internal/http"
	"github.com/alchemab/aab/internal/logging"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the companion upload gateway",
		Long: `Run the HTTP gateway that presigns multipart uploads against S3.

AWS credentials come from the default chain (environment, shared config,
instance role). Set AAB_GATEWAY_JWT_SECRET to require signed caller tokens.

Examples:
  aab serve
  aab serve --listen 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext(cmd)

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if listen != "" {
				cfg.Gateway.Listen = listen
			}
			if err := cfg.ValidateForGateway(); err != nil {
				return err
			}

			logger := logging.NewLogger("server")

			httpClient, err := http.CreateOptimizedClient(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create storage HTTP client: %w", err)
			}

			backend, err := s3.NewBackend(ctx, s3.Options{
				Bucket:        cfg.Gateway.Bucket,
				ResultsBucket: cfg.Gateway.ResultsBucket,
				Region:        cfg.Gateway.Region,
				Endpoint:      cfg.Gateway.Endpoint,
				PresignExpiry: time.Duration(cfg.Gateway.PresignExpirySeconds) * time.Second,
				HTTPClient:    httpClient,
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			logger.Info().
				Str("listen", cfg.Gateway.Listen).
				Str("bucket", cfg.Gateway.Bucket).
				Str("region", cfg.Gateway.Region).
				Msg("Starting gateway")
			return gateway.NewServer(cfg.Gateway, backend, logger).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	return cmd
}
