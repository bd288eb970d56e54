package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/api"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/shutdown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the guesser over HTTP",
	Long: `Start the HTTP API.

Endpoints:
  GET  /health             liveness and catalog size
  GET  /api/v1/mutations   catalog names
  POST /api/v1/guess       run a guess, body {"target", "request", "tls", "mutations"}
  GET  /metrics            Prometheus metrics

Set server.api_key (CLGUESS_SERVER_API_KEY) to require a bearer token on
/api/v1. Private and loopback targets are refused unless --allow-private
(server.allow_private) is given.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().Duration("run-timeout", 0, "upper bound on one guess run (default 10m)")
	serveCmd.Flags().Bool("allow-private", false, "allow guesses against private and loopback addresses")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.run_timeout", serveCmd.Flags().Lookup("run-timeout"))
	viper.BindPFlag("server.allow_private", serveCmd.Flags().Lookup("allow-private"))
	viper.BindEnv("server.api_key", "CLGUESS_SERVER_API_KEY")
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := serveConfig(cfg)

	catalog, err := loadCatalog(sc.Guess.CatalogFile, nil)
	if err != nil {
		return err
	}
	guesser, limiter, err := newLimitedGuesser(sc)
	if err != nil {
		return err
	}
	if sc.Server.APIKey == "" && sc.Server.AllowPrivate {
		log.Warnw("Serving without an API key with private targets allowed")
	}

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := api.NewServer(guesser, catalog, sc.Server, log).WithLimiter(limiter)
	server := &http.Server{
		Addr:              sc.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Guess runs are synchronous, so writes wait for the whole run.
		WriteTimeout:   sc.Server.RunTimeout + 30*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	handler := shutdown.NewHandler(log, 30*time.Second)
	handler.Register("http-server", server.Shutdown)

	serverErrors := make(chan error, 1)
	go func() {
		log.Infow("HTTP server listening",
			"address", sc.Server.Addr,
			"auth", sc.Server.APIKey != "",
			"block_private", sc.Transport.BlockPrivate,
			"mutations", catalog.Len(),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	if err := handler.Wait(cmd.Context(), serverErrors); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
