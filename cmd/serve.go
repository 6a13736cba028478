package cmd

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilestitch/internal/api"
	"github.com/kiesman99/tilestitch/internal/server"
	"github.com/kiesman99/tilestitch/internal/stitch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the split/merge API",
	Long: `Start an HTTP server that provides a REST API for splitting images into
tiles, storing processed tiles and merging them back.

Examples:
  # Start server on default port 8080
  tilestitch serve

  # Start server on custom port
  tilestitch serve --port 3000

  # Start server with custom bind address and four concurrent jobs
  tilestitch serve --bind 0.0.0.0 --port 8080 --jobs 4`,
	PreRunE: bindServeFlags,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 60*time.Second, "request timeout")
	serveCmd.Flags().Int("jobs", runtime.NumCPU(), "split/merge jobs that may run at the same time")
}

func bindServeFlags(cmd *cobra.Command, _ []string) error {
	for key, flag := range map[string]string{
		"server.bind":    "bind",
		"server.port":    "port",
		"server.timeout": "timeout",
		"server.workers": "jobs",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	runner := stitch.NewRunner(newStitcher(), viper.GetInt("server.workers"), log.StandardLogger())

	// Create Chi router
	r := chi.NewRouter()

	// Add middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	// CORS middleware for API access
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	apiServer := server.NewServer(version, runner, log.StandardLogger())

	// Mount API routes at /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		api.HandlerWithOptions(apiServer, api.ChiServerOptions{
			BaseRouter:       r,
			ErrorHandlerFunc: apiServer.HandleParamError,
		})
	})

	// Legacy health endpoint (without /api/v1 prefix for backward compatibility)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      gzhttp.GzipHandler(r),
		ReadTimeout:  timeout,
		WriteTimeout: timeout + 5*time.Second,
	}

	// Graceful shutdown once the command context is cancelled by a signal.
	// The runner is closed only after in-flight handlers have drained.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-cmd.Context().Done()

		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
	}()

	log.WithFields(log.Fields{
		"addr":    addr,
		"timeout": timeout,
		"jobs":    viper.GetInt("server.workers"),
	}).Info("starting tilestitch server")
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Split endpoint: http://%s/api/v1/split\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Merge endpoint: http://%s/api/v1/merge\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		runner.Close()
		return fmt.Errorf("server error: %v", err)
	}

	<-stopped
	runner.Close()
	return nil
}
