// Command bazaar-server serves the bazaar REST API and the socket.io endpoint
// that pushes message and notification events to connected clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/bhandras/bazaar/internal/api"
	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/internal/broker"
	"github.com/bhandras/bazaar/internal/chat"
	"github.com/bhandras/bazaar/internal/config"
	"github.com/bhandras/bazaar/internal/hub"
	"github.com/bhandras/bazaar/internal/store"
	"github.com/bhandras/bazaar/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "bazaar-server",
	Short:         "Bazaar realtime messaging server",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadServer(serverOverrides(cmd))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.String("addr", "", "listen address (default :$PORT or :3005)")
	f.String("db", "", "sqlite path or postgres:// URL (default $DATABASE_URL or ./bazaar.db)")
	f.Bool("debug", false, "enable debug logging")
	f.String("amqp", "", "RabbitMQ URL for multi-node fan-out (default $BAZAAR_AMQP_URL)")
	f.String("tls-cert", "", "PEM certificate chain; enables HTTPS together with --tls-key")
	f.String("tls-key", "", "PEM private key")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

// serverOverrides maps explicitly set flags onto config overrides.
func serverOverrides(cmd *cobra.Command) config.ServerOverrides {
	var o config.ServerOverrides
	f := cmd.Flags()
	if f.Changed("addr") {
		v, _ := f.GetString("addr")
		o.Addr = &v
	}
	if f.Changed("db") {
		v, _ := f.GetString("db")
		o.DatabaseURL = &v
	}
	if f.Changed("debug") {
		v, _ := f.GetBool("debug")
		o.Debug = &v
	}
	if f.Changed("amqp") {
		v, _ := f.GetString("amqp")
		o.AMQPURL = &v
	}
	cert, _ := f.GetString("tls-cert")
	key, _ := f.GetString("tls-key")
	if cert != "" || key != "" {
		o.TLS = &config.TLSConfig{CertFile: cert, KeyFile: key}
	}
	return o
}

func serve(parent context.Context, cfg *config.ServerConfig) error {
	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Opening database: %s", redactDSN(cfg.DatabaseURL))
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	jwtManager, err := auth.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		return fmt.Errorf("failed to create JWT manager: %w", err)
	}

	opts := hub.Options{
		Verifier:       jwtManager,
		AllowedOrigins: cfg.AllowedOrigins,
		NodeID:         cfg.NodeID,
	}
	if cfg.AMQPURL != "" {
		mq, err := broker.Dial(cfg.AMQPURL, cfg.NodeID)
		if err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
		defer mq.Close()
		opts.Fanout = mq
		logger.Infof("Broker fan-out enabled (node %s)", cfg.NodeID)
	}

	logger.Infof("Initializing Socket.IO server...")
	h, err := hub.New(opts)
	if err != nil {
		return err
	}
	defer h.Close()

	svc, err := chat.New(chat.Config{
		Store:    db,
		Emitter:  h,
		NotFound: store.ErrNotFound,
	})
	if err != nil {
		return err
	}
	h.OnConnect(func(userID string) {
		n, err := svc.Connected(ctx, userID)
		if err != nil {
			logger.Warnf("deliver pending messages to %s: %v", userID, err)
			return
		}
		if n > 0 {
			logger.Debugf("delivered %d pending messages to %s", n, userID)
		}
	})

	go func() {
		if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("broker consumer stopped: %v", err)
		}
	}()

	router := api.NewRouter(api.Deps{
		Verifier:       jwtManager,
		Chat:           svc,
		AllowedOrigins: cfg.AllowedOrigins,
		Socket:         h.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS != nil {
			logger.Infof("Bazaar Server starting on https://localhost%s", cfg.Addr)
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		logger.Infof("Bazaar Server starting on http://localhost%s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// redactDSN hides the password of a postgres URL.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
