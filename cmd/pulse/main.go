// Command pulse runs the Pulse realtime pub/sub broker: a WebSocket
// front door over an in-process router, plus HTTP health and Prometheus
// metrics endpoints. The QUIC stub in internal/transport is not started.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"

	"github.com/tenvisio/pulse/internal/auth"
	"github.com/tenvisio/pulse/internal/broker"
	"github.com/tenvisio/pulse/internal/config"
	"github.com/tenvisio/pulse/internal/logging"
	"github.com/tenvisio/pulse/internal/metrics"
	"github.com/tenvisio/pulse/internal/relay"
	"github.com/tenvisio/pulse/internal/session"
	"github.com/tenvisio/pulse/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg)

	metricsRegistry := metrics.NewRegistry()

	sysGauges, err := metrics.NewSystemGauges()
	if err != nil {
		log.Warn().Err(err).Msg("system gauges unavailable")
	}

	router := broker.NewRouterWithConfig(broker.RouterConfig{
		MaxChannels:             cfg.MaxChannels,
		MaxSubscriptionsPerConn: cfg.MaxSubsPerConn,
		ChannelCapacity:         cfg.ChannelCapacity,
		AutoCreateChannels:      cfg.AutoCreateChannels,
		AutoDeleteEmptyChannels: cfg.AutoDeleteEmptyChannels,
	})

	var validator auth.Validator = auth.AllowAll{}
	if cfg.RequireAuth {
		if cfg.JWTSecret == "" {
			log.Fatal().Msg("PULSE_REQUIRE_AUTH is set but PULSE_JWT_SECRET is empty")
		}
		validator = auth.NewJWTValidator(cfg.JWTSecret)
	}

	var sink session.EventSink
	var relayBridge *relay.Bridge
	if cfg.NATSURL != "" {
		relayConfig := relay.DefaultConfig()
		relayConfig.URL = cfg.NATSURL
		relayBridge, err = relay.NewBridge(relayConfig, metricsRegistry)
		if err != nil {
			log.Warn().Err(err).Msg("nats relay unavailable, continuing without it")
		} else {
			sink = relayBridge
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionConfig := session.DefaultConfig()
	sessionConfig.HeartbeatIntervalMS = cfg.HeartbeatIntervalMS
	sessionConfig.PublishRatePerSec = cfg.PublishRatePerSec
	sessionConfig.PublishBurst = cfg.PublishBurst

	var wsTransport *transport.WebSocketTransport
	if cfg.EnableWebSocket {
		wsTransport, err = transport.NewWebSocketTransport(transport.WebSocketConfig{
			BindAddr:       cfg.BindAddr(),
			MaxMessageSize: cfg.MaxMessageSize,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start websocket transport")
		}
		log.Info().Str("addr", cfg.BindAddr()).Msg("websocket transport listening")
	}

	var wg sync.WaitGroup
	if wsTransport != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acceptLoop(ctx, wsTransport, router, validator, metricsRegistry, sink, sessionConfig)
		}()
	}

	if sysGauges != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sysGauges.Run(ctx, 15*time.Second)
		}()
	}

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runHTTPServer(ctx, cfg, router, metricsRegistry)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
		stop()
	}

	if wsTransport != nil {
		if err := wsTransport.Close(); err != nil {
			log.Warn().Err(err).Msg("closing websocket transport")
		}
	}
	if relayBridge != nil {
		if err := relayBridge.Close(); err != nil {
			log.Warn().Err(err).Msg("closing nats relay")
		}
	}
	wg.Wait()
	log.Info().Msg("pulse stopped")
}

// acceptLoop accepts connections from transport until ctx is cancelled,
// spawning a Session per connection.
func acceptLoop(ctx context.Context, t *transport.WebSocketTransport, router *broker.Router, validator auth.Validator, metricsRegistry *metrics.Registry, sink session.EventSink, sessionConfig session.Config) {
	for {
		conn, err := t.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go func() {
			sess := session.New(conn, router, validator, metricsRegistry, sink, sessionConfig)
			if err := sess.Run(ctx); err != nil {
				log.Debug().Err(err).Str("connection", sess.ID()).Msg("session ended")
			}
		}()
	}
}

func runHTTPServer(ctx context.Context, cfg config.Config, router *broker.Router, metricsRegistry *metrics.Registry) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := router.Stats()
		writeJSON(w, map[string]any{
			"status":        "healthy",
			"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
			"channels":      stats.ChannelCount,
			"connections":   stats.ConnectionCount,
			"subscriptions": stats.TotalSubscriptions,
		})
	})

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", metricsRegistry.Handler())
	}

	httpServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("http server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown error")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
