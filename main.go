package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newLogger() (*zap.Logger, error) {
	level, err := getLogLevel()
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	return config.Build()
}

// newMux wires the metrics, health and index endpoints
func newMux(inverters []Inverter, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	// Expose metrics endpoint
	mux.Handle("/metrics", metrics)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Root endpoint with info
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		page := `<!DOCTYPE html>
<html>
<head><title>PIKO Exporter</title></head>
<body>
<h1>Kostal PIKO Prometheus Exporter</h1>
<p>Monitoring %d inverter(s)</p>
<ul>
%s
</ul>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>`
		var list strings.Builder
		for _, inv := range inverters {
			fmt.Fprintf(&list, "<li>%s: %s</li>\n", html.EscapeString(inv.Name), html.EscapeString(inv.Host))
		}
		fmt.Fprintf(w, page, len(inverters), list.String())
	})

	return mux
}

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	inverters, err := parseInverters()
	if err != nil {
		logger.Fatal("Configuration error", zap.Error(err))
	}
	mqttCfg, err := parseMQTTConfig()
	if err != nil {
		logger.Fatal("Configuration error", zap.Error(err))
	}

	port := getPort()
	logger.Info("Starting PIKO Prometheus Exporter", zap.String("port", port), zap.Int("inverters", len(inverters)))
	for _, inv := range inverters {
		logger.Info("Monitoring inverter", zap.String("name", inv.Name), zap.String("host", inv.Host))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create and register collector
	collector := NewCollector(inverters, logger)
	prometheus.MustRegister(collector)

	if mqttCfg != nil {
		client, err := connectMQTT(mqttCfg, logger)
		if err != nil {
			logger.Fatal("MQTT error", zap.Error(err))
		}
		defer client.Disconnect(mqttDisconnectWait)

		publisher := newStatePublisher(client, mqttCfg, collector.scrapers, logger)
		go publisher.run(ctx)
		logger.Info("Publishing inverter state over MQTT",
			zap.String("broker", mqttCfg.Broker),
			zap.String("prefix", mqttCfg.TopicPrefix),
			zap.Duration("interval", mqttCfg.Interval))
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           newMux(inverters, promhttp.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}
	logger.Info("Exporter stopped")
}
