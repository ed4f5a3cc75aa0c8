// Command viewer runs the receiving side of a directremote session: it
// pairs with a host through a rendezvous proxy, forwards input and
// profiling samples back over the viewer-response channel, and exposes
// its own connection counters on /metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/christoph-husse/directremote/pkg/logger"
	"github.com/christoph-husse/directremote/pkg/metrics"
	"github.com/christoph-husse/directremote/pkg/options"
	"github.com/christoph-husse/directremote/pkg/transport"
	"github.com/christoph-husse/directremote/pkg/viewerresponse"
)

const version = "1.0.0"

const metricsAddr = "127.0.0.1:9091"

// responseFlushInterval is how often pending input/profiling events are
// packaged and sent back to the host, independent of the per-event
// capacity flush TrackButton/TrackAxis/TrackProfiling already trigger.
const responseFlushInterval = 50 * time.Millisecond

func main() {
	logger.Banner("directremote viewer", version)

	opt, err := options.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal("Failed to parse options: %v", err)
	}
	logger.Info("Protocol: %s://%s", opt.ProtocolScheme, opt.ProtocolAddress)
	logger.Info("Session id: %d", opt.SessionID)
	logger.Info("Target bitrate: %d kbps", opt.TargetBitrateKbps)

	registry := prometheus.NewRegistry()
	exporter := metrics.NewExporter(registry, strconv.FormatUint(opt.SessionID, 10))

	enc := viewerresponse.NewEncoder()
	logger.Info("Viewer client id: %d", enc.ClientID())

	ep := transport.NewEndpoint(false)
	ep.SetReceiveHandler(func(frame []byte) {
		logger.Debug("Received frame of %d bytes from host.", len(frame))
	})

	if err := ep.Connect(opt.ProtocolAddress, opt.SessionID); err != nil {
		logger.Fatal("Failed to connect: %v", err)
	}
	defer ep.Disconnect()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Metrics server stopped: %v", err)
		}
	}()
	logger.Success("Serving metrics on http://%s/metrics", metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(responseFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			exporter.Sync(ep.Metrics())
			enc.TrackMetrics(ep.Metrics())
			for _, packet := range enc.ToPackets() {
				if err := ep.Send(packet); err != nil {
					logger.Warn("Failed to send viewer response: %v", err)
				}
			}
			if ep.State() == transport.StateDisconnected {
				logger.Warn("Connection lost, shutting down.")
				shutdown(metricsSrv)
				return
			}
		case sig := <-sigCh:
			logger.Warn("Received signal: %v", sig)
			shutdown(metricsSrv)
			return
		}
	}
}

func shutdown(metricsSrv *http.Server) {
	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
	logger.Success("Viewer stopped")
}
