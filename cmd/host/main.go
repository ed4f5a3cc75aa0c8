// Command host runs the sharing side of a directremote session: it pairs
// with a viewer through a rendezvous proxy, decodes the viewer's input and
// profiling back-channel, and exposes the connection's counters on
// /metrics for Prometheus to scrape.
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

// metricsAddr is where this process serves Prometheus scrapes. Purely
// additive instrumentation (SPEC_FULL.md §4.7); the original has no
// equivalent, so there is no flag for it.
const metricsAddr = "127.0.0.1:9090"

func main() {
	logger.Banner("directremote host", version)

	opt, err := options.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal("Failed to parse options: %v", err)
	}
	logger.Info("Protocol: %s://%s", opt.ProtocolScheme, opt.ProtocolAddress)
	logger.Info("Session id: %d", opt.SessionID)
	logger.Info("Input disabled: %v", opt.DisableInput)

	registry := prometheus.NewRegistry()
	exporter := metrics.NewExporter(registry, strconv.FormatUint(opt.SessionID, 10))

	dec := viewerresponse.NewDecoder()
	dec.SetListener(&loggingListener{})

	ep := transport.NewEndpoint(false)
	if !opt.DisableInput {
		ep.SetReceiveHandler(dec.ParsePacket)
	} else {
		ep.SetReceiveHandler(func([]byte) {})
	}

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

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			exporter.Sync(ep.Metrics())
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
	logger.Success("Host stopped")
}

// loggingListener reports the viewer's input and profiling events at
// debug level; a real integration would feed these into input injection
// and a performance dashboard.
type loggingListener struct{}

func (loggingListener) OnMouseAbsolute(x, y float32) {
	logger.Debug("viewer mouse absolute: (%.1f, %.1f)", x, y)
}
func (loggingListener) OnMouseRelative(dx, dy float32) {
	if dx != 0 || dy != 0 {
		logger.Debug("viewer mouse relative: (%.1f, %.1f)", dx, dy)
	}
}
func (loggingListener) OnAxisEvent(sourceType, axisID int8, value float32) {
	logger.Debug("viewer axis event: source=%d axis=%d value=%.3f", sourceType, axisID, value)
}
func (loggingListener) OnButtonEvent(sourceType int8, isPressed bool, buttonID int8, unicodeChar int32) {
	logger.Debug("viewer button event: source=%d pressed=%v button=%d char=%d", sourceType, isPressed, buttonID, unicodeChar)
}
func (loggingListener) OnProfilingEvent(sample viewerresponse.ProfilingSample) {
	logger.Debug("viewer profiling sample %d: %d metrics", sample.TrackingID, len(sample.Metrics))
}
