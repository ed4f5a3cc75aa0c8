// Command rendezvous runs the pairing proxy two directremote endpoints
// dial to find each other across NATs: a UDP session-pairing relay and an
// HTTP discovery endpoint, both served from the same process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/christoph-husse/directremote/pkg/logger"
	"github.com/christoph-husse/directremote/pkg/options"
	"github.com/christoph-husse/directremote/pkg/rendezvous"
)

const version = "1.0.0"

func main() {
	logger.Banner("directremote rendezvous", version)

	opt, err := options.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal("Failed to parse options: %v", err)
	}

	srv, err := rendezvous.NewServer(opt.ProtocolAddress)
	if err != nil {
		logger.Fatal("Failed to bind UDP relay on '%s': %v", opt.ProtocolAddress, err)
	}
	logger.Success("UDP pairing relay listening on '%s'.", opt.ProtocolAddress)

	discovery := rendezvous.NewDiscoveryServer(opt.ProtocolAddress)
	logger.Info("Discovery identity: %s", discovery.ID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	stopRelay := make(chan struct{})
	relayDone := make(chan struct{})
	go func() {
		srv.Run(stopRelay)
		close(relayDone)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	discoveryDone := make(chan error, 1)
	go func() { discoveryDone <- discovery.Run(ctx) }()

	select {
	case sig := <-sigCh:
		logger.Warn("Received signal: %v", sig)
	case err := <-discoveryDone:
		if err != nil {
			logger.Error("Discovery server stopped: %v", err)
		}
	}

	logger.Info("Shutting down gracefully...")
	cancel()
	close(stopRelay)
	srv.Close()
	<-relayDone
	logger.Success("Rendezvous server stopped")
}
