package rendezvous

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/christoph-husse/directremote/pkg/logger"
)

// DiscoveryServer answers an HTTP probe with this rendezvous server's
// identity, so a viewer can discover which proxy instance it is talking
// to before dialing the UDP relay. Grounded on the httpAnnounceThread in
// original_source/core/ProtocolServer/main.cpp, which served a
// hand-written HTTP/1.1 response with a fixed GUID; here the id is
// generated once per process instead of hardcoded.
type DiscoveryServer struct {
	id     uuid.UUID
	server *http.Server
}

// NewDiscoveryServer returns a discovery server bound to address (e.g.
// "0.0.0.0:41988") with a freshly generated identity.
func NewDiscoveryServer(address string) *DiscoveryServer {
	d := &DiscoveryServer{id: uuid.New()}
	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handle)
	d.server = &http.Server{Addr: address, Handler: mux}
	return d
}

// ID returns this server's discovery identity.
func (d *DiscoveryServer) ID() uuid.UUID {
	return d.id
}

func (d *DiscoveryServer) handle(w http.ResponseWriter, r *http.Request) {
	body := fmt.Sprintf(`{"id":"%s"}`, d.id.String())

	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	_, _ = fmt.Fprint(w, body)
}

// Run serves until the context is canceled.
func (d *DiscoveryServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- d.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Debug("Shutting down discovery server...")
		return d.server.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
