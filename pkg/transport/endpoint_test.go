package transport

import (
	"net"
	"testing"
	"time"

	"github.com/christoph-husse/directremote/pkg/chunk"
)

// fakeProxy answers every incoming control packet with an
// isLinkEstablished ping, simulating a rendezvous proxy that has already
// paired this endpoint with a peer.
func fakeProxy(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		buf := make([]byte, chunk.Size)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n != chunk.Size {
				continue
			}
			reply := chunk.Chunk{
				IsControlPacket: true,
				ChunkCount:      1,
				MsgCount:        1,
				Control: chunk.Control{
					Command:           chunk.CommandPing,
					IsLinkEstablished: true,
				},
			}
			conn.WriteToUDP(reply.Marshal(), addr)
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return conn.LocalAddr().(*net.UDPAddr)
}

func TestEndpointConnectReachesConnected(t *testing.T) {
	proxyAddr := fakeProxy(t)

	ep := NewEndpoint(true)
	defer ep.Disconnect()

	done := make(chan error, 1)
	go func() {
		done <- ep.Connect(proxyAddr.String(), 42)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Connect")
	}

	if ep.State() != StateConnected {
		t.Errorf("expected StateConnected, got %v", ep.State())
	}
}

func TestEndpointConnectTimesOutWithNoProxy(t *testing.T) {
	// Bind a socket nobody answers on, to exercise the handshake timeout.
	dead, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	addr := dead.LocalAddr().(*net.UDPAddr).String()
	dead.Close()

	ep := NewEndpoint(true)
	defer ep.Disconnect()

	if err := ep.Connect(addr, 1); err == nil {
		t.Error("expected timeout error when nothing answers the handshake")
	}
	if ep.State() != StateDisconnected {
		t.Errorf("expected StateDisconnected after timeout, got %v", ep.State())
	}
}
