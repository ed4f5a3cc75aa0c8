// Package rendezvous implements the pairing proxy two endpoints dial to
// find each other across NATs: a UDP session-pairing relay plus an HTTP
// discovery endpoint, grounded on
// original_source/core/ProtocolServer/main.cpp.
package rendezvous

import (
	"net"
	"sync"

	"github.com/christoph-husse/directremote/pkg/chunk"
	"github.com/christoph-husse/directremote/pkg/logger"
)

// MaxMappings bounds the pairing table; once exceeded the whole table is
// cleared, matching the original's "mappings.size() > 5000" eviction,
// which favors simplicity (and bounded memory) over preserving existing
// pairings under session-id exhaustion or abuse.
const MaxMappings = 5000

// mapping pairs the first two distinct source addresses seen for a given
// session id. isValid becomes true once a second, different address shows
// up — the session is then considered paired.
type mapping struct {
	isValid    bool
	sourceAddr *net.UDPAddr
	targetAddr *net.UDPAddr
}

// Server is the UDP rendezvous relay: it learns session-id -> address
// pairings from control pings and forwards data chunks verbatim between
// the two paired peers.
type Server struct {
	conn *net.UDPConn

	mu       sync.Mutex
	mappings map[uint64]*mapping
}

// NewServer returns a Server bound to the given UDP address, e.g.
// "0.0.0.0:41988".
func NewServer(address string) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}
	return &Server{conn: conn, mappings: make(map[uint64]*mapping)}, nil
}

// Close releases the server's socket.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Run processes incoming datagrams until the socket is closed or stop is
// closed.
func (s *Server) Run(stop <-chan struct{}) {
	buf := make([]byte, chunk.Size)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n != chunk.Size {
			continue
		}

		var c chunk.Chunk
		if !c.Unmarshal(buf[:n]) {
			continue
		}

		s.handle(&c, addr, buf[:n])
	}
}

func (s *Server) handle(c *chunk.Chunk, addr *net.UDPAddr, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.mappings) > MaxMappings {
		s.mappings = make(map[uint64]*mapping)
	}

	m, ok := s.mappings[c.SessionID]
	if !ok {
		logger.Debug("Starting new pairing for '%s'.", addr)
		s.mappings[c.SessionID] = &mapping{sourceAddr: addr}
		return
	}

	if c.IsControlPacket {
		s.handleControl(c, addr, m)
		return
	}

	s.forwardData(c.SessionID, addr, m, raw)
}

func (s *Server) handleControl(c *chunk.Chunk, addr *net.UDPAddr, m *mapping) {
	if c.Control.Command != chunk.CommandPing {
		return
	}

	for i := range c.ECC {
		c.ECC[i] = 0
	}
	c.Control.IsLinkEstablished = m.isValid
	setAddrFields(&c.Control.YourAddr, &c.Control.YourPort, addr)

	if !m.isValid && !addrEqual(m.sourceAddr, addr) {
		m.targetAddr = addr
		m.isValid = true
	}

	if m.isValid {
		peer := m.targetAddr
		if !addrEqual(m.sourceAddr, addr) {
			peer = m.sourceAddr
		}
		setAddrFields(&c.Control.PeerAddr, &c.Control.PeerPort, peer)
		logger.Debug("Processing ping from '%s'. Now paired with '%s'!", addr, peer)
	} else {
		logger.Debug("Processing ping from '%s'. Waiting for peer to connect...", addr)
	}

	s.conn.WriteToUDP(c.Marshal(), addr)
}

func (s *Server) forwardData(sessionID uint64, addr *net.UDPAddr, m *mapping, raw []byte) {
	if !m.isValid {
		delete(s.mappings, sessionID)
		return
	}

	var target *net.UDPAddr
	switch {
	case addrEqual(m.sourceAddr, addr):
		target = m.targetAddr
	case addrEqual(m.targetAddr, addr):
		target = m.sourceAddr
	default:
		delete(s.mappings, sessionID)
		return
	}

	s.conn.WriteToUDP(raw, target)
}

func setAddrFields(ipField *[4]byte, portField *uint16, addr *net.UDPAddr) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(ipField[:], ip4)
	}
	*portField = uint16(addr.Port)
}

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
