package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/christoph-husse/directremote/pkg/assembly"
	"github.com/christoph-husse/directremote/pkg/chunk"
	"github.com/christoph-husse/directremote/pkg/logger"
	"github.com/christoph-husse/directremote/pkg/metrics"
)

// State is the endpoint's connection lifecycle, grounded on
// original_source/core/RawProtocols/include/UdpProtocol.h's
// EProtocolState.
type State int32

const (
	StateDisconnected State = iota
	StateWaitingForProxy
	StateWaitingForPeer
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateWaitingForProxy:
		return "waiting-for-proxy"
	case StateWaitingForPeer:
		return "waiting-for-peer"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	handshakeInterval  = 333 * time.Millisecond
	minHandshakeTries  = 10
	watchdogInterval   = 5 * time.Second
	recvErrorBackoff   = 33 * time.Millisecond
)

// ReceiveHandler is invoked with every reassembled frame once the endpoint
// is connected. A panic inside the handler is recovered and logged, never
// allowed to bring down the receive loop (UdpProtocol::processPacket's
// try/catch around the user-supplied callback).
type ReceiveHandler func(frame []byte)

// Endpoint is one side of a paired UDP session, relayed through a
// rendezvous proxy (pkg/rendezvous). It owns a single UDP socket, a
// send-side packet assembler, and the two-level receive-side reassembly
// pipeline.
type Endpoint struct {
	conn      *net.UDPConn
	proxyAddr *net.UDPAddr
	sessionID uint64

	disableWatchdog bool

	state   atomic.Int32
	metrics metrics.ConnectionMetrics

	assembler *Assembler
	msgAsm    *assembly.MessageAssembler
	frameAsm  *assembly.FrameAssembler

	onReceive ReceiveHandler

	stopCh chan struct{}
	wg     sync.WaitGroup

	trackingSeq atomic.Uint64
}

// NewEndpoint returns a disconnected Endpoint. DisableWatchdog skips the
// 5-second liveness check, matching --disable-receive-timeout behavior in
// the original options.
func NewEndpoint(disableWatchdog bool) *Endpoint {
	e := &Endpoint{disableWatchdog: disableWatchdog}
	e.msgAsm = assembly.NewMessageAssembler(&e.metrics)
	e.frameAsm = assembly.NewFrameAssembler(&e.metrics)
	e.assembler = NewAssembler()
	e.state.Store(int32(StateDisconnected))
	return e
}

// SetReceiveHandler installs the callback invoked with every reassembled
// frame.
func (e *Endpoint) SetReceiveHandler(h ReceiveHandler) {
	e.onReceive = h
}

// State returns the endpoint's current connection state.
func (e *Endpoint) State() State {
	return State(e.state.Load())
}

// Metrics returns a point-in-time snapshot of the connection counters.
func (e *Endpoint) Metrics() metrics.ConnectionMetrics {
	return e.metrics.Snapshot()
}

// Connect dials the rendezvous proxy at address and blocks until either the
// session is paired and connected, or the handshake times out. Mirrors
// UdpProtocol::connect: send a ping every 333ms, for at least 10 tries and
// for as long as the state is WaitingForPeer.
func (e *Endpoint) Connect(address string, sessionID uint64) error {
	e.Disconnect()

	proxyAddr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return fmt.Errorf("transport: invalid proxy address %q: %w", address, err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("transport: could not open socket: %w", err)
	}

	e.conn = conn
	e.proxyAddr = proxyAddr
	e.sessionID = sessionID
	e.stopCh = make(chan struct{})
	e.state.Store(int32(StateWaitingForProxy))

	e.wg.Add(1)
	go e.recvLoop()

	for i := 0; (i < minHandshakeTries || e.State() == StateWaitingForPeer) && e.State() != StateConnected; i++ {
		e.sendControl(chunk.CommandPing, 0)
		time.Sleep(handshakeInterval)
	}

	if e.State() != StateConnected {
		logger.Error("Connection to '%s' could not be established (timeout).", address)
		e.Disconnect()
		return fmt.Errorf("transport: connection to %q timed out", address)
	}

	if !e.disableWatchdog {
		e.wg.Add(1)
		go e.watchdogLoop()
	}

	logger.Success("Connected to peer via '%s'.", address)
	return nil
}

// Disconnect tears down the socket and waits for the background goroutines
// to terminate. Safe to call multiple times. Must not be called from
// within the endpoint's own recv or watchdog goroutine — use signalClose
// there instead, or this would wait on itself.
func (e *Endpoint) Disconnect() {
	if !e.signalClose() {
		return
	}
	e.wg.Wait()
	e.conn = nil
	e.stopCh = nil
}

// signalClose transitions to Disconnected and closes the socket/stop
// channel, without waiting for goroutines to exit. Returns false if the
// endpoint was already disconnected. Safe to call from the recv or
// watchdog goroutines themselves.
func (e *Endpoint) signalClose() bool {
	if e.State() == StateDisconnected && e.conn == nil {
		return false
	}
	e.state.Store(int32(StateDisconnected))
	if e.conn != nil {
		e.conn.Close()
	}
	if e.stopCh != nil {
		select {
		case <-e.stopCh:
		default:
			close(e.stopCh)
		}
	}
	return true
}

// Send fragments and erasure-codes payload, then transmits it as one
// outgoing frame identified by a fresh, endpoint-local tracking id.
func (e *Endpoint) Send(payload []byte) error {
	trackingID := e.trackingSeq.Add(1)
	data, ecc, err := e.assembler.AssembleFrame(payload)
	if err != nil {
		return err
	}
	for _, c := range Interleave(data, ecc) {
		if err := e.sendChunk(c, trackingID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) sendControl(cmd chunk.Command, trackingID uint64) {
	c := &chunk.Chunk{
		IsControlPacket: true,
		ChunkCount:      1,
		MsgCount:        1,
		Control:         chunk.Control{Command: cmd},
	}
	if err := e.sendChunk(c, trackingID); err != nil {
		logger.Warn("Failed to send control packet: %v", err)
	}
}

func (e *Endpoint) sendChunk(c *chunk.Chunk, trackingID uint64) error {
	c.SessionID = e.sessionID
	c.TrackingID = trackingID
	_, err := e.conn.WriteToUDP(c.Marshal(), e.proxyAddr)
	return err
}

func (e *Endpoint) recvLoop() {
	defer e.wg.Done()
	buf := make([]byte, chunk.Size)

	for e.State() != StateDisconnected {
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if e.State() == StateDisconnected {
				return
			}
			logger.Warn("Could not read from socket: %v", err)
			time.Sleep(recvErrorBackoff)
			continue
		}
		if n != chunk.Size {
			e.metrics.InvalidPackets++
			continue
		}

		var c chunk.Chunk
		if !c.Unmarshal(buf) {
			e.metrics.InvalidPackets++
			continue
		}

		if c.IsControlPacket {
			e.handleControl(&c)
			continue
		}

		if e.State() != StateConnected {
			logger.Debug("Ignoring packet, since not connected.")
			continue
		}

		e.metrics.IncomingPackets++
		e.processChunk(&c)
	}
	logger.Debug("Receiving thread has terminated.")
}

func (e *Endpoint) processChunk(c *chunk.Chunk) {
	msg, complete := e.msgAsm.Process(c)
	if !complete {
		return
	}
	frame, complete := e.frameAsm.Process(msg)
	if !complete {
		return
	}
	e.deliverFrame(frame)
}

func (e *Endpoint) deliverFrame(frame *assembly.Frame) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in user-supplied packet handler: %v", r)
		}
	}()
	if e.onReceive == nil {
		return
	}
	total := 0
	for _, m := range frame.Messages {
		total += len(m)
	}
	out := make([]byte, 0, total)
	for _, m := range frame.Messages {
		out = append(out, m...)
	}
	e.onReceive(out)
}

// handleControl advances the connection state machine on an incoming
// control packet (UdpProtocol::handleControlPacket).
func (e *Endpoint) handleControl(c *chunk.Chunk) {
	switch e.State() {
	case StateConnected:
		logger.Warn("Received control packet while connected. This is unexpected.")
	case StateWaitingForPeer:
		if c.Control.Command != chunk.CommandPing {
			logger.Warn("Received a non-ping while waiting for peer.")
			return
		}
		if c.Control.IsLinkEstablished {
			logger.Debug("Connection to peer '%v:%d' established.", c.Control.PeerAddr, c.Control.PeerPort)
			e.state.Store(int32(StateConnected))
		}
	case StateWaitingForProxy:
		if c.Control.Command != chunk.CommandPing {
			logger.Warn("Received a non-ping while waiting for proxy.")
			return
		}
		logger.Debug("Proxy server responded. My address is '%v:%d'. Waiting for peer to connect...",
			c.Control.YourAddr, c.Control.YourPort)
		e.state.Store(int32(StateWaitingForPeer))
	}
}

func (e *Endpoint) watchdogLoop() {
	defer e.wg.Done()
	var lastCount int64

	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.State() == StateDisconnected {
				return
			}
			cur := e.metrics.IncomingPackets
			if cur == lastCount {
				logger.Warn("No packets received in %s, disconnecting.", watchdogInterval)
				e.signalClose()
				return
			}
			lastCount = cur
		}
	}
}
