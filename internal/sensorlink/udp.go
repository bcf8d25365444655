package sensorlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/navfusion/internal/monitoring"
)

// UDPListener receives telemetry datagrams, each holding one or more
// newline separated lines, and passes every line to a handler.
type UDPListener struct {
	address string
	rcvBuf  int
	handler LineHandler

	conn    atomic.Pointer[net.UDPConn]
	lines   atomic.Uint64
	errs    atomic.Uint64
	errLog  *monitoring.Limiter
	started chan struct{}
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address string // host:port to listen on
	RcvBuf  int    // socket receive buffer, bytes; 0 keeps the OS default
	Handler LineHandler
}

// NewUDPListener returns a listener; Start opens the socket.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	return &UDPListener{
		address: cfg.Address,
		rcvBuf:  cfg.RcvBuf,
		handler: cfg.Handler,
		errLog:  monitoring.NewLimiter(100),
		started: make(chan struct{}),
	}
}

// Start listens until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("[sensorlink] failed to set UDP receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	l.conn.Store(conn)
	close(l.started)
	monitoring.Logf("[sensorlink] UDP listener started on %s", conn.LocalAddr())

	buffer := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a short deadline lets the loop observe cancellation
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("[sensorlink] UDP read error: %v", err)
			continue
		}
		l.HandleDatagram(buffer[:n])
	}
}

// HandleDatagram splits a datagram into lines and handles each one.
func (l *UDPListener) HandleDatagram(payload []byte) {
	handleDatagram(payload, l.handler, &l.lines, &l.errs, l.errLog)
}

// LocalAddr returns the bound address once Start has opened the socket, or
// nil before that.
func (l *UDPListener) LocalAddr() net.Addr {
	if c := l.conn.Load(); c != nil {
		return c.LocalAddr()
	}
	return nil
}

// Started is closed once the socket is open.
func (l *UDPListener) Started() <-chan struct{} { return l.started }

// Stats returns the line counters.
func (l *UDPListener) Stats() LinkStats {
	return LinkStats{Lines: l.lines.Load(), Errors: l.errs.Load()}
}

func handleDatagram(payload []byte, h LineHandler, lines, errs *atomic.Uint64, errLog *monitoring.Limiter) {
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines.Add(1)
		if h == nil {
			continue
		}
		if err := h(line); err != nil {
			errs.Add(1)
			if errLog.Allow() {
				monitoring.Logf("[sensorlink] dropping line %q: %v (%d errors)", line, err, errs.Load())
			}
		}
	}
}
