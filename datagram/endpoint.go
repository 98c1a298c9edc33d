// Package datagram implements the UDP transport layer (C2) the protocol
// engine runs on top of: sending and receiving raw datagrams, simulating
// ingress loss for test instrumentation, and classifying socket errors as
// fatal or transient. It is grounded on the plain blocking net.UDPConn style
// of github.com/soypat/lneto's examples/tcpclient, generalized from TCP to
// UDP.
package datagram

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"
)

// ErrClosed wraps net.ErrClosed so callers can test with errors.Is without
// importing net in the common case.
var ErrClosed = net.ErrClosed

// Result classifies the outcome of a RecvAny call.
type Result uint8

const (
	// OK means a datagram was received and n/raddr are valid.
	OK Result = iota
	// Timeout means the deadline elapsed before any datagram arrived.
	Timeout
	// Dropped means a datagram arrived but was discarded by the simulated
	// ingress loss policy; equivalent to "no packet arrived" for the caller.
	Dropped
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Timeout:
		return "timeout"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Endpoint wraps a bound *net.UDPConn, providing the blocking send/receive
// primitives the connection state machine polls: sending to an explicit
// remote address and receiving the next datagram from any peer within a
// caller-supplied deadline, with an optional simulated ingress drop rate for
// exercising the retransmission path in tests.
type Endpoint struct {
	conn     *net.UDPConn
	lossRate float64
}

// Listen binds an Endpoint to laddr, ready to receive datagrams from any
// peer. A zero port lets the OS choose an ephemeral port.
func Listen(laddr *net.UDPAddr) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("datagram: listen: %w", err)
	}
	return &Endpoint{conn: conn}, nil
}

// NewEndpoint wraps an already-constructed *net.UDPConn, for callers that
// need OS-level control (e.g. SO_REUSEADDR) over how the socket is created.
func NewEndpoint(conn *net.UDPConn) *Endpoint {
	return &Endpoint{conn: conn}
}

// SetLossRate sets the ingress simulated-drop probability, clamped to
// [0,1]. Only inbound datagrams are affected; an endpoint never refuses to
// send, since egress loss is the peer's responsibility to simulate.
func (e *Endpoint) SetLossRate(rate float64) {
	if rate < 0 {
		rate = 0
	} else if rate > 1 {
		rate = 1
	}
	e.lossRate = rate
}

// LocalAddr returns the endpoint's bound local address.
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// Close releases the underlying socket.
func (e *Endpoint) Close() error { return e.conn.Close() }

// SendTo writes buf as a single UDP datagram to raddr. UDP writes are
// all-or-nothing; a short write never happens, so a non-nil error always
// means the datagram was not sent.
func (e *Endpoint) SendTo(buf []byte, raddr *net.UDPAddr) error {
	n, err := e.conn.WriteToUDP(buf, raddr)
	if err != nil {
		return classify(err)
	}
	if n != len(buf) {
		return fmt.Errorf("datagram: short write %d/%d", n, len(buf))
	}
	return nil
}

// RecvAny reads the next available datagram into buf, blocking until one
// arrives, the deadline elapses, or the Endpoint is closed.
//
// deadline == 0 polls without blocking; deadline < 0 waits indefinitely;
// deadline > 0 waits up to that long. The returned Result distinguishes a
// real arrival (OK) from a timed-out wait (Timeout) from a datagram that
// arrived but was discarded by the simulated loss policy (Dropped); only on
// OK are n and raddr meaningful. A non-nil error is always fatal (a dead or
// closed socket), never a transient condition — those are folded into the
// Result instead, matching the spec's policy that timeouts and simulated
// drops never surface as errors.
func (e *Endpoint) RecvAny(buf []byte, deadline time.Duration) (result Result, n int, raddr *net.UDPAddr, err error) {
	switch {
	case deadline > 0:
		err = e.conn.SetReadDeadline(time.Now().Add(deadline))
	case deadline == 0:
		err = e.conn.SetReadDeadline(time.Now())
	default:
		err = e.conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		return Timeout, 0, nil, fmt.Errorf("datagram: set deadline: %w", err)
	}
	n, raddr, err = e.conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return Timeout, 0, nil, nil
		}
		return Timeout, 0, nil, classify(err)
	}
	if e.lossRate > 0 && rand.Float64() < e.lossRate {
		return Dropped, 0, raddr, nil
	}
	return OK, n, raddr, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classify normalizes the net package's assorted error shapes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("datagram: %w", net.ErrClosed)
	}
	return err
}
