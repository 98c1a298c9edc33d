package rudp

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soypat/rudp/datagram"
	"github.com/soypat/rudp/internal"
	"github.com/soypat/rudp/metrics"
	"github.com/soypat/rudp/wire"
)

// Config configures a Conn's local behavior. The zero Config is valid and
// selects the package defaults.
type Config struct {
	// RecvBufferSize caps receive-buffer accounting and the receive queue
	// capacity. Zero selects DefaultRecvBufferSize.
	RecvBufferSize uint32
	// LossRate is the ingress simulated-drop probability in [0,1], forwarded
	// to the underlying datagram.Endpoint.
	LossRate float64
	// Logger receives trace/debug output. If nil and the RUDP_LOG=1
	// environment variable is set, a file-backed TraceHandler is created
	// automatically (see logsink.go); Role then picks the log file name.
	Logger *slog.Logger
	// Role names this side for the RUDP_LOG file ("client" or "server"),
	// producing client_log.txt / server_log.txt per spec.md §6.3. Ignored
	// when Logger is non-nil.
	Role string
	// MetricsAddr, when non-empty, starts a net/http server on this address
	// exposing metrics.go's counters/histograms at /metrics via promhttp.
	// The server runs for the lifetime of the Conn and is shut down by Free.
	MetricsAddr string
}

// Conn is one RDP connection: a ControlBlock (state machine, sender,
// receiver, flow control) driving a single datagram.Endpoint. A Conn is not
// safe for concurrent use; per the protocol's single-threaded cooperative
// model, at most one goroutine may be inside Send, Recv, or Close at a time.
type Conn struct {
	ep         *datagram.Endpoint
	peer       *net.UDPAddr
	cb         ControlBlock
	pktGate    internal.Backoff
	flowGate   internal.Backoff
	rq         internal.Ring // receive queue: in-order delivered bytes awaiting Recv
	logCloser  io.Closer
	ownsSocket bool
	txScratch  []byte       // reused datagram encode buffer, sized once in configure
	rxScratch  []byte       // reused datagram decode buffer, sized once in configure
	metricsSrv *http.Server // non-nil when Config.MetricsAddr started a /metrics server
}

// NewConn wraps ep as an unconnected Conn in StateClosed, ready for Connect.
// Call Listen instead to accept incoming connections.
func NewConn(ep *datagram.Endpoint, cfg Config) *Conn {
	c := &Conn{ep: ep, ownsSocket: true}
	c.configure(cfg)
	return c
}

// newAcceptedConn builds a Conn for a peer discovered by Listener.Accept,
// sharing ep with the listener per the single-peer listening design.
func newAcceptedConn(ep *datagram.Endpoint, peer *net.UDPAddr, cfg Config) *Conn {
	c := &Conn{ep: ep, peer: peer, ownsSocket: true}
	c.configure(cfg)
	return c
}

func (c *Conn) configure(cfg Config) {
	c.cb = newControlBlock(0, cfg.RecvBufferSize, cfg.LossRate)
	c.ep.SetLossRate(cfg.LossRate)
	c.rq = internal.Ring{Buf: make([]byte, c.cb.rcv.bufferSize)}
	c.pktGate = internal.NewBackoff(internal.BackoffPacketGate)
	c.flowGate = internal.NewBackoff(internal.BackoffFlowGate)
	internal.SliceReuse(&c.txScratch, wire.MaxDatagram)
	internal.SliceReuse(&c.rxScratch, wire.MaxDatagram)
	c.txScratch = c.txScratch[:wire.MaxDatagram]
	c.rxScratch = c.rxScratch[:wire.MaxDatagram]
	// Best-effort: a platform that can't tune socket buffers still works, it
	// just leans on the OS default sizing instead of recv_buffer_size.
	c.ep.Tune(int(c.cb.rcv.bufferSize), int(c.cb.rcv.bufferSize))
	if cfg.MetricsAddr != "" {
		c.startMetricsServer(cfg.MetricsAddr)
	}
	if cfg.Logger != nil {
		c.cb.log = cfg.Logger
		return
	}
	log, closer, err := openTraceFile(roleOrDefault(cfg.Role, "client"))
	if err != nil {
		return
	}
	c.cb.log = log
	c.logCloser = closer
}

// startMetricsServer launches a net/http server exposing metrics.go's
// Prometheus collectors at /metrics on addr. Bind failures are silently
// ignored: a connection is still fully usable without its metrics exposed.
func (c *Conn) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return
	}
	c.metricsSrv = srv
	go srv.Serve(ln)
}

func roleOrDefault(role, fallback string) string {
	if role == "" {
		return fallback
	}
	return role
}

// Connect performs the three-way open handshake against raddr, blocking
// until ESTABLISHED or until MaxRetries SYN retransmissions go unanswered.
func (c *Conn) Connect(raddr *net.UDPAddr) error {
	c.peer = raddr
	iss := nextISN()
	c.cb.snd = sendSpace{ISS: iss, UNA: iss, NXT: iss}
	c.cb.state = StateSynSent

	syn := Segment{SEQ: iss, Flags: FlagSYN, WND: c.cb.advertise()}
	if err := c.transmit(syn); err != nil {
		c.cb.state = StateClosed
		return err
	}
	c.cb.logSnd("SYN", iss, 0)

	for retries := 0; ; retries++ {
		outcome, seg, err := c.pollSegment(RTO)
		if err != nil {
			c.cb.state = StateClosed
			return err
		}
		matched := false
		if outcome == recvOK && seg.Flags.HasAny(FlagSYN) {
			if err := admitHandshakeAck(seg, iss+1); err != nil {
				c.cb.logReject(err, seg.SEQ)
			} else {
				matched = true
			}
		}
		if matched {
			c.cb.logRcv("SYNACK", seg.SEQ, 0)
			c.cb.rcv.IRS = seg.SEQ
			c.cb.rcv.NXT = seg.SEQ + 1
			c.cb.snd.NXT = iss + 1
			c.cb.snd.UNA = iss + 1
			c.cb.snd.lastByteSent, c.cb.snd.lastByteAcked = c.cb.snd.NXT, c.cb.snd.NXT
			c.cb.snd.peerWindow = seg.WND

			ack := Segment{SEQ: c.cb.snd.NXT, ACK: c.cb.rcv.NXT, Flags: FlagACK, WND: c.cb.advertise()}
			if err := c.transmit(ack); err != nil {
				c.cb.state = StateClosed
				return err
			}
			c.cb.state = StateEstablished
			c.cb.logPeer("CONNECTED", raddr.IP)
			metrics.ConnectionsEstablished.WithLabelValues("initiator").Inc()
			return nil
		}
		if retries >= MaxRetries {
			c.cb.state = StateClosed
			metrics.HandshakeFailures.Inc()
			return ErrHandshakeFailed
		}
		if err := c.transmit(syn); err != nil {
			c.cb.state = StateClosed
			return err
		}
		c.cb.logSnd("SYN", iss, 0)
	}
}

// Send chunks b into MSS-sized segments, gates emission on the sliding
// window and peer-advertised flow-control credit, and blocks until every
// byte has been cumulatively acknowledged. It returns len(b) on success, or
// ErrRetriesExhausted if a segment exceeds MaxRetries retransmissions.
func (c *Conn) Send(b []byte) (int, error) {
	if !c.cb.state.IsEstablished() {
		return 0, ErrNotConnected
	}
	sent := 0
	for len(b) > 0 {
		chunkLen := len(b)
		if chunkLen > MSS {
			chunkLen = MSS
		}
		for {
			ok, flowGated := c.cb.admitSend(uint32(chunkLen))
			if ok {
				break
			}
			if err := c.pumpOnce(0); err != nil {
				return sent, err
			}
			if err := c.retransmitOnce(); err != nil {
				return sent, err
			}
			if flowGated {
				c.flowGate.Wait()
			} else {
				c.pktGate.Wait()
			}
		}
		c.pktGate.Reset()
		c.flowGate.Reset()

		chunk := b[:chunkLen]
		seg := c.cb.makeDataSegment(chunk)
		if err := c.transmit(seg); err != nil {
			return sent, err
		}
		c.cb.onEmit(seg, time.Now())
		c.cb.logSnd("DATA", seg.SEQ, chunkLen)

		metrics.BytesTransferred.WithLabelValues("sent").Add(float64(chunkLen))
		b = b[chunkLen:]
		sent += chunkLen
		if err := c.pumpOnce(0); err != nil {
			return sent, err
		}
		if err := c.retransmitOnce(); err != nil {
			return sent, err
		}
	}
	for !c.cb.drained() {
		if err := c.pumpOnce(RTO); err != nil {
			return sent, err
		}
		if err := c.retransmitOnce(); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

// Recv returns the next available bytes into b, which may be fewer than
// len(b) if that is all that has arrived so far. It blocks until at least
// one byte is available.
func (c *Conn) Recv(b []byte) (int, error) {
	if !c.cb.state.IsEstablished() {
		return 0, ErrNotConnected
	}
	for c.rq.Buffered() == 0 {
		if err := c.retransmitOnce(); err != nil {
			return 0, err
		}
		if err := c.pumpOnce(RTO); err != nil {
			return 0, err
		}
	}
	n, err := c.rq.Read(b)
	if err != nil && err != io.EOF {
		return 0, err
	}
	c.cb.discharge(uint32(n))
	metrics.BytesTransferred.WithLabelValues("received").Add(float64(n))
	return n, nil
}

// Close runs the simplified four-way close: send a FIN, wait for the peer's
// ACK and FIN (in either order), ACK the peer's FIN, and transition to
// CLOSED. The wait is bounded by MaxRetries*RTO since this design does not
// retransmit a lost FIN.
func (c *Conn) Close() error {
	if c.cb.state.IsClosed() {
		return nil
	}
	if !c.cb.state.IsEstablished() {
		return ErrConnectionClosing
	}
	finSeq := c.cb.snd.NXT
	fin := Segment{SEQ: finSeq, ACK: c.cb.rcv.NXT, Flags: FlagFIN, WND: c.cb.advertise()}
	if err := c.transmit(fin); err != nil {
		return err
	}
	c.cb.snd.NXT++
	c.cb.state = StateFinWait1
	c.cb.logSnd("FIN", finSeq, 0)

	deadline := time.Now().Add(closeWaitMax)
	var ackSeen, finSeen bool
	for (!ackSeen || !finSeen) && time.Now().Before(deadline) {
		outcome, seg, err := c.pollSegment(RTO)
		if err != nil {
			break
		}
		if outcome != recvOK {
			continue
		}
		if !ackSeen && seg.Flags.HasAny(FlagACK) && seg.ACK == finSeq+1 {
			ackSeen = true
			c.cb.state = StateFinWait2
		}
		if !finSeen && seg.Flags.HasAny(FlagFIN) {
			finSeen = true
			c.cb.logRcv("FIN", seg.SEQ, 0)
			c.cb.rcv.NXT = seg.SEQ + 1
			ack := Segment{SEQ: c.cb.snd.NXT, ACK: c.cb.rcv.NXT, Flags: FlagACK, WND: c.cb.advertise()}
			c.transmit(ack)
		}
	}
	c.cb.state = StateClosed
	return nil
}

// Free releases the connection's resources unconditionally, regardless of
// what state it was in. Per the single-peer listening design, freeing an
// accepted connection also closes the socket it shares with its Listener.
func (c *Conn) Free() error {
	c.cb.state = StateClosed
	var err error
	if c.ownsSocket && c.ep != nil {
		err = c.ep.Close()
	}
	if c.logCloser != nil {
		c.logCloser.Close()
	}
	if c.metricsSrv != nil {
		c.metricsSrv.Close()
	}
	return err
}

// State returns the connection's current protocol state.
func (c *Conn) State() State { return c.cb.state }

// Fd exposes the underlying socket's file descriptor so a caller can
// multiplex it against other readiness sources (terminal input, a second
// socket) in its own single-threaded poll loop. Only available on platforms
// datagram.Endpoint.Fd supports.
func (c *Conn) Fd() (int, error) { return c.ep.Fd() }

// PollOnce services at most one arrived segment without blocking, for a
// caller driving its own poll loop instead of calling Send/Recv directly.
// It returns immediately if nothing is pending.
func (c *Conn) PollOnce() error {
	if err := c.retransmitOnce(); err != nil {
		return err
	}
	return c.pumpOnce(0)
}

// Buffered returns the number of bytes already staged in the receive queue
// and ready for Recv to return without blocking.
func (c *Conn) Buffered() int { return c.rq.Buffered() }

func (c *Conn) transmit(seg Segment) error {
	n, err := wire.Encode(c.txScratch, seg.header(), seg.Payload)
	if err != nil {
		return err
	}
	if err := c.ep.SendTo(c.txScratch[:n], c.peer); err != nil {
		return err
	}
	metrics.SegmentsSent.WithLabelValues(segmentKind(seg)).Inc()
	return nil
}

// segmentKind classifies seg for metrics labeling.
func segmentKind(seg Segment) string {
	switch {
	case seg.Flags.HasAll(synack):
		return "synack"
	case seg.Flags.HasAll(finack):
		return "finack"
	case seg.Flags.HasAny(FlagSYN):
		return "syn"
	case seg.Flags.HasAny(FlagFIN):
		return "fin"
	case seg.DataLen() > 0:
		return "data"
	default:
		return "ack"
	}
}

// recvOutcome classifies one pollSegment call, folding datagram.Result and
// the codec's malformed case into a single three-way result the send/recv
// loops branch on.
type recvOutcome uint8

const (
	recvTimeout recvOutcome = iota
	recvOK
	recvNone // simulated-drop or malformed datagram: treat as no arrival.
)

func (c *Conn) pollSegment(timeout time.Duration) (recvOutcome, Segment, error) {
	result, n, raddr, err := c.ep.RecvAny(c.rxScratch, timeout)
	if err != nil {
		return recvTimeout, Segment{}, err
	}
	switch result {
	case datagram.Timeout:
		return recvTimeout, Segment{}, nil
	case datagram.Dropped:
		c.cb.trace("DROP INGRESS")
		metrics.SegmentsDropped.WithLabelValues("simulated_loss").Inc()
		return recvNone, Segment{}, nil
	}
	if c.peer == nil {
		c.peer = raddr
	}
	hdr, payload, err := wire.Decode(c.rxScratch[:n])
	if err != nil {
		metrics.SegmentsDropped.WithLabelValues("malformed").Inc()
		return recvNone, Segment{}, nil
	}
	return recvOK, segmentFromHeader(hdr, payload), nil
}

// pumpOnce polls the endpoint once and dispatches whatever arrived.
func (c *Conn) pumpOnce(timeout time.Duration) error {
	outcome, seg, err := c.pollSegment(timeout)
	if err != nil {
		return err
	}
	if outcome != recvOK {
		return nil
	}
	return c.handleIncoming(seg)
}

// handleIncoming folds one arrived segment into the sender (ACK) and/or
// receiver (data) state, staging any delivered bytes into the receive queue
// and replying with a cumulative ACK when required. SYN/FIN segments
// arriving outside a handshake or close loop are not expected in this
// design's single-threaded model and are ignored here.
func (c *Conn) handleIncoming(seg Segment) error {
	if err := c.cb.admitSegment(seg); err != nil {
		c.cb.logReject(err, seg.SEQ)
		metrics.SegmentsDropped.WithLabelValues("rejected").Inc()
		return nil
	}
	metrics.SegmentsReceived.WithLabelValues(segmentKind(seg)).Inc()
	if seg.Flags.HasAny(FlagACK) {
		c.cb.logRcvAck(seg.ACK)
		c.cb.handleAck(seg, time.Now())
	}
	if seg.DataLen() == 0 {
		return nil
	}
	c.cb.logRcv("DATA", seg.SEQ, seg.DataLen())
	delivered, ackNeeded := c.cb.handleData(seg)
	if len(delivered) > 0 {
		if _, err := c.rq.Write(delivered); err != nil {
			c.cb.logDrop("DATA", seg.SEQ) // receive queue saturated; rely on retransmission.
			metrics.SegmentsDropped.WithLabelValues("recv_queue_full").Inc()
		}
	}
	if ackNeeded {
		return c.transmit(c.cb.makeAck())
	}
	return nil
}

// retransmitOnce retransmits any send-window entries whose RTO has
// elapsed, returning ErrRetriesExhausted if one has hit MaxRetries.
func (c *Conn) retransmitOnce() error {
	due, exhaustedSeq, exhausted := c.cb.scanRetransmits(time.Now())
	for _, d := range due {
		if err := c.transmit(d.seg); err != nil {
			return err
		}
		c.cb.logRetx(d.seg.SEQ, d.seg.DataLen())
		metrics.Retransmissions.Inc()
	}
	if exhausted {
		c.cb.logTimeout(exhaustedSeq)
		return ErrRetriesExhausted
	}
	return nil
}
