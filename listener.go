package rudp

import (
	"net"

	"github.com/soypat/rudp/datagram"
	"github.com/soypat/rudp/metrics"
	"github.com/soypat/rudp/wire"
)

// Listener accepts a single incoming connection at a time on a bound socket,
// per the protocol's single-peer listening design: there is no per-source
// demultiplexing, so a second peer's SYN arriving while the first connection
// is established is simply ignored by that connection's poll loop.
type Listener struct {
	ep  *datagram.Endpoint
	cfg Config
}

// Listen binds a Listener to laddr.
func Listen(laddr *net.UDPAddr, cfg Config) (*Listener, error) {
	ep, err := datagram.Listen(laddr)
	if err != nil {
		return nil, err
	}
	ep.SetLossRate(cfg.LossRate)
	return &Listener{ep: ep, cfg: cfg}, nil
}

// LocalAddr returns the listener's bound local address.
func (l *Listener) LocalAddr() net.Addr { return l.ep.LocalAddr() }

// Close releases the listening socket.
func (l *Listener) Close() error { return l.ep.Close() }

// Accept blocks until a peer completes the three-way handshake, returning an
// ESTABLISHED Conn. A candidate that sends a SYN but never completes the
// handshake (no valid ACK after MaxRetries SYNACK retransmissions, each
// followed by an RTO wait) is discarded and Accept resumes listening for the
// next SYN.
func (l *Listener) Accept() (*Conn, error) {
	for {
		var buf [wire.MaxDatagram]byte
		result, n, raddr, err := l.ep.RecvAny(buf[:], -1)
		if err != nil {
			return nil, err
		}
		if result != datagram.OK {
			continue
		}
		hdr, _, err := wire.Decode(buf[:n])
		if err != nil {
			continue
		}
		if hdr.Flags&wire.FlagSYN == 0 || hdr.Flags&wire.FlagACK != 0 {
			continue // not a bare SYN: either noise or a stray segment for a past connection.
		}

		peerCfg := l.cfg
		peerCfg.Role = roleOrDefault(l.cfg.Role, "server")
		c := newAcceptedConn(l.ep, raddr, peerCfg)
		peerISN := hdr.Seq
		iss := nextISN()
		c.cb.rcv.IRS = peerISN
		c.cb.rcv.NXT = peerISN + 1
		c.cb.snd = sendSpace{ISS: iss, UNA: iss, NXT: iss}
		c.cb.state = StateSynReceived
		c.cb.logRcv("SYN", peerISN, 0)

		synAck := Segment{SEQ: iss, ACK: c.cb.rcv.NXT, Flags: synack, WND: c.cb.advertise()}
		if err := c.transmit(synAck); err != nil {
			continue
		}
		c.cb.logSnd("SYNACK", iss, 0)

		accepted := false
		for retries := 0; retries <= MaxRetries; retries++ {
			outcome, seg, err := c.pollSegment(RTO)
			if err != nil {
				break
			}
			if outcome == recvOK {
				if err := admitHandshakeAck(seg, iss+1); err != nil {
					c.cb.logReject(err, seg.SEQ)
				} else {
					c.cb.snd.NXT = iss + 1
					c.cb.snd.UNA = iss + 1
					c.cb.snd.lastByteSent, c.cb.snd.lastByteAcked = iss+1, iss+1
					c.cb.snd.peerWindow = seg.WND
					c.cb.state = StateEstablished
					c.cb.logPeer("ACCEPTED", raddr.IP)
					metrics.ConnectionsEstablished.WithLabelValues("responder").Inc()
					accepted = true
					break
				}
			}
			if retries < MaxRetries {
				if err := c.transmit(synAck); err != nil {
					break
				}
				c.cb.logSnd("SYNACK", iss, 0)
			}
		}
		if !accepted {
			c.cb.state = StateClosed
			continue
		}
		return c, nil
	}
}

