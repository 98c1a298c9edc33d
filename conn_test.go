package rudp

import (
	"net"
	"testing"
	"time"

	"github.com/soypat/rudp/datagram"
)

func dialPair(t *testing.T) (client *Conn, server *Conn) {
	t.Helper()
	ln, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan *Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	clientEp, err := datagram.Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	client = NewConn(clientEp, Config{})
	if err := client.Connect(ln.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Accept")
	}
	t.Cleanup(func() { client.Free(); server.Free() })
	return client, server
}

func TestHandshakeEstablishesConnection(t *testing.T) {
	client, server := dialPair(t)
	if client.State() != StateEstablished {
		t.Fatalf("client state = %v; want ESTABLISHED", client.State())
	}
	if server.State() != StateEstablished {
		t.Fatalf("server state = %v; want ESTABLISHED", server.State())
	}
	if client.cb.rcv.IRS != server.cb.snd.ISS {
		t.Fatalf("client IRS %d != server ISS %d", client.cb.rcv.IRS, server.cb.snd.ISS)
	}
	if server.cb.rcv.IRS != client.cb.snd.ISS {
		t.Fatalf("server IRS %d != client ISS %d", server.cb.rcv.IRS, client.cb.snd.ISS)
	}
}

func TestConnectNoResponderFails(t *testing.T) {
	ep, err := datagram.Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer ep.Close()
	// An address nobody is listening on: the handshake must exhaust its
	// retries and report ErrHandshakeFailed rather than block forever.
	deadEp, err := datagram.Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	dead := deadEp.LocalAddr().(*net.UDPAddr)
	deadEp.Close()

	c := NewConn(ep, Config{})
	start := time.Now()
	err = c.Connect(dead)
	if err != ErrHandshakeFailed {
		t.Fatalf("got err %v; want ErrHandshakeFailed", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %v; want CLOSED after failed handshake", c.State())
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("handshake failure took too long: %v", elapsed)
	}
}

func sendAll(t *testing.T, c *Conn, data []byte) {
	t.Helper()
	n, err := c.Send(data)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != len(data) {
		t.Fatalf("Send returned %d; want %d", n, len(data))
	}
}

func recvAll(t *testing.T, c *Conn, want int) []byte {
	t.Helper()
	out := make([]byte, 0, want)
	buf := make([]byte, 4096)
	deadline := time.Now().Add(5 * time.Second)
	for len(out) < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after receiving %d/%d bytes", len(out), want)
		}
		n, err := c.Recv(buf)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func TestSendRecvSmallPayload(t *testing.T) {
	client, server := dialPair(t)
	msg := []byte("hello, reliable datagram protocol")
	sendAll(t, client, msg)
	got := recvAll(t, server, len(msg))
	if string(got) != string(msg) {
		t.Fatalf("got %q; want %q", got, msg)
	}
}

func TestSendRecvMultiSegment(t *testing.T) {
	client, server := dialPair(t)
	payload := make([]byte, MSS*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	sendAll(t, client, payload)
	got := recvAll(t, server, len(payload))
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d; want %d", i, got[i], payload[i])
		}
	}
}

func TestSendRecvBidirectional(t *testing.T) {
	client, server := dialPair(t)
	toServer := []byte("ping")
	toClient := []byte("pong")

	sendAll(t, client, toServer)
	if got := recvAll(t, server, len(toServer)); string(got) != string(toServer) {
		t.Fatalf("server got %q; want %q", got, toServer)
	}
	sendAll(t, server, toClient)
	if got := recvAll(t, client, len(toClient)); string(got) != string(toClient) {
		t.Fatalf("client got %q; want %q", got, toClient)
	}
}

func TestSendRecvWithSimulatedLoss(t *testing.T) {
	ln, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, Config{LossRate: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	clientEp, err := datagram.Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	client := NewConn(clientEp, Config{LossRate: 0.2})
	if err := client.Connect(ln.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("Connect under loss: %v", err)
	}
	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Accept under loss")
	}
	defer func() { client.Free(); server.Free() }()

	payload := make([]byte, MSS*4)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	sendAll(t, client, payload)
	got := recvAll(t, server, len(payload))
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d corrupted under simulated loss: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestCloseBothSides(t *testing.T) {
	client, server := dialPair(t)

	done := make(chan error, 1)
	go func() { done <- server.Close() }()
	if err := client.Close(); err != nil {
		t.Fatalf("client.Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server.Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server.Close")
	}
	if !client.State().IsClosed() {
		t.Fatalf("client state = %v; want a closed state", client.State())
	}
	if !server.State().IsClosed() {
		t.Fatalf("server state = %v; want a closed state", server.State())
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	ep, err := datagram.Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer ep.Close()
	c := NewConn(ep, Config{})
	_, err = c.Send([]byte("x"))
	if err != ErrNotConnected {
		t.Fatalf("got %v; want ErrNotConnected", err)
	}
}
