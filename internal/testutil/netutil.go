// Package testutil provides small helpers shared by the package tests:
// in-memory connections, throwaway TCP listeners and a recording peer.
package testutil

import (
	"net"
	"testing"
)

// PipeConn creates a connected net.Conn pair and closes both ends when
// the test finishes.
func PipeConn(t testing.TB) (client, server net.Conn) {
	t.Helper()

	server, client = net.Pipe()

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	return client, server
}

// ListenTCP opens a listener on a random loopback port and returns it
// together with its address string.
func ListenTCP(t testing.TB) (net.Listener, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() {
		_ = ln.Close()
	})

	return ln, ln.Addr().String()
}
