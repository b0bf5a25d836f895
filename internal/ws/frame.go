package ws

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// RFC 6455 GUID appended to the client key when computing Sec-WebSocket-Accept.
const acceptMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Frame opcodes (server-side subset: text and close only, no fragmentation).
const (
	opcodeText  = 0x1
	opcodeClose = 0x8
)

// ErrClosed is returned by ReadMessage once the peer has sent a close
// frame or the underlying connection is gone.
var ErrClosed = errors.New("ws: connection closed")

// Conn wraps a raw TCP connection with server-side WebSocket framing.
// Reads happen from a single goroutine (the receive loop); writes are
// serialised with a mutex so broadcasts from other goroutines cannot
// interleave frames.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader

	wmu       sync.Mutex
	closeOnce sync.Once
}

func newConn(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		br:   bufio.NewReader(conn),
	}
}

// RemoteAddr returns the peer address of the underlying connection.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// acceptKey computes Sec-WebSocket-Accept for a client-supplied key.
func acceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptMagic))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Handshake reads the HTTP upgrade request and completes the WebSocket
// handshake. The request must carry "Upgrade: websocket" and a
// Sec-WebSocket-Key; anything else gets a 400 and the connection is
// left for the caller to close.
func (c *Conn) Handshake() error {
	var (
		upgrade bool
		key     string
	)

	// Request line first, then headers until the blank line.
	if _, err := c.br.ReadString('\n'); err != nil {
		return fmt.Errorf("reading request line: %w", err)
	}

	for {
		line, err := c.br.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading handshake header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "upgrade":
			upgrade = strings.EqualFold(value, "websocket")
		case "sec-websocket-key":
			key = value
		}
	}

	if !upgrade || key == "" {
		body := "WebSocket handshake failed"
		resp := "HTTP/1.1 400 Bad Request\r\n" +
			"Connection: close\r\n" +
			"Content-Type: text/plain\r\n" +
			fmt.Sprintf("Content-Length: %d\r\n", len(body)) +
			"\r\n" + body
		_, _ = c.conn.Write([]byte(resp))
		return fmt.Errorf("not a websocket upgrade request")
	}

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey(key) + "\r\n\r\n"
	if _, err := c.conn.Write([]byte(resp)); err != nil {
		return fmt.Errorf("writing handshake response: %w", err)
	}

	return nil
}

// ReadMessage reads frames until it can deliver one text payload.
// A close frame, or any I/O error, ends the stream with ErrClosed:
// callers treat every error as end-of-stream.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		var hdr [2]byte
		if _, err := io.ReadFull(c.br, hdr[:]); err != nil {
			return nil, ErrClosed
		}

		opcode := hdr[0] & 0x0f
		masked := hdr[1]&0x80 != 0
		length := uint64(hdr[1] & 0x7f)

		switch length {
		case 126:
			var ext [2]byte
			if _, err := io.ReadFull(c.br, ext[:]); err != nil {
				return nil, ErrClosed
			}
			length = uint64(binary.BigEndian.Uint16(ext[:]))
		case 127:
			var ext [8]byte
			if _, err := io.ReadFull(c.br, ext[:]); err != nil {
				return nil, ErrClosed
			}
			length = binary.BigEndian.Uint64(ext[:])
		}

		var mask [4]byte
		if masked {
			if _, err := io.ReadFull(c.br, mask[:]); err != nil {
				return nil, ErrClosed
			}
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(c.br, payload); err != nil {
			return nil, ErrClosed
		}
		if masked {
			for i := range payload {
				payload[i] ^= mask[i%4]
			}
		}

		switch opcode {
		case opcodeClose:
			return nil, ErrClosed
		case opcodeText:
			return payload, nil
		default:
			// Control and binary frames are not part of the protocol;
			// skip them and keep reading.
			continue
		}
	}
}

// WriteMessage sends one unfragmented, unmasked text frame.
func (c *Conn) WriteMessage(payload []byte) error {
	header := make([]byte, 0, 10)
	header = append(header, 0x80|opcodeText)

	switch n := len(payload); {
	case n <= 125:
		header = append(header, byte(n))
	case n <= 65535:
		header = append(header, 126)
		header = binary.BigEndian.AppendUint16(header, uint16(n))
	default:
		header = append(header, 127)
		header = binary.BigEndian.AppendUint64(header, uint64(n))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.conn.Write(header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// Close sends a close frame and tears down the TCP connection. It is
// idempotent and never fails from the caller's perspective; a broken
// socket is already closed as far as anyone cares.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_, _ = c.conn.Write([]byte{0x88, 0x00})
		c.wmu.Unlock()
		_ = c.conn.Close()
	})
}
