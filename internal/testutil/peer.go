package testutil

import (
	"encoding/json"
	"sync"
	"testing"
)

// RecordingPeer implements protocol.Peer and records every message
// written to it. Safe for concurrent use.
type RecordingPeer struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

// NewRecordingPeer creates an empty recording peer.
func NewRecordingPeer() *RecordingPeer {
	return &RecordingPeer{}
}

// WriteMessage records a copy of the payload.
func (p *RecordingPeer) WriteMessage(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	p.messages = append(p.messages, buf)
	return nil
}

// Close marks the peer closed.
func (p *RecordingPeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Closed reports whether Close was called.
func (p *RecordingPeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Len returns the number of recorded messages.
func (p *RecordingPeer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// Message returns recorded message i.
func (p *RecordingPeer) Message(i int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[i]
}

// Last returns the most recent message, or nil.
func (p *RecordingPeer) Last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == 0 {
		return nil
	}
	return p.messages[len(p.messages)-1]
}

// DecodeLast unmarshals the most recent message into a generic map and
// fails the test if there is none.
func (p *RecordingPeer) DecodeLast(t testing.TB) map[string]any {
	t.Helper()
	return p.Decode(t, -1)
}

// Decode unmarshals recorded message i (negative counts from the end).
func (p *RecordingPeer) Decode(t testing.TB, i int) map[string]any {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 {
		i += len(p.messages)
	}
	if i < 0 || i >= len(p.messages) {
		t.Fatalf("no recorded message at index %d (have %d)", i, len(p.messages))
	}

	var out map[string]any
	if err := json.Unmarshal(p.messages[i], &out); err != nil {
		t.Fatalf("failed to decode recorded message %d: %v", i, err)
	}
	return out
}
