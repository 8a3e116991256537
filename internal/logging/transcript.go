package logging

import (
	"bytes"
	"sync"
)

// Transcript accumulates formatted log lines in memory for the end-of-run
// notification.
type Transcript struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends p.
func (t *Transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(p)
}

// String returns everything written so far.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

