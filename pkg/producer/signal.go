package producer

import "sync"

// Signal is a one-shot stop message from the driver to the producer.
// Received never blocks. Once Send or Close has been called every
// subsequent Received reports true.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unsent signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Send delivers the stop message. Calls after the first are no-ops.
func (s *Signal) Send() {
	s.once.Do(func() { close(s.ch) })
}

// Close drops the sending side. A disconnected sender reads as stop.
func (s *Signal) Close() {
	s.Send()
}

// Received polls the signal without blocking.
func (s *Signal) Received() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
