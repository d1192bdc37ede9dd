package console

import (
	"io"
	"sync"
)

// Stream reads a link in the background. It belongs to the link, not to a
// session: bytes read after one Run returns are held for the next Run on
// the same Stream.
type Stream struct {
	byteCh chan byte
	done   chan struct{}
	stop   chan struct{}
	once   sync.Once
	err    error
}

// NewStream starts reading r.
func NewStream(r io.Reader) *Stream {
	s := &Stream{
		byteCh: make(chan byte),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go s.readLoop(r)
	return s
}

// Bytes delivers the received bytes in order.
func (s *Stream) Bytes() <-chan byte {
	return s.byteCh
}

// Done is closed after the link failed and every byte read before the
// failure has been delivered, or after Close.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error which ended the stream, valid after Done.
func (s *Stream) Err() error {
	return s.err
}

// Close stops delivering bytes. A read blocked on the link only returns
// when the link itself is closed; Done follows after that.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *Stream) readLoop(r io.Reader) {
	defer close(s.done)
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			select {
			case s.byteCh <- b:
			case <-s.stop:
				s.err = io.ErrClosedPipe
				return
			}
		}
		if err != nil {
			s.err = err
			return
		}
	}
}
