package uart

import (
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"
)

// Control bytes of the IOb-UART file protocol.
const (
	STX byte = 0x02
	ETX byte = 0x03
	EOT byte = 0x04
	ENQ byte = 0x05
	ACK byte = 0x06
	FTX byte = 0x07
	FRX byte = 0x08
)

const (
	// DefaultProgName prefixes messages printed by the file primitives.
	DefaultProgName = "IOb-UART"
	// DefaultDepth is the default depth of the tx and rx FIFOs.
	DefaultDepth = 16
)

var (
	// ErrClosed indicates the port has been closed.
	ErrClosed = errors.New("port closed")
)

// Port models a UART peripheral on top of a byte link. Bytes written are
// queued in a bounded tx FIFO and drained to the link in the background;
// bytes from the link are buffered in a bounded rx FIFO. TxReady and RxReady
// report the FIFO levels the same way the peripheral status bits do.
type Port struct {
	ProgName string

	rw   io.ReadWriter
	txCh chan byte
	rxCh chan byte

	lock    sync.Mutex
	drained *sync.Cond
	pending int
	err     error
	closed  chan struct{}
}

// NewPort creates a Port over rw with FIFOs of the given depth and starts
// moving bytes. depth <= 0 selects DefaultDepth.
func NewPort(rw io.ReadWriter, depth int) *Port {
	if depth <= 0 {
		depth = DefaultDepth
	}
	p := &Port{
		ProgName: DefaultProgName,
		rw:       rw,
		txCh:     make(chan byte, depth),
		rxCh:     make(chan byte, depth),
		closed:   make(chan struct{}),
	}
	p.drained = sync.NewCond(&p.lock)
	go p.writeLoop()
	go p.readLoop()
	return p
}

// Err returns the error which stopped the port, if any.
func (p *Port) Err() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.err
}

// Close stops the port and closes the underlying link if it is an io.Closer.
func (p *Port) Close() error {
	p.fail(ErrClosed)
	if c, ok := p.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *Port) fail(err error) {
	p.lock.Lock()
	if p.err == nil {
		p.err = err
		close(p.closed)
	}
	p.drained.Broadcast()
	p.lock.Unlock()
}

// TxReady reports whether the tx FIFO accepts another byte without blocking.
func (p *Port) TxReady() bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	return len(p.txCh) < cap(p.txCh)
}

// RxReady reports whether a received byte is available. It is also true
// once the port stopped so a pending GetByte reports the failure.
func (p *Port) RxReady() bool {
	if len(p.rxCh) > 0 {
		return true
	}
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// PutByte queues b for transmission, blocking while the tx FIFO is full.
func (p *Port) PutByte(b byte) error {
	p.lock.Lock()
	if p.err != nil {
		err := p.err
		p.lock.Unlock()
		return err
	}
	p.pending++
	p.lock.Unlock()

	select {
	case p.txCh <- b:
		return nil
	case <-p.closed:
		return p.Err()
	}
}

// Write implements io.Writer.
func (p *Port) Write(data []byte) (int, error) {
	for n, b := range data {
		if err := p.PutByte(b); err != nil {
			return n, err
		}
	}
	return len(data), nil
}

// Puts queues a string.
func (p *Port) Puts(s string) error {
	_, err := io.WriteString(p, s)
	return err
}

// GetByte blocks until a byte is received.
func (p *Port) GetByte() (byte, error) {
	select {
	case b := <-p.rxCh:
		return b, nil
	case <-p.closed:
	}
	// bytes received before the failure are still delivered.
	select {
	case b := <-p.rxCh:
		return b, nil
	default:
		return 0, p.Err()
	}
}

// TxWait blocks until every queued byte has been written to the link.
func (p *Port) TxWait() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	for p.pending > 0 && p.err == nil {
		p.drained.Wait()
	}
	if p.pending > 0 {
		return p.err
	}
	return nil
}

func (p *Port) writeLoop() {
	buf := make([]byte, 0, cap(p.txCh))
	for {
		select {
		case b := <-p.txCh:
			buf = append(buf[:0], b)
		case <-p.closed:
			return
		}
	collect:
		for len(buf) < cap(buf) {
			select {
			case b := <-p.txCh:
				buf = append(buf, b)
			default:
				break collect
			}
		}
		if _, err := p.rw.Write(buf); err != nil {
			glog.V(1).Infof("uart: write error: %v", err)
			p.fail(err)
			return
		}
		p.lock.Lock()
		p.pending -= len(buf)
		if p.pending <= 0 {
			p.drained.Broadcast()
		}
		p.lock.Unlock()
	}
}

func (p *Port) readLoop() {
	buf := make([]byte, cap(p.rxCh))
	for {
		n, err := p.rw.Read(buf)
		for _, b := range buf[:n] {
			select {
			case p.rxCh <- b:
			case <-p.closed:
				return
			}
		}
		if err != nil {
			glog.V(1).Infof("uart: read error: %v", err)
			p.fail(err)
			return
		}
	}
}
