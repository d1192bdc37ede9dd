package sh

import (
	"io"
	"os"

	"golang.org/x/term"
)

// EscapeKey ends a terminal session (Ctrl-]).
const EscapeKey = 0x1d

const pumpDepth = 64

// rawStdin puts the terminal in raw mode so keys reach the device unbuffered.
func rawStdin() (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, oldState) }, nil
}

// inputPump reads keys ahead of the console so the escape key is seen
// before the firmware takes input. Keys are dropped while the queue is full.
type inputPump struct {
	ch   chan []byte
	done chan struct{}
	rest []byte
}

func pumpInput(src io.Reader, escape byte, onEscape func()) *inputPump {
	p := &inputPump{
		ch:   make(chan []byte, pumpDepth),
		done: make(chan struct{}),
	}
	go p.run(src, escape, onEscape)
	return p
}

func (p *inputPump) run(src io.Reader, escape byte, onEscape func()) {
	defer close(p.done)
	defer close(p.ch)
	buf := make([]byte, 256)
	for {
		n, err := src.Read(buf)
		keys, escaped := translateKeys(buf[:n], escape)
		if len(keys) > 0 {
			select {
			case p.ch <- keys:
			default:
			}
		}
		if escaped {
			if onEscape != nil {
				onEscape()
			}
			return
		}
		if err != nil {
			return
		}
	}
}

// translateKeys maps raw terminal keys to what the firmware expects and
// cuts at the escape key.
func translateKeys(in []byte, escape byte) ([]byte, bool) {
	out := make([]byte, 0, len(in))
	for _, b := range in {
		switch b {
		case escape:
			return out, true
		case '\r':
			b = '\n'
		}
		out = append(out, b)
	}
	return out, false
}

// Read implements io.Reader.
func (p *inputPump) Read(b []byte) (int, error) {
	if len(p.rest) == 0 {
		keys, ok := <-p.ch
		if !ok {
			return 0, io.EOF
		}
		p.rest = keys
	}
	n := copy(b, p.rest)
	p.rest = p.rest[n:]
	return n, nil
}

// Done is closed once the pump stops reading its source.
func (p *inputPump) Done() <-chan struct{} {
	return p.done
}

// Stopped tells whether the pump stopped reading its source.
func (p *inputPump) Stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
