package boot

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/golang/glog"
)

// Status messages, each prefixed with Config.ProgName.
const (
	MsgConnected   = ": connected!\n"
	MsgExtMem      = ": DDR in use and program runs from DDR\n"
	MsgWaitAck     = ": Waiting for Console ACK.\n"
	MsgLoading     = ": Loading firmware...\n"
	MsgLoadError   = ": ERROR loading firmware\n"
	MsgRestartCPU  = ": Restart CPU to run user program...\n"
	HandoffMessage = "Restart CPU to run user program"
)

// Result summarizes a finished session.
type Result struct {
	State    State
	FileSize int
	Echoed   bool
	// LoadErr is the recovered failure of the receive step, if any.
	LoadErr error
}

// Loader runs the load sequence over a Transport.
type Loader struct {
	Transport Transport
	Config    Config
	Region    *Region
	Notifier  StateNotifier

	state State
}

// NewLoader creates a Loader and allocates its destination region.
func NewLoader(t Transport, conf Config) (*Loader, error) {
	if t == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	region, err := conf.NewRegion()
	if err != nil {
		return nil, err
	}
	return &Loader{Transport: t, Config: conf, Region: region}, nil
}

// State gets the current state.
func (l *Loader) State() State {
	return l.state
}

// Run performs one boot session:
//  1. announce with ENQ until the host responds
//  2. print identification
//  3. wait for ACK
//  4. receive and echo the image (ImageReceive only)
//  5. print the restart instruction and drain output
//
// It returns after the handoff; the caller must trigger a reset to start
// the loaded image. A non-nil error only reports a broken link.
func (l *Loader) Run() (*Result, error) {
	res := &Result{}
	if err := l.announce(); err != nil {
		return l.finish(res, fmt.Errorf("announce: %w", err))
	}
	if err := l.identify(); err != nil {
		return l.finish(res, fmt.Errorf("identify: %w", err))
	}
	if err := l.awaitAck(); err != nil {
		return l.finish(res, fmt.Errorf("await ack: %w", err))
	}
	if l.Config.Image == ImageReceive {
		if err := l.receive(res); err != nil {
			return l.finish(res, err)
		}
		if res.FileSize > 0 {
			if err := l.echo(res); err != nil {
				return l.finish(res, err)
			}
		}
	}
	l.setState(StateReady)
	if err := l.handoff(); err != nil {
		return l.finish(res, fmt.Errorf("handoff: %w", err))
	}
	return l.finish(res, nil)
}

func (l *Loader) finish(res *Result, err error) (*Result, error) {
	res.State = l.state
	return res, err
}

func (l *Loader) setState(s State) {
	if l.state == s {
		return
	}
	glog.V(2).Infof("boot: %s -> %s", l.state, s)
	l.state = s
	if n := l.Notifier; n != nil {
		n.StateChanged(s)
	}
}

func (l *Loader) puts(msg string) error {
	return l.Transport.Puts(l.Config.ProgName + msg)
}

// announce keeps sending ENQ while the transmitter is ready, until the
// host has started responding.
func (l *Loader) announce() error {
	l.setState(StateAnnouncing)
	t := l.Transport
	for {
		if t.TxReady() {
			if err := t.PutByte(ENQ); err != nil {
				return err
			}
		} else {
			runtime.Gosched()
		}
		if t.RxReady() {
			return nil
		}
	}
}

func (l *Loader) identify() error {
	if err := l.puts(MsgConnected); err != nil {
		return err
	}
	if l.Config.Memory == MemoryExternal {
		if err := l.puts(MsgExtMem); err != nil {
			return err
		}
	}
	l.setState(StateIdentified)
	return nil
}

// awaitAck blocks until the host sends ACK. Every other byte only
// re-emits the waiting notice.
func (l *Loader) awaitAck() error {
	l.setState(StateAwaitingAck)
	for {
		b, err := l.Transport.GetByte()
		if err != nil {
			return err
		}
		if b == ACK {
			return nil
		}
		glog.V(3).Infof("boot: got 0x%02X while waiting for ACK", b)
		if err := l.puts(MsgWaitAck); err != nil {
			return err
		}
	}
}

func (l *Loader) receive(res *Result) error {
	l.setState(StateReceiving)
	n, loadErr := l.Transport.RecvFile(l.Config.FirmwareName, l.Region.Buffer())
	if loadErr == nil {
		if n == 0 {
			loadErr = ErrEmptyTransfer
		} else {
			loadErr = l.Region.Commit(n)
		}
	}
	if loadErr != nil && !isRecoverable(loadErr) {
		return fmt.Errorf("receive %s: %w", l.Config.FirmwareName, loadErr)
	}
	if err := l.puts(MsgLoading); err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	if loadErr != nil {
		glog.Warningf("boot: load %s failed: %v", l.Config.FirmwareName, loadErr)
		res.LoadErr = loadErr
		if err := l.puts(MsgLoadError); err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		return nil
	}
	res.FileSize = n
	glog.V(1).Infof("boot: loaded %d bytes at 0x%08X", n, l.Region.Base)
	return nil
}

// echo sends the loaded image back for the host to compare.
func (l *Loader) echo(res *Result) error {
	l.setState(StateEchoing)
	if err := l.Transport.SendFile(l.Config.EchoName, l.Region.Bytes()); err != nil {
		return fmt.Errorf("echo %s: %w", l.Config.EchoName, err)
	}
	res.Echoed = true
	return nil
}

func (l *Loader) handoff() error {
	l.setState(StateHandoff)
	if err := l.puts(MsgRestartCPU); err != nil {
		return err
	}
	return l.Transport.TxWait()
}

// isRecoverable separates failed transfers, which are logged and skipped,
// from a broken link.
func isRecoverable(err error) bool {
	var overflow *OverflowError
	if errors.As(err, &overflow) {
		return true
	}
	return errors.Is(err, ErrEmptyTransfer) || errors.Is(err, ErrTransferFailed)
}
