package boot

import (
	"bytes"
	"runtime"
	"sync"
)

// fakeTransport scripts the host side of a session.
//
// TxReady answers come from txReady (txDefault once exhausted), RxReady turns
// true after rxReadyAfter polls, and GetByte pops from input. When input is
// empty GetByte blocks until halt is closed and then ends the goroutine, which
// lets tests observe a loader that would otherwise wait forever.
type fakeTransport struct {
	txReady      []bool
	txDefault    bool
	rxReadyAfter int
	neverRxReady bool
	input        []byte

	recvData []byte
	recvErr  error
	sendErr  error

	halt chan struct{}

	lock      sync.Mutex
	out       bytes.Buffer
	events    []string
	lastTx    bool
	txViolate int
	rxPolls   int
	enqSent   int
	recvDst   []byte
	sentName  string
	sentData  []byte
	recvCalls int
	sendCalls int
	txWaits   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{txDefault: true, halt: make(chan struct{})}
}

func (f *fakeTransport) record(ev string) {
	f.events = append(f.events, ev)
}

func (f *fakeTransport) PutByte(b byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.lastTx {
		f.txViolate++
	}
	if b == ENQ {
		f.enqSent++
	}
	f.out.WriteByte(b)
	return nil
}

func (f *fakeTransport) GetByte() (byte, error) {
	f.lock.Lock()
	if len(f.input) > 0 {
		b := f.input[0]
		f.input = f.input[1:]
		f.lock.Unlock()
		return b, nil
	}
	f.lock.Unlock()
	<-f.halt
	runtime.Goexit()
	return 0, nil
}

func (f *fakeTransport) TxReady() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	ready := f.txDefault
	if len(f.txReady) > 0 {
		ready, f.txReady = f.txReady[0], f.txReady[1:]
	}
	f.lastTx = ready
	return ready
}

func (f *fakeTransport) RxReady() bool {
	f.lock.Lock()
	f.rxPolls++
	never, polls, after := f.neverRxReady, f.rxPolls, f.rxReadyAfter
	f.lock.Unlock()
	if never {
		select {
		case <-f.halt:
			runtime.Goexit()
		default:
		}
		return false
	}
	return polls > after
}

func (f *fakeTransport) Puts(s string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.out.WriteString(s)
	f.record("puts:" + s)
	return nil
}

func (f *fakeTransport) RecvFile(name string, dst []byte) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.recvCalls++
	f.recvDst = dst
	f.record("recv:" + name)
	if f.recvErr != nil {
		return 0, f.recvErr
	}
	if len(f.recvData) > len(dst) {
		return 0, &OverflowError{Size: len(f.recvData), Capacity: len(dst)}
	}
	return copy(dst, f.recvData), nil
}

func (f *fakeTransport) SendFile(name string, src []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sendCalls++
	f.sentName = name
	f.sentData = append([]byte(nil), src...)
	f.record("send:" + name)
	return f.sendErr
}

func (f *fakeTransport) TxWait() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.txWaits++
	f.record("txwait")
	return nil
}

func (f *fakeTransport) output() string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.out.String()
}

func (f *fakeTransport) stop() {
	close(f.halt)
}
