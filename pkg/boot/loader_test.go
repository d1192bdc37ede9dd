package boot

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T, tr *fakeTransport, mod func(*Config)) *Loader {
	conf := NewConfig()
	conf.FirmwareSize = 4096
	if mod != nil {
		mod(conf)
	}
	l, err := NewLoader(tr, *conf)
	require.NoError(t, err)
	return l
}

func firmware(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func countLines(out, msg string) int {
	return strings.Count(out, DefaultProgName+msg)
}

func TestLoaderReceiveAndEcho(t *testing.T) {
	tr := newFakeTransport()
	tr.rxReadyAfter = 3
	tr.input = []byte{ACK}
	tr.recvData = firmware(1024)
	l := newTestLoader(t, tr, nil)

	var states []State
	l.Notifier = StateChangedFunc(func(s State) { states = append(states, s) })

	res, err := l.Run()
	require.NoError(t, err)
	require.Equal(t, 1024, res.FileSize)
	require.True(t, res.Echoed)
	require.NoError(t, res.LoadErr)
	require.Equal(t, StateHandoff, res.State)

	require.Equal(t, 1, tr.recvCalls)
	require.Len(t, tr.recvDst, 4096)
	require.Equal(t, 1, tr.sendCalls)
	require.Equal(t, DefaultEchoName, tr.sentName)
	require.Equal(t, tr.recvData, tr.sentData)
	require.Equal(t, tr.recvData, l.Region.Bytes())
	require.Equal(t, 1, tr.txWaits)

	require.Equal(t, []State{
		StateAnnouncing,
		StateIdentified,
		StateAwaitingAck,
		StateReceiving,
		StateEchoing,
		StateReady,
		StateHandoff,
	}, states)

	require.Equal(t, []string{
		"puts:" + DefaultProgName + MsgConnected,
		"recv:" + DefaultFirmwareName,
		"puts:" + DefaultProgName + MsgLoading,
		"send:" + DefaultEchoName,
		"puts:" + DefaultProgName + MsgRestartCPU,
		"txwait",
	}, tr.events)
}

func TestLoaderAnnounceRespectsTxReady(t *testing.T) {
	tr := newFakeTransport()
	tr.txReady = []bool{false, true, false, false, true, false, true}
	tr.txDefault = false
	tr.rxReadyAfter = 7
	tr.input = []byte{ACK}
	l := newTestLoader(t, tr, func(c *Config) { c.Image = ImagePreloaded })

	_, err := l.Run()
	require.NoError(t, err)
	require.Zero(t, tr.txViolate)
	require.Equal(t, 3, tr.enqSent)
	require.True(t, strings.HasPrefix(tr.output(), strings.Repeat(string(ENQ), 3)+DefaultProgName))
}

func TestLoaderAckGate(t *testing.T) {
	tr := newFakeTransport()
	tr.input = []byte{'x', ENQ, 0x00, 0x07, ACK, 'y'}
	l := newTestLoader(t, tr, func(c *Config) { c.Image = ImagePreloaded })

	_, err := l.Run()
	require.NoError(t, err)
	require.Equal(t, 4, countLines(tr.output(), MsgWaitAck))
	// bytes after ACK are not consumed by the gate.
	require.Equal(t, []byte{'y'}, tr.input)
}

func TestLoaderExternalMemory(t *testing.T) {
	tr := newFakeTransport()
	tr.input = []byte{ACK}
	l := newTestLoader(t, tr, func(c *Config) {
		c.Image = ImagePreloaded
		c.Memory = MemoryExternal
	})

	_, err := l.Run()
	require.NoError(t, err)
	out := tr.output()
	connected := strings.Index(out, MsgConnected)
	extmem := strings.Index(out, MsgExtMem)
	require.True(t, connected >= 0 && extmem > connected)
}

func TestLoaderLoadFailures(t *testing.T) {
	testCases := []struct {
		name    string
		data    []byte
		recvErr error
		expect  error
	}{
		{name: "empty file", data: []byte{}, expect: ErrEmptyTransfer},
		{name: "overflow", data: firmware(4097)},
		{name: "transport gave up", recvErr: ErrTransferFailed, expect: ErrTransferFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := newFakeTransport()
			tr.input = []byte{ACK}
			tr.recvData, tr.recvErr = tc.data, tc.recvErr
			l := newTestLoader(t, tr, nil)

			res, err := l.Run()
			require.NoError(t, err)
			require.Zero(t, res.FileSize)
			require.False(t, res.Echoed)
			require.Error(t, res.LoadErr)
			if tc.expect != nil {
				require.True(t, errors.Is(res.LoadErr, tc.expect))
			} else {
				var overflow *OverflowError
				require.True(t, errors.As(res.LoadErr, &overflow))
				require.Equal(t, 4096, overflow.Capacity)
			}

			out := tr.output()
			require.Equal(t, 1, countLines(out, MsgLoadError))
			require.Equal(t, 1, countLines(out, MsgRestartCPU))
			require.Zero(t, tr.sendCalls)
			require.Equal(t, 1, tr.txWaits)
			require.Zero(t, l.Region.Len())
		})
	}
}

func TestLoaderLinkBroken(t *testing.T) {
	tr := newFakeTransport()
	tr.input = []byte{ACK}
	tr.recvErr = errors.New("link closed")
	l := newTestLoader(t, tr, nil)

	res, err := l.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "link closed")
	require.Equal(t, StateReceiving, res.State)
	require.Zero(t, tr.txWaits)
}

func TestLoaderPreloadedSkipsTransfer(t *testing.T) {
	tr := newFakeTransport()
	tr.input = []byte{ACK}
	l := newTestLoader(t, tr, func(c *Config) { c.Image = ImagePreloaded })
	require.NoError(t, l.Region.Load(firmware(100)))

	res, err := l.Run()
	require.NoError(t, err)
	require.Zero(t, tr.recvCalls)
	require.Zero(t, tr.sendCalls)
	require.Zero(t, res.FileSize)
	require.Equal(t, 100, l.Region.Len())
	require.NotContains(t, tr.output(), MsgLoading)
	require.Equal(t, 1, countLines(tr.output(), MsgRestartCPU))
	require.Equal(t, 1, tr.txWaits)
}

func TestLoaderHandoffIsLast(t *testing.T) {
	for _, image := range []ImageSource{ImageReceive, ImagePreloaded} {
		for _, data := range [][]byte{nil, firmware(10)} {
			tr := newFakeTransport()
			tr.input = []byte{ACK}
			tr.recvData = data
			l := newTestLoader(t, tr, func(c *Config) { c.Image = image })

			_, err := l.Run()
			require.NoError(t, err)
			n := len(tr.events)
			require.True(t, n >= 2)
			require.Equal(t, "puts:"+DefaultProgName+MsgRestartCPU, tr.events[n-2])
			require.Equal(t, "txwait", tr.events[n-1])
			require.Equal(t, 1, countLines(tr.output(), MsgRestartCPU))
		}
	}
}

func TestLoaderHangsWithoutHost(t *testing.T) {
	tr := newFakeTransport()
	tr.neverRxReady = true
	tr.txReady = []bool{true, true, true}
	tr.txDefault = false
	l := newTestLoader(t, tr, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run()
	}()

	select {
	case <-done:
		t.Fatal("loader returned without a host")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, bytes.Repeat([]byte{ENQ}, 3), []byte(tr.output()))
	require.Equal(t, StateAnnouncing, l.State())

	tr.stop()
	<-done
}

func TestLoaderHangsWithoutAck(t *testing.T) {
	tr := newFakeTransport()
	tr.input = []byte{'a', 'b'}
	l := newTestLoader(t, tr, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run()
	}()

	select {
	case <-done:
		t.Fatal("loader passed the ACK gate without ACK")
	case <-time.After(50 * time.Millisecond):
	}
	tr.stop()
	<-done
	require.Equal(t, 2, countLines(tr.output(), MsgWaitAck))
	require.Zero(t, tr.recvCalls)
}

func TestLoaderEchoLinkBroken(t *testing.T) {
	tr := newFakeTransport()
	tr.input = []byte{ACK}
	tr.recvData = firmware(16)
	tr.sendErr = errors.New("link closed")
	l := newTestLoader(t, tr, nil)

	res, err := l.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "echo "+DefaultEchoName)
	require.Equal(t, StateEchoing, res.State)
	require.Equal(t, 16, res.FileSize)
	require.False(t, res.Echoed)
	require.Zero(t, tr.txWaits)
	require.NotContains(t, tr.output(), MsgRestartCPU)
}
