package console

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/iob-boot/pkg/boot"
	"github.com/robotalks/iob-boot/pkg/events"
	"github.com/robotalks/iob-boot/pkg/link"
	"github.com/robotalks/iob-boot/pkg/reset"
	"github.com/robotalks/iob-boot/pkg/uart"
)

type eventLog struct {
	lock sync.Mutex
	msgs []events.Message
}

func (l *eventLog) Publish(session string, msg events.Message) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.msgs = append(l.msgs, msg)
	return nil
}

func (l *eventLog) types() []uint32 {
	l.lock.Lock()
	defer l.lock.Unlock()
	ids := make([]uint32, len(l.msgs))
	for n, msg := range l.msgs {
		ids[n] = msg.TypeID()
	}
	return ids
}

type sessionResult struct {
	res *boot.Result
	err error
}

type sessionEnv struct {
	t       *testing.T
	console *Console
	output  bytes.Buffer
	events  eventLog
	loader  *boot.Loader
	port    *uart.Port
	devCh   chan sessionResult
}

func newSessionEnv(t *testing.T, capacity int, files FileSource) *sessionEnv {
	dev, host := link.Pipe()
	env := &sessionEnv{t: t, devCh: make(chan sessionResult, 1)}
	env.console = New(host, files)
	env.console.Output = &env.output
	env.console.Publisher = &env.events
	env.console.Session = "test"
	env.console.StopOnHandoff = true

	conf := boot.NewConfig()
	conf.FirmwareSize = capacity
	env.port = uart.NewPort(dev, 0)
	loader, err := boot.NewLoader(env.port, *conf)
	require.NoError(t, err)
	env.loader = loader
	t.Cleanup(func() {
		env.port.Close()
		host.Close()
	})
	return env
}

func (e *sessionEnv) run() (*Report, *boot.Result) {
	go func() {
		res, err := e.loader.Run()
		e.devCh <- sessionResult{res, err}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := e.console.Run(ctx)
	require.NoError(e.t, err)

	select {
	case r := <-e.devCh:
		require.NoError(e.t, r.err)
		return report, r.res
	case <-time.After(5 * time.Second):
		e.t.Fatal("loader did not finish")
	}
	return nil, nil
}

func image(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 13)
	}
	return data
}

func TestSessionLoadAndVerify(t *testing.T) {
	fw := image(1024)
	env := newSessionEnv(t, 4096, Files{boot.DefaultFirmwareName: fw})
	report, res := env.run()

	require.True(t, report.Connected)
	require.Equal(t, []string{boot.DefaultFirmwareName}, report.Served)
	require.Empty(t, report.Refused)
	require.Equal(t, fw, report.Echoed[boot.DefaultEchoName])
	require.True(t, report.Verified[boot.DefaultEchoName])
	require.Equal(t, 1, report.Handoffs)
	require.Equal(t, events.ReasonHandoff, report.Reason)

	require.Equal(t, 1024, res.FileSize)
	require.True(t, res.Echoed)
	require.Equal(t, fw, env.loader.Region.Bytes())

	out := env.output.String()
	require.Equal(t, 1, strings.Count(out, boot.DefaultProgName+boot.MsgConnected))
	require.Equal(t, 1, strings.Count(out, boot.DefaultProgName+boot.MsgRestartCPU))
	require.NotContains(t, out, boot.MsgLoadError)
	require.Contains(t, out, uart.DefaultProgName+uart.MsgFileRecv)
	require.True(t, strings.Index(out, boot.MsgLoading) < strings.Index(out, boot.MsgRestartCPU))

	require.Equal(t, []uint32{
		events.ConnectedTypeID,
		events.FileServedTypeID,
		events.FileEchoedTypeID,
		events.VerifiedTypeID,
		events.HandoffTypeID,
		events.SessionEndTypeID,
	}, env.events.types())
}

func TestSessionMissingFirmware(t *testing.T) {
	env := newSessionEnv(t, 4096, Files{})
	report, res := env.run()

	require.Equal(t, []string{boot.DefaultFirmwareName}, report.Served)
	require.Empty(t, report.Echoed)
	require.Zero(t, res.FileSize)
	require.False(t, res.Echoed)
	require.Equal(t, boot.ErrEmptyTransfer, res.LoadErr)
	require.Contains(t, env.output.String(), boot.DefaultProgName+boot.MsgLoadError)
	require.Equal(t, 1, report.Handoffs)
}

func TestSessionOverflow(t *testing.T) {
	env := newSessionEnv(t, 512, Files{boot.DefaultFirmwareName: image(1024)})
	report, res := env.run()

	require.Empty(t, report.Served)
	require.Equal(t, []string{boot.DefaultFirmwareName}, report.Refused)
	require.Empty(t, report.Echoed)
	require.Zero(t, res.FileSize)
	require.Error(t, res.LoadErr)
	require.Zero(t, env.loader.Region.Len())

	out := env.output.String()
	require.Contains(t, out, boot.DefaultProgName+boot.MsgLoading)
	require.Contains(t, out, boot.DefaultProgName+boot.MsgLoadError)
	require.Contains(t, env.events.types(), events.FileRefusedTypeID)
}

func TestSessionStoresAndResets(t *testing.T) {
	dir, err := os.MkdirTemp("", "console")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	fw := image(100)
	env := newSessionEnv(t, 4096, Files{boot.DefaultFirmwareName: fw})
	env.console.OutDir = dir
	var resets int
	env.console.Resetter = reset.Func(func(context.Context) error {
		resets++
		return nil
	})
	report, _ := env.run()
	require.True(t, report.Verified[boot.DefaultEchoName])
	require.Equal(t, 1, resets)

	stored, err := os.ReadFile(filepath.Join(dir, boot.DefaultEchoName))
	require.NoError(t, err)
	require.Equal(t, fw, stored)
}

func TestSessionVerifyMismatch(t *testing.T) {
	served := image(64)
	calls := 0
	// the second lookup of the source returns a different image.
	files := FileSourceFunc(func(name string) ([]byte, error) {
		calls++
		if calls == 1 {
			return served, nil
		}
		return image(65), nil
	})
	env := newSessionEnv(t, 4096, files)
	env.console.Verify = map[string]string{boot.DefaultEchoName: "other.bin"}
	report, _ := env.run()
	require.False(t, report.Verified[boot.DefaultEchoName])
	require.Equal(t, 2, calls)
}

func TestConsoleEOT(t *testing.T) {
	dev, host := net.Pipe()
	defer dev.Close()
	defer host.Close()
	var out bytes.Buffer
	con := New(host, nil)
	con.Output = &out

	go dev.Write([]byte("bye\n\x04ignored"))
	report, err := con.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.ReasonEOT, report.Reason)
	require.Equal(t, "bye\n", out.String())
	require.False(t, report.Connected)
}

func TestConsoleLinkClosed(t *testing.T) {
	dev, host := net.Pipe()
	var out bytes.Buffer
	con := New(host, nil)
	con.Output = &out
	go func() {
		dev.Write([]byte("partial"))
		dev.Close()
	}()
	report, err := con.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.ReasonLinkDown, report.Reason)
	require.Equal(t, "partial", out.String())
}

func TestConsoleCanceled(t *testing.T) {
	dev, host := net.Pipe()
	defer dev.Close()
	defer host.Close()
	con := New(host, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	report, err := con.Run(ctx)
	require.Equal(t, context.DeadlineExceeded, err)
	require.Equal(t, events.ReasonCanceled, report.Reason)
}

func TestConsoleForwardsInput(t *testing.T) {
	dev, host := net.Pipe()
	defer dev.Close()
	defer host.Close()
	con := New(host, nil)
	con.Output = nil
	con.Input = strings.NewReader("run\n")

	go dev.Write([]byte("IOb-Bootloader" + boot.MsgRestartCPU))
	done := make(chan error, 1)
	go func() {
		_, err := con.Run(context.Background())
		done <- err
	}()

	buf := make([]byte, 4)
	dev.SetReadDeadline(time.Now().Add(time.Second))
	_, err := dev.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "run\n", string(buf))

	dev.Close()
	require.NoError(t, <-done)
}

const restartLine = "IOb-Bootloader" + boot.MsgRestartCPU

func TestConsoleSessionsShareStream(t *testing.T) {
	dev, host := link.Pipe()
	defer dev.Close()
	defer host.Close()
	stream := NewStream(host)
	defer stream.Close()

	go func() {
		dev.Write([]byte(restartLine))
		dev.Write([]byte("line one\n"))
		dev.Write([]byte("line two\n"))
		dev.Write([]byte{uart.EOT})
	}()

	var out1 bytes.Buffer
	first := New(host, nil)
	first.Output, first.Stream, first.StopOnHandoff = &out1, stream, true
	report, err := first.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.ReasonHandoff, report.Reason)
	require.Equal(t, restartLine, out1.String())

	var out2 bytes.Buffer
	second := New(host, nil)
	second.Output, second.Stream = &out2, stream
	report, err = second.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.ReasonEOT, report.Reason)
	require.Equal(t, "line one\nline two\n", out2.String())
}

func TestConsoleRunTwice(t *testing.T) {
	dev, host := link.Pipe()
	defer dev.Close()
	var out bytes.Buffer
	con := New(host, nil)
	con.Output, con.StopOnHandoff = &out, true
	defer con.Close()

	go func() {
		dev.Write([]byte(restartLine))
		dev.Write([]byte("after\n"))
		dev.Close()
	}()
	report, err := con.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.ReasonHandoff, report.Reason)

	out.Reset()
	report, err = con.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.ReasonLinkDown, report.Reason)
	require.Equal(t, "after\n", out.String())
}

func TestStreamClose(t *testing.T) {
	dev, host := link.Pipe()
	defer host.Close()
	stream := NewStream(host)
	go dev.Write([]byte("ab"))
	require.Equal(t, byte('a'), <-stream.Bytes())
	stream.Close()
	<-stream.Done()
	require.Equal(t, io.ErrClosedPipe, stream.Err())
	dev.Close()
}
