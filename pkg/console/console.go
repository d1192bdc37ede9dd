// Package console implements the host side of the IOb-UART boot protocol:
// it answers the device announcement, serves the requested files, collects
// the echoed ones and prints everything else.
package console

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/iob-boot/pkg/boot"
	"github.com/robotalks/iob-boot/pkg/events"
	"github.com/robotalks/iob-boot/pkg/reset"
	"github.com/robotalks/iob-boot/pkg/uart"
)

// Report summarizes a console session.
type Report struct {
	Connected bool
	Served    []string
	Refused   []string
	Echoed    map[string][]byte
	// Verified maps echoed names to whether they matched their source.
	Verified map[string]bool
	Handoffs int
	// Reason is why the session ended, one of the events.Reason values.
	Reason string
}

type pendingFile struct {
	name string
	data []byte
}

// Console serves one device over Link.
type Console struct {
	Link   io.ReadWriter
	Files  FileSource
	Output io.Writer
	// OutDir stores files sent by the device when not empty.
	OutDir  string
	Session string

	Publisher events.Publisher
	// Resetter is triggered when the device asks to be restarted.
	Resetter reset.Resetter
	// Verify maps the name of an echoed file to the source it must equal.
	Verify map[string]string
	// StopOnHandoff ends the session after the restart request.
	StopOnHandoff bool
	// Input is forwarded to the device once the firmware runs.
	Input       io.Reader
	MaxFileSize uint32
	// Stream reads Link. Sessions sharing a link must share the Stream;
	// Run creates one when nil.
	Stream *Stream

	parser    Parser
	report    *Report
	connected bool
	line      []byte
	pending   *pendingFile
	served    map[string][]byte
	writeLock sync.Mutex
	inputOnce sync.Once
	closers   []io.Closer
}

// New creates a Console on link serving files from files.
func New(link io.ReadWriter, files FileSource) *Console {
	return &Console{
		Link:   link,
		Files:  files,
		Output: os.Stdout,
		Verify: map[string]string{boot.DefaultEchoName: boot.DefaultFirmwareName},
	}
}

// Close releases resources attached by Config.NewConsole.
func (c *Console) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if cerr := c.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.closers = nil
	return err
}

// Run processes the link until the device sends EOT, the link closes, ctx
// is canceled or, with StopOnHandoff, the device hands off.
func (c *Console) Run(ctx context.Context) (*Report, error) {
	c.report = &Report{
		Echoed:   make(map[string][]byte),
		Verified: make(map[string]bool),
	}
	c.served = make(map[string][]byte)
	c.parser.Reset()
	c.parser.MaxFileSize = c.MaxFileSize
	c.connected, c.pending, c.line = false, nil, nil

	if c.Stream == nil {
		c.Stream = NewStream(c.Link)
		c.closers = append(c.closers, c.Stream)
	}
	stream := c.Stream
	for {
		select {
		case b := <-stream.Bytes():
			done, err := c.handle(ctx, c.parser.Parse(b))
			if err != nil {
				return c.end(events.ReasonLinkDown), err
			}
			if done {
				return c.report, nil
			}
		case <-stream.Done():
			c.flushLine()
			if err := stream.Err(); err != io.EOF {
				return c.end(events.ReasonLinkDown), err
			}
			return c.end(events.ReasonLinkDown), nil
		case <-ctx.Done():
			c.flushLine()
			return c.end(events.ReasonCanceled), ctx.Err()
		}
	}
}

func (c *Console) end(reason string) *Report {
	c.report.Reason = reason
	c.publish(&events.SessionEnd{Reason: reason})
	return c.report
}

func (c *Console) handle(ctx context.Context, pr ParseResult) (bool, error) {
	if pr.Refused {
		c.refused()
	}
	switch pr.Kind {
	case ResultEnquiry:
		if !c.connected {
			c.connected, c.report.Connected = true, true
			glog.V(1).Info("console: device connected")
			if err := c.write([]byte{uart.ACK}); err != nil {
				return false, err
			}
			c.publish(&events.Connected{Timestamp: time.Now().UnixNano()})
		}
	case ResultText:
		return c.text(ctx, pr.Byte), nil
	case ResultFileRequest:
		return false, c.serve(pr.Name)
	case ResultFileAck:
		return false, c.sendPending()
	case ResultFileReceived:
		c.received(pr.Name, pr.Data)
	case ResultFileTooLarge:
		glog.Warningf("console: ignoring %s from device: %d bytes exceeds %d", pr.Name, pr.Size, c.MaxFileSize)
	case ResultEOT:
		c.flushLine()
		c.end(events.ReasonEOT)
		return true, nil
	}
	return false, nil
}

func (c *Console) write(data []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_, err := c.Link.Write(data)
	return err
}

func (c *Console) publish(msg events.Message) {
	if c.Publisher == nil {
		return
	}
	if err := c.Publisher.Publish(c.Session, msg); err != nil {
		glog.Warningf("console: publish %T: %v", msg, err)
	}
}

func (c *Console) text(ctx context.Context, b byte) bool {
	c.line = append(c.line, b)
	if b != '\n' {
		return false
	}
	line := string(c.line)
	c.flushLine()
	if !strings.Contains(line, boot.HandoffMessage) {
		return false
	}
	return c.handoff(ctx, strings.TrimRight(line, "\r\n"))
}

func (c *Console) flushLine() {
	if len(c.line) == 0 {
		return
	}
	if c.Output != nil {
		c.Output.Write(c.line)
	}
	c.line = c.line[:0]
}

func (c *Console) serve(name string) error {
	var data []byte
	var err error
	if c.Files != nil {
		data, err = c.Files.Open(name)
	} else {
		err = ErrNoFile
	}
	if err != nil {
		// the device sees an empty file.
		glog.Warningf("console: %s requested: %v", name, err)
		data = nil
	}
	glog.V(1).Infof("console: serving %s (%d bytes)", name, len(data))
	c.pending = &pendingFile{name: name, data: data}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
	if err := c.write(size[:]); err != nil {
		return err
	}
	c.parser.ExpectAck()
	return nil
}

func (c *Console) sendPending() error {
	f := c.pending
	c.pending = nil
	if f == nil {
		return nil
	}
	if err := c.write(f.data); err != nil {
		return err
	}
	c.served[f.name] = f.data
	c.report.Served = append(c.report.Served, f.name)
	c.publish(&events.FileServed{Name: f.name, Size: uint32(len(f.data))})
	return nil
}

func (c *Console) refused() {
	f := c.pending
	c.pending = nil
	if f == nil {
		return
	}
	glog.Warningf("console: device refused %s (%d bytes)", f.name, len(f.data))
	c.report.Refused = append(c.report.Refused, f.name)
	c.publish(&events.FileRefused{Name: f.name, Size: uint32(len(f.data))})
}

func (c *Console) received(name string, data []byte) {
	glog.V(1).Infof("console: received %s (%d bytes)", name, len(data))
	c.report.Echoed[name] = data
	var path string
	if c.OutDir != "" {
		path = filepath.Join(c.OutDir, filepath.Base(name))
		if err := os.WriteFile(path, data, 0644); err != nil {
			glog.Errorf("console: store %s: %v", name, err)
			path = ""
		}
	}
	c.publish(&events.FileEchoed{Name: name, Size: uint32(len(data)), Path: path})

	src, ok := c.Verify[name]
	if !ok {
		return
	}
	orig, ok := c.served[src]
	if !ok && c.Files != nil {
		var err error
		if orig, err = c.Files.Open(src); err != nil {
			glog.Warningf("console: verify %s: %v", name, err)
			orig = nil
		}
	}
	match := orig != nil && bytes.Equal(orig, data)
	if !match {
		glog.Errorf("console: %s differs from %s", name, src)
	}
	c.report.Verified[name] = match
	c.publish(&events.Verified{Name: name, Source: src, Match: match})
}

func (c *Console) handoff(ctx context.Context, line string) bool {
	c.report.Handoffs++
	// a restarted loader announces itself again.
	c.connected = false
	var restarted bool
	if c.Resetter != nil {
		if err := c.Resetter.Reset(ctx); err != nil {
			glog.Errorf("console: reset: %v", err)
		} else {
			restarted = true
		}
	}
	c.publish(&events.Handoff{Line: line, Restarted: restarted})
	if c.Input != nil {
		c.inputOnce.Do(func() { go c.forwardInput() })
	}
	if c.StopOnHandoff {
		c.end(events.ReasonHandoff)
		return true
	}
	return false
}

func (c *Console) forwardInput() {
	buf := make([]byte, 256)
	for {
		n, err := c.Input.Read(buf)
		if n > 0 {
			if werr := c.write(buf[:n]); werr != nil {
				glog.V(1).Infof("console: input: %v", werr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}
