// Package link opens the byte stream between a board and its host console.
//
// Supported URLs:
//
//	tcp://host:port
//	ws://host:port/path (wss as well)
//	serial:///dev/ttyUSB1
//	/dev/ttyUSB1 (same as serial)
package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
	"golang.org/x/term"
)

// Conn is an open link.
type Conn = io.ReadWriteCloser

// Pipe creates an in-process connected pair.
func Pipe() (Conn, Conn) {
	return net.Pipe()
}

func parse(rawURL string) (*url.URL, error) {
	if strings.HasPrefix(rawURL, "/") || strings.HasPrefix(rawURL, ".") {
		return &url.URL{Scheme: "serial", Path: rawURL}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "serial"
	}
	return u, nil
}

// Dial connects to rawURL.
func Dial(ctx context.Context, rawURL string) (Conn, error) {
	u, err := parse(rawURL)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("link: dial %s", u)
	switch u.Scheme {
	case "tcp":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", u.Host)
	case "ws", "wss":
		return dialWebSocket(ctx, u)
	case "serial", "file":
		return OpenSerial(u.Path)
	}
	return nil, fmt.Errorf("unsupported link %q", rawURL)
}

func dialWebSocket(ctx context.Context, u *url.URL) (Conn, error) {
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	config, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, err
	}
	type result struct {
		conn *websocket.Conn
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		conn, err := websocket.DialConfig(config)
		resCh <- result{conn, err}
	}()
	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, res.err
		}
		res.conn.PayloadType = websocket.BinaryFrame
		return res.conn, nil
	case <-ctx.Done():
		go func() {
			if res := <-resCh; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Serial is a device file link. A terminal device is switched to raw mode
// while open.
type Serial struct {
	*os.File
	state *term.State
}

// OpenSerial opens a device file.
func OpenSerial(path string) (*Serial, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	s := &Serial{File: f}
	if fd := int(f.Fd()); term.IsTerminal(fd) {
		if s.state, err = term.MakeRaw(fd); err != nil {
			f.Close()
			return nil, fmt.Errorf("raw mode %s: %w", path, err)
		}
	}
	return s, nil
}

// Close restores the terminal mode and closes the file.
func (s *Serial) Close() error {
	if s.state != nil {
		term.Restore(int(s.File.Fd()), s.state)
		s.state = nil
	}
	return s.File.Close()
}
