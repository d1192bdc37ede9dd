package link

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/iob-boot/pkg/framework"
)

// Listen waits for the first peer on rawURL (tcp or ws) and returns its
// connection. Later peers are refused.
func Listen(ctx context.Context, rawURL string) (Conn, error) {
	u, err := parse(rawURL)
	if err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	switch u.Scheme {
	case "tcp":
		l, err := lc.Listen(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		glog.Infof("link: waiting for peer on %s", l.Addr())
		var conn net.Conn
		err = fx.RunWithContextCloser(ctx, l, func() (err error) {
			conn, err = l.Accept()
			return
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "ws":
		l, err := lc.Listen(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		glog.Infof("link: waiting for websocket peer on %s%s", l.Addr(), u.Path)
		return acceptWebSocket(ctx, l, u)
	}
	return nil, fmt.Errorf("cannot listen on %q", rawURL)
}

// wsPeer keeps the websocket handler alive until the peer is closed.
type wsPeer struct {
	*websocket.Conn
	once sync.Once
	done chan struct{}
}

func (p *wsPeer) Close() error {
	err := p.Conn.Close()
	p.once.Do(func() { close(p.done) })
	return err
}

func acceptWebSocket(ctx context.Context, l net.Listener, u *url.URL) (Conn, error) {
	path := u.Path
	if path == "" {
		path = "/"
	}
	var taken atomic.Bool
	peerCh := make(chan *wsPeer, 1)
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Handler(func(conn *websocket.Conn) {
		if !taken.CompareAndSwap(false, true) {
			glog.Warningf("link: refused extra peer %s", conn.Request().RemoteAddr)
			return
		}
		conn.PayloadType = websocket.BinaryFrame
		peer := &wsPeer{Conn: conn, done: make(chan struct{})}
		peerCh <- peer
		<-peer.done
	}))
	srv := &http.Server{Handler: mux}
	go srv.Serve(l)

	select {
	case peer := <-peerCh:
		// the peer connection is hijacked and outlives the listener.
		l.Close()
		return peer, nil
	case <-ctx.Done():
		srv.Close()
		return nil, ctx.Err()
	}
}
