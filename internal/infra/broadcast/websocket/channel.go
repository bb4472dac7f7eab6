package websocket

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"mfestate/pkg/domain"
)

// Channel is a domain.Channel backed by a websocket connection to a Hub
// room. Posts made while disconnected are buffered up to SendBufferSize and
// flushed once a connection is up. Subscribers run on the reader goroutine.
type Channel struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	settings *Settings
	dialer   *websocket.Dialer
	send     chan []byte

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func([]byte)
	connected bool
	done      chan struct{}
}

var _ domain.Channel = (*Channel)(nil)

// RoomURL joins a hub base URL (ws:// or wss://) with the route for room.
func RoomURL(base, room string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported hub url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + RoutePrefix + url.PathEscape(room)
	return u.String(), nil
}

// Dial starts a channel for room on the hub at base. It returns immediately;
// the connection is established and re-established in the background until
// ctx is done or Close is called.
func Dial(ctx context.Context, base, room string, settings *Settings) (*Channel, error) {
	target, err := RoomURL(base, room)
	if err != nil {
		return nil, err
	}
	settings = settings.withDefaults()
	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Channel{
		ctx:       cancelCtx,
		cancel:    cancel,
		url:       target,
		settings:  settings,
		dialer:    &websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout},
		send:      make(chan []byte, settings.SendBufferSize),
		listeners: make(map[uint64]func([]byte)),
		done:      make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// Connected reports whether a connection is currently up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Post queues payload for the hub. It fails with ErrChannelClosed after Close
// and with ErrBufferFull when the send buffer does not drain within
// WriteTimeout.
func (c *Channel) Post(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	message := append([]byte(nil), payload...)
	select {
	case <-c.ctx.Done():
		return domain.ErrChannelClosed
	default:
	}
	select {
	case <-c.ctx.Done():
		return domain.ErrChannelClosed
	case c.send <- message:
		return nil
	case <-time.After(c.settings.WriteTimeout):
		return ErrBufferFull
	}
}

func (c *Channel) Subscribe(fn func(payload []byte)) domain.Unsubscribe {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close stops the connection loop and waits for it to exit.
func (c *Channel) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Channel) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

func (c *Channel) dispatch(message []byte) {
	c.mu.Lock()
	listeners := make([]func([]byte), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(append([]byte(nil), message...))
	}
}

func (c *Channel) run() {
	defer close(c.done)
	defer c.cancel()

	for {
		reconnect := newReconnect(c.settings.ReconnectTimeout)
		ws, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			glog.Infof("[c]connect %s error = %s\n", c.url, err)
			select {
			case <-c.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		c.setConnected(true)
		c.handle(ws)
		c.setConnected(false)

		select {
		case <-c.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (c *Channel) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer handleCancel()

	go func() {
		defer handleCancel()
		for {
			select {
			case <-handleCtx.Done():
				return
			case message := <-c.send:
				ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
					// a websocket write deadline cannot be recovered
					glog.Infof("[cs]%s-> error = %s\n", c.url, err)
					return
				}
				glog.V(2).Infof("[cs]%s->\n", c.url)
			case <-time.After(c.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
					return
				}
			}
		}
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer handleCancel()
		for {
			ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				glog.V(1).Infof("[cr]%s<- error = %s\n", c.url, err)
				return
			}
			switch messageType {
			case websocket.BinaryMessage:
				if len(message) == 0 {
					glog.V(2).Infof("[cr]ping %s<-\n", c.url)
					continue
				}
				c.dispatch(message)
			default:
				glog.V(2).Infof("[cr]other=%d %s<-\n", messageType, c.url)
			}
		}
	}()

	<-handleCtx.Done()
	ws.Close()
	<-readDone
}
