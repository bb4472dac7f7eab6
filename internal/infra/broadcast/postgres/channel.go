// Package postgres broadcasts state messages between processes that share a
// PostgreSQL database, using LISTEN/NOTIFY through a pgxpool connection pool.
// One pooled connection is held for LISTEN; posts go through pg_notify on any
// pooled connection. PostgreSQL delivers a session's own notifications back to
// it, so receivers see their own posts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mfestate/pkg/domain"
)

// MaxPayloadBytes is the largest NOTIFY payload PostgreSQL accepts in its
// default configuration.
const MaxPayloadBytes = 7999

const (
	defaultPostTimeout  = 5 * time.Second
	defaultRetryBackoff = time.Second
)

type Channel struct {
	pool     *pgxpool.Pool
	ownsPool bool
	name     string

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	done   chan struct{}

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func([]byte)
}

var _ domain.Channel = (*Channel)(nil)

// Open connects to dsn and listens on the notification channel name.
func Open(ctx context.Context, dsn, name string) (*Channel, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open notify pool: %w", err)
	}
	ch, err := New(ctx, pool, name)
	if err != nil {
		pool.Close()
		return nil, err
	}
	ch.ownsPool = true
	return ch, nil
}

// New listens on name using a pool owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool, name string) (*Channel, error) {
	if name == "" {
		return nil, errors.New("notify channel name required")
	}
	conn, err := listen(ctx, pool, name)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		pool:      pool,
		name:      name,
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		listeners: make(map[uint64]func([]byte)),
	}
	go c.run(conn)
	return c, nil
}

// ListenStatement returns the LISTEN statement for name with the identifier
// quoted, so mixed-case names match pg_notify's literal channel argument.
func ListenStatement(name string) string {
	return "LISTEN " + pgx.Identifier{name}.Sanitize()
}

func listen(ctx context.Context, pool *pgxpool.Pool, name string) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, ListenStatement(name)); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", name, err)
	}
	return conn, nil
}

// CheckPayload reports ErrPayloadTooLarge for payloads NOTIFY would reject.
func CheckPayload(payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("%d bytes exceeds notify limit of %d: %w", len(payload), MaxPayloadBytes, domain.ErrPayloadTooLarge)
	}
	return nil
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Post(payload []byte) error {
	if c.closed.Load() {
		return domain.ErrChannelClosed
	}
	if err := CheckPayload(payload); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, defaultPostTimeout)
	defer cancel()
	if _, err := c.pool.Exec(ctx, "SELECT pg_notify($1, $2)", c.name, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", c.name, err)
	}
	return nil
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

// Close stops listening and, when the channel opened its own pool, closes it.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	<-c.done
	if c.ownsPool {
		c.pool.Close()
	}
	return nil
}

func (c *Channel) dispatch(payload []byte) {
	c.mu.Lock()
	listeners := make([]func([]byte), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(append([]byte(nil), payload...))
	}
}

// run waits for notifications on conn. When the connection fails it is
// dropped from the pool and LISTEN is re-issued on a fresh one.
func (c *Channel) run(conn *pgxpool.Conn) {
	defer close(c.done)
	for {
		err := c.wait(conn)
		if c.ctx.Err() != nil {
			conn.Release()
			return
		}
		glog.Infof("[n]listen %s error = %s\n", c.name, err)
		conn.Conn().Close(context.Background())
		conn.Release()

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(defaultRetryBackoff):
			}
			conn, err = listen(c.ctx, c.pool, c.name)
			if err == nil {
				break
			}
			glog.Infof("[n]relisten %s error = %s\n", c.name, err)
		}
	}
}

func (c *Channel) wait(conn *pgxpool.Conn) error {
	for {
		notification, err := conn.Conn().WaitForNotification(c.ctx)
		if err != nil {
			return err
		}
		if notification.Channel != c.name {
			continue
		}
		glog.V(2).Infof("[n]%s<- pid=%d\n", c.name, notification.PID)
		c.dispatch([]byte(notification.Payload))
	}
}
