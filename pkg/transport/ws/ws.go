// Package ws carries BDX frames over WebSocket, one binary message per frame.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rescp17/bdx/pkg/bdx"
	"github.com/rescp17/bdx/pkg/transport"
)

// DefaultWriteTimeout bounds a single frame write when ctx has no deadline.
const DefaultWriteTimeout = 10 * time.Second

// maxFrameSize is the largest frame a peer may send: a header, a block
// counter and a block of the largest possible size, with room for an Init
// carrying a long designator and metadata.
const maxFrameSize = bdx.FrameHeaderSize + 4 + 1<<16 + 1<<16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn adapts a WebSocket connection to transport.Conn.
type Conn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	once sync.Once
}

var _ transport.Conn = (*Conn)(nil)

// Dial connects to a BDX WebSocket endpoint such as ws://host:port/bdx.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return newConn(conn), nil
}

// Upgrade turns an HTTP request into a BDX connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return newConn(conn), nil
}

func newConn(conn *websocket.Conn) *Conn {
	conn.SetReadLimit(maxFrameSize)
	return &Conn{conn: conn}
}

// Send writes frame as one binary message.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return c.mapError(ctx, err)
	}
	return nil
}

// Receive reads the next binary message. Text messages are a protocol error
// on this transport.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	c.conn.SetReadDeadline(deadline)

	// Cancellation without a deadline still has to unblock ReadMessage.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	typ, msg, err := c.conn.ReadMessage()
	if err != nil {
		return nil, c.mapError(ctx, err)
	}
	if typ != websocket.BinaryMessage {
		return nil, fmt.Errorf("websocket: unexpected message type %d", typ)
	}
	return msg, nil
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return transport.ContextError(ctx)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", transport.ErrTimeout, err)
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", transport.ErrClosed, err)
	}
	return err
}
