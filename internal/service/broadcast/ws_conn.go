package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 4096
)

var errConnClosed = errors.New("connection closed")

// WSConn adapts a gorilla websocket to Conn. gorilla allows one concurrent
// writer, so every write goes through mu.
type WSConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn, done: make(chan struct{})}
}

// Send writes one text frame. The write deadline is ctx's deadline, or writeWait.
func (w *WSConn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errConnClosed
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// Ping sends a ping control frame.
func (w *WSConn) Ping(timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errConnClosed
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// ReadLoop reads and discards client frames until the peer goes away or
// nothing (not even a pong) arrives within idle. It closes the connection on return.
func (w *WSConn) ReadLoop(idle time.Duration) error {
	defer w.Close()
	w.conn.SetReadLimit(maxInboundSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(idle))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(idle))
	})
	for {
		if _, _, err := w.conn.NextReader(); err != nil {
			return err
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(idle))
	}
}

// Done is closed once Close has run.
func (w *WSConn) Done() <-chan struct{} {
	return w.done
}

// Close sends a best-effort close frame and releases the socket. Safe to call repeatedly.
func (w *WSConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		err = w.conn.Close()
		w.mu.Unlock()
		close(w.done)
	})
	return err
}
