package server

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// client is the outbound half of one connection: an ordered, bounded queue
// of encoded frames drained by writePump. Only the hub enqueues and closes.
//
// Why: the hub must never block on a slow socket, and clients rely on seeing
// messages in the order the hub produced them. One FIFO per connection with a
// single writer gives both; a full queue drops rather than stalls the hub.
type client struct {
	out       chan []byte
	closeOnce sync.Once
}

func newClient(queueSize int) *client {
	if queueSize < 1 {
		queueSize = 1
	}
	return &client{out: make(chan []byte, queueSize)}
}

// enqueue adds data without blocking. It reports false when the queue is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.out) })
}

// writePump writes queued frames in order until the queue is closed, then
// closes the socket. A failed write closes the socket so the read side
// notices.
func writePump(ctx context.Context, socket *websocket.Conn, c *client, writeTimeout time.Duration) {
	for data := range c.out {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := socket.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			socket.CloseNow()
			return
		}
	}
	socket.Close(websocket.StatusNormalClosure, "")
}

// heartbeat pings the peer every interval until ctx is done. A ping that is
// not answered within timeout closes the socket, which ends the read loop.
// Pongs are only processed while the connection is being read.
func heartbeat(ctx context.Context, socket *websocket.Conn, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, timeout)
			err := socket.Ping(pctx)
			cancel()
			if err != nil {
				socket.CloseNow()
				return
			}
		}
	}
}
