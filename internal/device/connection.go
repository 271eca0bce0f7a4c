// Package device owns the live side of a device: the websocket connection,
// the process-wide registry of connections, and the best-effort fan-out of
// commands and status updates.
package device

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/saidarshan/devicegateway/internal/model"
)

const writeWait = time.Second * 10

// Handle is what the registry stores and the fan-out writes to.
type Handle interface {
	SendJSON(v interface{}) error
	Close() error
}

// Connection links a live websocket with the identity resolved at upgrade
// time. Writes are serialized; gorilla conns allow one concurrent writer.
type Connection struct {
	identity model.Identity
	conn     *websocket.Conn

	sendMu    sync.Mutex
	closeOnce sync.Once
}

func NewConnection(conn *websocket.Conn, identity model.Identity) *Connection {
	return &Connection{conn: conn, identity: identity}
}

// Identity returns the identity bound at upgrade. Immutable for the
// connection's lifetime.
func (c *Connection) Identity() model.Identity {
	return c.identity
}

// SendJSON writes one JSON frame under the write lock.
func (c *Connection) SendJSON(v interface{}) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.Wrap(err, "setting write deadline")
	}

	return errors.Wrap(c.conn.WriteJSON(v), "writing json frame")
}

// SendBinary writes one binary frame (provider audio) under the write lock.
func (c *Connection) SendBinary(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.Wrap(err, "setting write deadline")
	}

	return errors.Wrap(c.conn.WriteMessage(websocket.BinaryMessage, data), "writing binary frame")
}

// ReadMessage blocks for the next inbound frame.
func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

// Close shuts the websocket down once; later calls are no-ops.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})

	return err
}

// RemoteAddr of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
