package network

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/protocol"
)

var (
	// ErrUnknownClient нет клиента с таким индексом
	ErrUnknownClient = errors.New("unknown client")
	// ErrClientClosed соединение уже закрыто
	ErrClientClosed = errors.New("client closed")
	// ErrSendQueueFull клиент не успевает читать
	ErrSendQueueFull = errors.New("client send queue full")
)

const (
	sendQueueSize = 512
	writeTimeout  = 10 * time.Second
)

// Client одно подключение. Поля entered, playing и session защищены Server.mu.
type Client struct {
	index  int
	conn   net.Conn
	server *Server

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	session *access.AccessInfo
	entered bool
	playing bool
}

func newClient(index int, conn net.Conn, s *Server) *Client {
	return &Client{
		index:  index,
		conn:   conn,
		server: s,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) Index() int { return c.index }

// RemoteAddr адрес клиента
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Send ставит сообщение в очередь отправки, не блокируясь. Клиент с
// переполненной очередью отключается.
func (c *Client) Send(code protocol.MessageCode, payload []byte) error {
	frame, err := EncodeFrame(code, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- frame:
		c.server.metrics.frame("out", code, len(payload))
		return nil
	default:
		c.server.metrics.sendDrops.Inc()
		c.server.log.Warn("🐢 Клиент %d не успевает читать (%s), отключаем", c.index, code)
		c.close()
		return ErrSendQueueFull
	}
}

// writePump отправляет кадры из очереди до закрытия клиента
func (c *Client) writePump() {
	defer c.server.wg.Done()
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.conn.Write(frame); err != nil {
				c.server.log.Debug("Ошибка записи клиенту %d: %v", c.index, err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close закрывает соединение; повторные вызовы безопасны
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
