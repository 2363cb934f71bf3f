// internal/transport/ws_channel.go

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sshmux/internal/models"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsTermPath     = "/term"
)

// WSChannel realizuje Channel na gorilla/websocket: wiadomości idą
// jako ramki JSON w obu kierunkach, bez mapowania na natywne operacje.
// Zdalna strona to brama terminalowa mówiąca tym samym protokołem.
type WSChannel struct {
	url string

	writeMu sync.Mutex
	conn    *websocket.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWSChannel tworzy kanał WebSocket dla hosta; Dialer dla Conn
func NewWSChannel(host models.Host) Channel {
	return &WSChannel{
		url:    fmt.Sprintf("ws://%s%s", host.Addr(), wsTermPath),
		closed: make(chan struct{}),
	}
}

// NewWSChannelURL tworzy kanał dla jawnego adresu URL (testy, bramy
// pod niestandardową ścieżką)
func NewWSChannelURL(url string) Channel {
	return &WSChannel{
		url:    url,
		closed: make(chan struct{}),
	}
}

// Open nawiązuje połączenie WebSocket z bramą
func (c *WSChannel) Open(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial %s (status %d): %v", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial %s: %v", c.url, err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	return nil
}

// Send wysyła wiadomość jako ramkę JSON. Gorilla dopuszcza jednego
// pisarza naraz, stąd mutex zapisu.
func (c *WSChannel) Send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return errors.New("channel not open")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %v", err)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %v", err)
	}
	return nil
}

// Receive blokuje do nadejścia ramki albo błędu połączenia
func (c *WSChannel) Receive() (Message, error) {
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()

	if conn == nil {
		return Message{}, errors.New("channel not open")
	}

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return Message{}, fmt.Errorf("failed to read message: %v", err)
	}
	return msg, nil
}

// LineTerminator - brama oczekuje LF
func (c *WSChannel) LineTerminator() string {
	return "\n"
}

// Close wysyła ramkę zamknięcia i zwalnia połączenie; bezpieczne
// wielokrotne wywołanie
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		conn := c.conn
		c.writeMu.Unlock()
		close(c.closed)

		if conn == nil {
			return
		}
		// Ramka zamknięcia jest grzecznościowa - błąd ignorujemy
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = conn.Close()
	})
	return err
}
