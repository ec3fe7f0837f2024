package wsconn

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wssPrefix      = "wss://"
	writeWait      = 10 * time.Second
	frameBacklog   = 16
	maxMessageSize = 16 << 20
)

var errConnClosed = errors.New("connection closed")

// FrameKind classifies inbound frames.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FramePong
	FrameClose
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one inbound websocket event.
type Frame struct {
	Kind      FrameKind
	Data      []byte
	CloseCode int
	Err       error
}

// Options configures Dial.
type Options struct {
	Subprotocols     []string
	HandshakeTimeout time.Duration
}

// Conn wraps a gorilla websocket connection and pumps its reads into a channel.
// Only one goroutine may call WriteJSON at a time; Ping and Close are safe to
// call concurrently with it.
type Conn struct {
	conn   *websocket.Conn
	frames chan Frame
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// Dial opens a websocket connection to url.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: opts.HandshakeTimeout,
		Subprotocols:     opts.Subprotocols,
	}
	if strings.HasPrefix(url, wssPrefix) {
		dialer.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Conn{
		conn:   conn,
		frames: make(chan Frame, frameBacklog),
		done:   make(chan struct{}),
	}
	conn.SetPongHandler(func(appData string) error {
		c.push(Frame{Kind: FramePong, Data: []byte(appData)})
		return nil
	})

	c.wg.Add(1)
	go c.readPump()
	return c, nil
}

// Subprotocol returns the sub-protocol negotiated with the server.
func (c *Conn) Subprotocol() string {
	return c.conn.Subprotocol()
}

// Frames returns the inbound frame stream. It is closed after a close frame, a
// read error or the end of the stream, and when the connection is closed
// locally. Nothing is delivered after a local Close.
func (c *Conn) Frames() <-chan Frame {
	return c.frames
}

// Next waits for the next inbound frame.
func (c *Conn) Next(ctx context.Context) (Frame, error) {
	if c.closing() {
		return Frame{}, errConnClosed
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-c.frames:
		if !ok {
			return Frame{}, errConnClosed
		}
		return frame, nil
	}
}

// WriteJSON sends v as a text frame.
func (c *Conn) WriteJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Ping sends a websocket ping control frame.
func (c *Conn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a normal close frame, closes the socket and waits for the read
// pump to exit.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.closeErr = c.conn.Close()
		c.wg.Wait()
	})
	return c.closeErr
}

func (c *Conn) readPump() {
	defer c.wg.Done()
	defer close(c.frames)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			switch {
			case c.closing():
			case errors.As(err, &closeErr) && closeErr.Code == websocket.CloseAbnormalClosure:
				// No close frame was received; the stream just ended.
			case errors.As(err, &closeErr):
				c.push(Frame{Kind: FrameClose, CloseCode: closeErr.Code, Data: []byte(closeErr.Text)})
			default:
				c.push(Frame{Kind: FrameError, Err: err})
			}
			return
		}

		kind := FrameBinary
		if messageType == websocket.TextMessage {
			kind = FrameText
		}
		if !c.push(Frame{Kind: kind, Data: data}) {
			return
		}
	}
}

func (c *Conn) push(frame Frame) bool {
	if c.closing() {
		return false
	}
	select {
	case c.frames <- frame:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
