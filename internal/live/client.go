// Package live carries page events between the browser and a page controller
// over a websocket. A Client is both the controller's renderer and its scroll
// source.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Zachkp/skycode/internal/page"
	"github.com/Zachkp/skycode/internal/xslog"
)

const writeTimeout = 10 * time.Second

var ErrAlreadySubscribed = errors.New("scroll handler already subscribed")

// Handler receives the browser's navigation and menu events.
type Handler interface {
	NavigateTo(section page.Section)
	ToggleMenu()
}

type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	elements map[page.Section]bool
	onScroll func(float64)
}

func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:     conn,
		logger:   logger,
		elements: make(map[page.Section]bool),
	}
}

// HasElement reports whether the browser listed section in its mount message.
func (c *Client) HasElement(section page.Section) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elements[section]
}

func (c *Client) ScrollIntoView(section page.Section, smooth bool) {
	if err := c.Send(Outbound{Type: TypeScrollIntoView, Section: section, Smooth: smooth}); err != nil {
		c.logger.Warn("sending scroll request", xslog.Section(section.String()), xslog.Error(err))
	}
}

func (c *Client) SubscribeScroll(handler func(offset float64)) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onScroll != nil {
		return nil, ErrAlreadySubscribed
	}
	c.onScroll = handler

	var once sync.Once
	return func() error {
		once.Do(func() {
			c.mu.Lock()
			c.onScroll = nil
			c.mu.Unlock()
		})
		return nil
	}, nil
}

// SendState pushes a state snapshot to the browser.
func (c *Client) SendState(st page.State) error {
	return c.Send(stateMessage(st))
}

func (c *Client) Send(msg Outbound) error {
	data, err := go_json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing %s message: %w", msg.Type, err)
	}
	return nil
}

// Serve reads browser messages until the connection closes or ctx is done.
// Malformed messages are answered with an error message and skipped. A
// normal close returns nil.
func (c *Client) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("reading message: %w", err)
			}
			return nil
		}
		c.dispatch(h, data)
	}
}

func (c *Client) dispatch(h Handler, data []byte) {
	var msg inbound
	if err := go_json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case TypeMount:
		c.mount(msg.Elements)
	case TypeScroll:
		if msg.Offset == nil {
			c.sendError("scroll message requires offset")
			return
		}
		c.mu.Lock()
		fn := c.onScroll
		c.mu.Unlock()
		if fn == nil {
			c.logger.Debug("scroll without subscriber", xslog.Offset(*msg.Offset))
			return
		}
		fn(*msg.Offset)
	case TypeNavigate:
		section, err := page.ParseSection(msg.Section)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		h.NavigateTo(section)
	case TypeToggleMenu:
		h.ToggleMenu()
	default:
		c.logger.Debug("unknown live message", xslog.MessageType(msg.Type))
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *Client) mount(elements []string) {
	present := make(map[page.Section]bool, len(elements))
	for _, e := range elements {
		if s, err := page.ParseSection(e); err == nil {
			present[s] = true
		}
	}
	c.mu.Lock()
	c.elements = present
	c.mu.Unlock()
	c.logger.Debug("live page mounted", xslog.Count(len(present)))
}

func (c *Client) sendError(message string) {
	if err := c.Send(Outbound{Type: TypeError, Message: message}); err != nil {
		c.logger.Warn("sending error message", xslog.Error(err))
	}
}
