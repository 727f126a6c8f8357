// Package pricefeed streams daily closing prices over WebSocket and turns
// each new close into a return for the risk engine.
package pricefeed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/varisk/pkg/formulas"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second
	sinkTimeout = 10 * time.Second

	defaultBaseReconnectDelay = 5 * time.Second
	maxReconnectDelay         = 5 * time.Minute

	channelCloses = "closes"
	eventClose    = "close"
	dateLayout    = "2006-01-02"
)

// ReturnSink receives one return at a time
type ReturnSink interface {
	AppendReturn(ctx context.Context, asset string, value float64) error
}

// ClosePayload is the body of a ["close", {...}] message
type ClosePayload struct {
	Asset string  `json:"asset"`
	Price float64 `json:"price"`
	Date  string  `json:"date"` // YYYY-MM-DD
}

type lastClose struct {
	date  time.Time
	price float64
}

// Client maintains the feed connection and the last close per asset
type Client struct {
	url        string
	httpClient *http.Client
	sink       ReturnSink
	log        zerolog.Logger

	baseReconnectDelay time.Duration

	mu           sync.RWMutex
	conn         *websocket.Conn
	connCtx      context.Context
	cancelFunc   context.CancelFunc
	connected    bool
	reconnecting bool
	stopped      bool
	stopChan     chan struct{}

	closesMu sync.Mutex
	closes   map[string]lastClose
}

// createHTTP1Client forces HTTP/1.1 so the upgrade handshake survives
// proxies that would otherwise negotiate HTTP/2 via ALPN.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// New creates a new price feed client
func New(url string, sink ReturnSink, log zerolog.Logger) *Client {
	return &Client{
		url:                url,
		httpClient:         createHTTP1Client(),
		sink:               sink,
		log:                log.With().Str("component", "price_feed").Logger(),
		baseReconnectDelay: defaultBaseReconnectDelay,
		stopChan:           make(chan struct{}),
		closes:             make(map[string]lastClose),
	}
}

// Start connects and starts the read loop. A failed first connection is
// retried in the background and still reported to the caller.
func (c *Client) Start() error {
	c.log.Info().Str("url", c.url).Msg("Starting price feed client")

	if err := c.Connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial price feed connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	c.mu.RLock()
	ctx := c.connCtx
	c.mu.RUnlock()
	go c.readMessages(ctx)

	return nil
}

// Stop shuts the client down; safe to call more than once
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.log.Info().Msg("Stopping price feed client")
	close(c.stopChan)
	return c.Disconnect()
}

// Connect dials the feed and subscribes to the closes channel
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("price feed client stopped")
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial price feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())

	if err := subscribe(connCtx, conn); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		return fmt.Errorf("failed to subscribe to %s: %w", channelCloses, err)
	}

	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	c.log.Info().Msg("Connected to price feed")
	return nil
}

// Disconnect closes the current connection, if any
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	c.connCtx = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("error closing price feed: %w", err)
	}
	return nil
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastClose returns the most recent close seen for an asset
func (c *Client) LastClose(asset string) (price float64, date time.Time, ok bool) {
	c.closesMu.Lock()
	defer c.closesMu.Unlock()
	lc, ok := c.closes[asset]
	return lc.price, lc.date, ok
}

func subscribe(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal([]string{channelCloses})
	if err != nil {
		return fmt.Errorf("failed to marshal subscription message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (c *Client) readMessages(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return
		}

		// Release the dead connection and its context before redialing
		if err := c.Disconnect(); err != nil {
			c.log.Debug().Err(err).Msg("Error closing dropped price feed connection")
		}
		go c.reconnectLoop()
	}()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.log.Info().Int("status", int(status)).Msg("Price feed closed")
			case ctx.Err() != nil:
				c.log.Debug().Msg("Read cancelled by context")
			default:
				c.log.Error().Err(err).Msg("Unexpected price feed read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := c.handleMessage(ctx, message); err != nil {
			c.log.Warn().Err(err).Str("message", string(message)).Msg("Failed to handle price feed message")
		}
	}
}

// handleMessage parses ["event", payload] frames
func (c *Client) handleMessage(ctx context.Context, message []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(message, &raw); err != nil {
		return fmt.Errorf("failed to parse message array: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("message array too short: expected 2 elements, got %d", len(raw))
	}

	var event string
	if err := json.Unmarshal(raw[0], &event); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	if event != eventClose {
		return nil
	}

	var payload ClosePayload
	if err := json.Unmarshal(raw[1], &payload); err != nil {
		return fmt.Errorf("failed to parse close payload: %w", err)
	}
	return c.handleClose(ctx, payload)
}

func (c *Client) handleClose(ctx context.Context, p ClosePayload) error {
	if p.Asset == "" {
		return fmt.Errorf("close without asset")
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
		return fmt.Errorf("invalid price %v for %s", p.Price, p.Asset)
	}
	date, err := time.Parse(dateLayout, p.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q for %s: %w", p.Date, p.Asset, err)
	}

	// The cursor advances only after the sink accepts the return
	c.closesMu.Lock()
	defer c.closesMu.Unlock()

	prev, seen := c.closes[p.Asset]
	if seen && !date.After(prev.date) {
		return nil
	}

	if !seen {
		c.closes[p.Asset] = lastClose{date: date, price: p.Price}
		c.log.Debug().Str("asset", p.Asset).Msg("First close recorded")
		return nil
	}

	sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	ret := formulas.SimpleReturn(prev.price, p.Price)
	if err := c.sink.AppendReturn(sinkCtx, p.Asset, ret); err != nil {
		return fmt.Errorf("failed to append return for %s: %w", p.Asset, err)
	}

	c.closes[p.Asset] = lastClose{date: date, price: p.Price}
	return nil
}

// reconnectLoop retries with exponential backoff until connected or stopped
func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for attempt := 1; ; attempt++ {
		delay := c.calculateBackoff(attempt)
		c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting to price feed")

		select {
		case <-time.After(delay):
		case <-c.stopChan:
			return
		}

		if err := c.Connect(); err != nil {
			c.log.Error().Err(err).Int("attempt", attempt).Msg("Reconnection failed")
			continue
		}

		c.mu.RLock()
		ctx := c.connCtx
		c.mu.RUnlock()
		go c.readMessages(ctx)
		return
	}
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
