// Package ingestion discovers newly launched tokens and builds the
// market snapshots the pipeline evaluates.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"token-scout/internal/observability"
)

// LaunchEvent is one new-token announcement from the launch feed.
type LaunchEvent struct {
	Mint        string `json:"mint"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	PairAddress string `json:"pairAddress"`
	TimestampMs int64  `json:"timestampMs"`
}

// FeedConfig configures the websocket launch feed.
type FeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// subscribePayload is sent on every (re)connect to start the new-token stream.
type subscribePayload struct {
	Method string `json:"method"`
}

// LaunchFeed subscribes to a websocket token launch stream and delivers
// events on a channel. Lost connections are re-established with
// exponential backoff and the subscription replayed.
type LaunchFeed struct {
	endpoint string
	config   FeedConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan LaunchEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewLaunchFeed creates the feed and connects to the endpoint.
func NewLaunchFeed(ctx context.Context, endpoint string, config *FeedConfig, logger *log.Logger) (*LaunchFeed, error) {
	cfg := DefaultFeedConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	f := &LaunchFeed{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		// Large buffer absorbs launch bursts; sends block rather than drop.
		events: make(chan LaunchEvent, 1024),
		done:   make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(2)
	go f.readLoop()
	go f.pingLoop()

	return f, nil
}

// Events returns the channel of launch events. Closed on shutdown.
func (f *LaunchFeed) Events() <-chan LaunchEvent {
	return f.events
}

// Close closes the feed connection and the events channel.
func (f *LaunchFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	close(f.events)
	return nil
}

// connect dials the endpoint and sends the subscribe payload.
func (f *LaunchFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := conn.WriteJSON(subscribePayload{Method: "subscribeNewToken"}); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	f.conn = conn
	return nil
}

// readLoop reads messages and dispatches events, reconnecting on error.
func (f *LaunchFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			if !f.reconnect(reconnectDelay) {
				return
			}
			reconnectDelay = doubleCapped(reconnectDelay, f.config.MaxReconnectDelay)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			f.logger.Printf("[FEED] read error, reconnecting: %v", err)
			f.dropConn()
			continue
		}

		reconnectDelay = f.config.ReconnectDelay
		f.handleMessage(message)
	}
}

// reconnect waits for the delay then re-establishes the connection.
// Returns false when the feed is shutting down.
func (f *LaunchFeed) reconnect(delay time.Duration) bool {
	select {
	case <-f.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		f.logger.Printf("[FEED] reconnect failed: %v", err)
		return true
	}

	observability.DefaultMetrics.FeedReconnects.Inc()
	f.logger.Printf("[FEED] reconnected to %s", f.endpoint)
	return true
}

func (f *LaunchFeed) dropConn() {
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()
}

// handleMessage parses one feed message and delivers the event.
func (f *LaunchFeed) handleMessage(message []byte) {
	var event LaunchEvent
	if err := json.Unmarshal(message, &event); err != nil {
		observability.DefaultMetrics.FeedErrors.WithLabelValues("parse").Inc()
		return
	}
	if event.Mint == "" {
		// Subscription acks and heartbeats have no mint.
		return
	}
	if event.TimestampMs == 0 {
		event.TimestampMs = time.Now().UnixMilli()
	}

	observability.RecordFeedEvent()
	observability.DefaultMetrics.LastFeedEvent.SetToCurrentTime()

	// Block until delivered so no launch is lost.
	select {
	case f.events <- event:
	case <-f.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (f *LaunchFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			f.connMu.Unlock()
		}
	}
}

func doubleCapped(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}
