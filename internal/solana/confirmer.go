package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// errStreamLost marks confirmations dropped by a broken WebSocket stream.
// Callers fall back to status polling when they see it.
var errStreamLost = errors.New("confirmation stream lost")

// WSConfig holds WebSocket confirmer configuration.
type WSConfig struct {
	// ReconnectDelay is the initial delay before reconnection attempts.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is how often to send ping frames.
	PingInterval time.Duration
	// ReadTimeout for a single read operation.
	ReadTimeout time.Duration
	// WriteTimeout for a single write operation.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription ack.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// pendingSub tracks one signatureSubscribe in flight. confirmed carries the
// subscription ID from the ack, result carries the final outcome.
type pendingSub struct {
	confirmed chan int64
	result    chan error
}

// Confirmer waits for transaction confirmations over a signatureSubscribe
// WebSocket stream. Subscriptions are one-shot: the node fires a single
// notification per signature and drops the subscription, so after a
// disconnect there is nothing to resubscribe. Waiters caught in the gap are
// failed with errStreamLost and the caller polls instead.
type Confirmer struct {
	endpoint string
	config   *WSConfig
	logger   *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	// pending maps request ID to subscriptions awaiting an ack.
	// waiters maps subscription ID to the channel expecting the outcome.
	mu      sync.Mutex
	pending map[uint64]*pendingSub
	waiters map[int64]chan error

	requestID atomic.Uint64
	closed    atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewConfirmer connects to the WebSocket endpoint and starts the read and
// ping loops.
func NewConfirmer(ctx context.Context, endpoint string, config *WSConfig) (*Confirmer, error) {
	if config == nil {
		config = DefaultWSConfig()
	}

	c := &Confirmer{
		endpoint: endpoint,
		config:   config,
		logger:   slog.Default().With("component", "confirmer"),
		pending:  make(map[uint64]*pendingSub),
		waiters:  make(map[int64]chan error),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// SetLogger replaces the logger.
func (c *Confirmer) SetLogger(logger *slog.Logger) {
	c.logger = logger.With("component", "confirmer")
}

func (c *Confirmer) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Await subscribes to the signature and blocks until the node reports it
// processed, the stream breaks, or the context ends. A nil return means the
// transaction landed at confirmed commitment; an error wrapping
// errStreamLost means the stream could not answer and the caller should
// poll.
func (c *Confirmer) Await(ctx context.Context, signature string) error {
	if c.closed.Load() {
		return errStreamLost
	}

	id := c.requestID.Add(1)
	p := &pendingSub{
		confirmed: make(chan int64, 1),
		result:    make(chan error, 1),
	}

	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}
	if err := c.writeJSON(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", errStreamLost, err)
	}

	ackTimer := time.NewTimer(c.config.SubscribeTimeout)
	defer ackTimer.Stop()

	var subID int64
	select {
	case subID = <-p.confirmed:
	case err := <-p.result:
		return err
	case <-ctx.Done():
		c.abandon(id, p)
		return ctx.Err()
	case <-ackTimer.C:
		c.abandon(id, p)
		return fmt.Errorf("%w: subscribe ack timed out", errStreamLost)
	}

	select {
	case err := <-p.result:
		return err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, subID)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// abandon cleans up a subscription whose caller gave up before the ack. The
// ack may have just raced in, in which case the waiter entry it installed is
// removed too.
func (c *Confirmer) abandon(id uint64, p *pendingSub) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()

	select {
	case subID := <-p.confirmed:
		c.mu.Lock()
		delete(c.waiters, subID)
		c.mu.Unlock()
	default:
	}
}

func (c *Confirmer) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return errors.New("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close shuts down the confirmer and fails outstanding waiters.
func (c *Confirmer) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.failAllWaiters()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from the WebSocket and dispatches acks and
// signature notifications.
func (c *Confirmer) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// A one-shot subscription cannot survive the gap: the
			// notification may fire while disconnected. Fail the
			// waiters so their callers switch to polling.
			c.failAllWaiters()

			if !c.reconnecting.Swap(true) {
				go c.reconnect(c.config.ReconnectDelay)
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		c.handleMessage(message)
	}
}

// reconnect retries the connection with exponential backoff until it
// succeeds or the confirmer closes.
func (c *Confirmer) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	for !c.closed.Load() {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		// Close existing connection
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			c.logger.Info("websocket reconnected", "endpoint", c.endpoint)
			return
		}

		c.logger.Warn("websocket reconnect failed", "error", err)

		delay = delay * 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (c *Confirmer) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug("ping failed", "error", err)
				}
			}
			c.connMu.Unlock()
		}
	}
}

// handleMessage routes an incoming frame to the ack or notification handler.
func (c *Confirmer) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID != 0 {
		c.handleSubscribeResponse(resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "signatureNotification" {
		c.handleNotification(notif)
	}
}

// handleSubscribeResponse resolves a pending subscribe. The waiter is
// installed before the ack is delivered, so a notification arriving right
// after the ack always finds it. readLoop is the only caller, which keeps
// the two ordered.
func (c *Confirmer) handleSubscribeResponse(resp wsSubscribeResponse) {
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
		if resp.Error == nil {
			c.waiters[resp.Result] = p.result
		}
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	if resp.Error != nil {
		p.result <- fmt.Errorf("signature subscribe rejected: %s", resp.Error.Message)
		return
	}

	p.confirmed <- resp.Result
}

// handleNotification delivers the one-shot outcome to its waiter.
func (c *Confirmer) handleNotification(notif wsNotification) {
	if notif.Params == nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.waiters[notif.Params.Subscription]
	if ok {
		delete(c.waiters, notif.Params.Subscription)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	if txErr := notif.Params.Result.Value.Err; txErr != nil {
		ch <- fmt.Errorf("transaction failed on chain: %v", txErr)
		return
	}

	ch <- nil
}

// failAllWaiters drops every outstanding subscription with errStreamLost.
func (c *Confirmer) failAllWaiters() {
	c.mu.Lock()
	pending := c.pending
	waiters := c.waiters
	c.pending = make(map[uint64]*pendingSub)
	c.waiters = make(map[int64]chan error)
	c.mu.Unlock()

	for _, p := range pending {
		p.result <- errStreamLost
	}
	for _, ch := range waiters {
		ch <- errStreamLost
	}

	if n := len(pending) + len(waiters); n > 0 {
		c.logger.Warn("dropped confirmation waiters", "count", n)
	}
}
