package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"NiftyScan/internal/domain/models"

	"github.com/gorilla/websocket"
)

// Tick is one live last-traded-price update from the ticker stream.
type Tick struct {
	Token     string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Ticker streams live ticks for the scan universe over the brokerage
// websocket. It keeps the latest-quote cache warm between history fetches;
// the scanner works without it, just with staler latest prices.
type Ticker struct {
	url          string
	apiKey       string
	accessToken  string
	tokens       []string
	reconnectGap time.Duration
	pingInterval time.Duration

	// mu guards conn, connected, done and serializes writes; the
	// websocket permits one concurrent writer.
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}
}

// NewTicker creates a ticker stream for the given instrument tokens.
func NewTicker(url, apiKey, accessToken string, tokens []string, reconnectGap, pingInterval time.Duration) *Ticker {
	return &Ticker{
		url:          url,
		apiKey:       apiKey,
		accessToken:  accessToken,
		tokens:       tokens,
		reconnectGap: reconnectGap,
		pingInterval: pingInterval,
	}
}

// Connect establishes the websocket connection.
func (t *Ticker) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?api_key=%s&access_token=%s", t.url, t.apiKey, t.accessToken)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("ticker connect: %w", err)
	}
	t.mu.Lock()
	if t.done != nil {
		close(t.done)
	}
	t.conn = conn
	t.connected = true
	t.done = make(chan struct{})
	t.mu.Unlock()
	return nil
}

// writeJSON serializes writes against the ping loop.
func (t *Ticker) writeJSON(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || !t.connected {
		return fmt.Errorf("ticker not connected")
	}
	return t.conn.WriteJSON(v)
}

func (t *Ticker) ping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || !t.connected {
		return
	}
	_ = t.conn.WriteMessage(websocket.PingMessage, nil)
}

// Subscribe subscribes to LTP mode for the configured tokens.
func (t *Ticker) Subscribe(ctx context.Context) error {
	msg := map[string]interface{}{"a": "subscribe", "v": t.tokens}
	if err := t.writeJSON(msg); err != nil {
		return fmt.Errorf("ticker subscribe: %w", err)
	}
	mode := map[string]interface{}{"a": "mode", "v": []interface{}{"ltp", t.tokens}}
	if err := t.writeJSON(mode); err != nil {
		return fmt.Errorf("ticker mode: %w", err)
	}
	return nil
}

type tickFrame struct {
	Token  string  `json:"token"`
	LTP    float64 `json:"last_price"`
	Volume float64 `json:"volume"`
	TsMs   int64   `json:"timestamp"`
}

// Read streams ticks and errors until ctx is cancelled or the connection
// drops. The ping loop it starts lives only as long as this connection;
// Close tears it down, so reconnects never stack writers.
func (t *Ticker) Read(ctx context.Context) (<-chan Tick, <-chan error) {
	ticks := make(chan Tick, 1024)
	errs := make(chan error, 1)

	t.mu.Lock()
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	if conn == nil {
		errs <- fmt.Errorf("ticker conn nil")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	go func() {
		ticker := time.NewTicker(t.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				t.ping()
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("ticker read: %w", err)
					return
				}
				var frames []tickFrame
				if err := json.Unmarshal(b, &frames); err != nil {
					// heartbeat or text frame
					continue
				}
				for _, f := range frames {
					tick := Tick{
						Token:     f.Token,
						Price:     f.LTP,
						Volume:    f.Volume,
						Timestamp: time.UnixMilli(f.TsMs),
					}
					select {
					case ticks <- tick:
					default:
						// drop on backpressure; history fetches recover
					}
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and re-establishes the stream.
func (t *Ticker) Reconnect(ctx context.Context) error {
	_ = t.Close()
	time.Sleep(t.reconnectGap)
	if err := t.Connect(ctx); err != nil {
		return err
	}
	return t.Subscribe(ctx)
}

// Close closes the connection and stops its ping loop.
func (t *Ticker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

// IsConnected reports stream status.
func (t *Ticker) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Bar converts a tick to a single-point bar for the latest-quote cache.
func (t Tick) Bar() models.Bar {
	return models.Bar{
		Timestamp: t.Timestamp,
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
		Volume:    t.Volume,
	}
}
