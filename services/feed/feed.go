package feed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"cryptovision_backend/services"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
	maxBackoff       = 2 * time.Minute
)

// tickerMessage is the wire format of the external ticker stream
type tickerMessage struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Volume    string `json:"volume"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// Consumer subscribes to an external market-data websocket and feeds every
// price tick into the alert evaluator and the local tick archive. It is the
// external collaborator that drives alert evaluation; the evaluator itself
// never polls.
type Consumer struct {
	url    string
	alerts *services.AlertService
	ticks  *services.TickStore
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a feed consumer. ticks may be nil.
func NewConsumer(url string, alerts *services.AlertService, ticks *services.TickStore) *Consumer {
	return &Consumer{
		url:    url,
		alerts: alerts,
		ticks:  ticks,
		done:   make(chan struct{}),
	}
}

// Start connects and consumes in a background goroutine, reconnecting with
// backoff until Stop is called
func (c *Consumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		defer close(c.done)
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}

			connected, err := c.consume(ctx)
			if connected {
				// the endpoint was reachable, start the next retry cheap
				backoff = time.Second
			}
			if err != nil {
				log.Printf("Market feed disconnected: %v, reconnecting in %v", err, backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}()
}

// Stop closes the connection loop and waits for it to exit
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

// consume dials the feed and reads until the connection fails. The bool
// reports whether the dial succeeded.
func (c *Consumer) consume(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("Market feed connected: %s", c.url)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var msg tickerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("Malformed feed message: %v", err)
			continue
		}
		c.handleTick(msg)
	}
}

func (c *Consumer) handleTick(msg tickerMessage) {
	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		log.Printf("Malformed price in feed message for %s: %v", msg.Symbol, err)
		return
	}
	volume, err := decimal.NewFromString(msg.Volume)
	if err != nil {
		volume = decimal.Zero
	}

	tick := services.Tick{
		Symbol:    msg.Symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: time.UnixMilli(msg.Timestamp).UTC(),
	}

	if c.ticks != nil {
		if err := c.ticks.Append(tick); err != nil {
			log.Printf("Failed to archive tick for %s: %v", msg.Symbol, err)
		}
	}

	triggered, err := c.alerts.CheckPrice(tick.Symbol, tick.Price)
	if err != nil {
		log.Printf("Alert evaluation failed for %s: %v", msg.Symbol, err)
		return
	}
	if len(triggered) > 0 {
		log.Printf("Triggered %d alerts for %s at %s", len(triggered), tick.Symbol, tick.Price)
	}
}
