package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Source produces raw frames until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, out chan<- Frame) error
}

// WSSource streams frames from one venue WebSocket. It re-sends its
// subscriptions after every reconnect; the venue answers with fresh
// snapshots, which is how books recover from sequence gaps.
type WSSource struct {
	venue     domain.Venue
	url       string
	header    http.Header
	subscribe [][]byte
	dialer    websocket.Dialer
	logger    *slog.Logger
}

var _ Source = (*WSSource)(nil)

// NewKalshiWSSource subscribes to the order books of tickers. header
// carries whatever authentication the gateway in front of Kalshi expects.
func NewKalshiWSSource(url string, header http.Header, tickers []string, logger *slog.Logger) (*WSSource, error) {
	cmds := kalshi.SubscribeCommands(tickers)
	subs := make([][]byte, 0, len(cmds))
	for _, cmd := range cmds {
		b, err := json.Marshal(cmd)
		if err != nil {
			return nil, fmt.Errorf("feed: marshal kalshi subscribe: %w", err)
		}
		subs = append(subs, b)
	}
	return newWSSource(domain.VenueKalshi, url, header, subs, logger), nil
}

// NewPolymarketWSSource subscribes the market channel to assetIDs.
func NewPolymarketWSSource(url string, assetIDs []string, logger *slog.Logger) (*WSSource, error) {
	b, err := json.Marshal(polymarket.NewSubscribeCmd(assetIDs))
	if err != nil {
		return nil, fmt.Errorf("feed: marshal polymarket subscribe: %w", err)
	}
	return newWSSource(domain.VenuePolymarket, url, nil, [][]byte{b}, logger), nil
}

func newWSSource(venue domain.Venue, url string, header http.Header, subs [][]byte, logger *slog.Logger) *WSSource {
	return &WSSource{
		venue:     venue,
		url:       url,
		header:    header,
		subscribe: subs,
		dialer:    websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger: logger.With(
			slog.String("component", "ws_source"),
			slog.String("venue", string(venue)),
		),
	}
}

// Run connects and reconnects with exponential backoff until ctx ends.
func (s *WSSource) Run(ctx context.Context, out chan<- Frame) error {
	delay := reconnectDelay
	for {
		started := time.Now()
		err := s.runConnection(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A connection that stayed up for a while resets the backoff.
		if time.Since(started) > maxReconnectDelay {
			delay = reconnectDelay
		}
		s.logger.WarnContext(ctx, "websocket disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *WSSource) runConnection(ctx context.Context, out chan<- Frame) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := s.dialer.DialContext(dialCtx, s.url, s.header)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", s.venue, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for _, msg := range s.subscribe {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", s.venue, err)
		}
	}
	s.logger.InfoContext(ctx, "websocket connected", slog.Int("subscriptions", len(s.subscribe)))

	connCtx, stop := context.WithCancel(ctx)
	defer stop()
	go s.pingLoop(connCtx, conn)
	// Unblock ReadMessage when the caller goes away.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read %s: %w", s.venue, err)
		}
		select {
		case out <- Frame{Venue: s.venue, Data: data, ReceivedAt: time.Now().UTC()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop owns all writes after the subscriptions are sent.
func (s *WSSource) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
