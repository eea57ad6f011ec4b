// Package transport owns the single WebSocket connection to the market-data
// service: dialing, the outbound writer lock, heartbeat echo, and an
// inbound frame stream. It never reconnects on its own — a dropped
// connection surfaces as a closed Frames channel and an error on Err;
// retrying a whole session is the caller's responsibility (spec §9 non-goal).
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/haidl/tvstream/errs"
	"github.com/haidl/tvstream/wire"
)

const (
	defaultPingInterval     = 20 * time.Second
	defaultPingTimeout      = 10 * time.Second
	defaultCloseTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = 8 << 20
)

// ErrClosed is returned by Send once the transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Config configures one Transport. The zero value is not usable; build one
// with DefaultConfig and override fields as needed.
type Config struct {
	URL              string
	Origin           string
	UserAgent        string
	AcceptEncoding   string
	PingInterval     time.Duration
	PingTimeout      time.Duration
	CloseTimeout     time.Duration
	HandshakeTimeout time.Duration
	TLSInsecureSkip  bool
}

// defaultUserAgent mimics a current desktop Chrome build, per spec §6.3's
// "browser-like default" — the upstream service is reached the same way a
// browser tab reaches it, not as a bespoke Go client.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// defaultAcceptEncoding lists the content codings spec §4.D/§6.1 expects on
// the handshake, matching what a browser's WebSocket client sends.
const defaultAcceptEncoding = "gzip, deflate, br, zstd"

// DefaultConfig returns a Config pointed at url with the tunables from
// spec §6.3.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		Origin:           "https://www.tradingview.com",
		UserAgent:        defaultUserAgent,
		AcceptEncoding:   defaultAcceptEncoding,
		PingInterval:     defaultPingInterval,
		PingTimeout:      defaultPingTimeout,
		CloseTimeout:     defaultCloseTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.AcceptEncoding == "" {
		c.AcceptEncoding = defaultAcceptEncoding
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = defaultPingTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = defaultCloseTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	return c
}

// Transport owns one connection for its entire lifetime: one writer (guarded
// by writeMu), one reader goroutine, one ping goroutine.
type Transport struct {
	id  uuid.UUID
	cfg Config
	log zerolog.Logger

	conn *websocket.Conn

	writeMu sync.Mutex

	frames chan []byte
	errCh  chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to cfg.URL and starts the read and ping loops. The returned
// Transport is ready for Send/Frames immediately.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Transport, error) {
	cfg = cfg.withDefaults()
	id := uuid.New()
	sublog := log.With().Str("component", "transport").Str("conn_id", id.String()).Logger()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: cfg.TLSInsecureSkip},
		HandshakeTimeout: cfg.HandshakeTimeout,
		EnableCompression: true,
	}

	header := make(http.Header)
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}
	if cfg.UserAgent != "" {
		header.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.AcceptEncoding != "" {
		header.Set("Accept-Encoding", cfg.AcceptEncoding)
	}

	sublog.Info().Str("url", cfg.URL).Msg("dialing")
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			sublog.Error().Err(err).Int("status", resp.StatusCode).Msg("dial failed")
		} else {
			sublog.Error().Err(err).Msg("dial failed")
		}
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	conn.SetReadLimit(defaultReadLimit)

	cctx, cancel := context.WithCancel(ctx)
	t := &Transport{
		id:     id,
		cfg:    cfg,
		log:    sublog,
		conn:   conn,
		frames: make(chan []byte, 256),
		errCh:  make(chan error, 1),
		ctx:    cctx,
		cancel: cancel,
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.cfg.PingInterval * 2))
	})
	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.PingInterval * 2))

	t.wg.Add(2)
	go t.readLoop()
	go t.pingLoop()

	return t, nil
}

// ID identifies this connection for log correlation.
func (t *Transport) ID() uuid.UUID { return t.id }

// Send marshals and frames one envelope and writes it under the single
// writer lock. Safe for concurrent use; TradingView's protocol requires a
// serialized write stream, so every call is serialized through writeMu.
func (t *Transport) Send(verb wire.Verb, params []interface{}) error {
	payload, err := wire.Build(verb, params)
	if err != nil {
		return fmt.Errorf("transport: encode %s: %w", verb, err)
	}
	return t.writeRaw(payload)
}

func (t *Transport) writeRaw(payload []byte) error {
	select {
	case <-t.ctx.Done():
		return ErrClosed
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.PingTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, wire.Encode(payload)); err != nil {
		return errs.Wrap(errs.KindTransportError, "write failed", err)
	}
	return nil
}

// Frames returns the channel of inbound frame payloads. Heartbeat tokens are
// consumed and echoed internally; they never appear on this channel. The
// channel is closed when the connection ends, for any reason.
func (t *Transport) Frames() <-chan []byte { return t.frames }

// Err returns a channel that receives the terminal error, if any, once
// Frames has been closed. It carries at most one value.
func (t *Transport) Err() <-chan error { return t.errCh }

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer close(t.frames)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			kind := errs.KindTransportError
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				websocket.IsUnexpectedCloseError(err) {
				kind = errs.KindConnectionClosed
			}
			t.reportErr(errs.Wrap(kind, "read failed", err))
			return
		}
		payloads, err := wire.Decode(data)
		if err != nil {
			t.reportErr(errs.Wrap(errs.KindMalformedFrame, "decode failed", err))
			return
		}
		for _, p := range payloads {
			if wire.IsHeartbeat(p) {
				if werr := t.writeRaw(p); werr != nil {
					t.log.Warn().Err(werr).Msg("heartbeat echo failed")
				}
				continue
			}
			select {
			case t.frames <- p:
			case <-t.ctx.Done():
				return
			}
		}
	}
}

func (t *Transport) pingLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.PingTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				t.log.Warn().Err(err).Msg("ping failed")
			}
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *Transport) reportErr(err error) {
	select {
	case t.errCh <- err:
	default:
	}
}

// Close shuts the connection down: cancels internal goroutines, sends a
// normal-closure control frame best-effort, and waits up to CloseTimeout for
// the read/ping loops to exit. Safe to call more than once; only the first
// call does anything.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = t.conn.Close()

		done := make(chan struct{})
		go func() {
			t.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(t.cfg.CloseTimeout):
			t.log.Warn().Msg("close timed out waiting for loops to exit")
		}
	})
	return t.closeErr
}
