package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// GatewayURL is the Discord gateway endpoint.
const GatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

const (
	// Time allowed to write a frame to the gateway
	writeWait = 10 * time.Second

	// GUILD_CREATE payloads for large guilds are big
	maxMessageSize = 8 << 20
)

var (
	// ErrAuthenticationFailed means the gateway rejected the bot token.
	// There is no point reconnecting; the process exits.
	ErrAuthenticationFailed = errors.New("gateway rejected the bot token")

	// ErrBadSubscription covers close codes for invalid or disallowed
	// intents and sharding problems. Also fatal.
	ErrBadSubscription = errors.New("gateway rejected the subscription")

	// errConnDropped marks transient connection loss. The supervisor
	// reconnects after backoff; any Listen error not wrapping it is
	// treated as fatal (bad credentials, store failures from handlers).
	errConnDropped = errors.New("connection dropped")

	// errResumeDropped is returned when the gateway asked for a fresh
	// connection; the supervisor reconnects after backoff.
	errResumeDropped = fmt.Errorf("gateway requested reconnect: %w", errConnDropped)
)

// IsFatal reports whether a connection error should terminate the
// process instead of triggering a reconnect.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrBadSubscription)
}

// Client holds one gateway connection. It authenticates, subscribes to
// the fixed intent set and converts dispatch frames into typed events.
// It never reconnects on its own; connection loss is reported to the
// supervisor and the client waits to be told to connect again.
type Client struct {
	token   string
	intents int

	conn    *websocket.Conn
	writeMu sync.Mutex

	heartbeatInterval time.Duration
	seq               atomic.Int64
	acked             atomic.Bool

	// resume state, kept across reconnects while the session is valid
	sessionID string
	resumeURL string

	closeOnce sync.Once
}

func NewClient(token string) *Client {
	return &Client{
		token:   token,
		intents: DefaultIntents,
	}
}

// Connect dials the gateway, performs the Hello handshake and sends
// Identify (or Resume when a previous session can be continued).
func (c *Client) Connect(ctx context.Context) error {
	url := GatewayURL
	resuming := c.sessionID != "" && c.resumeURL != ""
	if resuming {
		url = c.resumeURL
		if !strings.Contains(url, "?") {
			url += "/?v=10&encoding=json"
		}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	c.conn = conn
	c.closeOnce = sync.Once{}
	c.acked.Store(true)

	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		c.Close()
		return fmt.Errorf("failed to read hello: %w", err)
	}
	if hello.Op != opHello {
		c.Close()
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.Data, &hd); err != nil {
		c.Close()
		return fmt.Errorf("failed to decode hello: %w", err)
	}
	c.heartbeatInterval = time.Duration(hd.HeartbeatInterval) * time.Millisecond

	if resuming {
		err = c.writeJSON(payload{Op: opResume}, resumeData{
			Token:     c.token,
			SessionID: c.sessionID,
			Seq:       c.seq.Load(),
		})
	} else {
		c.seq.Store(0)
		err = c.writeJSON(payload{Op: opIdentify}, identifyData{
			Token:   c.token,
			Intents: c.intents,
			Properties: identifyProperties{
				OS:      runtime.GOOS,
				Browser: "quartzite",
				Device:  "quartzite",
			},
		})
	}
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	log.Info().Bool("resuming", resuming).Dur("heartbeatInterval", c.heartbeatInterval).Msg("Gateway handshake sent")
	return nil
}

// Listen reads and dispatches frames until the connection drops, the
// context is cancelled or the handler fails. Each event is handled to
// completion before the next frame is read; handler errors are fatal
// and returned unchanged.
func (c *Client) Listen(ctx context.Context, handler func(Event) error) error {
	stop := make(chan struct{})
	defer close(stop)
	go c.heartbeatLoop(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	for {
		var p payload
		if err := c.conn.ReadJSON(&p); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return c.classifyCloseError(err)
		}

		switch p.Op {
		case opDispatch:
			c.seq.Store(p.Seq)
			evt, err := decodeDispatch(p.Type, p.Data)
			if err != nil {
				log.Warn().Err(err).Str("kind", p.Type).Msg("Dropping undecodable dispatch")
				continue
			}
			if evt == nil {
				continue
			}
			if r, ok := evt.(*Ready); ok {
				c.sessionID = r.SessionID
				c.resumeURL = r.ResumeGatewayURL
			}
			if err := handler(evt); err != nil {
				c.Close()
				return err
			}

		case opHeartbeat:
			c.sendHeartbeat()

		case opHeartbeatACK:
			c.acked.Store(true)

		case opReconnect:
			c.Close()
			return errResumeDropped

		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.Data, &resumable)
			if !resumable {
				c.forgetSession()
			}
			c.Close()
			return fmt.Errorf("session invalidated (resumable=%t): %w", resumable, errResumeDropped)
		}
	}
}

// Close tears the socket down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

func (c *Client) forgetSession() {
	c.sessionID = ""
	c.resumeURL = ""
}

func (c *Client) heartbeatLoop(stop chan struct{}) {
	// The gateway asks for a random jitter on the first beat
	timer := time.NewTimer(time.Duration(rand.Float64() * float64(c.heartbeatInterval)))
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			if !c.acked.Swap(false) {
				// No ack since the last beat: the connection is zombied.
				// Closing it unblocks Listen, which reports the drop.
				log.Warn().Msg("Gateway heartbeat not acknowledged, closing connection")
				c.Close()
				return
			}
			c.sendHeartbeat()
			timer.Reset(c.heartbeatInterval)
		}
	}
}

func (c *Client) sendHeartbeat() {
	seq := c.seq.Load()
	if err := c.writeJSON(payload{Op: opHeartbeat}, seq); err != nil {
		log.Warn().Err(err).Msg("Failed to send heartbeat")
	}
}

// writeJSON marshals data into the frame and writes it under the write
// lock; the heartbeat goroutine and the listen loop share the socket.
func (c *Client) writeJSON(p payload, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	p.Data = raw

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(p)
}

// classifyCloseError maps gateway close codes onto the error taxonomy:
// bad credentials and bad intent sets are fatal, everything else is a
// transient drop for the supervisor to recover from. Close codes that
// invalidate the session also drop the resume state so the next attempt
// identifies from scratch.
func (c *Client) classifyCloseError(err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return fmt.Errorf("%w: %v", errConnDropped, err)
	}
	switch ce.Code {
	case 4004:
		return fmt.Errorf("close code %d: %w", ce.Code, ErrAuthenticationFailed)
	case 4010, 4011, 4012, 4013, 4014:
		return fmt.Errorf("close code %d: %w", ce.Code, ErrBadSubscription)
	case 4007, 4009:
		// invalid seq / session timed out
		c.forgetSession()
		return fmt.Errorf("%w: %v", errConnDropped, err)
	default:
		return fmt.Errorf("%w: %v", errConnDropped, err)
	}
}
