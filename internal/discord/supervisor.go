package discord

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ConnState is the supervisor's connection state machine:
// Disconnected → Connecting → Connected → Disconnected (on drop) →
// Connecting (after backoff) → …
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	minBackoff = 1 * time.Second
	maxBackoff = 2 * time.Minute
)

// Supervisor owns the reconnect loop. On any drop it re-runs the full
// connect-and-subscribe sequence after exponential backoff; fatal errors
// (rejected credentials, store failures surfaced by the handler) abort
// the loop so the process can exit.
type Supervisor struct {
	client  *Client
	rest    *Rest
	handler func(Event) error
	state   atomic.Int32
}

func NewSupervisor(client *Client, rest *Rest, handler func(Event) error) *Supervisor {
	return &Supervisor{
		client:  client,
		rest:    rest,
		handler: handler,
	}
}

// State returns the current connection state; the health endpoint reads it.
func (s *Supervisor) State() ConnState {
	return ConnState(s.state.Load())
}

func (s *Supervisor) transition(next ConnState) {
	prev := ConnState(s.state.Swap(int32(next)))
	if prev != next {
		log.Info().Stringer("from", prev).Stringer("to", next).Msg("Gateway connection state changed")
	}
}

// Run drives the connection until the context is cancelled or a fatal
// error occurs. Returns nil on clean shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := minBackoff

	for {
		s.transition(StateConnecting)
		if err := s.client.Connect(ctx); err != nil {
			if IsFatal(err) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Dur("backoff", backoff).Msg("Gateway connect failed, retrying")
			if !sleep(ctx, withJitter(backoff)) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}
		s.transition(StateConnected)
		backoff = minBackoff

		err := s.client.Listen(ctx, s.handle)
		s.transition(StateDisconnected)

		switch {
		case ctx.Err() != nil:
			log.Info().Msg("Gateway connection closed for shutdown")
			return nil
		case errors.Is(err, errConnDropped):
			log.Warn().Err(err).Dur("backoff", backoff).Msg("Gateway connection dropped, reconnecting")
			if !sleep(ctx, withJitter(backoff)) {
				return nil
			}
			backoff = nextBackoff(backoff)
		default:
			// Fatal: rejected token, bad intents, or a handler surfaced
			// a store failure. The host supervisor restarts the process
			// and upstream redelivery covers the gap.
			return err
		}
	}
}

// handle intercepts thread creation to join new public threads (so
// their reactions keep arriving), then forwards every event unchanged.
func (s *Supervisor) handle(evt Event) error {
	if tc, ok := evt.(*ThreadCreate); ok && tc.NewlyCreated && tc.Joinable() {
		joinCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.rest.JoinThread(joinCtx, tc.Channel.ID); err != nil {
			log.Error().Err(err).Str("threadId", tc.Channel.ID).Msg("Failed to join new thread")
		}
	}
	return s.handler(evt)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// sleep waits for d unless the context ends first; reports whether the
// full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
