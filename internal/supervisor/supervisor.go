// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/transport"
)

// DefaultInterval is the EnsureConnected retry period.
const DefaultInterval = time.Second

// ConnectionError is returned when the retry budget is exhausted.
// Callers treat it as fatal.
type ConnectionError struct {
	Link     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("link %s: not connected after %d attempts: %v", e.Link, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Options bound the supervisor's retries.
type Options struct {
	// Attempts and RetryDelay apply to Connect.
	Attempts   int
	RetryDelay time.Duration
	// Interval is the EnsureConnected period.
	Interval time.Duration
}

// Supervisor owns the connect lifecycle of one link.
// It never reads or writes registers.
type Supervisor struct {
	name string
	conn transport.Conn
	opts Options
	log  zerolog.Logger
}

func New(name string, conn transport.Conn, opts Options, log zerolog.Logger) *Supervisor {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Supervisor{
		name: name,
		conn: conn,
		opts: opts,
		log:  log.With().Str("link", name).Logger(),
	}
}

func (s *Supervisor) Name() string { return s.name }

// Connect establishes the link, retrying up to Attempts times with
// RetryDelay between attempts.
func (s *Supervisor) Connect(ctx context.Context) error {
	return s.retry(ctx, s.opts.Attempts, s.opts.RetryDelay)
}

// EnsureConnected returns at once if the link is up; otherwise it blocks,
// retrying every Interval, until connected or maxAttempts is exceeded.
func (s *Supervisor) EnsureConnected(ctx context.Context, maxAttempts int) error {
	if s.conn.Connected() {
		return nil
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return s.retry(ctx, maxAttempts, s.opts.Interval)
}

func (s *Supervisor) retry(ctx context.Context, attempts int, delay time.Duration) error {
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if last = s.conn.Connect(); last == nil {
			if i > 1 {
				s.log.Info().Int("attempt", i).Msg("link connected")
			} else {
				s.log.Debug().Msg("link connected")
			}
			return nil
		}
		s.log.Warn().Err(last).Int("attempt", i).Int("of", attempts).Msg("connect failed")

		if i < attempts {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return &ConnectionError{Link: s.name, Attempts: attempts, Err: last}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
