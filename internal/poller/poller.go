// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/catalog"
	"github.com/tamzrod/modbus-telemetry/internal/codec"
	"github.com/tamzrod/modbus-telemetry/internal/device"
)

// DefaultWriteAttempts is the write retry budget.
const DefaultWriteAttempts = 3

// Config is the minimal runtime config the engine needs.
type Config struct {
	WriteAttempts int
	RetryDelay    time.Duration
	// ReadDelay is slept after every register read.
	ReadDelay time.Duration
}

// Engine reads and writes READY profiles. It holds no per-device state;
// serialization on the wire is the link's job.
type Engine struct {
	cfg Config
	log zerolog.Logger
	rec Recorder

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New creates an engine. rec may be nil.
func New(cfg Config, log zerolog.Logger, rec Recorder) *Engine {
	if cfg.WriteAttempts < 1 {
		cfg.WriteAttempts = DefaultWriteAttempts
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Engine{cfg: cfg, log: log, rec: rec}
}

// ---- read path ----

// Cycle is one pass over a profile's resolved parameters.
type Cycle struct {
	e   *Engine
	ctx context.Context
	p   *device.Profile

	failures []Failure
	err      error
	done     bool
}

// Cycle prepares a cycle. Nothing is read until Readings is ranged over.
func (e *Engine) Cycle(ctx context.Context, p *device.Profile) *Cycle {
	return &Cycle{e: e, ctx: ctx, p: p}
}

// Readings yields one Reading per successfully read parameter, writable
// parameters first, each group in catalog order. A transport failure skips
// the parameter; any other failure ends the sequence and is reported by
// Err. Ranging again starts a fresh cycle.
func (c *Cycle) Readings() iter.Seq[Reading] {
	return func(yield func(Reading) bool) {
		c.failures = nil
		c.err = nil
		c.done = false

		params, err := c.p.Parameters()
		if err != nil {
			c.err = err
			return
		}

		start := time.Now()
		defer func() { c.e.rec.CycleDone(c.p.Name(), time.Since(start)) }()

		for _, seq := range []iter.Seq[catalog.Definition]{params.Writable(), params.ReadOnly()} {
			for d := range seq {
				r, err := c.e.read(c.ctx, c.p, d)
				if serr := sleep(c.ctx, c.e.cfg.ReadDelay); serr != nil && err == nil {
					err = serr
				}

				if err != nil {
					if Decide(err) == SkipParameter {
						c.p.Logger().Warn().Err(err).Str("parameter", d.Name).Msg("read failed, skipped")
						c.failures = append(c.failures, Failure{Parameter: d.Name, Err: err})
						continue
					}
					if excludes(err) {
						c.p.Fail(err)
					}
					c.err = err
					return
				}

				if !yield(r) {
					return
				}
			}
		}
		c.done = true
	}
}

// Failures returns the parameters skipped by the last pass.
func (c *Cycle) Failures() []Failure { return c.failures }

// Err returns the error that ended the last pass early.
func (c *Cycle) Err() error { return c.err }

// Complete reports whether the last pass ran to the end and read every
// parameter. A pass the caller stopped early is not complete.
func (c *Cycle) Complete() bool { return c.done && c.err == nil && len(c.failures) == 0 }

// Read reads one parameter of a READY profile and returns it scaled and
// rounded. Used for read-back after writes.
func (e *Engine) Read(ctx context.Context, p *device.Profile, slug string) (Reading, error) {
	params, err := p.Parameters()
	if err != nil {
		return Reading{}, err
	}
	d, ok := params.Lookup(slug)
	if !ok {
		return Reading{}, &UnknownParameterError{Device: p.Name(), Slug: slug}
	}
	return e.read(ctx, p, d)
}

func (e *Engine) read(ctx context.Context, p *device.Profile, d catalog.Definition) (Reading, error) {
	v, err := p.Read(ctx, d)
	e.rec.ReadDone(p.Name(), err)
	if err != nil {
		return Reading{}, err
	}

	v = codec.Scale(v, d.Factor())
	if places, ok := d.Rounding(); ok {
		v = codec.Round(v, places)
	}

	return Reading{
		Parameter:   d.Name,
		Slug:        d.Slug(),
		Value:       v,
		Unit:        d.Unit,
		DeviceClass: d.DeviceClass,
		StateClass:  d.StateClass,
		At:          time.Now(),
	}, nil
}

// ---- write path ----

// Write parses raw for the writable parameter named by slug, checks its
// bounds, encodes it and dispatches it with the retry budget. Input errors
// are returned before any IO. Once started, a write runs its whole budget
// even if ctx is cancelled by shutdown.
func (e *Engine) Write(ctx context.Context, p *device.Profile, slug, raw string) error {
	if !e.begin() {
		return ErrClosed
	}
	defer e.wg.Done()

	params, err := p.Parameters()
	if err != nil {
		return err
	}
	d, ok := params.Lookup(slug)
	if !ok || !d.Writable() {
		return &UnknownParameterError{Device: p.Name(), Slug: slug}
	}

	v, err := parse(d, raw)
	if err != nil {
		return err
	}
	words, err := p.Codec().Encode(v, d.Field())
	if err != nil {
		return err
	}

	log := p.Logger().With().Str("parameter", d.Name).Str("value", raw).Logger()
	ctx = context.WithoutCancel(ctx)

	for attempt := 1; ; attempt++ {
		e.rec.WriteAttempt(p.Name())
		err = p.Write(ctx, d, words)
		if err == nil {
			e.rec.WriteDone(p.Name(), nil)
			log.Info().Int("attempt", attempt).Msg("write ok")
			return nil
		}

		if attempt >= e.cfg.WriteAttempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("write failed, retrying")
		_ = sleep(ctx, e.cfg.RetryDelay)
	}

	wf := &WriteFailure{Device: p.Name(), Parameter: d.Name, Attempts: e.cfg.WriteAttempts, Err: err}
	e.rec.WriteDone(p.Name(), wf)
	log.Error().Err(err).Int("attempts", e.cfg.WriteAttempts).Msg("write failed")
	return wf
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return false
	}
	e.wg.Add(1)
	return true
}

// Close rejects new writes and waits for in-flight ones to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.wg.Wait()
}

// parse converts command text to the value to encode. Bounds are in
// physical units and are checked before inverse scaling.
func parse(d catalog.Definition, raw string) (codec.Value, error) {
	s := strings.TrimSpace(raw)

	if d.Entity == catalog.EntitySwitch {
		var (
			v codec.Value
			x float64
		)
		switch d.Type {
		case codec.I16, codec.I32, codec.I64:
			n, err := strconv.ParseInt(s, 0, 64)
			if err != nil {
				return codec.Value{}, &ValidationError{Parameter: d.Name, Input: raw, Err: unwrapNum(err)}
			}
			v, x = codec.IntValue(n), float64(n)
		default:
			n, err := strconv.ParseUint(s, 0, 64)
			if err != nil {
				return codec.Value{}, &ValidationError{Parameter: d.Name, Input: raw, Err: unwrapNum(err)}
			}
			v, x = codec.UintValue(n), float64(n)
		}
		if err := bounds(d, x); err != nil {
			return codec.Value{}, err
		}
		return v, nil
	}

	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return codec.Value{}, &ValidationError{Parameter: d.Name, Input: raw, Err: unwrapNum(err)}
	}
	if err := bounds(d, x); err != nil {
		return codec.Value{}, err
	}
	return codec.Unscale(x, d.Factor(), d.Type), nil
}

func bounds(d catalog.Definition, x float64) error {
	if (d.Min != nil && x < *d.Min) || (d.Max != nil && x > *d.Max) {
		re := &codec.RangeError{Type: d.Type, Value: strconv.FormatFloat(x, 'f', -1, 64)}
		if d.Min != nil {
			re.Min = strconv.FormatFloat(*d.Min, 'f', -1, 64)
		}
		if d.Max != nil {
			re.Max = strconv.FormatFloat(*d.Max, 'f', -1, 64)
		}
		return re
	}
	return nil
}

func unwrapNum(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
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
