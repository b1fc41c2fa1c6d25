// internal/poller/runner.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/device"
	"github.com/tamzrod/modbus-telemetry/internal/status"
	"github.com/tamzrod/modbus-telemetry/internal/supervisor"
	"github.com/tamzrod/modbus-telemetry/internal/transport"
)

// Publisher is the downstream consumer of readings and device health.
type Publisher interface {
	State(device string, r Reading) error
	Availability(device string, online bool) error
	Status(device string, s status.Snapshot) error
}

// LinkGroup is one physical link and the devices behind it.
type LinkGroup struct {
	Supervisor *supervisor.Supervisor
	Conn       transport.Conn
	Profiles   []*device.Profile
}

// RunnerConfig holds the loop timing.
type RunnerConfig struct {
	Interval       time.Duration
	EnsureAttempts int

	// MidnightSleep pauses polling from 23:57 until WakeAfter past midnight.
	MidnightSleep bool
	WakeAfter     time.Duration
}

// midnightLead is how long before midnight the pause starts.
const midnightLead = 3 * time.Minute

// Runner is the single cooperative polling loop. One iteration cycles
// every profile of every link in configuration order.
type Runner struct {
	engine  *Engine
	links   []LinkGroup
	byName  map[string]*device.Profile
	pub     Publisher
	tracker *status.Tracker
	rec     Recorder
	cfg     RunnerConfig
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	available map[string]bool
	published map[string]status.Snapshot
}

// NewRunner wires the loop. rec may be nil.
func NewRunner(e *Engine, links []LinkGroup, pub Publisher, cfg RunnerConfig, rec Recorder, log zerolog.Logger) *Runner {
	if rec == nil {
		rec = nopRecorder{}
	}
	if cfg.EnsureAttempts < 1 {
		cfg.EnsureAttempts = 1
	}

	byName := make(map[string]*device.Profile)
	for _, g := range links {
		for _, p := range g.Profiles {
			byName[p.Name()] = p
		}
	}

	return &Runner{
		engine:    e,
		links:     links,
		byName:    byName,
		pub:       pub,
		tracker:   status.NewTracker(),
		rec:       rec,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
		available: map[string]bool{},
		published: map[string]status.Snapshot{},
	}
}

// Tracker exposes the health tracker.
func (r *Runner) Tracker() *status.Tracker { return r.tracker }

// Run connects every link, then polls until ctx is done or an error
// aborts the process. On return, in-flight writes have finished, every
// device has been marked offline and the links are closed.
func (r *Runner) Run(ctx context.Context) error {
	defer r.shutdown()

	go r.tracker.Run(ctx)

	for _, g := range r.links {
		if err := g.Supervisor.Connect(ctx); err != nil {
			return stopped(err)
		}
	}

	for {
		if err := r.Once(ctx); err != nil {
			return stopped(err)
		}

		wait := r.cfg.Interval
		if r.cfg.MidnightSleep {
			if d := pause(r.now(), r.cfg.WakeAfter); d > 0 {
				r.log.Info().Dur("for", d).Msg("midnight sleep")
				wait = d
			}
		}
		if err := sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// Once runs one loop iteration. It returns only errors that abort the
// process.
func (r *Runner) Once(ctx context.Context) error {
	for _, g := range r.links {
		if err := g.Supervisor.EnsureConnected(ctx, r.cfg.EnsureAttempts); err != nil {
			return err
		}

		for _, p := range g.Profiles {
			if err := r.poll(ctx, p); Decide(err) == AbortProcess {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) poll(ctx context.Context, p *device.Profile) error {
	if p.State() == device.Failed {
		r.setAvailable(p.Name(), false)
		r.publishStatus(p.Name(), r.tracker.Disable(p.Name(), p.Err()))
		return nil
	}

	err := p.Connect(ctx)
	if err == nil {
		c := r.engine.Cycle(ctx, p)
		for rd := range c.Readings() {
			if perr := r.pub.State(p.Name(), rd); perr != nil {
				p.Logger().Warn().Err(perr).Str("parameter", rd.Parameter).Msg("publish failed")
			}
		}
		err = c.Err()
		if f := c.Failures(); err == nil && len(f) > 0 {
			err = f[0].Err
		}
	}

	if Decide(err) == AbortProcess {
		return err
	}

	switch {
	case err == nil:
		r.setAvailable(p.Name(), true)
		r.publishStatus(p.Name(), r.tracker.OK(p.Name()))
	case p.State() == device.Failed:
		p.Logger().Error().Err(err).Msg("device excluded")
		r.setAvailable(p.Name(), false)
		r.publishStatus(p.Name(), r.tracker.Disable(p.Name(), err))
	default:
		p.Logger().Warn().Err(err).Stringer("action", Decide(err)).Msg("cycle incomplete")
		r.setAvailable(p.Name(), false)
		r.publishStatus(p.Name(), r.tracker.Error(p.Name(), err))
	}
	return err
}

// setAvailable publishes availability on change only.
func (r *Runner) setAvailable(name string, up bool) {
	r.rec.Available(name, up)

	r.mu.Lock()
	prev, seen := r.available[name]
	r.available[name] = up
	r.mu.Unlock()

	if seen && prev == up {
		return
	}
	if err := r.pub.Availability(name, up); err != nil {
		r.log.Warn().Err(err).Str("device", name).Msg("availability publish failed")
	}
}

// publishStatus publishes the snapshot when health or error changed.
func (r *Runner) publishStatus(name string, s status.Snapshot) {
	r.mu.Lock()
	prev, seen := r.published[name]
	r.published[name] = s
	r.mu.Unlock()

	if seen && prev.Health == s.Health && prev.LastErrorCode == s.LastErrorCode && prev.LastError == s.LastError {
		return
	}
	if err := r.pub.Status(name, s); err != nil {
		r.log.Warn().Err(err).Str("device", name).Msg("status publish failed")
	}
}

func (r *Runner) shutdown() {
	r.engine.Close()

	for _, g := range r.links {
		for _, p := range g.Profiles {
			if err := r.pub.Availability(p.Name(), false); err != nil {
				r.log.Warn().Err(err).Str("device", p.Name()).Msg("offline publish failed")
			}
		}
		if err := g.Conn.Close(); err != nil {
			r.log.Warn().Err(err).Str("link", g.Supervisor.Name()).Msg("close failed")
		}
	}
	r.log.Info().Msg("poller stopped")
}

// ---- commands ----

func (r *Runner) profile(name string) (*device.Profile, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("poller: unknown device %q", name)
	}
	return p, nil
}

// Write dispatches a bus command to the named device.
func (r *Runner) Write(ctx context.Context, name, slug, raw string) error {
	p, err := r.profile(name)
	if err != nil {
		return err
	}
	return r.engine.Write(ctx, p, slug, raw)
}

// Read reads one parameter of the named device.
func (r *Runner) Read(ctx context.Context, name, slug string) (Reading, error) {
	p, err := r.profile(name)
	if err != nil {
		return Reading{}, err
	}
	return r.engine.Read(ctx, p, slug)
}

// pause returns how long to sleep when t falls in the window from
// midnightLead before midnight until wake after it, else 0.
func pause(t time.Time, wake time.Duration) time.Duration {
	y, m, d := t.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	next := today.AddDate(0, 0, 1)

	if !t.Before(next.Add(-midnightLead)) {
		return next.Add(wake).Sub(t)
	}
	if t.Before(today.Add(wake)) {
		return today.Add(wake).Sub(t)
	}
	return 0
}

// stopped maps shutdown by the caller to a clean return.
func stopped(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
