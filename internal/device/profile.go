// internal/device/profile.go
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/catalog"
	"github.com/tamzrod/modbus-telemetry/internal/codec"
	"github.com/tamzrod/modbus-telemetry/internal/family"
	"github.com/tamzrod/modbus-telemetry/internal/transport"
)

// State is the model-resolution state of a profile.
type State uint8

const (
	Unresolved State = iota
	ModelRead
	RegistersResolved
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "UNRESOLVED"
	case ModelRead:
		return "MODEL_READ"
	case RegistersResolved:
		return "REGISTERS_RESOLVED"
	case Ready:
		return "READY"
	case Failed:
		return "ERROR"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Config binds one physical device to a family and a link.
type Config struct {
	Name    string
	UnitID  uint8
	Serial  string // empty skips verification
	Family  *family.Family
	Options family.Options
	Link    transport.Link
}

// Profile is one configured device. The resolved catalog is computed once
// by Connect and is read-only afterwards.
type Profile struct {
	name   string
	unit   uint8
	serial string
	fam    *family.Family
	base   *catalog.Catalog
	groups map[string]catalog.Group
	link   transport.Link
	log    zerolog.Logger

	// connectMu serializes Connect; mu guards the fields below.
	connectMu sync.Mutex
	mu        sync.RWMutex
	state     State
	variant   family.Variant
	resolved  *catalog.Catalog
	err       error
}

// New builds an unresolved profile. The link is wrapped so that every
// profile sharing it is serialized on the wire.
func New(cfg Config, log zerolog.Logger) (*Profile, error) {
	if cfg.Name == "" {
		return nil, errors.New("device: name required")
	}
	if cfg.Family == nil {
		return nil, fmt.Errorf("device %s: family required", cfg.Name)
	}
	if cfg.Link == nil {
		return nil, fmt.Errorf("device %s: link required", cfg.Name)
	}

	base, groups, err := cfg.Family.Catalog(cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", cfg.Name, err)
	}

	return &Profile{
		name:   cfg.Name,
		unit:   cfg.UnitID,
		serial: strings.TrimSpace(cfg.Serial),
		fam:    cfg.Family,
		base:   base,
		groups: groups,
		link:   transport.Serialize(cfg.Link),
		log: log.With().
			Str("device", cfg.Name).
			Str("family", cfg.Family.Name).
			Uint8("unit_id", cfg.UnitID).
			Logger(),
	}, nil
}

func (p *Profile) Name() string            { return p.name }
func (p *Profile) UnitID() uint8           { return p.unit }
func (p *Profile) Family() *family.Family  { return p.fam }
func (p *Profile) Codec() codec.Codec      { return p.fam.Codec }
func (p *Profile) Logger() *zerolog.Logger { return &p.log }

// State returns the current resolution state.
func (p *Profile) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Err returns the error that moved the profile to Failed.
func (p *Profile) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Variant returns the identified model once known.
func (p *Profile) Variant() (family.Variant, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.variant, p.state >= ModelRead && p.state != Failed
}

// Parameters returns the resolved catalog.
func (p *Profile) Parameters() (*catalog.Catalog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != Ready {
		return nil, &ProfileNotReadyError{Device: p.name, State: p.state}
	}
	return p.resolved, nil
}

// Fail moves the profile to Failed. The device is excluded for the rest
// of the run.
func (p *Profile) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Failed {
		return
	}
	p.state = Failed
	p.err = err
	p.log.Error().Err(err).Msg("device excluded")
}

func (p *Profile) advance(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.log.Debug().Stringer("state", s).Msg("profile state")
}

// Connect identifies the device and resolves its parameter set.
// It resumes from the current state, so a DeviceUnavailableError can be
// retried without repeating completed steps. Fatal errors move the
// profile to Failed and are returned again on every later call.
func (p *Profile) Connect(ctx context.Context) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	for {
		switch st := p.State(); st {
		case Ready:
			return nil
		case Failed:
			return p.Err()
		case Unresolved:
			if err := p.identify(ctx); err != nil {
				return err
			}
		case ModelRead:
			if err := p.resolve(ctx); err != nil {
				return err
			}
		case RegistersResolved:
			p.advance(Ready)
			c, _ := p.Parameters()
			v, _ := p.Variant()
			p.log.Info().
				Str("model", v.Model).
				Int("parameters", c.Len()).
				Msg("device ready")
		}
	}
}

// identify performs serial verification and the model lookup.
func (p *Profile) identify(ctx context.Context) error {
	if p.fam.Serial != "" && p.serial != "" {
		v, err := p.readNamed(ctx, p.fam.Serial)
		if err != nil {
			return p.classify(err)
		}
		got := strings.TrimSpace(v.String())
		if got != p.serial {
			return p.fatal(&SerialMismatchError{Device: p.name, Want: p.serial, Got: got})
		}
	}

	id, err := p.readNamed(ctx, p.fam.Identification)
	if err != nil {
		return p.classify(err)
	}

	variant, ok := p.fam.Variant(id)
	if !ok {
		return p.fatal(&UnsupportedModelError{Device: p.name, Family: p.fam.Name, Code: id.String()})
	}

	p.mu.Lock()
	p.variant = variant
	p.mu.Unlock()
	p.log.Info().Str("model", variant.Model).Str("code", id.String()).Msg("model identified")
	p.advance(ModelRead)
	return nil
}

// resolve reads the capability register, if any, and freezes the catalog.
func (p *Profile) resolve(ctx context.Context) error {
	var capability codec.Value
	if p.fam.Capability != nil {
		v, err := p.readNamed(ctx, p.fam.Capability.Parameter)
		if err != nil {
			return p.classify(err)
		}
		capability = v
	}

	p.mu.RLock()
	variant := p.variant
	p.mu.RUnlock()

	resolved, err := p.fam.Resolve(p.base, p.groups, variant, capability)
	if err != nil {
		return p.fatal(fmt.Errorf("device %s: %w", p.name, err))
	}

	var ambiguous []string
	for d := range resolved.All() {
		if d.OrderAmbiguous {
			ambiguous = append(ambiguous, d.Name)
		}
	}
	if len(ambiguous) > 0 {
		p.log.Warn().Strs("parameters", ambiguous).Msg("word order unconfirmed, check values against the device display")
	}

	p.mu.Lock()
	p.resolved = resolved
	p.mu.Unlock()
	p.advance(RegistersResolved)
	return nil
}

// classify turns a read failure during Connect into the returned error.
// Transport and context failures are retryable; anything else is fatal.
func (p *Profile) classify(err error) error {
	var te *transport.TransportError
	switch {
	case errors.As(err, &te):
		p.log.Warn().Err(err).Stringer("state", p.State()).Msg("device unavailable")
		return &DeviceUnavailableError{Device: p.name, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return p.fatal(err)
}

func (p *Profile) fatal(err error) error {
	p.Fail(err)
	return err
}

func (p *Profile) readNamed(ctx context.Context, name string) (codec.Value, error) {
	d, ok := p.base.Get(name)
	if !ok {
		return codec.Value{}, fmt.Errorf("device %s: parameter %q not in catalog", p.name, name)
	}
	return p.read(ctx, d)
}

func (p *Profile) read(ctx context.Context, d catalog.Definition) (codec.Value, error) {
	words, err := p.link.Read(ctx, d.Address, uint16(d.Words), p.unit, d.Class)
	if err != nil {
		return codec.Value{}, err
	}
	p.log.Debug().Str("parameter", d.Name).Uints16("words", words).Msg("read")

	v, err := p.Codec().Decode(words, d.Field())
	if err != nil {
		return codec.Value{}, fmt.Errorf("parameter %q: %w", d.Name, err)
	}
	return v, nil
}

// Read reads and decodes d. The value is not scaled.
func (p *Profile) Read(ctx context.Context, d catalog.Definition) (codec.Value, error) {
	if st := p.State(); st != Ready {
		return codec.Value{}, &ProfileNotReadyError{Device: p.name, State: st}
	}
	return p.read(ctx, d)
}

// Write dispatches already-encoded words to d. One attempt.
func (p *Profile) Write(ctx context.Context, d catalog.Definition, words []uint16) error {
	if st := p.State(); st != Ready {
		return &ProfileNotReadyError{Device: p.name, State: st}
	}
	if len(words) != d.Words {
		return fmt.Errorf("device %s: parameter %q takes %d words, got %d", p.name, d.Name, d.Words, len(words))
	}
	return p.link.Write(ctx, words, d.Address, p.unit, d.Class)
}
