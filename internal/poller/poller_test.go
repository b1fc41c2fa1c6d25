// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tamzrod/modbus-telemetry/internal/codec"
	"github.com/tamzrod/modbus-telemetry/internal/device"
	"github.com/tamzrod/modbus-telemetry/internal/family"
	"github.com/tamzrod/modbus-telemetry/internal/supervisor"
	"github.com/tamzrod/modbus-telemetry/internal/transport"
	"github.com/tamzrod/modbus-telemetry/internal/transport/transporttest"
)

const unit = 1

const boxFamily = `
name: testbox
manufacturer: Test
word_order: high_first
identification: Model
variants:
  - {code: "1", model: Box}
parameters:
  - {name: Model, address: 100, type: U16, device_class: enum}
  - {name: Power, address: 101, type: U16, scale: 0.1, unit: W}
  - {name: Voltage, address: 102, type: I16, scale: 0.1, unit: V}
  - {name: Energy, address: 103, type: U32, scale: 0.01, unit: kWh}
  - {name: Label, address: 110, type: UTF8, words: 2}
  - {name: Limit, address: 200, type: U16, class: read_write, entity: number, scale: 0.1, unit: "%", min: 0, max: 100}
  - {name: Mode, address: 201, type: U16, class: read_write, entity: switch, device_class: enum, min: 0, max: 255}
`

// box returns an unconnected profile on a fake link with sample values.
func box(t *testing.T) (*device.Profile, *transporttest.Fake) {
	t.Helper()
	link := transporttest.NewFake()
	return boxOn(t, link, "box", unit), link
}

// boxOn adds a device with sample values at unitID on link.
func boxOn(t *testing.T, link *transporttest.Fake, name string, unitID uint8) *device.Profile {
	t.Helper()

	fam, err := family.Parse([]byte(boxFamily), nil)
	require.NoError(t, err)

	link.Set(unitID, transport.ReadOnly, 100, 1)
	link.Set(unitID, transport.ReadOnly, 101, 1234)
	link.Set(unitID, transport.ReadOnly, 102, 0xFF9C)
	link.Set(unitID, transport.ReadOnly, 103, 0x0001, 0x0000)
	link.Set(unitID, transport.ReadOnly, 110, 0x4142, 0x0000)

	p, err := device.New(device.Config{Name: name, UnitID: unitID, Family: fam, Link: link}, zerolog.Nop())
	require.NoError(t, err)
	return p
}

// ready is box after a successful Connect.
func ready(t *testing.T) (*device.Profile, *transporttest.Fake) {
	t.Helper()
	p, link := box(t)
	require.NoError(t, p.Connect(context.Background()))
	return p, link
}

func collect(c *Cycle) []Reading {
	var out []Reading
	for r := range c.Readings() {
		out = append(out, r)
	}
	return out
}

func slugs(rs []Reading) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Slug
	}
	return out
}

// ---- cycle ----

func TestCycle_WritableFirstThenReadOnly(t *testing.T) {
	p, _ := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)

	c := e.Cycle(context.Background(), p)
	got := collect(c)

	want := []string{"limit", "mode", "model", "power", "voltage", "energy", "label"}
	if diff := cmp.Diff(want, slugs(got)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, c.Complete())
	assert.NoError(t, c.Err())

	values := map[string]string{}
	for _, r := range got {
		values[r.Slug] = r.Value.String()
	}
	assert.Equal(t, map[string]string{
		"limit":   "0",
		"mode":    "0",
		"model":   "1",
		"power":   "123.4",
		"voltage": "-10",
		"energy":  "655.4",
		"label":   "AB",
	}, values)
	assert.Equal(t, "kWh", got[5].Unit)
}

func TestCycle_TransportFailureSkipsOneParameter(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)
	link.FailReads(unit, transport.ReadOnly, 101, 1)

	c := e.Cycle(context.Background(), p)
	got := collect(c)

	assert.Len(t, got, 6)
	assert.NotContains(t, slugs(got), "power")
	require.Len(t, c.Failures(), 1)
	assert.Equal(t, "Power", c.Failures()[0].Parameter)
	assert.NoError(t, c.Err())
	assert.False(t, c.Complete())
	assert.Equal(t, SkipParameter, Decide(c.Failures()[0].Err))

	// restartable: a second pass is a fresh cycle
	assert.Len(t, collect(c), 7)
	assert.True(t, c.Complete())
}

func TestCycle_DecodeErrorExcludesDevice(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)
	link.Set(unit, transport.ReadOnly, 110, 0xFFFF, 0xFEFE)

	c := e.Cycle(context.Background(), p)
	got := collect(c)

	assert.Len(t, got, 6)
	var de *codec.DecodeError
	require.ErrorAs(t, c.Err(), &de)
	assert.Equal(t, AbortDevice, Decide(c.Err()))
	assert.Equal(t, device.Failed, p.State())
}

func TestCycle_NotReady(t *testing.T) {
	p, link := box(t)
	e := New(Config{}, zerolog.Nop(), nil)

	c := e.Cycle(context.Background(), p)
	assert.Empty(t, collect(c))

	var nr *device.ProfileNotReadyError
	assert.ErrorAs(t, c.Err(), &nr)
	assert.Zero(t, link.Reads())
}

func TestCycle_EarlyBreak(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)
	before := link.Reads()

	c := e.Cycle(context.Background(), p)
	for range c.Readings() {
		break
	}
	assert.Equal(t, 1, link.Reads()-before)
	assert.NoError(t, c.Err())
	assert.False(t, c.Complete(), "stopped pass is not complete")

	collect(c)
	assert.True(t, c.Complete())
}

func TestCycle_CancelledStopsProcess(t *testing.T) {
	p, _ := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := e.Cycle(ctx, p)
	assert.Empty(t, collect(c))
	assert.Equal(t, AbortProcess, Decide(c.Err()))
	assert.Equal(t, device.Ready, p.State())
}

// ---- write ----

func TestWrite_RetriesThenSucceeds(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)
	link.FailWrites(2)

	require.NoError(t, e.Write(context.Background(), p, "limit", "50"))
	assert.Equal(t, 3, link.Writes())
	assert.Equal(t, []uint16{500}, link.Get(unit, transport.ReadWrite, 200, 1))
}

func TestWrite_ExhaustedBudgetIsNotFatal(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)
	link.FailWrites(3)

	err := e.Write(context.Background(), p, "limit", "50")
	var wf *WriteFailure
	require.ErrorAs(t, err, &wf)
	assert.Equal(t, DefaultWriteAttempts, wf.Attempts)
	assert.Equal(t, "Limit", wf.Parameter)
	assert.Equal(t, 3, link.Writes())

	// engine and device stay usable
	require.NoError(t, e.Write(context.Background(), p, "limit", "20"))
	assert.Equal(t, 4, link.Writes())
	assert.Equal(t, device.Ready, p.State())

	c := e.Cycle(context.Background(), p)
	assert.Len(t, collect(c), 7)
}

func TestWrite_InputErrorsBeforeIO(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)

	var (
		unknown *UnknownParameterError
		invalid *ValidationError
		rng     *codec.RangeError
	)
	cases := []struct {
		slug, raw string
		target    any
	}{
		{"nope", "1", &unknown},
		{"power", "1", &unknown},
		{"limit", "abc", &invalid},
		{"limit", "", &invalid},
		{"limit", "100.5", &rng},
		{"limit", "-1", &rng},
		{"mode", "256", &rng},
		{"mode", "1.5", &invalid},
		{"mode", "-1", &invalid},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s=%s", tc.slug, tc.raw), func(t *testing.T) {
			err := e.Write(context.Background(), p, tc.slug, tc.raw)
			require.Error(t, err)
			assert.ErrorAs(t, err, tc.target)
		})
	}
	assert.Zero(t, link.Writes())
}

func TestWrite_SwitchLiterals(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)

	for raw, want := range map[string]uint16{"0xAA": 170, "0b1": 1, "85": 85, " 0o17 ": 15} {
		require.NoError(t, e.Write(context.Background(), p, "mode", raw), raw)
		assert.Equal(t, []uint16{want}, link.Get(unit, transport.ReadWrite, 201, 1), raw)
	}
}

func TestWrite_NumberRoundsToNearest(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)

	require.NoError(t, e.Write(context.Background(), p, "limit", "0.3"))
	assert.Equal(t, []uint16{3}, link.Get(unit, transport.ReadWrite, 200, 1))
}

func TestWrite_ClosedEngine(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)
	e.Close()

	assert.ErrorIs(t, e.Write(context.Background(), p, "limit", "1"), ErrClosed)
	assert.Zero(t, link.Writes())
}

func TestWrite_SurvivesCancel(t *testing.T) {
	p, link := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)
	link.FailWrites(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.Write(ctx, p, "limit", "10"))
	assert.Equal(t, 2, link.Writes())
}

func TestRead_ReadBack(t *testing.T) {
	p, _ := ready(t)
	e := New(Config{}, zerolog.Nop(), nil)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 1000).Draw(rt, "tenths")
		raw := strconv.FormatFloat(float64(n)/10, 'f', 1, 64)

		if err := e.Write(context.Background(), p, "limit", raw); err != nil {
			rt.Fatalf("write %s: %v", raw, err)
		}
		r, err := e.Read(context.Background(), p, "limit")
		if err != nil {
			rt.Fatalf("read: %v", err)
		}
		got, _ := r.Value.Float64()
		if diff := got - float64(n)/10; diff > 1e-9 || diff < -1e-9 {
			rt.Fatalf("read back %v, wrote %s", got, raw)
		}
	})

	_, err := e.Read(context.Background(), p, "nope")
	var unknown *UnknownParameterError
	assert.ErrorAs(t, err, &unknown)
}

func TestEngine_NeverOverlapsOnTheWire(t *testing.T) {
	fam, err := family.Parse([]byte(boxFamily), nil)
	require.NoError(t, err)

	raw := transporttest.NewFake()
	raw.Set(unit, transport.ReadOnly, 100, 1)
	raw.Set(unit+1, transport.ReadOnly, 100, 1)
	shared := transport.Serialize(raw)

	var profiles []*device.Profile
	for _, id := range []uint8{unit, unit + 1} {
		p, err := device.New(device.Config{Name: fmt.Sprintf("box%d", id), UnitID: id, Family: fam, Link: shared}, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, p.Connect(context.Background()))
		profiles = append(profiles, p)
	}

	e := New(Config{}, zerolog.Nop(), nil)

	var wg sync.WaitGroup
	for _, p := range profiles {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				collect(e.Cycle(context.Background(), p))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = e.Write(context.Background(), p, "limit", strconv.Itoa(i))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, raw.MaxInflight())
	assert.Equal(t, 40, raw.Writes())
}

// ---- decision table ----

func TestDecide(t *testing.T) {
	te := &transport.TransportError{Op: "read", Err: transporttest.ErrInjected}

	cases := []struct {
		name string
		err  error
		want Action
	}{
		{"nil", nil, 0},
		{"transport", te, SkipParameter},
		{"wrapped transport", fmt.Errorf("x: %w", te), SkipParameter},
		{"unavailable", &device.DeviceUnavailableError{Device: "d", Err: te}, AbortDevice},
		{"decode", &codec.DecodeError{Type: codec.UTF8}, AbortDevice},
		{"unsupported type", &codec.UnsupportedTypeError{}, AbortDevice},
		{"unsupported model", &device.UnsupportedModelError{Device: "d"}, AbortDevice},
		{"serial", &device.SerialMismatchError{Device: "d"}, AbortDevice},
		{"not ready", &device.ProfileNotReadyError{Device: "d"}, AbortDevice},
		{"other", errors.New("boom"), AbortDevice},
		{"connection", &supervisor.ConnectionError{Link: "l", Err: te}, AbortProcess},
		{"cancelled", context.Canceled, AbortProcess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.err), Decide(tc.err).String())
		})
	}
}
