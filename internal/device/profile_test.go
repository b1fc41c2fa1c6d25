// internal/device/profile_test.go
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-telemetry/internal/family"
	"github.com/tamzrod/modbus-telemetry/internal/transport"
	"github.com/tamzrod/modbus-telemetry/internal/transport/transporttest"
)

const unit = 1

// textWords packs s into n big-endian words, null padded.
func textWords(s string, n int) []uint16 {
	b := make([]byte, 2*n)
	copy(b, s)
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}

func newProfile(t *testing.T, fam, serial string, link transport.Link) *Profile {
	t.Helper()
	f, err := family.Lookup(fam)
	require.NoError(t, err)
	p, err := New(Config{Name: "dev", UnitID: unit, Serial: serial, Family: f, Link: link}, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func sungrow(code, outputType uint16) *transporttest.Fake {
	f := transporttest.NewFake()
	f.Set(unit, transport.ReadOnly, 5000, code)
	f.Set(unit, transport.ReadOnly, 5002, outputType)
	f.Set(unit, transport.ReadOnly, 4990, textWords("A2201234567", 10)...)
	return f
}

func TestConnect_ResolvesSungrow(t *testing.T) {
	p := newProfile(t, "sungrow_inverter", "", sungrow(0x2C00, 1))
	assert.Equal(t, Unresolved, p.State())

	_, err := p.Parameters()
	var nr *ProfileNotReadyError
	require.ErrorAs(t, err, &nr)

	require.NoError(t, p.Connect(context.Background()))
	assert.Equal(t, Ready, p.State())

	v, ok := p.Variant()
	require.True(t, ok)
	assert.Equal(t, "SG33CX", v.Model)

	c, err := p.Parameters()
	require.NoError(t, err)
	for _, name := range []string{"MPPT 3 Current", "Phase B Voltage", "Total Apparent Power"} {
		_, ok := c.Get(name)
		assert.True(t, ok, name)
	}
	_, ok = c.Get("MPPT 4 Voltage")
	assert.False(t, ok)

	// idempotent once ready
	require.NoError(t, p.Connect(context.Background()))
}

func TestConnect_UnsupportedModel(t *testing.T) {
	link := sungrow(0x1234, 1)
	p := newProfile(t, "sungrow_inverter", "", link)

	err := p.Connect(context.Background())
	var um *UnsupportedModelError
	require.ErrorAs(t, err, &um)
	assert.Equal(t, "4660", um.Code)
	assert.Equal(t, Failed, p.State())

	reads := link.Reads()
	err = p.Connect(context.Background())
	require.ErrorAs(t, err, &um)
	assert.Equal(t, reads, link.Reads(), "no retry after fatal error")

	_, err = p.Parameters()
	var nr *ProfileNotReadyError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, Failed, nr.State)
}

func TestConnect_TransportFailureIsRetryable(t *testing.T) {
	link := sungrow(0x2C02, 2)
	link.FailReads(unit, transport.ReadOnly, 5000, 1)
	p := newProfile(t, "sungrow_inverter", "", link)

	err := p.Connect(context.Background())
	var du *DeviceUnavailableError
	require.ErrorAs(t, err, &du)
	var te *transport.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, Unresolved, p.State())

	require.NoError(t, p.Connect(context.Background()))
	c, _ := p.Parameters()
	_, ok := c.Get("C-A Line Voltage")
	assert.True(t, ok)
}

func TestConnect_CapabilityFailureResumes(t *testing.T) {
	link := sungrow(0x2C02, 1)
	link.FailReads(unit, transport.ReadOnly, 5002, 1)
	p := newProfile(t, "sungrow_inverter", "", link)

	err := p.Connect(context.Background())
	var du *DeviceUnavailableError
	require.ErrorAs(t, err, &du)
	assert.Equal(t, ModelRead, p.State())

	require.NoError(t, p.Connect(context.Background()))
	assert.Equal(t, Ready, p.State())
}

func TestConnect_UnknownCapabilityIsFatal(t *testing.T) {
	p := newProfile(t, "sungrow_inverter", "", sungrow(0x2C02, 9))
	require.Error(t, p.Connect(context.Background()))
	assert.Equal(t, Failed, p.State())
	assert.Error(t, p.Err())
}

func TestConnect_Serial(t *testing.T) {
	p := newProfile(t, "sungrow_inverter", "A2201234567", sungrow(0x2C00, 1))
	require.NoError(t, p.Connect(context.Background()))

	p = newProfile(t, "sungrow_inverter", "B000", sungrow(0x2C00, 1))
	err := p.Connect(context.Background())
	var sm *SerialMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "A2201234567", sm.Got)
	assert.Equal(t, Failed, p.State())
}

func TestConnect_TextIdentification(t *testing.T) {
	link := transporttest.NewFake()
	link.Set(unit, transport.ReadOnly, 4801, textWords("BCS500K-A", 10)...)
	p := newProfile(t, "kehua_inverter", "", link)

	require.NoError(t, p.Connect(context.Background()))
	v, _ := p.Variant()
	assert.Equal(t, "BCS500K-A", v.Model)
}

func TestConnect_DecodeErrorIsFatal(t *testing.T) {
	link := transporttest.NewFake()
	link.Set(unit, transport.ReadOnly, 4801, 0xFFFF, 0xFEFE)
	p := newProfile(t, "kehua_inverter", "", link)

	err := p.Connect(context.Background())
	require.Error(t, err)
	var du *DeviceUnavailableError
	assert.False(t, errors.As(err, &du))
	assert.Equal(t, Failed, p.State())
}

func TestConnect_FixedModel(t *testing.T) {
	link := transporttest.NewFake()
	link.Set(unit, transport.ReadWrite, 0x0062, 2301)
	p := newProfile(t, "acrel_meter", "", link)

	require.NoError(t, p.Connect(context.Background()))
	c, _ := p.Parameters()
	_, ok := c.Get("Total Grid Import")
	assert.True(t, ok)
}

func TestConnect_WarnsOnUnconfirmedWordOrder(t *testing.T) {
	link := transporttest.NewFake()
	link.Set(unit, transport.ReadWrite, 0x0062, 2301)
	f, err := family.Lookup("acrel_meter")
	require.NoError(t, err)

	var buf bytes.Buffer
	p, err := New(Config{Name: "meter", UnitID: unit, Family: f, Link: link}, zerolog.New(&buf))
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))

	var warned []string
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry struct {
			Level      string   `json:"level"`
			Parameters []string `json:"parameters"`
		}
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry.Level == "warn" {
			warned = append(warned, entry.Parameters...)
		}
	}
	assert.Contains(t, warned, "Phase A Active Power")
}

func TestConnect_NoWarningWhenOrderConfirmed(t *testing.T) {
	var buf bytes.Buffer
	f, err := family.Lookup("sungrow_inverter")
	require.NoError(t, err)
	p, err := New(Config{Name: "dev", UnitID: unit, Family: f, Link: sungrow(0x2C00, 1)}, zerolog.New(&buf).Level(zerolog.WarnLevel))
	require.NoError(t, err)

	require.NoError(t, p.Connect(context.Background()))
	assert.Empty(t, buf.String())
}

func TestReadWrite_RequireReady(t *testing.T) {
	link := sungrow(0x2C00, 1)
	p := newProfile(t, "sungrow_inverter", "", link)
	d, ok := p.base.Get("Power limitation setting")
	require.True(t, ok)

	_, err := p.Read(context.Background(), d)
	var nr *ProfileNotReadyError
	require.ErrorAs(t, err, &nr)
	require.ErrorAs(t, p.Write(context.Background(), d, []uint16{1}), &nr)

	require.NoError(t, p.Connect(context.Background()))
	require.NoError(t, p.Write(context.Background(), d, []uint16{500}))
	assert.Equal(t, []uint16{500}, link.Get(unit, transport.ReadWrite, 5008, 1))

	v, err := p.Read(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "500", v.String())

	assert.Error(t, p.Write(context.Background(), d, []uint16{1, 2}))
}
