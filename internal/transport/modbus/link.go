// internal/transport/modbus/link.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/transport"
)

// Kind selects the goburrow handler.
type Kind string

const (
	KindTCP Kind = "tcp"
	KindRTU Kind = "rtu"
)

// Config is the link geometry. Serial fields are ignored for TCP.
type Config struct {
	Name     string
	Kind     Kind
	Endpoint string // host:port or serial device path
	Timeout  time.Duration

	BaudRate int
	DataBits int
	Parity   string // "N", "E", "O"
	StopBits int
}

// handler is the subset of goburrow's TCP and RTU handlers the link drives.
type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Link is one goburrow client. goburrow is not safe for concurrent use and
// SlaveId is mutated per transaction, so every call holds mu.
type Link struct {
	mu        sync.Mutex
	name      string
	handler   handler
	setSlave  func(uint8)
	client    modbus.Client
	connected bool
	log       zerolog.Logger
}

// New builds an unconnected link. Call Connect (normally via the supervisor).
func New(cfg Config, log zerolog.Logger) (*Link, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus link: endpoint required")
	}

	l := &Link{
		name: cfg.Name,
		log:  log.With().Str("link", cfg.Name).Logger(),
	}

	switch cfg.Kind {
	case KindTCP:
		h := modbus.NewTCPClientHandler(cfg.Endpoint)
		h.Timeout = cfg.Timeout
		l.handler = h
		l.setSlave = func(id uint8) { h.SlaveId = id }
	case KindRTU:
		h := modbus.NewRTUClientHandler(cfg.Endpoint)
		h.BaudRate = cfg.BaudRate
		h.DataBits = cfg.DataBits
		h.Parity = cfg.Parity
		h.StopBits = cfg.StopBits
		h.Timeout = cfg.Timeout
		l.handler = h
		l.setSlave = func(id uint8) { h.SlaveId = id }
	default:
		return nil, fmt.Errorf("modbus link: unknown kind %q", cfg.Kind)
	}

	l.client = modbus.NewClient(l.handler)
	return l, nil
}

// Name returns the configured link name.
func (l *Link) Name() string { return l.name }

func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// drop a half-open connection before dialing again
	_ = l.handler.Close()
	if err := l.handler.Connect(); err != nil {
		l.connected = false
		return &transport.TransportError{Op: "connect", Err: err}
	}
	l.connected = true
	l.log.Info().Msg("link connected")
	return nil
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	return l.handler.Close()
}

// Read issues FC 4 (ReadOnly) or FC 3 (ReadWrite). address is 1-indexed.
func (l *Link) Read(ctx context.Context, address, count uint16, unit uint8, class transport.RegisterClass) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if address == 0 {
		return nil, errors.New("modbus link: address is 1-indexed")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.setSlave(unit)

	var (
		raw []byte
		err error
	)
	if class == transport.ReadWrite {
		raw, err = l.client.ReadHoldingRegisters(address-1, count)
	} else {
		raw, err = l.client.ReadInputRegisters(address-1, count)
	}
	if err != nil {
		l.observe(err)
		return nil, &transport.TransportError{Op: "read", Address: address, Count: count, Unit: unit, Err: err}
	}
	if len(raw) != int(count)*2 {
		// short frame from the device: hand it to the codec as-is, it will reject it
		l.log.Debug().Uint16("addr", address).Int("bytes", len(raw)).Msg("short response")
	}

	words := unpackRegisters(raw)
	l.log.Debug().Uint8("unit", unit).Uint16("addr", address).Uints16("words", words).Msg("read")
	return words, nil
}

// Write issues FC 16 against the holding bank. address is 1-indexed.
func (l *Link) Write(ctx context.Context, words []uint16, address uint16, unit uint8, class transport.RegisterClass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if class != transport.ReadWrite {
		return transport.ErrReadOnly
	}
	if address == 0 {
		return errors.New("modbus link: address is 1-indexed")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.setSlave(unit)

	qty := uint16(len(words))
	if _, err := l.client.WriteMultipleRegisters(address-1, qty, packRegisters(words)); err != nil {
		l.observe(err)
		return &transport.TransportError{Op: "write", Address: address, Count: qty, Unit: unit, Err: err}
	}
	return nil
}

// observe marks the link down unless the device answered with an exception.
func (l *Link) observe(err error) {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return
	}
	l.connected = false
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}
