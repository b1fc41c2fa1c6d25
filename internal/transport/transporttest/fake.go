// internal/transport/transporttest/fake.go

// Package transporttest provides an in-memory register map for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tamzrod/modbus-telemetry/internal/transport"
)

// ErrInjected is the failure a Fake returns for scripted faults.
var ErrInjected = errors.New("transporttest: injected failure")

type regKey struct {
	unit    uint8
	class   transport.RegisterClass
	address uint16
}

// Fake is an in-memory register map implementing transport.Link and
// transport.Conn.
// Reads of unset registers return zero words.
type Fake struct {
	mu     sync.Mutex
	regs   map[regKey]uint16
	failRd map[regKey]int // address -> remaining failures, -1 = forever
	failWr int

	reads     int
	writes    int
	connected bool
	connFails int

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

var (
	_ transport.Link = (*Fake)(nil)
	_ transport.Conn = (*Fake)(nil)
)

// NewFake returns a connected fake link.
func NewFake() *Fake {
	return &Fake{
		regs:      map[regKey]uint16{},
		failRd:    map[regKey]int{},
		connected: true,
	}
}

// Set stores words starting at address.
func (f *Fake) Set(unit uint8, class transport.RegisterClass, address uint16, words ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range words {
		f.regs[regKey{unit, class, address + uint16(i)}] = w
	}
}

// Get returns count words starting at address.
func (f *Fake) Get(unit uint8, class transport.RegisterClass, address, count uint16) []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint16, count)
	for i := range out {
		out[i] = f.regs[regKey{unit, class, address + uint16(i)}]
	}
	return out
}

// FailReads makes the next n reads starting at address fail. n < 0 fails forever.
func (f *Fake) FailReads(unit uint8, class transport.RegisterClass, address uint16, n int) {
	f.mu.Lock()
	f.failRd[regKey{unit, class, address}] = n
	f.mu.Unlock()
}

// FailWrites makes the next n writes fail.
func (f *Fake) FailWrites(n int) {
	f.mu.Lock()
	f.failWr = n
	f.mu.Unlock()
}

// FailConnects makes the next n Connect calls fail and drops the connection.
func (f *Fake) FailConnects(n int) {
	f.mu.Lock()
	f.connFails = n
	f.connected = false
	f.mu.Unlock()
}

// Reads returns the number of read transactions issued.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Writes returns the number of write transactions issued, failed ones included.
func (f *Fake) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// MaxInflight reports the highest number of overlapping transactions seen.
func (f *Fake) MaxInflight() int { return int(f.maxInflight.Load()) }

func (f *Fake) enter() {
	n := f.inflight.Add(1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			return
		}
	}
}

func (f *Fake) Read(ctx context.Context, address, count uint16, unit uint8, class transport.RegisterClass) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.enter()
	defer f.inflight.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++

	k := regKey{unit, class, address}
	if n, ok := f.failRd[k]; ok && n != 0 {
		if n > 0 {
			f.failRd[k] = n - 1
		}
		return nil, &transport.TransportError{Op: "read", Address: address, Count: count, Unit: unit, Err: ErrInjected}
	}

	out := make([]uint16, count)
	for i := range out {
		out[i] = f.regs[regKey{unit, class, address + uint16(i)}]
	}
	return out, nil
}

func (f *Fake) Write(ctx context.Context, words []uint16, address uint16, unit uint8, class transport.RegisterClass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if class != transport.ReadWrite {
		return transport.ErrReadOnly
	}
	f.enter()
	defer f.inflight.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++

	if f.failWr > 0 {
		f.failWr--
		return &transport.TransportError{Op: "write", Address: address, Count: uint16(len(words)), Unit: unit, Err: ErrInjected}
	}
	for i, w := range words {
		f.regs[regKey{unit, class, address + uint16(i)}] = w
	}
	return nil
}

func (f *Fake) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connFails > 0 {
		f.connFails--
		return &transport.TransportError{Op: "connect", Err: ErrInjected}
	}
	f.connected = true
	return nil
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}
