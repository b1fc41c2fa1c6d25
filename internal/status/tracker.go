// internal/status/tracker.go
package status

import (
	"context"
	"sync"
	"time"
)

// Tracker owns the status snapshot of every device. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	devices map[string]*Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now, devices: map[string]*Snapshot{}}
}

func (t *Tracker) get(name string) *Snapshot {
	s, ok := t.devices[name]
	if !ok {
		s = &Snapshot{Device: name, Health: HealthUnknown, UpdatedAt: t.now()}
		t.devices[name] = s
	}
	return s
}

// OK records a complete cycle. Error code and timer are reset.
func (t *Tracker) OK(name string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(name)
	s.Health = HealthOK
	s.LastErrorCode = 0
	s.LastError = ""
	s.SecondsInError = 0
	s.UpdatedAt = t.now()
	return *s
}

// Error records a failed or partial cycle. The timer keeps running.
func (t *Tracker) Error(name string, err error) Snapshot {
	return t.set(name, HealthError, err)
}

// Disable records a device excluded for the rest of the run.
func (t *Tracker) Disable(name string, err error) Snapshot {
	return t.set(name, HealthDisabled, err)
}

func (t *Tracker) set(name string, health uint16, err error) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(name)
	s.Health = health
	s.LastErrorCode = ErrorCode(err)
	if err != nil {
		s.LastError = err.Error()
	}
	s.UpdatedAt = t.now()
	return *s
}

// Snapshot returns the current state of name.
func (t *Tracker) Snapshot(name string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.get(name)
}

// Tick advances the error timer of every device that is not OK.
func (t *Tracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.devices {
		if s.Health != HealthOK && s.SecondsInError < MaxSecondsInError {
			s.SecondsInError++
		}
	}
}

// Run ticks at 1 Hz until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}
