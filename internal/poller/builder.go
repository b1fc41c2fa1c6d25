// internal/poller/builder.go
package poller

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/modbus-telemetry/internal/config"
	"github.com/tamzrod/modbus-telemetry/internal/device"
	"github.com/tamzrod/modbus-telemetry/internal/family"
	"github.com/tamzrod/modbus-telemetry/internal/supervisor"
	"github.com/tamzrod/modbus-telemetry/internal/transport"
	tmodbus "github.com/tamzrod/modbus-telemetry/internal/transport/modbus"
)

// Build constructs the links, profiles and engine described by a
// validated, normalized config. Nothing is dialed here: the runner
// connects on Run.
func Build(c *cfg.Config, pub Publisher, rec Recorder, log zerolog.Logger) (*Runner, error) {
	groups := make([]LinkGroup, 0, len(c.Links))
	index := make(map[string]int, len(c.Links))
	shared := make(map[string]transport.Link, len(c.Links))

	for _, l := range c.Links {
		link, err := tmodbus.New(tmodbus.Config{
			Name:     l.Name,
			Kind:     tmodbus.Kind(l.Type),
			Endpoint: l.Endpoint,
			Timeout:  ms(l.TimeoutMs),
			BaudRate: l.BaudRate,
			DataBits: l.DataBits,
			Parity:   l.Parity,
			StopBits: l.StopBits,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", l.Name, err)
		}

		sup := supervisor.New(l.Name, link, supervisor.Options{
			Attempts:   c.Connect.Attempts,
			RetryDelay: ms(c.Connect.RetryDelayMs),
		}, log)

		index[l.Name] = len(groups)
		// one guard per physical link, shared by every device on it
		shared[l.Name] = transport.Serialize(link)
		groups = append(groups, LinkGroup{Supervisor: sup, Conn: link})
	}

	for _, d := range c.Devices {
		fam, err := family.Lookup(d.Family)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Name, err)
		}
		gi, ok := index[d.Link]
		if !ok {
			return nil, fmt.Errorf("device %s: unknown link %q", d.Name, d.Link)
		}

		p, err := device.New(device.Config{
			Name:   d.Name,
			UnitID: d.UnitID,
			Serial: d.Serial,
			Family: fam,
			Options: family.Options{
				PTRatio:           d.Options.PTRatio,
				CTRatio:           d.Options.CTRatio,
				ReverseConnection: d.Options.ReverseConnection,
			},
			Link: shared[d.Link],
		}, log)
		if err != nil {
			return nil, err
		}
		groups[gi].Profiles = append(groups[gi].Profiles, p)
	}

	engine := New(Config{
		WriteAttempts: c.Write.Attempts,
		RetryDelay:    ms(c.Write.RetryDelayMs),
		ReadDelay:     ms(c.Poll.ReadDelayMs),
	}, log, rec)

	return NewRunner(engine, groups, pub, RunnerConfig{
		Interval:       ms(c.Poll.IntervalMs),
		EnsureAttempts: c.Poll.EnsureAttempts,
		MidnightSleep:  c.Poll.MidnightSleep.Enabled,
		WakeAfter:      time.Duration(c.Poll.MidnightSleep.WakeupAfterMin) * time.Minute,
	}, rec, log), nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
