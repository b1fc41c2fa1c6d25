// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/family"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: empty")
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	for name, v := range map[string]int{
		"poll.interval_ms":                     cfg.Poll.IntervalMs,
		"poll.read_delay_ms":                   cfg.Poll.ReadDelayMs,
		"poll.ensure_attempts":                 cfg.Poll.EnsureAttempts,
		"poll.midnight_sleep.wakeup_after_min": cfg.Poll.MidnightSleep.WakeupAfterMin,
		"write.attempts":                       cfg.Write.Attempts,
		"write.retry_delay_ms":                 cfg.Write.RetryDelayMs,
		"connect.attempts":                     cfg.Connect.Attempts,
		"connect.retry_delay_ms":               cfg.Connect.RetryDelayMs,
		"mqtt.reconnect_attempts":              cfg.MQTT.ReconnectAttempts,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, v)
		}
	}
	if cfg.Poll.MidnightSleep.WakeupAfterMin >= 24*60 {
		return fmt.Errorf("poll.midnight_sleep.wakeup_after_min must be < 1440")
	}

	// ------------------------------------------------------------
	// LINKS
	// ------------------------------------------------------------

	if len(cfg.Links) == 0 {
		return fmt.Errorf("at least one link is required")
	}

	links := make(map[string]LinkConfig, len(cfg.Links))
	for _, l := range cfg.Links {
		if err := checkName("link", l.Name); err != nil {
			return err
		}
		if _, dup := links[l.Name]; dup {
			return fmt.Errorf("link %q: duplicate name", l.Name)
		}
		links[l.Name] = l

		if l.Endpoint == "" {
			return fmt.Errorf("link %q: endpoint is required", l.Name)
		}
		if l.TimeoutMs < 0 {
			return fmt.Errorf("link %q: timeout_ms must be >= 0", l.Name)
		}

		switch l.Type {
		case "tcp":
		case "rtu":
			switch l.Parity {
			case "", "N", "E", "O":
			default:
				return fmt.Errorf("link %q: parity must be N, E or O, got %q", l.Name, l.Parity)
			}
			if l.DataBits != 0 && (l.DataBits < 5 || l.DataBits > 8) {
				return fmt.Errorf("link %q: data_bits must be 5..8", l.Name)
			}
			if l.StopBits != 0 && l.StopBits != 1 && l.StopBits != 2 {
				return fmt.Errorf("link %q: stop_bits must be 1 or 2", l.Name)
			}
			if l.BaudRate < 0 {
				return fmt.Errorf("link %q: baud_rate must be > 0", l.Name)
			}
		default:
			return fmt.Errorf("link %q: type must be tcp or rtu, got %q", l.Name, l.Type)
		}
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}

	// key = link | unit id
	owner := make(map[string]string)
	names := make(map[string]bool)

	for _, d := range cfg.Devices {
		if err := checkName("device", d.Name); err != nil {
			return err
		}
		if names[d.Name] {
			return fmt.Errorf("device %q: duplicate name", d.Name)
		}
		names[d.Name] = true

		if _, err := family.Lookup(d.Family); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
		if _, ok := links[d.Link]; !ok {
			return fmt.Errorf("device %q: unknown link %q", d.Name, d.Link)
		}
		if d.UnitID < 1 || d.UnitID > 247 {
			return fmt.Errorf("device %q: unit_id must be 1..247, got %d", d.Name, d.UnitID)
		}
		if d.Options.PTRatio < 0 || d.Options.CTRatio < 0 {
			return fmt.Errorf("device %q: pt_ratio and ct_ratio must be > 0", d.Name)
		}

		key := fmt.Sprintf("%s|%d", d.Link, d.UnitID)
		if prev, exists := owner[key]; exists {
			return fmt.Errorf(
				"unit id collision: link=%s unit_id=%d used by devices %q and %q",
				d.Link,
				d.UnitID,
				prev,
				d.Name,
			)
		}
		owner[key] = d.Name
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	if cfg.MQTT.Port < 0 || cfg.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port out of range: %d", cfg.MQTT.Port)
	}

	return nil
}

// checkName enforces ASCII letters and digits only: names end up in
// topics and metric labels.
func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return fmt.Errorf("%s %q: name must contain ASCII letters and digits only", kind, name)
		}
	}
	return nil
}
