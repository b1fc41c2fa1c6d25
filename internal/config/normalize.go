// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultPollIntervalMs   = 10000
	DefaultReadDelayMs      = 1
	DefaultEnsureAttempts   = 30
	DefaultWakeupAfterMin   = 5
	DefaultWriteAttempts    = 3
	DefaultWriteRetryMs     = 100
	DefaultConnectAttempts  = 2
	DefaultConnectRetryMs   = 3000
	DefaultLinkTimeoutMs    = 1000
	DefaultBaudRate         = 9600
	DefaultMQTTPort         = 1883
	DefaultBaseTopic        = "modbus"
	DefaultReconnectAttempt = 5
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	setDefault(&cfg.Poll.IntervalMs, DefaultPollIntervalMs)
	setDefault(&cfg.Poll.ReadDelayMs, DefaultReadDelayMs)
	setDefault(&cfg.Poll.EnsureAttempts, DefaultEnsureAttempts)
	if cfg.Poll.MidnightSleep.Enabled {
		setDefault(&cfg.Poll.MidnightSleep.WakeupAfterMin, DefaultWakeupAfterMin)
	}
	setDefault(&cfg.Write.Attempts, DefaultWriteAttempts)
	setDefault(&cfg.Write.RetryDelayMs, DefaultWriteRetryMs)
	setDefault(&cfg.Connect.Attempts, DefaultConnectAttempts)
	setDefault(&cfg.Connect.RetryDelayMs, DefaultConnectRetryMs)

	for li := range cfg.Links {
		l := &cfg.Links[li]
		setDefault(&l.TimeoutMs, DefaultLinkTimeoutMs)
		if l.Type != "rtu" {
			continue
		}
		setDefault(&l.BaudRate, DefaultBaudRate)
		setDefault(&l.DataBits, 8)
		setDefault(&l.StopBits, 1)
		if l.Parity == "" {
			l.Parity = "N"
		}
	}

	for di := range cfg.Devices {
		o := &cfg.Devices[di].Options
		if o.PTRatio == 0 {
			o.PTRatio = 1
		}
		if o.CTRatio == 0 {
			o.CTRatio = 1
		}
	}

	if cfg.MQTT.Host != "" {
		setDefault(&cfg.MQTT.Port, DefaultMQTTPort)
		setDefault(&cfg.MQTT.ReconnectAttempts, DefaultReconnectAttempt)
		if cfg.MQTT.BaseTopic == "" {
			cfg.MQTT.BaseTopic = DefaultBaseTopic
		}
	}
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
