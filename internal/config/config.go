// internal/config/config.go
package config

type Config struct {
	Log     LogConfig      `yaml:"log"`
	Poll    PollConfig     `yaml:"poll"`
	Write   WriteConfig    `yaml:"write"`
	Connect ConnectConfig  `yaml:"connect"`
	Links   []LinkConfig   `yaml:"links"`
	Devices []DeviceConfig `yaml:"devices"`
	MQTT    MQTTConfig     `yaml:"mqtt"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// ---- LOGGING ----

type LogConfig struct {
	Level string `yaml:"level"`
}

// ---- POLLING ----

type PollConfig struct {
	IntervalMs  int `yaml:"interval_ms"`
	ReadDelayMs int `yaml:"read_delay_ms"`

	// EnsureAttempts bounds the per-cycle reconnect wait (1 attempt/s).
	EnsureAttempts int `yaml:"ensure_attempts"`

	MidnightSleep MidnightSleepConfig `yaml:"midnight_sleep"`
}

type MidnightSleepConfig struct {
	Enabled        bool `yaml:"enabled"`
	WakeupAfterMin int  `yaml:"wakeup_after_min"`
}

type WriteConfig struct {
	Attempts     int `yaml:"attempts"`
	RetryDelayMs int `yaml:"retry_delay_ms"`
}

type ConnectConfig struct {
	Attempts     int `yaml:"attempts"`
	RetryDelayMs int `yaml:"retry_delay_ms"`
}

// ---- LINK ----

type LinkConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`     // tcp | rtu
	Endpoint  string `yaml:"endpoint"` // host:port or serial device
	TimeoutMs int    `yaml:"timeout_ms"`

	// rtu only
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Name    string        `yaml:"name"`
	Family  string        `yaml:"family"`
	Link    string        `yaml:"link"`
	UnitID  uint8         `yaml:"unit_id"`
	Serial  string        `yaml:"serial"`
	Options DeviceOptions `yaml:"options"`
}

type DeviceOptions struct {
	PTRatio           float64 `yaml:"pt_ratio"`
	CTRatio           float64 `yaml:"ct_ratio"`
	ReverseConnection bool    `yaml:"reverse_connection"`
}

// ---- BUS ----

// MQTTConfig is optional; an empty host disables the broker and
// readings are only logged.
type MQTTConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	BaseTopic         string `yaml:"base_topic"`
	ReconnectAttempts int    `yaml:"reconnect_attempts"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}
