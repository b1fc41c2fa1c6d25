// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log: {level: debug}
poll:
  interval_ms: 5000
  midnight_sleep: {enabled: true}
write: {attempts: 4}
links:
  - {name: RS485, type: rtu, endpoint: /dev/ttyUSB0, baud_rate: 19200}
  - {name: lan, type: tcp, endpoint: "10.0.0.5:502"}
devices:
  - name: SG1
    family: sungrow_inverter
    link: RS485
    unit_id: 1
    serial: A2201234567
  - name: meter
    family: acrel_meter
    link: lan
    unit_id: 3
    options: {pt_ratio: 10, reverse_connection: true}
mqtt: {host: broker.local, username: ha, password: secret}
metrics: {listen: ":9108"}
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, uint8(3), cfg.Devices[1].UnitID)
	assert.True(t, cfg.Devices[1].Options.ReverseConnection)
	assert.Equal(t, 19200, cfg.Links[0].BaudRate)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("pol: {interval_ms: 10}\n"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, 5000, cfg.Poll.IntervalMs)
	assert.Equal(t, DefaultReadDelayMs, cfg.Poll.ReadDelayMs)
	assert.Equal(t, DefaultWakeupAfterMin, cfg.Poll.MidnightSleep.WakeupAfterMin)
	assert.Equal(t, 4, cfg.Write.Attempts)
	assert.Equal(t, DefaultConnectAttempts, cfg.Connect.Attempts)

	rtu := cfg.Links[0]
	assert.Equal(t, 19200, rtu.BaudRate)
	assert.Equal(t, 8, rtu.DataBits)
	assert.Equal(t, "N", rtu.Parity)
	assert.Equal(t, 1, rtu.StopBits)
	assert.Equal(t, 0, cfg.Links[1].DataBits, "serial defaults only for rtu")

	assert.Equal(t, 10.0, cfg.Devices[1].Options.PTRatio)
	assert.Equal(t, 1.0, cfg.Devices[1].Options.CTRatio)

	assert.Equal(t, DefaultMQTTPort, cfg.MQTT.Port)
	assert.Equal(t, DefaultBaseTopic, cfg.MQTT.BaseTopic)
}

func TestNormalize_NoBrokerNoBusDefaults(t *testing.T) {
	cfg := &Config{}
	Normalize(cfg)
	assert.Equal(t, 0, cfg.MQTT.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}
