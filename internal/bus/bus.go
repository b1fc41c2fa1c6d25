// internal/bus/bus.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/poller"
	"github.com/tamzrod/modbus-telemetry/internal/status"
)

const (
	qos            = 1
	publishTimeout = 5 * time.Second

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Config is the broker connection.
type Config struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string
	ReconnectAttempts int
}

// Commander executes write commands received from the bus.
type Commander interface {
	Write(ctx context.Context, device, slug, raw string) error
	Read(ctx context.Context, device, slug string) (poller.Reading, error)
}

// client is the subset of the paho client the bus uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Bus publishes readings, availability and status, and turns messages on
// <base>/<device>/<slug>/set into writes.
//
// Topics:
//
//	<base>/<device>/<slug>/state    reading value, not retained
//	<base>/<device>/availability    online | offline, retained
//	<base>/<device>/status          status snapshot JSON, retained
//	<base>/bridge/availability      process liveness, last will
type Bus struct {
	c    client
	conn mqtt.Client // nil in tests
	base string
	log  zerolog.Logger

	mu  sync.Mutex
	cmd Commander
	ctx context.Context
	wg  sync.WaitGroup
}

// Dial connects to the broker, retrying up to cfg.ReconnectAttempts times.
func Dial(cfg Config, log zerolog.Logger) (*Bus, error) {
	b := &Bus{base: strings.TrimSuffix(cfg.BaseTopic, "/"), log: log.With().Str("component", "bus").Logger()}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID("modbus-" + uuid.NewString()).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(publishTimeout).
		SetWill(b.bridgeTopic(), payloadOffline, qos, true).
		SetOnConnectHandler(func(mqtt.Client) { b.onConnect() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Warn().Err(err).Msg("broker connection lost")
		})

	conn := mqtt.NewClient(opts)
	b.c, b.conn = conn, conn

	attempts := cfg.ReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		tok := conn.Connect()
		if !tok.WaitTimeout(2 * publishTimeout) {
			err = errors.New("connect timeout")
		} else {
			err = tok.Error()
		}
		if err == nil {
			return b, nil
		}
		b.log.Warn().Err(err).Int("attempt", i).Msg("broker connect failed")
		if i < attempts {
			time.Sleep(time.Second)
		}
	}
	return nil, fmt.Errorf("bus: connect %s:%d: %w", cfg.Host, cfg.Port, err)
}

func (b *Bus) bridgeTopic() string { return b.base + "/bridge/availability" }

func (b *Bus) onConnect() {
	b.log.Info().Msg("broker connected")
	if err := b.publish(b.bridgeTopic(), true, payloadOnline); err != nil {
		b.log.Warn().Err(err).Msg("bridge availability")
	}

	b.mu.Lock()
	serving := b.cmd != nil
	b.mu.Unlock()
	if serving {
		if err := b.subscribe(); err != nil {
			b.log.Error().Err(err).Msg("resubscribe failed")
		}
	}
}

// Serve subscribes to write commands and dispatches them to cmd.
// Commands are handled until ctx is done.
func (b *Bus) Serve(ctx context.Context, cmd Commander) error {
	b.mu.Lock()
	b.cmd, b.ctx = cmd, ctx
	b.mu.Unlock()
	return b.subscribe()
}

func (b *Bus) subscribe() error {
	topic := b.base + "/+/+/set"
	return wait(b.c.Subscribe(topic, qos, b.onMessage))
}

func (b *Bus) onMessage(_ mqtt.Client, m mqtt.Message) {
	device, slug, ok := b.parseCommand(m.Topic())
	if !ok {
		b.log.Warn().Str("topic", m.Topic()).Msg("ignored command topic")
		return
	}

	b.mu.Lock()
	cmd, ctx := b.cmd, b.ctx
	if cmd == nil || ctx.Err() != nil {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	// writes retry on the wire; keep the paho router free
	go func() {
		defer b.wg.Done()
		b.handle(ctx, cmd, device, slug, string(m.Payload()))
	}()
}

func (b *Bus) handle(ctx context.Context, cmd Commander, device, slug, raw string) {
	log := b.log.With().Str("device", device).Str("parameter", slug).Str("value", raw).Logger()

	if err := cmd.Write(ctx, device, slug, raw); err != nil {
		log.Error().Err(err).Msg("command rejected")
		return
	}

	r, err := cmd.Read(ctx, device, slug)
	if err != nil {
		log.Warn().Err(err).Msg("read-back failed")
		return
	}
	if err := b.State(device, r); err != nil {
		log.Warn().Err(err).Msg("read-back publish failed")
	}
}

// parseCommand splits <base>/<device>/<slug>/set.
func (b *Bus) parseCommand(topic string) (device, slug string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.base+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ---- poller.Publisher ----

func (b *Bus) State(device string, r poller.Reading) error {
	return b.publish(fmt.Sprintf("%s/%s/%s/state", b.base, device, r.Slug), false, r.Value.String())
}

func (b *Bus) Availability(device string, online bool) error {
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	return b.publish(fmt.Sprintf("%s/%s/availability", b.base, device), true, payload)
}

func (b *Bus) Status(device string, s status.Snapshot) error {
	raw, err := status.Encode(s)
	if err != nil {
		return err
	}
	return b.publish(fmt.Sprintf("%s/%s/status", b.base, device), true, raw)
}

func (b *Bus) publish(topic string, retained bool, payload interface{}) error {
	return wait(b.c.Publish(topic, qos, retained, payload))
}

// Close waits for in-flight commands, marks the bridge offline and
// disconnects.
func (b *Bus) Close() {
	b.wg.Wait()
	if b.conn == nil {
		return
	}
	_ = b.publish(b.bridgeTopic(), true, payloadOffline)
	b.conn.Disconnect(250)
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(publishTimeout) {
		return errors.New("bus: broker timeout")
	}
	return t.Error()
}
