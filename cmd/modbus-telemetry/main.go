// cmd/modbus-telemetry/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/bus"
	"github.com/tamzrod/modbus-telemetry/internal/config"
	"github.com/tamzrod/modbus-telemetry/internal/metrics"
	"github.com/tamzrod/modbus-telemetry/internal/poller"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: modbus-telemetry <config.yaml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	log = log.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Metrics (optional)
	// --------------------

	var rec poller.Recorder
	if cfg.Metrics.Listen != "" {
		m := metrics.New()
		rec = m
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	// --------------------
	// Bus: MQTT when a broker is configured, log otherwise
	// --------------------

	var (
		pub poller.Publisher = bus.NewLog(log)
		mq  *bus.Bus
	)
	if cfg.MQTT.Host != "" {
		mq, err = bus.Dial(bus.Config{
			Host:              cfg.MQTT.Host,
			Port:              cfg.MQTT.Port,
			Username:          cfg.MQTT.Username,
			Password:          cfg.MQTT.Password,
			BaseTopic:         cfg.MQTT.BaseTopic,
			ReconnectAttempts: cfg.MQTT.ReconnectAttempts,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("broker connect failed")
		}
		pub = mq
	}

	// --------------------
	// Poller
	// --------------------

	runner, err := poller.Build(cfg, pub, rec, log)
	if err != nil {
		log.Fatal().Err(err).Msg("poller build failed")
	}

	if mq != nil {
		if err := mq.Serve(ctx, runner); err != nil {
			log.Fatal().Err(err).Msg("command subscription failed")
		}
	}

	log.Info().Int("links", len(cfg.Links)).Int("devices", len(cfg.Devices)).Msg("modbus-telemetry started")

	// Run returns after in-flight writes finished and devices were marked offline.
	runErr := runner.Run(ctx)
	stop()

	if mq != nil {
		mq.Close()
	}

	if runErr != nil {
		log.Error().Err(runErr).Stringer("action", poller.Decide(runErr)).Msg("poller aborted")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
