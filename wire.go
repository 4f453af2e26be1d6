package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charles-d-burton/iot-printer/actions"
	"github.com/charles-d-burton/iot-printer/button"
	"github.com/charles-d-burton/iot-printer/config"
	"github.com/charles-d-burton/iot-printer/controller"
	"github.com/charles-d-burton/iot-printer/gpio"
	"github.com/charles-d-burton/iot-printer/ingest"
	"github.com/charles-d-burton/iot-printer/printer"
	"github.com/charles-d-burton/iot-printer/queue"
	"github.com/charles-d-burton/iot-printer/sensor"
	"github.com/charles-d-burton/iot-printer/store"
	"github.com/charles-d-burton/iot-printer/telemetry"
)

const cursorName = "periodic"

//app everything main starts, built from the config
type app struct {
	queue    *queue.Queue
	device   printer.Device
	led      controller.Output
	banner   *actions.Banner
	loop     *controller.Loop
	server   *ingest.Server
	powerOff *actions.PowerOff
	closers  []io.Closer
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	// a nil *Publisher must not end up inside the interfaces
	var jobEvents queue.EventSender
	var actionEvents controller.ActionEvents
	if cfg.NATS.Host != "" {
		log := component("telemetry")
		pub := telemetry.NewPublisher(cfg.NATS.Host, cfg.NATS.Port, cfg.NATS.Subject, log)
		if cfg.NATS.Stream != "" {
			pub.Dial = telemetry.StreamDialer(cfg.NATS.Stream, cfg.NATS.Subject, log)
		}
		jobEvents, actionEvents = pub, pub
		go pub.Run(ctx)
	}
	a.queue = queue.New(component("queue"), jobEvents)

	in, err := a.openPins(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.openDevice(cfg); err != nil {
		return nil, err
	}

	graphics := actions.NewGraphics(cfg.Printer.MaxWidth)
	a.banner = &actions.Banner{
		Queue:    a.queue,
		Graphics: graphics,
		Hello:    cfg.Graphics.Hello,
		Face:     cfg.Graphics.Face,
		Goodbye:  cfg.Graphics.Goodbye,
		Log:      component("banner"),
	}
	a.powerOff = &actions.PowerOff{Commands: cfg.Shutdown.Commands, Log: component("shutdown")}

	weather := &actions.Weather{
		URL:       cfg.Weather.URL,
		Latitude:  cfg.Weather.Latitude,
		Longitude: cfg.Weather.Longitude,
		Client:    actions.NewHTTPClient(cfg.Weather.Timeout, cfg.Weather.Retries),
		Queue:     a.queue,
		Log:       component("weather"),
	}
	timeTemp := &actions.TimeTemp{
		Queue:   a.queue,
		Probe:   a.openProbe(cfg),
		Weather: weather,
		Log:     component("timetemp"),
	}

	acts := controller.Actions{
		Tap:  timeTemp.Tap,
		Face: a.banner.PrintFace,
		Hold: a.banner.PrintGoodbye,
	}

	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}
	var daily *controller.Daily
	if cfg.Daily.Enabled {
		acts.Daily = weather.Forecast
		daily = controller.NewDaily(cfg.Daily.Hour, cfg.Daily.Minute, loc, time.Now())
	}

	cursor := cfg.Periodic.Cursor
	var periodic *controller.Periodic
	if cfg.Periodic.Enabled {
		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		if saved, ok, err := db.Cursor(ctx, cursorName); err != nil {
			return nil, err
		} else if ok {
			cursor = saved
		}
		poller := &actions.GitHub{
			URL:           cfg.GitHub.URL,
			Username:      cfg.GitHub.Username,
			Token:         cfg.GitHub.Token,
			SkipOrgEvents: cfg.GitHub.SkipOrgEvents,
			Client:        actions.NewHTTPClient(cfg.GitHub.Timeout, 2),
			Store:         db,
			Queue:         a.queue,
			Log:           component("github"),
		}
		acts.Periodic = persistCursor(poller.Poll, db)
		periodic = controller.NewPeriodic(cfg.Periodic.Period)
	}

	a.loop = &controller.Loop{
		Monitor: button.NewMonitor(in, button.Config{
			Debounce:  cfg.Button.Debounce,
			Hold:      cfg.Button.Hold,
			ActiveLow: cfg.Button.ActiveLow,
		}),
		Dispatcher: controller.NewDispatcher(acts, a.led, actionEvents, cursor, component("dispatcher")),
		Queue:      a.queue,
		Device:     a.device,
		LED:        a.led,
		Periodic:   periodic,
		Daily:      daily,
		Tick:       cfg.Loop.Tick,
		Log:        component("loop"),
	}

	a.server = ingest.New(a.queue, ingest.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Width:          cfg.Printer.MaxWidth,
		Debug:          cfg.Server.Debug,
	}, component("ingest"))
	return a, nil
}

func (a *app) openPins(cfg *config.Config) (button.Input, error) {
	if cfg.Printer.Dummy {
		// released level for the configured wiring
		a.led = gpio.NewMemory(false)
		return gpio.NewMemory(cfg.Button.ActiveLow), nil
	}
	if err := gpio.Init(); err != nil {
		return nil, err
	}
	pull, err := gpio.ParsePull(cfg.GPIO.Pull)
	if err != nil {
		return nil, err
	}
	in, err := gpio.OpenInput(cfg.GPIO.Button, pull)
	if err != nil {
		return nil, err
	}
	led, err := gpio.OpenOutput(cfg.GPIO.LED)
	if err != nil {
		return nil, err
	}
	a.led = led
	return in, nil
}

func (a *app) openDevice(cfg *config.Config) error {
	if cfg.Printer.Dummy {
		a.device = printer.NewDummy(component("printer"), cfg.Printer.DummyWait)
		return nil
	}
	pcfg := printer.DefaultConfig()
	pcfg.Port = cfg.Printer.Port
	pcfg.Baud = cfg.Printer.Baud
	pcfg.Timeout = cfg.Printer.Timeout
	pcfg.HeatDots = cfg.Printer.HeatDots
	pcfg.HeatTime = cfg.Printer.HeatTime
	pcfg.HeatGap = cfg.Printer.HeatGap
	pcfg.MaxWidth = cfg.Printer.MaxWidth
	t, err := printer.Open(pcfg)
	if err != nil {
		return fmt.Errorf("printer %s: %w", cfg.Printer.Port, err)
	}
	a.device = t
	a.closers = append(a.closers, t)
	return nil
}

//openProbe a missing probe is not fatal, the tap falls back to the weather service
func (a *app) openProbe(cfg *config.Config) sensor.Probe {
	log := component("sensor").WithField("type", cfg.Sensor.Type)
	switch cfg.Sensor.Type {
	case "ds18b20":
		p, err := sensor.NewDS18B20(cfg.Sensor.ID)
		if err != nil {
			log.WithError(err).Warn("No temperature probe, using the weather service")
			return nil
		}
		return p
	case "max31855":
		p, err := sensor.OpenMAX31855(cfg.Sensor.SPIPort)
		if err != nil {
			log.WithError(err).Warn("No temperature probe, using the weather service")
			return nil
		}
		a.closers = append(a.closers, p)
		return p
	}
	return nil
}

//Greet print the startup banner before the loop takes over the device
func (a *app) Greet(ctx context.Context) {
	a.led.Write(true)
	defer a.led.Write(false)
	if err := a.banner.Greeting(ctx); err != nil {
		component("banner").WithError(err).Warn("Greeting incomplete")
	}
	a.queue.Drain(ctx, a.device)
}

//Close release the serial line and the database, safe to call twice
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			component("app").WithError(err).Warn("Close failed")
		}
	}
	a.closers = nil
}

//persistCursor store the cursor after every run so a restart resumes from it
func persistCursor(poll controller.PeriodicAction, db *store.Store) controller.PeriodicAction {
	return func(ctx context.Context, cursor string) (string, error) {
		next, err := poll(ctx, cursor)
		if next != "" && next != cursor {
			if saveErr := db.SaveCursor(ctx, cursorName, next); saveErr != nil {
				component("github").WithError(saveErr).Warn("Unable to persist cursor")
			}
		}
		return next, err
	}
}
