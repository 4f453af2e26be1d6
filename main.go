package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/charles-d-burton/iot-printer/config"
	"github.com/charles-d-burton/iot-printer/controller"
	"github.com/charles-d-burton/iot-printer/ingest"
)

var (
	usageStr = `
Usage: iot-printer [options]
Options:
	-c,  --config          <Path>         Config file, defaults to /etc/iot-printer/config.yaml
	-d,  --debug           <Nothing>      Debug logging, enables CORS on the image service
	     --dummy           <Nothing>      Log instead of printing, no GPIO or serial access
	-nh, --nats-host       <NATSHost>     Publish job and button events to this NATS server
	-p,  --port            <Port>         Port of the image service
`
	log = logrus.New()
)

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
}

func main() {
	var configPath, natsHost string
	var debug, dummy bool
	var port int
	flag.StringVar(&configPath, "c", "/etc/iot-printer/config.yaml", "Config file")
	flag.StringVar(&configPath, "config", "/etc/iot-printer/config.yaml", "Config file")
	flag.BoolVar(&debug, "d", false, "Turn on Debugging/Cors")
	flag.BoolVar(&debug, "debug", false, "Turn on Debugging/Cors")
	flag.BoolVar(&dummy, "dummy", false, "Log instead of printing")
	flag.StringVar(&natsHost, "nh", "", "NATS server to publish events to")
	flag.StringVar(&natsHost, "nats-host", "", "NATS server to publish events to")
	flag.IntVar(&port, "p", 0, "Port of the image service")
	flag.IntVar(&port, "port", 0, "Port of the image service")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageStr) }
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
	}
	if dummy {
		cfg.Printer.Dummy = true
	}
	if natsHost != "" {
		cfg.NATS.Host = natsHost
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if err := setupLogging(cfg.Logging); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		log.WithField("signal", sig.String()).Info("Exiting")
		cancel()
	}()

	log.Info("Starting IoT Printer")
	app, err := build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	app.Greet(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.loop.Run(gctx)
	})
	g.Go(func() error {
		return ingest.ListenAndServe(gctx, cfg.ListenAddr(), app.server.Router(),
			cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, component("ingest"))
	})

	err = g.Wait()
	switch {
	case errors.Is(err, controller.ErrShutdown):
		app.Close()
		if err := app.powerOff.Execute(context.Background()); err != nil {
			log.WithError(err).Error("Power off failed")
			os.Exit(1)
		}
	case err != nil:
		log.Fatal(err)
	default:
		log.Info("Stopped")
	}
}

func setupLogging(cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func component(name string) *logrus.Entry {
	return log.WithField("component", name)
}
