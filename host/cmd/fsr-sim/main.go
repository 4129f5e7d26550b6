// Command fsr-sim serves the force sensor firmware running on a simulated
// nRF52 board over TCP, one host connection at a time. Point fsr-monitor
// at it with -device tcp://host:port.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"fsrsense/core"
	"fsrsense/host/config"
	"fsrsense/sim"
)

const version = "fsr-sim-1.0.0"

var (
	configPath = flag.String("config", "fsr.yaml", "YAML configuration file")
	listen     = flag.String("listen", "127.0.0.1:7700", "TCP address to serve the link on")
	speed      = flag.Float64("speed", 0, "Virtual seconds per wall second (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level (overrides config)")
	debug      = flag.Bool("debug", false, "Forward firmware debug output")
)

func main() {
	flag.Parse()
	logger.Infof("Starting %s", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("Failed to load config [%v]", err)
		logger.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *speed > 0 {
		cfg.Sim.Speed = *speed
	}
	if *debug {
		cfg.Log.Debug = true
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Errorf("Bad log level %q [%v]", cfg.Log.Level, err)
		logger.Exit(1)
	}
	logger.SetLevel(level)

	core.SetDebugWriter(func(s string) { logger.Debug(s) })
	core.SetDebugEnabled(cfg.Log.Debug)
	core.InitAsyncDebug()

	dev, err := newDevice(cfg.Sim)
	if err != nil {
		logger.Errorf("Failed to build simulated board [%v]", err)
		logger.Exit(1)
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Errorf("Failed to listen on %s [%v]", *listen, err)
		logger.Exit(1)
	}
	logger.Infof("Serving simulated board on %s", ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Errorf("Accept failed [%v]", err)
			continue
		}
		serve(ctx, dev, conn, cfg.Sim.Tick)
	}

	st := dev.Sensor.Stats()
	logger.WithFields(logger.Fields{
		"samples":      st.Samples,
		"delivered":    st.Delivered,
		"calibrations": st.Calibrations,
		"overwritten":  st.Overwritten,
		"dropped":      st.Dropped,
		"spurious":     st.Spurious,
	}).Info("Exiting")
}

func newDevice(sc config.SimConfig) (*sim.Device, error) {
	fw, err := sc.CoreConfig()
	if err != nil {
		return nil, err
	}
	fw.Trace = true
	dev, err := sim.NewDevice(fw)
	if err != nil {
		return nil, err
	}
	dev.Speed = sc.Speed
	dev.Board.ADC.BusyPolls = sc.BusyPolls
	switch sc.Signal {
	case "sine":
		dev.Board.ADC.Signal = sim.SineSignal(sc.Amplitude, uint64(sc.SignalPeriod/time.Microsecond))
	default:
		for ch, raw := range sc.Raw {
			dev.Board.ADC.SetRaw(ch, raw)
		}
	}
	return dev, nil
}

func serve(ctx context.Context, dev *sim.Device, conn net.Conn, tick time.Duration) {
	defer conn.Close()
	logger.Infof("Host connected from %s", conn.RemoteAddr())

	dev.Transport.Reset()
	err := dev.Serve(ctx, conn, tick)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		logger.Warnf("Link closed [%v]", err)
	}

	// a host that goes away unsubscribes
	if err := dev.Link.Disconnect(); err != nil && !errors.Is(err, core.ErrFaulted) {
		logger.Warnf("Failed to stop sampling [%v]", err)
	}
	if dev.Sensor.State() == core.StateFaulted {
		dev.Sensor.Trace().Dump()
	}
	logger.Infof("Host %s disconnected", conn.RemoteAddr())
}
