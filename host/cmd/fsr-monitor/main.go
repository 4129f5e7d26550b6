// Command fsr-monitor subscribes to a force sensor board over serial or
// BLE, logs every reading, exports Prometheus metrics and republishes to
// MQTT.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"fsrsense/host/ble"
	"fsrsense/host/config"
	"fsrsense/host/link"
	"fsrsense/host/metrics"
	"fsrsense/host/publish"
	"fsrsense/host/serial"
)

const version = "fsr-monitor-1.0.0"

var (
	configPath  = flag.String("config", "fsr.yaml", "YAML configuration file")
	source      = flag.String("source", "", "serial or ble (overrides config)")
	device      = flag.String("device", "", "Serial device path (overrides config)")
	address     = flag.String("address", "", "BLE address (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level (overrides config)")
	noMetrics   = flag.Bool("no-metrics", false, "Do not serve Prometheus metrics")
	interactive = flag.Bool("interactive", false, "Read begin/end/status/dict commands from stdin (serial only)")
	statusEvery = flag.Duration("status", 10*time.Second, "Status poll interval (serial only, 0 disables)")
)

func main() {
	flag.Parse()
	logger.Infof("Starting %s", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("Failed to load config [%v]", err)
		logger.Exit(1)
	}
	applyFlags(cfg)

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Errorf("Bad log level %q [%v]", cfg.Log.Level, err)
		logger.Exit(1)
	}
	logger.SetLevel(level)

	subscribers := []link.Subscriber{&logSubscriber{}}
	if cfg.Metrics.Enabled && !*noMetrics {
		subscribers = append(subscribers, &metrics.Recorder{})
		go func() {
			logger.Fatal(metrics.Serve(cfg.Metrics.Listen))
		}()
	}
	if cfg.MQTT.Enabled {
		pub, err := publish.Connect(cfg.MQTT)
		if err != nil {
			logger.Errorf("Failed to connect to MQTT broker [%v]", err)
			logger.Exit(1)
		}
		defer pub.Close()
		subscribers = append(subscribers, pub)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Source {
	case config.SourceBLE:
		err = runBLE(ctx, cfg, subscribers)
	default:
		err = runSerial(ctx, cfg, subscribers)
	}
	if err != nil {
		logger.Errorf("%v", err)
		logger.Exit(1)
	}
	logger.Info("Exiting")
}

func applyFlags(cfg *config.Config) {
	if *source != "" {
		cfg.Source = *source
	}
	if *device != "" {
		cfg.Serial.Port = *device
	}
	if *address != "" {
		cfg.BLE.Address = *address
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
}

func runSerial(ctx context.Context, cfg *config.Config, subscribers []link.Subscriber) error {
	sc := serial.DefaultConfig(cfg.Serial.Port)
	sc.Baud = cfg.Serial.Baud
	sc.ReadTimeout = int(cfg.Serial.ReadTimeout / time.Millisecond)

	logger.Infof("Connecting to board on %s...", sc.Device)
	client, err := link.Connect(sc)
	if err != nil {
		return err
	}
	defer client.Close()

	dict, err := client.Identify()
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if err := dict.Compatible(); err != nil {
		return fmt.Errorf("incompatible firmware: %w", err)
	}
	logger.Infof("Board speaks %s (%d messages)", dict.Version, len(dict.Messages))

	for _, s := range subscribers {
		client.Subscribe(s)
	}

	if *interactive {
		go commandLoop(client)
	} else if err := client.Begin(); err != nil {
		return err
	}

	var tick <-chan time.Time
	if *statusEvery > 0 {
		ticker := time.NewTicker(*statusEvery)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			if err := client.End(); err != nil {
				logger.Warnf("Failed to stop sampling [%v]", err)
			}
			return nil
		case <-client.Done():
			return fmt.Errorf("board connection closed")
		case <-tick:
			// the reply reaches the subscribers too
			if _, err := client.Status(); err != nil {
				logger.Warnf("Status poll failed [%v]", err)
			}
		}
	}
}

// commandLoop reads operator commands from stdin.
func commandLoop(client *link.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch line {
		case "":
			continue
		case "begin":
			err = client.Begin()
		case "end":
			err = client.End()
		case "status":
			var st link.Status
			if st, err = client.Status(); err == nil {
				fmt.Printf("state=%s samples=%d calibrations=%d dropped=%d overwritten=%d spurious=%d\n",
					st.State, st.Samples, st.Calibrations, st.Dropped, st.Overwritten, st.Spurious)
			}
		case "dict":
			var d *link.Dictionary
			if d, err = client.Identify(); err == nil {
				fmt.Println(d.Version)
				for _, m := range d.Sorted() {
					fmt.Printf("  %3d %-18s %s\n", m.ID, m.Name, m.Format)
				}
			}
		case "help", "?":
			fmt.Println("commands: begin, end, status, dict")
		default:
			fmt.Printf("unknown command %q\n", line)
		}
		if err != nil {
			logger.Errorf("%s failed [%v]", line, err)
		}
	}
}

func runBLE(ctx context.Context, cfg *config.Config, subscribers []link.Subscriber) error {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth: %w", err)
	}

	logger.Info("Scanning for board...")
	l, err := ble.Listen(ctx, adapter, cfg.BLE.Address, cfg.BLE.ScanTimeout)
	if err != nil {
		return err
	}
	defer l.Close()
	for _, s := range subscribers {
		l.Subscribe(s)
	}
	logger.Info("Subscribed, sampling")

	<-ctx.Done()
	return nil
}
