package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	rtu "github.com/bangzek/rtu-discovery"
	"github.com/bangzek/rtu-discovery/config"
	"github.com/bangzek/rtu-discovery/definition"
	"github.com/bangzek/rtu-discovery/device"
	"github.com/bangzek/rtu-discovery/discovery"
	"github.com/bangzek/rtu-discovery/internal/simbus"
	"github.com/bangzek/rtu-discovery/vendors/sht20"
	"github.com/bangzek/rtu-discovery/vendors/shihlin"
)

func main() {
	fs := config.Flags(os.Args[0])
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)
	rtu.InfoLogFunc = logFunc(slog.LevelInfo)
	rtu.DebugLogFunc = logFunc(slog.LevelDebug)
	rtu.ErrorLogFunc = logFunc(slog.LevelError)

	ch := &rtu.Channel{
		Port:     openerFor(cfg.Serial),
		Baudrate: cfg.Serial.BaudRate,
		Timeout:  cfg.Serial.Timeout,
	}
	defer ch.Close()

	opts := discovery.Options{
		Probes: []discovery.Probe{discovery.Echo, shihlin.Probe{}, sht20.Probe{}},
		Dedups: []discovery.Dedup{discovery.ByAddress},
	}
	if cfg.Definitions != "" {
		defs, err := definition.Load(cfg.Definitions)
		if err != nil {
			slog.Error("Failed to load definitions", "file", cfg.Definitions, "err", err)
			os.Exit(1)
		}
		opts.Loader = defs
	}

	params := discovery.Params{
		Start: byte(cfg.Discovery.Start),
		Count: cfg.Discovery.Count,
	}
	slog.Info("Discovering devices", "start", params.Start, "count", params.Count)
	start := time.Now()
	devs := discovery.Discover(ch, params, opts)
	slog.Info("Discovery done", "found", len(devs), "took", time.Since(start),
		"stats", fmt.Sprintf("%+v", ch.Stats()))

	for _, d := range devs {
		printDevice(d)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	poll(ctx, ch, devs, cfg.Poll.Interval)
	slog.Info("Goodbye.", "stats", fmt.Sprintf("%+v", ch.Stats()))
}

func openerFor(s config.SerialConfig) rtu.PortOpener {
	if s.Device == config.SimDevice {
		slog.Info("Using simulated bus")
		return simbus.New().
			Attach(1, simbus.NewSHT20(253, 456)).
			Attach(5, simbus.NewShihlinSL3(102))
	}
	return s.Port()
}

func printDevice(d *device.Device) {
	fmt.Println(d)
	fmt.Printf("  kind: %s, capabilities: %s, discovery: %s\n",
		d.Kind(), d.Capabilities(), d.DiscoveryStatus)

	addrs := make([]uint16, 0, len(d.Regs))
	for a := range d.Regs {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	for _, a := range addrs {
		v, _ := d.Display(a)
		name := "?"
		if def, ok := d.Register(a); ok {
			name = def.Name
		}
		fmt.Printf("  %5d %-24s %s\n", a, name, v)
	}
}

// poll refreshes every SHT20 until ctx is done.
func poll(
	ctx context.Context, ch *rtu.Channel, devs []*device.Device,
	interval time.Duration,
) {
	var sensors []*device.Device
	for _, d := range devs {
		if d.Manufacturer == sht20.Manufacturer && d.Model == sht20.ModelName {
			sensors = append(sensors, d)
		}
	}
	if len(sensors) == 0 {
		return
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		for _, d := range sensors {
			if err := sht20.Refresh(ch, d); err != nil {
				slog.Error("Failed to read sensor", "address", d.Address, "err", err)
				continue
			}
			slog.Info("Sensor reading", "address", d.Address,
				"temperature", d.Temperature.Celsius,
				"humidity", d.Humidity.Percent)
		}
	}
}

func logFunc(level slog.Level) func(string, ...any) {
	return func(f string, a ...any) {
		slog.Log(context.Background(), level, fmt.Sprintf(f, a...))
	}
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
