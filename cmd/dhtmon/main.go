package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/luki/dhtmon/internal/config"
	"github.com/luki/dhtmon/internal/dashboard"
	"github.com/luki/dhtmon/internal/logview"
	"github.com/luki/dhtmon/internal/metrics"
	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/publish"
	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/store"
	"github.com/luki/dhtmon/internal/stress"
)

// CLI args
var (
	configPath  = flag.String("config", "", "YAML config file (overrides -demo)")
	demo        = flag.String("demo", "single", "built-in setup when no config is given: single or multi")
	headless    = flag.Bool("headless", false, "log statistics instead of drawing the dashboard")
	interval    = flag.Duration("interval", 0, "time between polls (overrides config)")
	policy      = flag.String("policy", "", "display after a failed read: sticky or sentinel (overrides config)")
	overlap     = flag.String("overlap", "", "tick while a read is running: coalesce or skip (overrides config)")
	listenAddr  = flag.String("listen-address", "", "serve Prometheus metrics on this address, e.g. :9108")
	journalDir  = flag.String("journal", "", "append every attempt to daily CSV files in this directory")
	mqttBroker  = flag.String("mqtt", "", "publish updates to this MQTT broker, e.g. tcp://localhost:1883")
	cpuStress   = flag.Bool("stress", false, "load the CPU while polling")
	cpuWorkers  = flag.Int("stress-workers", 0, "CPU workers for -stress (0 = one per core)")
	logLevel    = flag.String("log-level", "", "panic, fatal, error, warn, info, debug or trace")
	logFile     = flag.String("log-file", "", "log destination while the dashboard is shown")
	logEveryNth = flag.Uint64("log-every", 1, "headless: log every nth valid reading per sensor")
)

func init() {
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)

	flag.Usage = usage
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  dhtmon [flags]                     poll sensors and show reliability statistics")
	fmt.Fprintln(out, "  dhtmon stress [duration] [workers] load the CPU, e.g. 'dhtmon stress 2m'")
	fmt.Fprintln(out, "  dhtmon journal [-dir d] [day]      list journal days or summarize one")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	flag.PrintDefaults()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "stress":
			runStress(os.Args[2:])
			return
		case "journal":
			runJournal(os.Args[2:])
			return
		}
	}

	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Demo(*demo)
	}
	if err != nil {
		return nil, err
	}

	if *interval > 0 {
		cfg.Interval = *interval
	}
	if *policy != "" {
		cfg.Policy = *policy
	}
	if *overlap != "" {
		cfg.Overlap = *overlap
	}
	if *listenAddr != "" {
		cfg.Metrics.Listen = *listenAddr
	}
	if *journalDir != "" {
		cfg.Journal.Dir = *journalDir
	}
	if *mqttBroker != "" {
		cfg.MQTT.Broker = *mqttBroker
	}
	if *cpuStress {
		cfg.Stress.Enabled = true
	}
	if *cpuWorkers > 0 {
		cfg.Stress.Workers = *cpuWorkers
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	for _, w := range config.Warnings(cfg) {
		log.Warn(w)
	}

	sensors, err := openSensors(cfg)
	if err != nil {
		return err
	}

	pcfg, err := cfg.Poller()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Consumers hold a closure over the poller so they can be built first.
	var p *poller.Poller
	statuses := func() []poller.Status {
		if p == nil {
			return nil
		}
		return p.Statuses()
	}

	var (
		observers poller.Observers
		closers   []io.Closer
	)

	m := metrics.New(statuses)
	observers = append(observers, m)

	if cfg.Journal.Dir != "" {
		ds, err := store.New(cfg.Journal.Dir)
		if err != nil {
			return err
		}
		log.WithField("dir", ds.Dir()).Info("journaling readings")
		observers = append(observers, ds)
		closers = append(closers, ds)
	}

	if cfg.MQTT.Broker != "" {
		pub, err := publish.Connect(publish.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}
		observers = append(observers, pub)
		closers = append(closers, pub)
	}

	var (
		prog   *tea.Program
		logger *logview.Logger
	)
	if *headless {
		logger = logview.New(nil)
		logger.Every = *logEveryNth
		observers = append(observers, logger)
	} else {
		f, err := redirectLogs(*logFile)
		if err != nil {
			return err
		}
		defer f.Close()

		model := dashboard.New(dashboard.Options{
			Interval:   cfg.Interval,
			Policy:     pcfg.Policy,
			JournalDir: cfg.Journal.Dir,
			Statuses:   statuses,
		})
		prog = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		observers = append(observers, dashboard.NewPresenter(prog))
	}

	p, err = poller.New(pcfg, sensors, observers)
	if err != nil {
		return err
	}

	if cfg.Stress.Enabled {
		b := stress.Start(ctx, cfg.Stress.Workers)
		defer b.Stop()
	}

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		srv = serveMetrics(cfg.Metrics.Listen, m)
	}

	if prog == nil {
		err = p.Run(ctx)
		logger.Summary(p.Statuses())
	} else {
		err = runDashboard(ctx, p, prog)
	}

	// Polling has stopped: release handles, then flush consumers.
	if cerr := p.Close(); cerr != nil {
		log.Errorf("close sensors: %s", cerr)
	}
	for _, c := range closers {
		if cerr := c.Close(); cerr != nil {
			log.Errorf("close: %s", cerr)
		}
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}

	return err
}

// runDashboard runs the poller alongside the TUI. Quitting the TUI stops
// polling; a poller error quits the TUI.
func runDashboard(ctx context.Context, p *poller.Poller, prog *tea.Program) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		err := p.Run(runCtx)
		if err != nil {
			prog.Quit()
		}
		errc <- err
	}()

	_, err := prog.Run()
	cancel()
	perr := <-errc

	if perr != nil {
		return perr
	}
	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "dashboard")
	}
	return nil
}

// openSensors opens a handle per configured sensor. A sensor without a
// controller is reported once and left out.
func openSensors(cfg *config.Config) ([]poller.Sensor, error) {
	var out []poller.Sensor
	for _, sc := range cfg.Sensors {
		opts, err := sc.Options()
		if err != nil {
			return nil, err
		}
		entry := log.WithFields(log.Fields{"sensor": sc.ID, "model": opts.Model, "source": opts.Source})

		h, err := sensor.Open(opts)
		if errors.Is(err, sensor.ErrNoController) {
			entry.Errorf("sensor disabled: %s", err)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "open sensor %s", sc.ID)
		}
		entry.Debug("sensor opened")

		out = append(out, poller.Sensor{
			ID:      sc.ID,
			Name:    sc.Name,
			Model:   opts.Model,
			Retries: opts.Retries,
			Handle:  h,
		})
	}
	if len(out) == 0 {
		return nil, errors.Wrap(sensor.ErrNoController, "no sensor could be opened")
	}
	return out, nil
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	// Expose the registered metrics via HTTP.
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %s", err)
		}
	}()
	return srv
}

// redirectLogs keeps log lines from tearing the dashboard.
func redirectLogs(path string) (*os.File, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "dhtmon.log")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	log.SetOutput(f)
	return f, nil
}
